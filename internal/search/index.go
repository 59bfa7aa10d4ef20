package search

import (
	"context"
	"errors"

	"github.com/ad/personsearch/internal/models"
)

var (
	// ErrIndexNotFound is returned by Index.Count when the remote index does not exist
	ErrIndexNotFound = errors.New("index not found")
	// ErrInvalidDocument is returned when a document fails validation before upload
	ErrInvalidDocument = errors.New("invalid document")
)

// Index is the set of operations the provider needs from a hosted search service
type Index interface {
	CreateIndex(ctx context.Context) error
	DeleteIndex(ctx context.Context) error
	Upload(ctx context.Context, docs []*models.PersonCity) error
	Search(ctx context.Context, text string, limit, offset int) (*models.SearchResult, error)
	Count(ctx context.Context) (int64, error)
}
