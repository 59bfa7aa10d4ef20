package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ad/personsearch/internal/models"
	"github.com/ad/personsearch/internal/paging"
)

// Provider runs index management and paged queries against an Index
type Provider struct {
	index  Index
	paging paging.Config
	log    zerolog.Logger
}

// NewProvider creates a provider over the given index
func NewProvider(index Index, cfg paging.Config, log zerolog.Logger) (*Provider, error) {
	if index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Provider{
		index:  index,
		paging: cfg,
		log:    log.With().Str("component", "search_provider").Logger(),
	}, nil
}

// CreateIndex creates the remote index
func (p *Provider) CreateIndex(ctx context.Context) error {
	if err := p.index.CreateIndex(ctx); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	p.log.Info().Msg("index created")
	return nil
}

// DeleteIndex drops the remote index
func (p *Provider) DeleteIndex(ctx context.Context) error {
	if err := p.index.DeleteIndex(ctx); err != nil {
		return fmt.Errorf("delete index: %w", err)
	}
	p.log.Info().Msg("index deleted")
	return nil
}

// IndexStatus reports whether the index exists and its document count.
// Any failure reads as a missing index; the error is still returned so
// callers can tell a missing index from an unreachable service.
func (p *Provider) IndexStatus(ctx context.Context) (models.IndexStatus, error) {
	count, err := p.index.Count(ctx)
	if err != nil {
		if errors.Is(err, ErrIndexNotFound) {
			return models.IndexStatus{}, nil
		}
		p.log.Warn().Err(err).Msg("index status unavailable")
		return models.IndexStatus{}, fmt.Errorf("index status: %w", err)
	}
	return models.IndexStatus{Exists: true, DocumentCount: count}, nil
}

// AddDocuments validates and uploads documents to the index
func (p *Provider) AddDocuments(ctx context.Context, docs []*models.PersonCity) error {
	if len(docs) == 0 {
		return nil
	}
	for i, doc := range docs {
		if err := doc.Validate(); err != nil {
			return fmt.Errorf("%w at position %d: %v", ErrInvalidDocument, i, err)
		}
	}

	start := time.Now()
	if err := p.index.Upload(ctx, docs); err != nil {
		return fmt.Errorf("upload documents: %w", err)
	}
	p.log.Info().
		Int("documents", len(docs)).
		Dur("duration", time.Since(start)).
		Msg("documents uploaded")
	return nil
}

// Rebuild drops and recreates the index, then uploads docs into it
func (p *Provider) Rebuild(ctx context.Context, docs []*models.PersonCity) error {
	if err := p.DeleteIndex(ctx); err != nil {
		return err
	}
	if err := p.CreateIndex(ctx); err != nil {
		return err
	}
	return p.AddDocuments(ctx, docs)
}

// RunQuery fetches one page of results and computes the page window around it.
// page and leftMostPage are 0-based; leftMostPage is the window start the caller
// displayed last time.
func (p *Provider) RunQuery(ctx context.Context, text string, page, leftMostPage int) (*models.SearchData, error) {
	text = strings.TrimSpace(text)
	page = max(page, 0)

	// a page whose offset saturates lies past any result set; fetch the first
	// page only for the total and return no rows
	offset := paging.Offset(p.paging.PageSize, page)
	pastEnd := offset == math.MaxInt
	if pastEnd {
		offset = 0
	}

	result, err := p.index.Search(ctx, text, p.paging.PageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}

	window := paging.Calculate(p.paging, int(result.TotalCount), page, leftMostPage)

	p.log.Debug().
		Str("query", text).
		Int("page", page).
		Int64("total", result.TotalCount).
		Int("left_most_page", window.LeftMostPage).
		Int("page_range", window.PageRange).
		Msg("query completed")

	hits := result.Hits
	if hits == nil || pastEnd {
		hits = []models.SearchHit{}
	}

	return &models.SearchData{
		SearchText:   text,
		Results:      hits,
		TotalCount:   result.TotalCount,
		PageCount:    window.PageCount,
		CurrentPage:  window.CurrentPage,
		LeftMostPage: window.LeftMostPage,
		PageRange:    window.PageRange,
		Pages:        window.Pages(),
		HasPrevious:  window.HasPrevious(),
		HasNext:      window.HasNext(),
	}, nil
}

// PageSize returns the number of results per page
func (p *Provider) PageSize() int {
	return p.paging.PageSize
}
