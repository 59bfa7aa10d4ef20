package manticore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ad/personsearch/internal/models"
)

// personCityDoc is the stored form of models.PersonCity
type personCityDoc struct {
	Name        string   `json:"name"`
	FamilyName  string   `json:"family_name"`
	Info        string   `json:"info"`
	CityCountry string   `json:"city_country"`
	Metadata    string   `json:"metadata"`
	Web         string   `json:"web"`
	Github      string   `json:"github"`
	Twitter     string   `json:"twitter"`
	Mvp         flexBool `json:"mvp"`
}

func newPersonCityDoc(p *models.PersonCity) personCityDoc {
	return personCityDoc{
		Name:        p.Name,
		FamilyName:  p.FamilyName,
		Info:        p.Info,
		CityCountry: p.CityCountry,
		Metadata:    p.Metadata,
		Web:         p.Web,
		Github:      p.Github,
		Twitter:     p.Twitter,
		Mvp:         flexBool(p.Mvp),
	}
}

func (d personCityDoc) toModel(id int64) *models.PersonCity {
	return &models.PersonCity{
		ID:          id,
		Name:        d.Name,
		FamilyName:  d.FamilyName,
		Info:        d.Info,
		CityCountry: d.CityCountry,
		Metadata:    d.Metadata,
		Web:         d.Web,
		Github:      d.Github,
		Twitter:     d.Twitter,
		Mvp:         bool(d.Mvp),
	}
}

type replaceOp struct {
	Index string        `json:"index"`
	ID    int64         `json:"id"`
	Doc   personCityDoc `json:"doc"`
}

type bulkLine struct {
	Replace *replaceOp `json:"replace"`
}

type bulkItemResult struct {
	Index  string          `json:"_index"`
	ID     int64           `json:"_id"`
	Result string          `json:"result"`
	Status int             `json:"status"`
	Error  json.RawMessage `json:"error,omitempty"`
}

type bulkResponse struct {
	Items  []map[string]bulkItemResult `json:"items"`
	Errors bool                        `json:"errors"`
	Error  json.RawMessage             `json:"error,omitempty"`
}

// firstError returns the first failed item, if any
func (r *bulkResponse) firstError() string {
	if hasError(r.Error) {
		return strings.Trim(string(r.Error), `"`)
	}
	for _, item := range r.Items {
		for op, res := range item {
			if hasError(res.Error) {
				return fmt.Sprintf("%s id %d: %s", op, res.ID, strings.Trim(string(res.Error), `"`))
			}
		}
	}
	if r.Errors {
		return "bulk request reported errors"
	}
	return ""
}

func hasError(raw json.RawMessage) bool {
	v := strings.TrimSpace(string(raw))
	return v != "" && v != "null" && v != `""`
}

// Upload replaces docs in the index. Batches of BatchSize go out with at most
// MaxConcurrentBatch requests in flight; the first failed batch cancels the rest.
func (c *Client) Upload(ctx context.Context, docs []*models.PersonCity) error {
	if len(docs) == 0 {
		return nil
	}

	start := time.Now()
	batchSize := max(c.config.Bulk.BatchSize, 1)
	totalBatches := (len(docs) + batchSize - 1) / batchSize

	c.log.Info().
		Int("documents", len(docs)).
		Int("batches", totalBatches).
		Int("batch_size", batchSize).
		Msg("uploading documents")

	var processed atomic.Int64
	progressEvery := int64(c.config.Bulk.ProgressLogInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.config.Bulk.MaxConcurrentBatch, 1))

	for i := 0; i < len(docs); i += batchSize {
		batch := docs[i:min(i+batchSize, len(docs))]
		batchNum := i/batchSize + 1

		g.Go(func() error {
			if err := c.uploadBatch(gctx, batch); err != nil {
				return fmt.Errorf("batch %d/%d: %w", batchNum, totalBatches, err)
			}
			done := processed.Add(int64(len(batch)))
			if progressEvery > 0 && done/progressEvery != (done-int64(len(batch)))/progressEvery {
				c.log.Info().Int64("processed", done).Int("total", len(docs)).Msg("upload progress")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("upload documents: %w", err)
	}

	c.metricsCollector.RecordBulkOperation(len(docs))
	c.log.Info().Int("documents", len(docs)).Dur("duration", time.Since(start)).Msg("upload complete")
	return nil
}

func (c *Client) uploadBatch(ctx context.Context, batch []*models.PersonCity) error {
	if c.config.Bulk.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Bulk.BatchTimeout)
		defer cancel()
	}

	body, err := encodeBulk(c.config.Index, batch)
	if err != nil {
		return err
	}

	var resp bulkResponse
	if err := c.doJSON(ctx, "bulk", "/bulk", "application/x-ndjson", body, &resp); err != nil {
		return err
	}
	if msg := resp.firstError(); msg != "" {
		return &ManticoreError{
			StatusCode: 200,
			Message:    msg,
			Endpoint:   "/bulk",
			Method:     "POST",
			ErrorType:  ErrorTypeValidation,
		}
	}
	return nil
}

// encodeBulk renders docs as newline-delimited replace operations
func encodeBulk(index string, docs []*models.PersonCity) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		line := bulkLine{Replace: &replaceOp{Index: index, ID: doc.ID, Doc: newPersonCityDoc(doc)}}
		if err := enc.Encode(line); err != nil {
			return nil, fmt.Errorf("encode document %d: %w", doc.ID, err)
		}
	}
	return buf.Bytes(), nil
}
