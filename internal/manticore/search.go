package manticore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ad/personsearch/internal/models"
	"github.com/ad/personsearch/internal/search"
)

// Manticore refuses offsets past max_matches unless the request raises it
const defaultMaxMatches = 1000

type searchRequest struct {
	Table   string         `json:"table"`
	Query   map[string]any `json:"query"`
	Limit   int            `json:"limit,omitempty"`
	Offset  int            `json:"offset,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type searchResponse struct {
	Took     int  `json:"took"`
	TimedOut bool `json:"timed_out"`
	Hits     struct {
		Total         int64  `json:"total"`
		TotalRelation string `json:"total_relation"`
		Hits          []struct {
			ID     flexInt64     `json:"_id"`
			Score  float64       `json:"_score"`
			Source personCityDoc `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Error json.RawMessage `json:"error,omitempty"`
}

// Search runs a full-text query. An empty or "*" text matches every document.
func (c *Client) Search(ctx context.Context, text string, limit, offset int) (*models.SearchResult, error) {
	c.metricsCollector.RecordSearchOperation()

	limit = max(limit, 0)
	offset = max(offset, 0)
	if offset > math.MaxInt-limit {
		return nil, &ManticoreError{
			Message:   fmt.Sprintf("offset %d with limit %d is out of range", offset, limit),
			Endpoint:  "/search",
			Method:    "POST",
			ErrorType: ErrorTypeValidation,
		}
	}

	req := searchRequest{
		Table:  c.config.Index,
		Query:  buildQuery(text),
		Limit:  limit,
		Offset: offset,
	}
	if offset+limit > defaultMaxMatches {
		req.Options = map[string]any{"max_matches": offset + limit}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}

	start := time.Now()
	var resp searchResponse
	if err := c.doJSON(ctx, "search", "/search", "application/json", body, &resp); err != nil {
		if isUnknownTable(err) {
			return nil, fmt.Errorf("search %q: %w: %w", text, search.ErrIndexNotFound, err)
		}
		return nil, fmt.Errorf("search %q: %w", text, err)
	}
	if hasError(resp.Error) {
		return nil, fmt.Errorf("search %q: %w", text, &ManticoreError{
			StatusCode: 200,
			Message:    strings.Trim(string(resp.Error), `"`),
			Endpoint:   "/search",
			Method:     "POST",
			ErrorType:  ErrorTypeValidation,
		})
	}

	result := &models.SearchResult{
		Hits:       make([]models.SearchHit, 0, len(resp.Hits.Hits)),
		TotalCount: resp.Hits.Total,
	}
	for _, hit := range resp.Hits.Hits {
		result.Hits = append(result.Hits, models.SearchHit{
			Document: hit.Source.toModel(int64(hit.ID)),
			Score:    hit.Score,
		})
	}

	c.log.Debug().
		Str("query", text).
		Int("limit", limit).
		Int("offset", offset).
		Int64("total", result.TotalCount).
		Int("hits", len(result.Hits)).
		Dur("duration", time.Since(start)).
		Msg("search completed")

	return result, nil
}

func buildQuery(text string) map[string]any {
	text = strings.TrimSpace(text)
	if text == "" || text == "*" {
		return map[string]any{"match_all": map[string]any{}}
	}
	return map[string]any{"query_string": text}
}

// flexBool decodes true/false, 0/1 and their quoted forms
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	switch strings.ToLower(s) {
	case "true", "1":
		*b = true
	case "false", "0", "", "null":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %s", data)
	}
	return nil
}

// flexInt64 decodes document ids sent either as numbers or strings
type flexInt64 int64

func (n *flexInt64) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}
	*n = flexInt64(v)
	return nil
}
