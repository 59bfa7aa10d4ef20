package manticore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openapi "github.com/manticoresoftware/manticoresearch-go"
)

// personCityColumns mirrors models.PersonCity. Text fields are full-text
// searchable, string fields are stored attributes only.
const personCityColumns = "name text, family_name text, info text, city_country text, metadata text, " +
	"web string, github string, twitter string, mvp bool"

// CreateIndex creates the person/city table. It fails if the table already exists.
func (c *Client) CreateIndex(ctx context.Context) error {
	query := fmt.Sprintf("CREATE TABLE %s (%s)", c.config.Index, personCityColumns)
	if err := c.executeSQL(ctx, "create_index", query, isTableExists); err != nil {
		return fmt.Errorf("create index %s: %w", c.config.Index, err)
	}
	c.log.Info().Msg("index created")
	return nil
}

// DeleteIndex drops the person/city table if it exists
func (c *Client) DeleteIndex(ctx context.Context) error {
	query := fmt.Sprintf("DROP TABLE IF EXISTS %s", c.config.Index)
	if err := c.executeSQL(ctx, "delete_index", query, nil); err != nil {
		return fmt.Errorf("delete index %s: %w", c.config.Index, err)
	}
	c.log.Info().Msg("index deleted")
	return nil
}

// executeSQL runs a statement through the OpenAPI /sql endpoint. When a retry
// fails with an error that appliedEarlier accepts, an earlier attempt already
// took effect and only its reply was lost, so the call succeeds.
func (c *Client) executeSQL(ctx context.Context, operation, query string, appliedEarlier func(error) bool) error {
	start := time.Now()
	c.metricsCollector.RecordSchemaOperation()

	attempt := 0
	err := c.circuitBreakerWithRetry.Execute(ctx, "/sql", http.MethodPost, func(ctx context.Context) error {
		attempt++
		err := c.runSQL(ctx, query)
		if err != nil && attempt > 1 && appliedEarlier != nil && appliedEarlier(err) {
			c.log.Info().Err(err).Int("attempt", attempt).Str("operation", operation).
				Msg("statement applied by an earlier attempt")
			return nil
		}
		return err
	})

	c.metricsCollector.RecordRequest(operation, time.Since(start), err)
	c.log.Debug().Str("query", query).Dur("duration", time.Since(start)).Err(err).Msg("sql executed")
	return err
}

func (c *Client) runSQL(ctx context.Context, query string) error {
	rows, resp, err := c.api.UtilsAPI.Sql(ctx).Body(query).Execute()
	if err != nil {
		if resp != nil && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
			var body []byte
			var apiErr *openapi.GenericOpenAPIError
			if errors.As(err, &apiErr) {
				body = apiErr.Body()
			}
			return newHTTPError(resp, http.MethodPost, "/sql", body)
		}
		return err
	}

	if msg := sqlResultError(rows); msg != "" {
		return &ManticoreError{
			StatusCode: resp.StatusCode,
			Message:    msg,
			Endpoint:   "/sql",
			Method:     http.MethodPost,
			ErrorType:  ErrorTypeValidation,
		}
	}
	return nil
}

// isTableExists reports whether Manticore refused a CREATE TABLE for an existing table
func isTableExists(err error) bool {
	var manticoreErr *ManticoreError
	if !errors.As(err, &manticoreErr) || manticoreErr.StatusCode >= 500 {
		return false
	}
	return strings.Contains(strings.ToLower(manticoreErr.Message), "already exists")
}

// sqlResultError extracts the error field raw-mode /sql replies carry on statement failure
func sqlResultError(result any) string {
	raw, err := json.Marshal(result)
	if err != nil {
		return ""
	}
	var rows []struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return ""
	}
	for _, row := range rows {
		if row.Error != "" {
			return row.Error
		}
	}
	return ""
}
