package manticore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/ad/personsearch/internal/search"
)

// Count returns the number of documents in the index, or
// search.ErrIndexNotFound when the table does not exist.
func (c *Client) Count(ctx context.Context) (int64, error) {
	c.metricsCollector.RecordStatusOperation()
	start := time.Now()

	count, err := c.count(ctx)

	recorded := err
	if errors.Is(err, search.ErrIndexNotFound) {
		recorded = nil
	}
	c.metricsCollector.RecordRequest("count", time.Since(start), recorded)
	return count, err
}

func (c *Client) count(ctx context.Context) (int64, error) {
	exists, err := c.tableExists(ctx)
	if err != nil {
		return 0, fmt.Errorf("lookup index %s: %w", c.config.Index, c.classifySQLError(err))
	}
	if !exists {
		return 0, search.ErrIndexNotFound
	}

	var count int64
	// the index name is validated against indexNameRegex at construction
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", c.config.Index)
	if err := c.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count documents in %s: %w", c.config.Index, c.classifySQLError(err))
	}
	return count, nil
}

// classifySQLError types MySQL-protocol failures like HTTP ones so callers
// can tell an unreachable server from a bad statement
func (c *Client) classifySQLError(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return &ManticoreError{
			StatusCode: int(myErr.Number),
			Message:    myErr.Message,
			Endpoint:   c.config.SQLAddr,
			Method:     "SQL",
			ErrorType:  ErrorTypeValidation,
			Cause:      err,
		}
	}
	return NewErrorClassifier().ClassifyError(err, c.config.SQLAddr, "SQL")
}

// tableExists matches SHOW TABLES output exactly, since LIKE treats _ as a wildcard
func (c *Client) tableExists(ctx context.Context) (bool, error) {
	rows, err := c.db.QueryContext(ctx, "SHOW TABLES LIKE ?", c.config.Index)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return false, err
	}

	for rows.Next() {
		values := make([]sql.RawBytes, len(cols))
		dest := make([]any, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return false, err
		}
		// first column is the table name, the second (if present) its type
		if len(values) > 0 && string(values[0]) == c.config.Index {
			return true, nil
		}
	}
	return false, rows.Err()
}
