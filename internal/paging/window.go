package paging

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
)

// Config holds the fixed constants of the page window
type Config struct {
	PageSize       int `json:"page_size" validate:"gt=0"`
	MaxPageRange   int `json:"max_page_range" validate:"gt=0"`
	PageRangeDelta int `json:"page_range_delta" validate:"gte=0"`
}

// DefaultConfig returns the window used by the person search pages
func DefaultConfig() Config {
	return Config{
		PageSize:       4,
		MaxPageRange:   7,
		PageRangeDelta: 3,
	}
}

// Validate checks that the config can produce a window
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("paging config validation error: %w", err)
	}
	return nil
}

// Window is the page navigation state recomputed on every query
type Window struct {
	PageCount    int `json:"page_count"`
	CurrentPage  int `json:"current_page"`
	LeftMostPage int `json:"left_most_page"`
	PageRange    int `json:"page_range"`
}

// Calculate computes the page window for a query result.
//
// Page numbers are 0-based. A negative requestedPage or previousLeftMost is
// treated as 0. The left-most page never goes below 0, even when there are
// fewer pages than MaxPageRange.
func Calculate(cfg Config, totalCount, requestedPage, previousLeftMost int) Window {
	if totalCount < 0 {
		totalCount = 0
	}
	page := max(requestedPage, 0)
	leftMost := max(previousLeftMost, 0)

	pageCount := (totalCount + cfg.PageSize - 1) / cfg.PageSize

	switch {
	case page == 0:
		leftMost = 0
	case page <= leftMost:
		// paged back to or past the window start
		leftMost = max(page-cfg.PageRangeDelta, 0)
	case page-leftMost >= cfg.MaxPageRange-1:
		// paged forward to or past the window end
		leftMost = max(min(page-cfg.PageRangeDelta, pageCount-cfg.MaxPageRange), 0)
	}

	return Window{
		PageCount:    pageCount,
		CurrentPage:  page,
		LeftMostPage: leftMost,
		PageRange:    max(min(pageCount-leftMost, cfg.MaxPageRange), 0),
	}
}

// Pages returns the page numbers to render, left to right
func (w Window) Pages() []int {
	pages := make([]int, 0, w.PageRange)
	for i := 0; i < w.PageRange; i++ {
		pages = append(pages, w.LeftMostPage+i)
	}
	return pages
}

// HasPrevious reports whether a page exists before the current one
func (w Window) HasPrevious() bool {
	return w.CurrentPage > 0 && w.PageCount > 0
}

// HasNext reports whether a page exists after the current one
func (w Window) HasNext() bool {
	return w.CurrentPage < w.PageCount-1
}

// Offset returns the result offset of a 0-based page. It saturates at
// math.MaxInt instead of overflowing.
func Offset(pageSize, page int) int {
	if page <= 0 || pageSize <= 0 {
		return 0
	}
	if page > math.MaxInt/pageSize {
		return math.MaxInt
	}
	return page * pageSize
}
