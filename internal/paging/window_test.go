package paging

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculate_Scenarios(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name             string
		totalCount       int
		requestedPage    int
		previousLeftMost int
		want             Window
	}{
		{
			name:       "first page of many",
			totalCount: 100,
			want:       Window{PageCount: 25, CurrentPage: 0, LeftMostPage: 0, PageRange: 7},
		},
		{
			name:          "inside window keeps left-most",
			totalCount:    100,
			requestedPage: 1,
			want:          Window{PageCount: 25, CurrentPage: 1, LeftMostPage: 0, PageRange: 7},
		},
		{
			name:          "forward shift",
			totalCount:    100,
			requestedPage: 6,
			want:          Window{PageCount: 25, CurrentPage: 6, LeftMostPage: 3, PageRange: 7},
		},
		{
			name:       "few results",
			totalCount: 10,
			want:       Window{PageCount: 3, CurrentPage: 0, LeftMostPage: 0, PageRange: 3},
		},
		{
			name: "no results",
			want: Window{PageCount: 0, CurrentPage: 0, LeftMostPage: 0, PageRange: 0},
		},
		{
			name:             "backward shift",
			totalCount:       100,
			requestedPage:    5,
			previousLeftMost: 5,
			want:             Window{PageCount: 25, CurrentPage: 5, LeftMostPage: 2, PageRange: 7},
		},
		{
			name:             "backward shift saturates at zero",
			totalCount:       100,
			requestedPage:    2,
			previousLeftMost: 4,
			want:             Window{PageCount: 25, CurrentPage: 2, LeftMostPage: 0, PageRange: 7},
		},
		{
			name:             "forward shift saturates at last full window",
			totalCount:       100,
			requestedPage:    24,
			previousLeftMost: 15,
			want:             Window{PageCount: 25, CurrentPage: 24, LeftMostPage: 18, PageRange: 7},
		},
		{
			name:             "middle of shifted window is unchanged",
			totalCount:       100,
			requestedPage:    10,
			previousLeftMost: 7,
			want:             Window{PageCount: 25, CurrentPage: 10, LeftMostPage: 7, PageRange: 7},
		},
		{
			name:          "partial last page counts",
			totalCount:    101,
			requestedPage: 0,
			want:          Window{PageCount: 26, CurrentPage: 0, LeftMostPage: 0, PageRange: 7},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(cfg, tt.totalCount, tt.requestedPage, tt.previousLeftMost)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalculate_ForwardShiftWithFewPagesClampsToZero(t *testing.T) {
	// 3 pages, window of 7: pageCount-maxPageRange is -4
	got := Calculate(DefaultConfig(), 10, 6, 0)

	assert.Equal(t, 0, got.LeftMostPage)
	assert.Equal(t, 3, got.PageRange)
	assert.Equal(t, 6, got.CurrentPage)
}

func TestCalculate_NegativeInputsSaturate(t *testing.T) {
	cfg := DefaultConfig()

	got := Calculate(cfg, 100, -3, 0)
	assert.Equal(t, Window{PageCount: 25, CurrentPage: 0, LeftMostPage: 0, PageRange: 7}, got)

	got = Calculate(cfg, 100, 2, -5)
	assert.Equal(t, 0, got.LeftMostPage)
	assert.Equal(t, 2, got.CurrentPage)

	got = Calculate(cfg, -10, 0, 0)
	assert.Equal(t, 0, got.PageCount)
	assert.Equal(t, 0, got.PageRange)
}

func TestCalculate_PageCountIsCeiling(t *testing.T) {
	cfg := DefaultConfig()
	for total := 0; total <= 200; total++ {
		want := total / cfg.PageSize
		if total%cfg.PageSize != 0 {
			want++
		}
		assert.Equal(t, want, Calculate(cfg, total, 0, 0).PageCount, "total=%d", total)
	}
}

func TestCalculate_Invariants(t *testing.T) {
	cfg := DefaultConfig()

	for total := 0; total <= 60; total += 3 {
		for page := 0; page <= 20; page++ {
			for prev := 0; prev <= 20; prev++ {
				w := Calculate(cfg, total, page, prev)

				require.GreaterOrEqual(t, w.LeftMostPage, 0, "total=%d page=%d prev=%d", total, page, prev)
				require.LessOrEqual(t, w.LeftMostPage, w.CurrentPage, "total=%d page=%d prev=%d", total, page, prev)
				require.LessOrEqual(t, w.PageRange, cfg.MaxPageRange)
				require.LessOrEqual(t, w.PageRange, w.PageCount)
				require.GreaterOrEqual(t, w.PageRange, 0)

				if page == 0 {
					require.Equal(t, 0, w.LeftMostPage)
				}

				// idempotent
				require.Equal(t, w, Calculate(cfg, total, page, prev))
			}
		}
	}
}

func TestCalculate_BackwardBranchBound(t *testing.T) {
	cfg := DefaultConfig()
	for page := 1; page <= 30; page++ {
		w := Calculate(cfg, 200, page, page+2)
		assert.LessOrEqual(t, w.LeftMostPage, page)
		assert.Equal(t, max(page-cfg.PageRangeDelta, 0), w.LeftMostPage)
	}
}

func TestWindow_Pages(t *testing.T) {
	w := Calculate(DefaultConfig(), 100, 6, 0)
	assert.Equal(t, []int{3, 4, 5, 6, 7, 8, 9}, w.Pages())

	empty := Calculate(DefaultConfig(), 0, 0, 0)
	assert.Empty(t, empty.Pages())
}

func TestWindow_Navigation(t *testing.T) {
	cfg := DefaultConfig()

	first := Calculate(cfg, 10, 0, 0)
	assert.False(t, first.HasPrevious())
	assert.True(t, first.HasNext())

	last := Calculate(cfg, 10, 2, 0)
	assert.True(t, last.HasPrevious())
	assert.False(t, last.HasNext())

	none := Calculate(cfg, 0, 0, 0)
	assert.False(t, none.HasPrevious())
	assert.False(t, none.HasNext())
}

func TestOffset(t *testing.T) {
	assert.Equal(t, 0, Offset(4, 0))
	assert.Equal(t, 24, Offset(4, 6))
	assert.Equal(t, 0, Offset(4, -1))
	assert.Equal(t, 0, Offset(0, 5))
	assert.Equal(t, math.MaxInt, Offset(4, math.MaxInt/4+1))
	assert.Equal(t, math.MaxInt, Offset(4, math.MaxInt))
	assert.Equal(t, math.MaxInt/4*4, Offset(4, math.MaxInt/4))
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.PageSize = 0
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.PageRangeDelta = -1
	assert.Error(t, bad.Validate())
}

func TestCalculate_HugeInputs(t *testing.T) {
	cfg := DefaultConfig()

	w := Calculate(cfg, 100, math.MaxInt, 0)
	assert.Equal(t, math.MaxInt, w.CurrentPage)
	assert.Equal(t, 18, w.LeftMostPage)
	assert.Equal(t, 7, w.PageRange)
	assert.False(t, w.HasNext())
	assert.True(t, w.HasPrevious())

	// inside a window that starts near the top of the int range: no wrap, no pages
	w = Calculate(cfg, 100, math.MaxInt, math.MaxInt-3)
	assert.Equal(t, math.MaxInt-3, w.LeftMostPage)
	assert.Equal(t, 0, w.PageRange)

	w = Calculate(cfg, 100, math.MaxInt-3, math.MaxInt)
	assert.GreaterOrEqual(t, w.LeftMostPage, 0)
	assert.GreaterOrEqual(t, w.PageRange, 0)
}
