package pipeline

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// BatchItem pairs one URL with its outcome.
type BatchItem struct {
	URL    string
	Result *Result
	Err    error
}

// Failed counts the items that ended in an error.
func Failed(items []BatchItem) int {
	n := 0
	for _, item := range items {
		if item.Err != nil {
			n++
		}
	}
	return n
}

// RunAll processes URLs sequentially, spacing run starts by delay so
// repeated hits against the video host stay polite. A canceled context
// marks all remaining URLs with the context error.
func (r *Runner) RunAll(ctx context.Context, urls []string, base Request, delay time.Duration) []BatchItem {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	limiter := rate.NewLimiter(limit, 1)

	items := make([]BatchItem, 0, len(urls))
	for i, url := range urls {
		if err := limiter.Wait(ctx); err != nil {
			for _, rest := range urls[i:] {
				items = append(items, BatchItem{URL: rest, Err: err})
			}
			break
		}

		req := base
		req.URL = url
		res, err := r.Run(ctx, req)
		items = append(items, BatchItem{URL: url, Result: res, Err: err})
	}
	return items
}
