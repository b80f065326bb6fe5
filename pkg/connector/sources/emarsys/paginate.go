package emarsys

import (
	"context"

	"github.com/ajitpratap0/emarsys-tap/pkg/metrics"
)

// PageCursor addresses one page of a limit/offset collection.
type PageCursor struct {
	Limit  int
	Offset int
}

// Next returns the cursor of the following page
func (c PageCursor) Next() PageCursor {
	return PageCursor{Limit: c.Limit, Offset: c.Offset + c.Limit}
}

// PageFunc requests, transforms and flushes the page at cursor. It returns
// the record count that decides exhaustion.
type PageFunc func(ctx context.Context, cursor PageCursor) (int, error)

// Paginate walks a collection from offset 0 until a page returns fewer
// than limit records. Every page is flushed by fetch before the exhaustion
// check, including the final short one. It returns the number of pages.
func Paginate(ctx context.Context, stream string, limit int, fetch PageFunc) (int, error) {
	cursor := PageCursor{Limit: limit}
	pages := 0
	for {
		if err := ctx.Err(); err != nil {
			return pages, err
		}
		n, err := fetch(ctx, cursor)
		if err != nil {
			return pages, err
		}
		pages++
		metrics.PagesFetched.WithLabelValues(stream).Inc()
		if n != limit {
			return pages, nil
		}
		cursor = cursor.Next()
	}
}
