package adapter

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/scanner"
)

// DefaultBatchLimit bounds outbound concurrency during batch pushes to
// respect remote rate limits.
const DefaultBatchLimit = 5

// PushAll pushes every document through a with bounded concurrency. One
// document's failure never aborts the others; each outcome is reported in
// its BatchItem. Adapters with batch capability can use this as their
// PushBatch implementation.
func PushAll(ctx context.Context, a Adapter, docs []*scanner.SpecDocument, opts PushOptions, limit int) []BatchItem {
	if limit <= 0 {
		limit = DefaultBatchLimit
	}

	items := make([]BatchItem, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, doc := range docs {
		g.Go(func() error {
			ref, err := a.Push(gctx, doc, opts)
			items[i] = BatchItem{Name: doc.Name, Ref: ref, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return items
}
