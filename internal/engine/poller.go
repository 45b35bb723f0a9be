package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/dm/dashsync/internal/client"
	"github.com/dm/dashsync/internal/model"
)

// Source fetches one collection from the backend. *client.DefaultClient
// implements it.
type Source interface {
	FetchCollection(ctx context.Context, c model.Collection) ([]model.Record, error)
}

// FetchAll fetches every collection in cols concurrently and assembles the
// successes into one Snapshot stamped with now(). A failed collection is
// absent from the snapshot and reported in the returned map; it never
// cancels or fails its siblings. Records of the wrong shape for their
// collection fail that collection with a KindDecode error. A nil tracer uses the global provider and a
// nil now uses time.Now.
func FetchAll(ctx context.Context, src Source, cols []model.Collection, tracer trace.Tracer, now func() time.Time) (*model.Snapshot, map[model.Collection]error) {
	if tracer == nil {
		tracer = otel.Tracer("github.com/dm/dashsync/internal/engine")
	}
	if now == nil {
		now = time.Now
	}
	recs := make([][]model.Record, len(cols))
	errs := make([]error, len(cols))

	// Plain Group: a sibling failure must not cancel the others.
	var g errgroup.Group
	g.SetLimit(max(len(cols), 1))

	for i, c := range cols {
		g.Go(func() error {
			cctx, span := tracer.Start(ctx, "dashsync.fetch", trace.WithAttributes(
				attribute.String("collection", string(c)),
			))
			defer span.End()

			r, err := src.FetchCollection(cctx, c)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				errs[i] = err
				return nil
			}
			if r == nil {
				r = []model.Record{}
			}
			if err := model.CheckRecords(c, r); err != nil {
				err = &client.Error{Kind: client.KindDecode, Collection: c, Err: err}
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				errs[i] = err
				return nil
			}
			span.SetAttributes(attribute.Int("records", len(r)))
			recs[i] = r
			return nil
		})
	}
	_ = g.Wait()

	present := make(map[model.Collection][]model.Record, len(cols))
	failures := make(map[model.Collection]error)
	for i, c := range cols {
		if errs[i] != nil {
			failures[c] = errs[i]
			continue
		}
		present[c] = recs[i]
	}
	snap, err := model.NewSnapshot(now(), present)
	if err != nil {
		// Unreachable: every present collection passed CheckRecords.
		panic(err)
	}
	return snap, failures
}
