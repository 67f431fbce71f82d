package custos

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xraph/custos/grant"
	"github.com/xraph/custos/id"
	"github.com/xraph/custos/target"
)

// SweepStats reports what an orphan sweep covered.
type SweepStats struct {
	// Scanned counts the grant rows examined.
	Scanned int64

	// Deleted counts the orphaned rows removed.
	Deleted int64

	// Batches counts the row pages processed.
	Batches int
}

// SweepOption adjusts CleanOrphanGrants.
type SweepOption func(*sweepOpts)

type sweepOpts struct {
	kinds       []string
	batchSize   int
	maxBatches  int
	maxDuration time.Duration
	skipBatches int
}

// WithSweepKinds limits the sweep to the named kinds. The default
// sweeps every registered generic-form kind that has a Source.
func WithSweepKinds(kinds ...string) SweepOption {
	return func(o *sweepOpts) { o.kinds = kinds }
}

// WithBatchSize sets the page size for grant scans. The default is 500.
func WithBatchSize(n int) SweepOption {
	return func(o *sweepOpts) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithMaxBatches stops the sweep after n pages.
func WithMaxBatches(n int) SweepOption {
	return func(o *sweepOpts) { o.maxBatches = n }
}

// WithMaxDuration stops the sweep once the budget elapses. The budget is
// checked between pages, so the final page may overrun it.
func WithMaxDuration(d time.Duration) SweepOption {
	return func(o *sweepOpts) { o.maxDuration = d }
}

// WithSkipBatches skips the first n pages to resume an earlier sweep.
// Deletions shift page boundaries, so resumption is approximate; rows
// missed this round surface on the next full sweep.
func WithSkipBatches(n int) SweepOption {
	return func(o *sweepOpts) { o.skipBatches = n }
}

// CleanOrphanGrants deletes grant rows whose target object no longer
// exists. Only generic-form kinds are swept; direct-form kinds clean up
// through their foreign keys. Existence is probed once per distinct key
// per kind through the kind's Source.
//
// The sweep stops without error when a batch or duration budget runs
// out; the returned stats together with the logged resume hint allow a
// later call to pick up roughly where this one stopped.
func (e *Engine) CleanOrphanGrants(ctx context.Context, opts ...SweepOption) (SweepStats, error) {
	o := sweepOpts{batchSize: 500}
	for _, opt := range opts {
		opt(&o)
	}
	kinds, err := e.sweepKinds(o.kinds)
	if err != nil {
		return SweepStats{}, err
	}

	sw := &sweeper{engine: e, opts: o, started: time.Now()}
	e.logger.Info("orphan sweep start",
		"kinds", kinds,
		"batch_size", o.batchSize,
		"skip_batches", o.skipBatches,
	)
	for _, kind := range kinds {
		reg, ok := e.registry.Lookup(kind)
		if !ok || reg.Source == nil {
			continue
		}
		if err := sw.sweepKind(ctx, kind, reg.Source); err != nil {
			return sw.stats, err
		}
		if sw.stopped {
			break
		}
	}
	if sw.stopped {
		e.logger.Info("orphan sweep stopped on budget",
			"scanned", sw.stats.Scanned,
			"deleted", sw.stats.Deleted,
			"batches", sw.stats.Batches,
			"resume_skip_batches", sw.batch,
		)
	} else {
		e.logger.Info("orphan sweep done",
			"scanned", sw.stats.Scanned,
			"deleted", sw.stats.Deleted,
			"batches", sw.stats.Batches,
		)
	}
	return sw.stats, nil
}

// sweepKinds resolves which kinds to sweep. Explicitly requested kinds
// must be registered with a Source; direct-form kinds are dropped since
// their cleanup rides the foreign key.
func (e *Engine) sweepKinds(requested []string) ([]string, error) {
	if len(requested) == 0 {
		var kinds []string
		for _, kind := range e.registry.Kinds() {
			reg, ok := e.registry.Lookup(kind)
			if ok && reg.Form == target.FormGeneric && reg.Source != nil {
				kinds = append(kinds, kind)
			}
		}
		return kinds, nil
	}
	var kinds []string
	for _, kind := range requested {
		reg, ok := e.registry.Lookup(kind)
		if !ok || reg.Source == nil {
			return nil, fmt.Errorf("%w: %q has no source to probe", ErrKindNotRegistered, kind)
		}
		if reg.Form == target.FormDirect {
			e.logger.Info("orphan sweep skipping direct-form kind", "kind", kind)
			continue
		}
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds, nil
}

type sweeper struct {
	engine  *Engine
	opts    sweepOpts
	stats   SweepStats
	started time.Time

	// batch numbers every page position across tables and kinds, skipped
	// pages included, so it can serve as a resume hint.
	batch   int
	stopped bool
}

func (sw *sweeper) sweepKind(ctx context.Context, kind string, src target.Source) error {
	// One existence probe per distinct key, remembered for both tables.
	exists := make(map[string]bool)
	if err := sw.sweepUserGrants(ctx, kind, src, exists); err != nil {
		return err
	}
	if sw.stopped {
		return nil
	}
	return sw.sweepGroupGrants(ctx, kind, src, exists)
}

// overBudget reports whether the sweep should stop between pages.
func (sw *sweeper) overBudget() bool {
	if sw.opts.maxBatches > 0 && sw.stats.Batches >= sw.opts.maxBatches {
		return true
	}
	if sw.opts.maxDuration > 0 && time.Since(sw.started) >= sw.opts.maxDuration {
		return true
	}
	return false
}

func (sw *sweeper) sweepUserGrants(ctx context.Context, kind string, src target.Source, exists map[string]bool) error {
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if sw.overBudget() {
			sw.stopped = true
			return nil
		}
		if sw.batch < sw.opts.skipBatches {
			sw.batch++
			offset += sw.opts.batchSize
			continue
		}
		rows, err := sw.engine.store.ListUserGrants(ctx, &grant.ListFilter{
			TargetKind: kind,
			Limit:      sw.opts.batchSize,
			Offset:     offset,
		})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		sw.batch++
		sw.stats.Batches++
		sw.stats.Scanned += int64(len(rows))

		var doomed []id.AnyID
		for _, row := range rows {
			alive, err := probe(ctx, src, kind, row.TargetKey, exists)
			if err != nil {
				return err
			}
			if !alive {
				doomed = append(doomed, row.ID)
			}
		}
		deleted := int64(0)
		if len(doomed) > 0 {
			deleted, err = sw.engine.store.DeleteUserGrants(ctx, &grant.ListFilter{IDs: doomed})
			if err != nil {
				return err
			}
			sw.stats.Deleted += deleted
		}
		sw.engine.logger.Info("orphan sweep batch",
			"kind", kind,
			"table", "user_grants",
			"batch", sw.batch-1,
			"scanned", len(rows),
			"deleted", deleted,
		)
		// Deleted rows shift later pages left; start the next page where
		// the survivors of this one end.
		offset += len(rows) - int(deleted)
		if len(rows) < sw.opts.batchSize {
			return nil
		}
	}
}

func (sw *sweeper) sweepGroupGrants(ctx context.Context, kind string, src target.Source, exists map[string]bool) error {
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if sw.overBudget() {
			sw.stopped = true
			return nil
		}
		if sw.batch < sw.opts.skipBatches {
			sw.batch++
			offset += sw.opts.batchSize
			continue
		}
		rows, err := sw.engine.store.ListGroupGrants(ctx, &grant.ListFilter{
			TargetKind: kind,
			Limit:      sw.opts.batchSize,
			Offset:     offset,
		})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		sw.batch++
		sw.stats.Batches++
		sw.stats.Scanned += int64(len(rows))

		var doomed []id.AnyID
		for _, row := range rows {
			alive, err := probe(ctx, src, kind, row.TargetKey, exists)
			if err != nil {
				return err
			}
			if !alive {
				doomed = append(doomed, row.ID)
			}
		}
		deleted := int64(0)
		if len(doomed) > 0 {
			deleted, err = sw.engine.store.DeleteGroupGrants(ctx, &grant.ListFilter{IDs: doomed})
			if err != nil {
				return err
			}
			sw.stats.Deleted += deleted
		}
		sw.engine.logger.Info("orphan sweep batch",
			"kind", kind,
			"table", "group_grants",
			"batch", sw.batch-1,
			"scanned", len(rows),
			"deleted", deleted,
		)
		offset += len(rows) - int(deleted)
		if len(rows) < sw.opts.batchSize {
			return nil
		}
	}
}

// probe answers whether a key's object still exists, memoizing per key.
// A probe error aborts the sweep; a missing object never does.
func probe(ctx context.Context, src target.Source, kind, key string, exists map[string]bool) (bool, error) {
	if alive, ok := exists[key]; ok {
		return alive, nil
	}
	alive, err := src.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("probe %s %q: %w", kind, key, err)
	}
	exists[key] = alive
	return alive, nil
}
