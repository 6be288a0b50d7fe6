package usecase

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"aadash-backend/internal/mirror/domain"
	"aadash-backend/internal/mirror/repository"
	"aadash-backend/pkg/upstream"
)

// watermarkMargin is subtracted from the checkpoint watermark before it is
// used as a strictly-greater-than filter, so boundary records and modest
// clock skew are not missed.
const watermarkMargin = time.Minute

// PassResult aggregates per-data-type results of one sync pass.
type PassResult map[string]Result

// TotalCount sums processed records across data types.
func (p PassResult) TotalCount() int {
	total := 0
	for _, r := range p {
		total += r.Count
	}
	return total
}

// AnySuccess reports whether at least one data type completed cleanly.
func (p PassResult) AnySuccess() bool {
	for _, r := range p {
		if r.Success {
			return true
		}
	}
	return false
}

// PassOptions configures one orchestrated pass.
type PassOptions struct {
	BatchSize int
	MaxItems  int
	// DataTypes restricts the pass; empty means all, always in SyncOrder.
	DataTypes []string
	Progress  ProgressFunc
}

// Orchestrator sequences per-data-type syncs parents-first and drives the
// checkpoint lifecycle around each one. Passes serialize on an internal
// mutex: the mirror has a single writer.
type Orchestrator struct {
	client      UpstreamClient
	runner      *Runner
	mirror      repository.MirrorRepository
	checkpoints repository.CheckpointRepository
	invalidate  func()
	mu          sync.Mutex
}

func NewOrchestrator(client UpstreamClient, runner *Runner, mirror repository.MirrorRepository, checkpoints repository.CheckpointRepository) *Orchestrator {
	return &Orchestrator{
		client:      client,
		runner:      runner,
		mirror:      mirror,
		checkpoints: checkpoints,
	}
}

// SetCacheInvalidator registers the read-side cache hook called after every
// pass that synced anything.
func (o *Orchestrator) SetCacheInvalidator(fn func()) { o.invalidate = fn }

// PerformFullSync runs every requested data type from cursor 0 with no
// watermark, replacing checkpoint totals.
func (o *Orchestrator) PerformFullSync(ctx context.Context, opts PassOptions) PassResult {
	return o.performPass(ctx, opts, false)
}

// PerformIncrementalSync syncs records modified since each checkpoint's
// watermark, adding to checkpoint totals. Until a first full sync has ever
// completed it falls back to a full pass: an incremental sync against an
// empty mirror would silently fetch nothing.
func (o *Orchestrator) PerformIncrementalSync(ctx context.Context, opts PassOptions) PassResult {
	completed, err := o.checkpoints.HasAnyCompleted()
	if err != nil {
		log.Printf("[Orchestrator] Checkpoint probe failed, assuming first sync: %v", err)
	}
	if !completed {
		log.Printf("[Orchestrator] No completed checkpoint found, running full sync instead")
		return o.performPass(ctx, opts, false)
	}
	return o.performPass(ctx, opts, true)
}

func (o *Orchestrator) performPass(ctx context.Context, opts PassOptions, incremental bool) PassResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	dataTypes := orderedTypes(opts.DataTypes)
	results := make(PassResult, len(dataTypes))

	// A missing credential fails the whole pass up front, before any
	// checkpoint is touched.
	if !o.client.HasCredential() {
		for _, dataType := range dataTypes {
			results[dataType] = Result{Success: false, Errors: []string{upstream.ErrAuthMissing.Error()}}
		}
		log.Printf("[Orchestrator] Sync aborted: %v", upstream.ErrAuthMissing)
		return results
	}

	for _, dataType := range dataTypes {
		results[dataType] = o.syncDataType(ctx, dataType, opts, incremental)
	}

	if results.AnySuccess() && o.invalidate != nil {
		o.invalidate()
	}
	return results
}

// syncDataType runs one data type with checkpoint tracking. Failures here
// never abort the remaining data types.
func (o *Orchestrator) syncDataType(ctx context.Context, dataType string, opts PassOptions, incremental bool) Result {
	log.Printf("[Orchestrator] Starting %s sync for %s", mode(incremental), dataType)

	var modifiedSince *time.Time
	if incremental {
		checkpoint, err := o.checkpoints.GetOrCreate(dataType)
		if err != nil {
			return Result{Success: false, Errors: []string{err.Error()}}
		}
		if checkpoint.LastSyncDate != nil {
			watermark := checkpoint.LastSyncDate.Add(-watermarkMargin)
			modifiedSince = &watermark
		}
	}

	if err := o.checkpoints.MarkSyncing(dataType); err != nil {
		return Result{Success: false, Errors: []string{err.Error()}}
	}

	result, err := o.runner.Run(ctx, dataType, RunOptions{
		PageSize:      opts.BatchSize,
		MaxItems:      opts.MaxItems,
		ModifiedSince: modifiedSince,
		// Bounded full syncs resume from the local row count so repeated
		// invocations walk forward through the upstream dataset.
		Resume:   !incremental && opts.MaxItems > 0,
		Progress: opts.Progress,
	})
	if err != nil && errors.Is(err, upstream.ErrAuthMissing) {
		// Fatal configuration problem, not a data-type failure; the
		// checkpoint keeps whatever state it had.
		return result
	}

	if result.Success {
		if err := o.checkpoints.MarkCompleted(dataType, result.Count, incremental); err != nil {
			log.Printf("[Orchestrator] Could not mark %s completed: %v", dataType, err)
		}
	} else {
		if err := o.checkpoints.MarkFailed(dataType, joinErrors(result.Errors)); err != nil {
			log.Printf("[Orchestrator] Could not mark %s failed: %v", dataType, err)
		}
	}
	return result
}

// CheckForNewData is the scheduler's cheap probe: a count-only query with
// the watermark constraint.
func (o *Orchestrator) CheckForNewData(ctx context.Context, dataType string) (bool, int, error) {
	checkpoint, err := o.checkpoints.GetOrCreate(dataType)
	if err != nil {
		return false, 0, err
	}

	var constraints []upstream.Constraint
	if checkpoint.LastSyncDate != nil {
		constraints = append(constraints, upstream.ModifiedAfter(checkpoint.LastSyncDate.Add(-watermarkMargin)))
	}

	count, err := o.client.GetTotalCount(ctx, domain.UpstreamType(dataType), constraints)
	if err != nil {
		return false, 0, err
	}
	return count > 0, count, nil
}

// DatabaseCounts exposes local row counts for the trigger surface.
func (o *Orchestrator) DatabaseCounts() (map[string]int64, error) {
	return o.mirror.Counts()
}

func orderedTypes(requested []string) []string {
	if len(requested) == 0 {
		return domain.SyncOrder
	}
	wanted := make(map[string]bool, len(requested))
	for _, dataType := range requested {
		wanted[dataType] = true
	}
	var ordered []string
	for _, dataType := range domain.SyncOrder {
		if wanted[dataType] {
			ordered = append(ordered, dataType)
		}
	}
	return ordered
}

func mode(incremental bool) string {
	if incremental {
		return "incremental"
	}
	return "full"
}

func joinErrors(errs []string) string {
	joined := ""
	for i, e := range errs {
		if i > 0 {
			joined += ", "
		}
		joined += e
	}
	return joined
}
