package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"aadash-backend/internal/mirror/domain"
	"aadash-backend/internal/mirror/repository"
	"aadash-backend/pkg/upstream"

	"gorm.io/gorm"
)

// UpstreamClient is the slice of the upstream API the sync engine needs.
type UpstreamClient interface {
	FetchPage(ctx context.Context, dataType string, cursor, limit int, constraints []upstream.Constraint, opts *upstream.FetchOptions) (*upstream.Page, error)
	GetTotalCount(ctx context.Context, dataType string, constraints []upstream.Constraint) (int, error)
	HasCredential() bool
}

// Progress is one per-page progress report, consumed by UI polling only.
type Progress struct {
	DataType   string  `json:"data_type"`
	Current    int     `json:"current"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
	Message    string  `json:"message"`
}

type ProgressFunc func(Progress)

// RunOptions bounds one runner invocation for a single data type.
type RunOptions struct {
	// PageSize is the upstream page size, 10..500.
	PageSize int
	// MaxItems caps this invocation, 0 for unlimited. Large mirrors are
	// filled across several bounded invocations.
	MaxItems int
	// ModifiedSince switches to incremental mode via an upstream constraint.
	ModifiedSince *time.Time
	// Resume starts from the local row count instead of cursor 0. This is an
	// approximation of the true upstream offset; see the design notes.
	Resume bool
	// Progress receives a report after every committed page.
	Progress ProgressFunc
}

// Result is the per-data-type outcome of one invocation.
type Result struct {
	Count   int      `json:"count"`
	Errors  []string `json:"errors,omitempty"`
	Success bool     `json:"success"`
}

// Runner drives the fetch -> reconcile -> commit loop in bounded pages.
// Each page commits on its own; a failure never rolls back earlier pages.
type Runner struct {
	client     UpstreamClient
	reconciler *Reconciler
	mirror     repository.MirrorRepository
	pageDelay  time.Duration
}

func NewRunner(client UpstreamClient, reconciler *Reconciler, mirror repository.MirrorRepository) *Runner {
	return &Runner{
		client:     client,
		reconciler: reconciler,
		mirror:     mirror,
		// Courtesy delay between page fetches to avoid upstream throttling.
		pageDelay: 100 * time.Millisecond,
	}
}

// SetPageDelay overrides the inter-page delay (tests use zero).
func (r *Runner) SetPageDelay(d time.Duration) { r.pageDelay = d }

// Run pages through one data type. Only ErrAuthMissing is returned as an
// error; every other failure ends the loop and is reported in the Result,
// with already-committed pages standing.
func (r *Runner) Run(ctx context.Context, dataType string, opts RunOptions) (Result, error) {
	if !r.client.HasCredential() {
		return Result{Success: false, Errors: []string{upstream.ErrAuthMissing.Error()}}, upstream.ErrAuthMissing
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 200
	}

	var constraints []upstream.Constraint
	if opts.ModifiedSince != nil {
		constraints = append(constraints, upstream.ModifiedAfter(*opts.ModifiedSince))
	}

	upstreamType := domain.UpstreamType(dataType)

	cursor := 0
	if opts.Resume {
		localCount, err := r.mirror.Count(dataType)
		if err != nil {
			return Result{Success: false, Errors: []string{err.Error()}}, nil
		}
		cursor = int(localCount)
	}

	total, err := r.client.GetTotalCount(ctx, upstreamType, constraints)
	if err != nil {
		if errors.Is(err, upstream.ErrAuthMissing) {
			return Result{Success: false, Errors: []string{err.Error()}}, err
		}
		// Progress totals are cosmetic; a failed count query does not stop
		// the sync.
		log.Printf("[BatchRunner] Could not get total count for %s: %v", dataType, err)
		total = 0
	}
	if opts.MaxItems > 0 && total > opts.MaxItems {
		total = opts.MaxItems
	}

	log.Printf("[BatchRunner] Starting %s sync: %d items to process", dataType, total)
	r.report(opts.Progress, dataType, 0, total, fmt.Sprintf("Starting %s sync...", dataType))

	processed := 0
	var errs []string
	firstPage := true

	for {
		if opts.MaxItems > 0 && processed >= opts.MaxItems {
			break
		}

		limit := pageSize
		if opts.MaxItems > 0 && opts.MaxItems-processed < limit {
			limit = opts.MaxItems - processed
		}

		if !firstPage && r.pageDelay > 0 {
			time.Sleep(r.pageDelay)
		}
		firstPage = false

		page, err := r.fetchWithRetry(ctx, upstreamType, cursor, limit, constraints)
		if err != nil {
			if errors.Is(err, upstream.ErrAuthMissing) {
				errs = append(errs, err.Error())
				return Result{Count: processed, Errors: errs, Success: false}, err
			}
			log.Printf("[BatchRunner] Page fetch failed for %s at cursor %d: %v", dataType, cursor, err)
			errs = append(errs, err.Error())
			break
		}
		if len(page.Results) == 0 {
			break
		}

		pageProcessed := 0
		commitErr := r.mirror.RunInTransaction(func(tx *gorm.DB) error {
			for _, record := range page.Results {
				applied, err := r.reconciler.Reconcile(tx, dataType, record)
				if err != nil {
					return err
				}
				if applied {
					pageProcessed++
				}
			}
			return nil
		})
		if commitErr != nil {
			// The current page rolled back; everything committed before it
			// stands.
			log.Printf("[BatchRunner] Commit failed for %s page at cursor %d: %v", dataType, cursor, commitErr)
			errs = append(errs, fmt.Sprintf("commit error: %v", commitErr))
			break
		}

		processed += pageProcessed
		log.Printf("[BatchRunner] Committed page of %d %s items", pageProcessed, dataType)
		r.report(opts.Progress, dataType, processed, total,
			fmt.Sprintf("Processed %d/%d %s", processed, total, dataType))

		if page.Remaining == 0 {
			break
		}
		cursor += len(page.Results)
	}

	log.Printf("[BatchRunner] Completed %s sync: %d items processed", dataType, processed)
	return Result{Count: processed, Errors: errs, Success: len(errs) == 0}, nil
}

// fetchWithRetry retries the same cursor once; a second failure ends the
// data type's loop for this invocation.
func (r *Runner) fetchWithRetry(ctx context.Context, upstreamType string, cursor, limit int, constraints []upstream.Constraint) (*upstream.Page, error) {
	page, err := r.client.FetchPage(ctx, upstreamType, cursor, limit, constraints, nil)
	if err == nil || errors.Is(err, upstream.ErrAuthMissing) {
		return page, err
	}
	log.Printf("[BatchRunner] Retrying %s page at cursor %d after: %v", upstreamType, cursor, err)
	return r.client.FetchPage(ctx, upstreamType, cursor, limit, constraints, nil)
}

func (r *Runner) report(fn ProgressFunc, dataType string, current, total int, message string) {
	if fn == nil {
		return
	}
	percentage := 0.0
	if total > 0 {
		percentage = math.Round(float64(current)/float64(total)*1000) / 10
	}
	fn(Progress{
		DataType:   dataType,
		Current:    current,
		Total:      total,
		Percentage: percentage,
		Message:    message,
	})
}
