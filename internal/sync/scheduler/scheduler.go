package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"aadash-backend/internal/mirror/domain"
	"aadash-backend/internal/mirror/repository"
	"aadash-backend/internal/sync/usecase"
)

// HourlySyncScheduler triggers incremental syncs on a fixed interval.
// Guarantees: at most one pass in flight (overlapping ticks are skipped, not
// queued); a missed tick fires once on recovery within a grace window; each
// pass is preceded by a cheap new-data probe so empty cycles are skipped.
type HourlySyncScheduler struct {
	orchestrator *usecase.Orchestrator
	checkpoints  repository.CheckpointRepository
	interval     time.Duration
	startDelay   time.Duration
	grace        time.Duration
	batchSize    int

	mu       sync.Mutex
	paused   bool
	inFlight bool
	started  bool
	stopChan chan struct{}
	trigger  chan struct{}
	lastRun  *time.Time
}

func NewHourlySyncScheduler(orchestrator *usecase.Orchestrator, checkpoints repository.CheckpointRepository, interval time.Duration, batchSize int) *HourlySyncScheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &HourlySyncScheduler{
		orchestrator: orchestrator,
		checkpoints:  checkpoints,
		interval:     interval,
		startDelay:   5 * time.Minute,
		grace:        15 * time.Minute,
		batchSize:    batchSize,
		stopChan:     make(chan struct{}),
		trigger:      make(chan struct{}, 1),
	}
}

// Start launches the scheduler loop. The first run happens after a short
// startup delay; if the last scheduled pass is overdue beyond the grace
// window (the process was down across a tick) that first run covers it.
func (s *HourlySyncScheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	log.Printf("[Scheduler] Starting hourly sync scheduler (interval: %s)", s.interval)

	delay := s.startDelay
	if s.Overdue() {
		// The process slept through at least one tick; recover with a
		// single early pass instead of one per missed interval.
		log.Println("[Scheduler] Last scheduled sync is overdue, running recovery pass shortly")
		delay = 10 * time.Second
	}

	go func() {
		initial := time.NewTimer(delay)
		defer initial.Stop()

		select {
		case <-initial.C:
			s.runPass()
		case <-s.trigger:
			s.runPass()
		case <-s.stopChan:
			return
		}

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.runPass()
			case <-s.trigger:
				s.runPass()
			case <-s.stopChan:
				log.Println("[Scheduler] Stopped")
				return
			}
		}
	}()
}

// Stop shuts the loop down; the schedule definition is lost and Start must
// not be called again.
func (s *HourlySyncScheduler) Stop() {
	close(s.stopChan)
}

// Pause suspends passes without tearing down the schedule.
func (s *HourlySyncScheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	log.Println("[Scheduler] Paused")
}

// Resume re-enables passes.
func (s *HourlySyncScheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	log.Println("[Scheduler] Resumed")
}

// TriggerNow requests an immediate pass. A pass already in flight absorbs
// the request.
func (s *HourlySyncScheduler) TriggerNow() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Status reports the scheduler state for the management endpoint.
type Status struct {
	Running  bool       `json:"running"`
	Paused   bool       `json:"paused"`
	InFlight bool       `json:"in_flight"`
	Interval string     `json:"interval"`
	LastRun  *time.Time `json:"last_run,omitempty"`
}

func (s *HourlySyncScheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:  s.started,
		Paused:   s.paused,
		InFlight: s.inFlight,
		Interval: s.interval.String(),
		LastRun:  s.lastRun,
	}
}

// Overdue reports whether the last scheduled pass is older than one interval
// plus the grace window. Exposed so startup can decide to fire early.
func (s *HourlySyncScheduler) Overdue() bool {
	checkpoint, err := s.checkpoints.GetOrCreate(domain.ScheduledSyncType)
	if err != nil || checkpoint.LastSyncDate == nil {
		return false
	}
	return time.Since(*checkpoint.LastSyncDate) > s.interval+s.grace
}

func (s *HourlySyncScheduler) runPass() {
	s.mu.Lock()
	if s.paused {
		s.mu.Unlock()
		log.Println("[Scheduler] Paused, skipping tick")
		return
	}
	if s.inFlight {
		// Coalesce: never stack a second pass behind a slow one.
		s.mu.Unlock()
		log.Println("[Scheduler] Previous pass still running, skipping tick")
		return
	}
	s.inFlight = true
	s.mu.Unlock()

	defer func() {
		now := time.Now().UTC()
		s.mu.Lock()
		s.inFlight = false
		s.lastRun = &now
		s.mu.Unlock()
	}()

	ctx := context.Background()

	hasAny := false
	for _, dataType := range domain.SyncOrder {
		hasNew, count, err := s.orchestrator.CheckForNewData(ctx, dataType)
		if err != nil {
			log.Printf("[Scheduler] New-data probe failed for %s: %v", dataType, err)
			// Probe failures do not block the pass; the sync itself will
			// surface the real error.
			hasAny = true
			break
		}
		if hasNew {
			log.Printf("[Scheduler] Found %d new/modified %s", count, dataType)
			hasAny = true
		}
	}
	if !hasAny {
		log.Println("[Scheduler] No new data found, skipping sync")
		return
	}

	log.Println("[Scheduler] Starting scheduled incremental sync")
	results := s.orchestrator.PerformIncrementalSync(ctx, usecase.PassOptions{BatchSize: s.batchSize})
	log.Printf("[Scheduler] Scheduled sync completed: %d items synced", results.TotalCount())

	// Record the pass outcome on a dedicated checkpoint row for monitoring.
	if results.AnySuccess() {
		if err := s.checkpoints.MarkCompleted(domain.ScheduledSyncType, results.TotalCount(), true); err != nil {
			log.Printf("[Scheduler] Could not record pass outcome: %v", err)
		}
	} else {
		if err := s.checkpoints.MarkFailed(domain.ScheduledSyncType, "scheduled sync failed for all data types"); err != nil {
			log.Printf("[Scheduler] Could not record pass outcome: %v", err)
		}
	}
}
