package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"aadash-backend/internal/mirror/domain"
	"aadash-backend/internal/mirror/repository"
	"aadash-backend/internal/sync/usecase"
	"aadash-backend/pkg/upstream"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// stubUpstream serves a fixed record set in one page and counts calls.
type stubUpstream struct {
	mu      sync.Mutex
	records map[string][]upstream.Record
	fetches int
	counts  int
}

func (s *stubUpstream) HasCredential() bool { return true }

func (s *stubUpstream) FetchPage(ctx context.Context, dataType string, cursor, limit int, constraints []upstream.Constraint, opts *upstream.FetchOptions) (*upstream.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if cursor > 0 {
		return &upstream.Page{Cursor: cursor}, nil
	}
	return &upstream.Page{Results: s.records[dataType], Cursor: 0, Remaining: 0}, nil
}

func (s *stubUpstream) GetTotalCount(ctx context.Context, dataType string, constraints []upstream.Constraint) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts++
	return len(s.records[dataType]), nil
}

func (s *stubUpstream) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func newTestScheduler(t *testing.T, stub *stubUpstream) (*HourlySyncScheduler, repository.CheckpointRepository, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.Account{}, &domain.Course{}, &domain.Assignment{},
		&domain.ConversationStarter{}, &domain.Conversation{}, &domain.Message{},
		&domain.SyncCheckpoint{},
	); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	mirror := repository.NewMirrorRepository(db)
	checkpoints := repository.NewCheckpointRepository(db)
	runner := usecase.NewRunner(stub, usecase.NewReconciler(mirror), mirror)
	runner.SetPageDelay(0)
	orchestrator := usecase.NewOrchestrator(stub, runner, mirror, checkpoints)
	return NewHourlySyncScheduler(orchestrator, checkpoints, time.Hour, 50), checkpoints, db
}

func TestRunPassSyncsAndRecordsOutcome(t *testing.T) {
	stub := &stubUpstream{records: map[string][]upstream.Record{
		"course": {{"_id": "c1", "name_text": "CPCU 500"}},
	}}
	sched, checkpoints, _ := newTestScheduler(t, stub)

	sched.runPass()

	if stub.fetchCount() == 0 {
		t.Fatal("pass with new data should have synced")
	}
	checkpoint, err := checkpoints.GetOrCreate(domain.ScheduledSyncType)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if checkpoint.Status != domain.SyncStatusCompleted {
		t.Errorf("scheduled_sync status = %q, want completed", checkpoint.Status)
	}
	if sched.Status().LastRun == nil {
		t.Error("last run timestamp not recorded")
	}
}

func TestRunPassSkipsWhenNothingNew(t *testing.T) {
	stub := &stubUpstream{records: map[string][]upstream.Record{}}
	sched, _, _ := newTestScheduler(t, stub)

	sched.runPass()

	if got := stub.fetchCount(); got != 0 {
		t.Errorf("empty probe should skip the sync, got %d fetches", got)
	}
	if sched.Status().LastRun == nil {
		t.Error("a skipped pass still counts as a run")
	}
}

func TestPauseSkipsPass(t *testing.T) {
	stub := &stubUpstream{records: map[string][]upstream.Record{
		"course": {{"_id": "c1"}},
	}}
	sched, _, _ := newTestScheduler(t, stub)

	sched.Pause()
	sched.runPass()
	if got := stub.fetchCount(); got != 0 {
		t.Errorf("paused pass fetched %d pages, want 0", got)
	}
	if !sched.Status().Paused {
		t.Error("status should report paused")
	}

	sched.Resume()
	sched.runPass()
	if stub.fetchCount() == 0 {
		t.Error("resumed scheduler should sync again")
	}
}

func TestInFlightPassCoalesces(t *testing.T) {
	stub := &stubUpstream{records: map[string][]upstream.Record{
		"course": {{"_id": "c1"}},
	}}
	sched, _, _ := newTestScheduler(t, stub)

	sched.mu.Lock()
	sched.inFlight = true
	sched.mu.Unlock()

	sched.runPass()
	if got := stub.fetchCount(); got != 0 {
		t.Errorf("overlapping pass fetched %d pages, want 0", got)
	}
	if !sched.Status().InFlight {
		t.Error("coalesced tick must not clear the in-flight flag")
	}
}

func TestTriggerNowNeverBlocks(t *testing.T) {
	stub := &stubUpstream{records: map[string][]upstream.Record{}}
	sched, _, _ := newTestScheduler(t, stub)

	// Nothing is draining the channel; repeated triggers must still return.
	sched.TriggerNow()
	sched.TriggerNow()
	sched.TriggerNow()
}

func TestOverdue(t *testing.T) {
	stub := &stubUpstream{records: map[string][]upstream.Record{}}
	sched, checkpoints, db := newTestScheduler(t, stub)

	if sched.Overdue() {
		t.Error("no recorded pass should not be overdue")
	}

	if err := checkpoints.MarkCompleted(domain.ScheduledSyncType, 0, true); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if sched.Overdue() {
		t.Error("fresh pass should not be overdue")
	}

	stale := time.Now().UTC().Add(-2 * time.Hour)
	checkpoint, _ := checkpoints.GetOrCreate(domain.ScheduledSyncType)
	checkpoint.LastSyncDate = &stale
	if err := db.Save(checkpoint).Error; err != nil {
		t.Fatalf("backdating checkpoint: %v", err)
	}
	if !sched.Overdue() {
		t.Error("pass older than interval plus grace should be overdue")
	}
}
