package usecase

import (
	"context"
	"testing"
	"time"

	"aadash-backend/internal/mirror/domain"
	"aadash-backend/internal/mirror/repository"
	"aadash-backend/pkg/upstream"

	"gorm.io/gorm"
)

func newTestOrchestrator(t *testing.T, fake *fakeUpstream) (*Orchestrator, *gorm.DB, repository.CheckpointRepository) {
	t.Helper()
	db := newTestDB(t)
	mirror := repository.NewMirrorRepository(db)
	checkpoints := repository.NewCheckpointRepository(db)
	runner := NewRunner(fake, NewReconciler(mirror), mirror)
	runner.SetPageDelay(0)
	return NewOrchestrator(fake, runner, mirror, checkpoints), db, checkpoints
}

func TestFullSyncDenormalizesParentsFirst(t *testing.T) {
	fake := newFakeUpstream()
	fake.data["user"] = []upstream.Record{
		{"_id": "u1", "authentication": map[string]interface{}{
			"email": map[string]interface{}{"email": "alice@example.com"},
		}},
	}
	fake.data["course"] = []upstream.Record{courseRecord("c1", "CPCU 500")}
	fake.data["conversation"] = []upstream.Record{
		{"_id": "conv1", "user": "u1", "course": "c1", "message_count": float64(3)},
	}
	orchestrator, db, checkpoints := newTestOrchestrator(t, fake)

	results := orchestrator.PerformFullSync(context.Background(), PassOptions{BatchSize: 50})
	if !results.AnySuccess() {
		t.Fatalf("results = %+v", results)
	}

	// Parents synced in the same pass are resolved into the conversation row.
	var conversation domain.Conversation
	if err := db.First(&conversation, "id = ?", "conv1").Error; err != nil {
		t.Fatalf("loading conversation: %v", err)
	}
	if conversation.AccountEmail == nil || *conversation.AccountEmail != "alice@example.com" {
		t.Errorf("account email = %v, want denormalized", conversation.AccountEmail)
	}
	if conversation.CourseName == nil || *conversation.CourseName != "CPCU 500" {
		t.Errorf("course name = %v, want denormalized", conversation.CourseName)
	}
	if conversation.AssignmentName != nil {
		t.Errorf("assignment name = %v, want nil for missing referent", conversation.AssignmentName)
	}

	checkpoint, err := checkpoints.GetOrCreate(domain.DataTypeConversation)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if checkpoint.Status != domain.SyncStatusCompleted || checkpoint.TotalRecords != 1 {
		t.Errorf("checkpoint = %+v", checkpoint)
	}
}

func TestFullSyncRunsInDependencyOrder(t *testing.T) {
	fake := newFakeUpstream()
	fake.data["user"] = []upstream.Record{{"_id": "u1"}}
	fake.data["course"] = []upstream.Record{courseRecord("c1", "CPCU 500")}
	orchestrator, _, _ := newTestOrchestrator(t, fake)

	// Requested out of order; the pass still runs parents first.
	orchestrator.PerformFullSync(context.Background(), PassOptions{
		BatchSize: 50,
		DataTypes: []string{domain.DataTypeCourse, domain.DataTypeAccount},
	})

	var order []string
	for _, call := range fake.fetches {
		if len(order) == 0 || order[len(order)-1] != call.DataType {
			order = append(order, call.DataType)
		}
	}
	if len(order) != 2 || order[0] != "user" || order[1] != "course" {
		t.Errorf("fetch order = %v, want user before course", order)
	}
}

func TestIncrementalFallsBackToFullOnFirstSync(t *testing.T) {
	fake := newFakeUpstream()
	fake.data["course"] = []upstream.Record{courseRecord("c1", "CPCU 500")}
	orchestrator, _, _ := newTestOrchestrator(t, fake)

	results := orchestrator.PerformIncrementalSync(context.Background(), PassOptions{
		BatchSize: 50,
		DataTypes: []string{domain.DataTypeCourse},
	})
	if results[domain.DataTypeCourse].Count != 1 {
		t.Fatalf("results = %+v", results)
	}

	// No completed checkpoint existed, so no watermark constraint was sent.
	for _, call := range fake.fetches {
		if call.Constrained {
			t.Error("first sync should not send a watermark constraint")
		}
	}
}

func TestIncrementalAddsToCheckpointTotal(t *testing.T) {
	fake := newFakeUpstream()
	fake.data["course"] = courseRecords(40)
	fake.modified = map[string][]upstream.Record{
		"course": {courseRecord("c0", "Course 0 rev"), courseRecord("c40", "New Course")},
	}
	orchestrator, db, checkpoints := newTestOrchestrator(t, fake)

	orchestrator.PerformFullSync(context.Background(), PassOptions{
		BatchSize: 50, DataTypes: []string{domain.DataTypeCourse},
	})
	checkpoint, _ := checkpoints.GetOrCreate(domain.DataTypeCourse)
	if checkpoint.TotalRecords != 40 {
		t.Fatalf("total = %d after full sync, want 40", checkpoint.TotalRecords)
	}

	results := orchestrator.PerformIncrementalSync(context.Background(), PassOptions{
		BatchSize: 50, DataTypes: []string{domain.DataTypeCourse},
	})
	if results[domain.DataTypeCourse].Count != 2 {
		t.Fatalf("incremental results = %+v", results)
	}

	checkpoint, _ = checkpoints.GetOrCreate(domain.DataTypeCourse)
	if checkpoint.TotalRecords != 42 {
		t.Errorf("total = %d, want 42 after incremental add", checkpoint.TotalRecords)
	}

	// One record was an update, one an insert.
	var count int64
	db.Model(&domain.Course{}).Count(&count)
	if count != 41 {
		t.Errorf("mirror has %d courses, want 41", count)
	}
}

func TestIncrementalSendsWatermarkConstraint(t *testing.T) {
	fake := newFakeUpstream()
	fake.data["course"] = courseRecords(2)
	fake.modified = map[string][]upstream.Record{"course": {}}
	orchestrator, _, _ := newTestOrchestrator(t, fake)

	orchestrator.PerformFullSync(context.Background(), PassOptions{
		BatchSize: 50, DataTypes: []string{domain.DataTypeCourse},
	})
	fake.fetches = nil

	orchestrator.PerformIncrementalSync(context.Background(), PassOptions{
		BatchSize: 50, DataTypes: []string{domain.DataTypeCourse},
	})
	if len(fake.fetches) == 0 {
		t.Fatal("expected at least one fetch")
	}
	for _, call := range fake.fetches {
		if !call.Constrained {
			t.Error("incremental fetch missing watermark constraint")
		}
	}
}

func TestPassWithoutCredentialTouchesNothing(t *testing.T) {
	fake := newFakeUpstream()
	fake.hasKey = false
	orchestrator, db, checkpoints := newTestOrchestrator(t, fake)

	results := orchestrator.PerformFullSync(context.Background(), PassOptions{BatchSize: 50})
	if len(results) != len(domain.SyncOrder) {
		t.Fatalf("got %d results, want one per data type", len(results))
	}
	for dataType, result := range results {
		if result.Success {
			t.Errorf("%s reported success without a credential", dataType)
		}
	}

	counts, _ := repository.NewMirrorRepository(db).Counts()
	for dataType, count := range counts {
		if count != 0 {
			t.Errorf("%s has %d rows, want 0", dataType, count)
		}
	}
	checkpointList, _ := checkpoints.List()
	if len(checkpointList) != 0 {
		t.Errorf("got %d checkpoint rows, want none written", len(checkpointList))
	}
}

func TestFailedDataTypeDoesNotAbortPass(t *testing.T) {
	fake := newFakeUpstream()
	fake.data["user"] = []upstream.Record{{"_id": "u1"}}
	fake.data["course"] = courseRecords(2)
	fake.failType = "user"
	fake.failCursor = 0
	fake.failsLeft = 2
	orchestrator, _, checkpoints := newTestOrchestrator(t, fake)

	results := orchestrator.PerformFullSync(context.Background(), PassOptions{
		BatchSize: 50,
		DataTypes: []string{domain.DataTypeAccount, domain.DataTypeCourse},
	})
	if results[domain.DataTypeAccount].Success {
		t.Error("account sync should have failed")
	}
	if !results[domain.DataTypeCourse].Success || results[domain.DataTypeCourse].Count != 2 {
		t.Errorf("course result = %+v, want success", results[domain.DataTypeCourse])
	}

	accountCheckpoint, _ := checkpoints.GetOrCreate(domain.DataTypeAccount)
	if accountCheckpoint.Status != domain.SyncStatusFailed {
		t.Errorf("account checkpoint status = %q, want failed", accountCheckpoint.Status)
	}
	courseCheckpoint, _ := checkpoints.GetOrCreate(domain.DataTypeCourse)
	if courseCheckpoint.Status != domain.SyncStatusCompleted {
		t.Errorf("course checkpoint status = %q, want completed", courseCheckpoint.Status)
	}
}

func TestCacheInvalidatorFiresOnSuccess(t *testing.T) {
	fake := newFakeUpstream()
	fake.data["course"] = courseRecords(1)
	orchestrator, _, _ := newTestOrchestrator(t, fake)

	invalidated := 0
	orchestrator.SetCacheInvalidator(func() { invalidated++ })

	orchestrator.PerformFullSync(context.Background(), PassOptions{
		BatchSize: 50, DataTypes: []string{domain.DataTypeCourse},
	})
	if invalidated != 1 {
		t.Errorf("invalidator fired %d times, want 1", invalidated)
	}

	fake.hasKey = false
	orchestrator.PerformFullSync(context.Background(), PassOptions{
		BatchSize: 50, DataTypes: []string{domain.DataTypeCourse},
	})
	if invalidated != 1 {
		t.Errorf("invalidator fired on a failed pass")
	}
}

func TestCheckForNewData(t *testing.T) {
	fake := newFakeUpstream()
	fake.data["course"] = courseRecords(3)
	fake.modified = map[string][]upstream.Record{"course": courseRecords(2)}
	orchestrator, _, checkpoints := newTestOrchestrator(t, fake)

	// Before any sync there is no watermark; the probe counts everything.
	hasNew, count, err := orchestrator.CheckForNewData(context.Background(), domain.DataTypeCourse)
	if err != nil {
		t.Fatalf("CheckForNewData: %v", err)
	}
	if !hasNew || count != 3 {
		t.Errorf("hasNew=%v count=%d, want full count before first sync", hasNew, count)
	}

	if err := checkpoints.MarkCompleted(domain.DataTypeCourse, 3, false); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	hasNew, count, err = orchestrator.CheckForNewData(context.Background(), domain.DataTypeCourse)
	if err != nil {
		t.Fatalf("CheckForNewData: %v", err)
	}
	if !hasNew || count != 2 {
		t.Errorf("hasNew=%v count=%d, want modified count after sync", hasNew, count)
	}
}

func TestWatermarkMarginSubtracted(t *testing.T) {
	watermark := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	constraint := upstream.ModifiedAfter(watermark.Add(-watermarkMargin))
	if constraint.Value != "2025-03-01T11:59:00.000Z" {
		t.Errorf("watermark value = %q, want one minute earlier", constraint.Value)
	}
}
