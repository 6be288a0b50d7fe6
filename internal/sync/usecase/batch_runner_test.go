package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"aadash-backend/internal/mirror/domain"
	"aadash-backend/internal/mirror/repository"
	"aadash-backend/pkg/upstream"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fetchCall struct {
	DataType    string
	Cursor      int
	Limit       int
	Constrained bool
}

// fakeUpstream serves canned records with real cursor/remaining semantics.
// When a watermark constraint is present it serves the modified dataset
// instead of the full one.
type fakeUpstream struct {
	mu       sync.Mutex
	hasKey   bool
	data     map[string][]upstream.Record
	modified map[string][]upstream.Record

	failType   string
	failCursor int
	failsLeft  int

	fetches []fetchCall
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		hasKey: true,
		data:   map[string][]upstream.Record{},
	}
}

func (f *fakeUpstream) HasCredential() bool { return f.hasKey }

func (f *fakeUpstream) dataset(dataType string, constrained bool) []upstream.Record {
	if constrained && f.modified != nil {
		return f.modified[dataType]
	}
	return f.data[dataType]
}

func (f *fakeUpstream) FetchPage(ctx context.Context, dataType string, cursor, limit int, constraints []upstream.Constraint, opts *upstream.FetchOptions) (*upstream.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.hasKey {
		return nil, upstream.ErrAuthMissing
	}
	f.fetches = append(f.fetches, fetchCall{dataType, cursor, limit, len(constraints) > 0})

	if f.failType == dataType && f.failCursor == cursor && f.failsLeft > 0 {
		f.failsLeft--
		return nil, &upstream.HTTPError{Status: 500}
	}

	records := f.dataset(dataType, len(constraints) > 0)
	if cursor >= len(records) {
		return &upstream.Page{Cursor: cursor}, nil
	}
	end := cursor + limit
	if end > len(records) {
		end = len(records)
	}
	return &upstream.Page{
		Results:   records[cursor:end],
		Cursor:    cursor,
		Remaining: len(records) - end,
	}, nil
}

func (f *fakeUpstream) GetTotalCount(ctx context.Context, dataType string, constraints []upstream.Constraint) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.hasKey {
		return 0, upstream.ErrAuthMissing
	}
	return len(f.dataset(dataType, len(constraints) > 0)), nil
}

func newTestDB(t *testing.T) *gorm.DB {
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
	return db
}

func newTestRunner(t *testing.T, fake *fakeUpstream) (*Runner, repository.MirrorRepository) {
	t.Helper()
	mirror := repository.NewMirrorRepository(newTestDB(t))
	runner := NewRunner(fake, NewReconciler(mirror), mirror)
	runner.SetPageDelay(0)
	return runner, mirror
}

func courseRecord(id, name string) upstream.Record {
	return upstream.Record{"_id": id, "name_text": name}
}

func courseRecords(n int) []upstream.Record {
	records := make([]upstream.Record, n)
	for i := range records {
		records[i] = courseRecord(fmt.Sprintf("c%d", i), fmt.Sprintf("Course %d", i))
	}
	return records
}

func TestRunPaginatesUntilRemainingZero(t *testing.T) {
	fake := newFakeUpstream()
	fake.data["course"] = courseRecords(5)
	runner, mirror := newTestRunner(t, fake)

	result, err := runner.Run(context.Background(), domain.DataTypeCourse, RunOptions{PageSize: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success || result.Count != 5 {
		t.Fatalf("result = %+v, want 5 successful", result)
	}

	count, _ := mirror.Count(domain.DataTypeCourse)
	if count != 5 {
		t.Errorf("mirror has %d courses, want 5", count)
	}

	// Cursor advances by page length.
	var cursors []int
	for _, call := range fake.fetches {
		cursors = append(cursors, call.Cursor)
	}
	want := []int{0, 2, 4}
	if len(cursors) != len(want) {
		t.Fatalf("got fetches at cursors %v, want %v", cursors, want)
	}
	for i := range want {
		if cursors[i] != want[i] {
			t.Fatalf("got fetches at cursors %v, want %v", cursors, want)
		}
	}
}

func TestRunHonorsMaxItems(t *testing.T) {
	fake := newFakeUpstream()
	fake.data["course"] = courseRecords(10)
	runner, mirror := newTestRunner(t, fake)

	result, err := runner.Run(context.Background(), domain.DataTypeCourse, RunOptions{PageSize: 4, MaxItems: 6})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Count != 6 {
		t.Errorf("count = %d, want 6 (ceiling applied)", result.Count)
	}

	count, _ := mirror.Count(domain.DataTypeCourse)
	if count != 6 {
		t.Errorf("mirror has %d courses, want 6", count)
	}

	// The final page shrinks to exactly fill the ceiling.
	last := fake.fetches[len(fake.fetches)-1]
	if last.Limit != 2 {
		t.Errorf("final page limit = %d, want 2", last.Limit)
	}
}

func TestRunCommitFailureKeepsEarlierPages(t *testing.T) {
	fake := newFakeUpstream()
	records := courseRecords(4)
	// An unencodable value fails the page transaction during reconcile.
	records[2]["poison"] = make(chan int)
	fake.data["course"] = records
	runner, mirror := newTestRunner(t, fake)

	result, err := runner.Run(context.Background(), domain.DataTypeCourse, RunOptions{PageSize: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Success {
		t.Error("result should not be successful after a failed page")
	}
	if result.Count != 2 {
		t.Errorf("count = %d, want the 2 committed items", result.Count)
	}
	if len(result.Errors) == 0 {
		t.Fatal("expected a recorded error")
	}

	// Page one stands, page two rolled back.
	count, _ := mirror.Count(domain.DataTypeCourse)
	if count != 2 {
		t.Errorf("mirror has %d courses, want 2", count)
	}
}

func TestRunRetriesFailedPageOnce(t *testing.T) {
	fake := newFakeUpstream()
	fake.data["course"] = courseRecords(4)
	fake.failType = "course"
	fake.failCursor = 2
	fake.failsLeft = 1
	runner, mirror := newTestRunner(t, fake)

	result, err := runner.Run(context.Background(), domain.DataTypeCourse, RunOptions{PageSize: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success || result.Count != 4 {
		t.Fatalf("result = %+v, want full sync after retry", result)
	}
	count, _ := mirror.Count(domain.DataTypeCourse)
	if count != 4 {
		t.Errorf("mirror has %d courses, want 4", count)
	}
}

func TestRunGivesUpAfterSecondFailure(t *testing.T) {
	fake := newFakeUpstream()
	fake.data["course"] = courseRecords(4)
	fake.failType = "course"
	fake.failCursor = 2
	fake.failsLeft = 2
	runner, mirror := newTestRunner(t, fake)

	result, err := runner.Run(context.Background(), domain.DataTypeCourse, RunOptions{PageSize: 2})
	if err != nil {
		t.Fatalf("Run: %v, transient failures are reported in the result", err)
	}
	if result.Success {
		t.Error("result should not be successful")
	}
	if result.Count != 2 {
		t.Errorf("count = %d, want the first committed page", result.Count)
	}
	count, _ := mirror.Count(domain.DataTypeCourse)
	if count != 2 {
		t.Errorf("mirror has %d courses, want 2", count)
	}
}

func TestRunWithoutCredential(t *testing.T) {
	fake := newFakeUpstream()
	fake.hasKey = false
	runner, _ := newTestRunner(t, fake)

	result, err := runner.Run(context.Background(), domain.DataTypeCourse, RunOptions{PageSize: 2})
	if !errors.Is(err, upstream.ErrAuthMissing) {
		t.Fatalf("err = %v, want ErrAuthMissing", err)
	}
	if result.Success {
		t.Error("result should not be successful")
	}
	if len(fake.fetches) != 0 {
		t.Errorf("no fetch should have been attempted, got %d", len(fake.fetches))
	}
}

func TestRunResumeStartsFromLocalCount(t *testing.T) {
	fake := newFakeUpstream()
	fake.data["course"] = courseRecords(6)
	runner, mirror := newTestRunner(t, fake)

	// First bounded invocation fills the head of the dataset.
	if _, err := runner.Run(context.Background(), domain.DataTypeCourse, RunOptions{PageSize: 2, MaxItems: 3}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	// The second resumes from the local row count instead of cursor 0.
	result, err := runner.Run(context.Background(), domain.DataTypeCourse, RunOptions{PageSize: 2, MaxItems: 3, Resume: true})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if result.Count != 3 {
		t.Errorf("second run count = %d, want 3", result.Count)
	}
	count, _ := mirror.Count(domain.DataTypeCourse)
	if count != 6 {
		t.Errorf("mirror has %d courses, want 6 after two bounded runs", count)
	}
}

func TestRunReportsProgressPerPage(t *testing.T) {
	fake := newFakeUpstream()
	fake.data["course"] = courseRecords(4)
	runner, _ := newTestRunner(t, fake)

	var reports []Progress
	_, err := runner.Run(context.Background(), domain.DataTypeCourse, RunOptions{
		PageSize: 2,
		Progress: func(p Progress) { reports = append(reports, p) },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// One starting report plus one per committed page.
	if len(reports) != 3 {
		t.Fatalf("got %d reports, want 3", len(reports))
	}
	final := reports[len(reports)-1]
	if final.Current != 4 || final.Total != 4 || final.Percentage != 100 {
		t.Errorf("final report = %+v", final)
	}
}

func TestReconcileSkipsRecordWithoutID(t *testing.T) {
	fake := newFakeUpstream()
	fake.data["course"] = []upstream.Record{
		{"name_text": "orphan"},
		courseRecord("c1", "Kept"),
	}
	runner, mirror := newTestRunner(t, fake)

	result, err := runner.Run(context.Background(), domain.DataTypeCourse, RunOptions{PageSize: 10})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success || result.Count != 1 {
		t.Fatalf("result = %+v, want 1 applied", result)
	}
	count, _ := mirror.Count(domain.DataTypeCourse)
	if count != 1 {
		t.Errorf("mirror has %d courses, want 1", count)
	}
}
