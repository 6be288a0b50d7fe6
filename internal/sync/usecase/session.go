package usecase

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session states for background sync runs.
const (
	SessionRunning   = "running"
	SessionCompleted = "completed"
	SessionFailed    = "failed"
)

// sessionRetention is how long terminal sessions stay pollable.
const sessionRetention = time.Hour

type session struct {
	ID        string
	Status    string
	Started   time.Time
	Completed *time.Time
	Progress  map[string]Progress
	Results   PassResult
	Err       string
}

// SessionSnapshot is the poll view of one background run.
type SessionSnapshot struct {
	ID              string              `json:"session_id"`
	Status          string              `json:"status"`
	Started         time.Time           `json:"started"`
	Completed       *time.Time          `json:"completed,omitempty"`
	OverallProgress float64             `json:"overall_progress"`
	Detailed        map[string]Progress `json:"detailed_progress"`
	Results         PassResult          `json:"results,omitempty"`
	Error           string              `json:"error,omitempty"`
}

// SessionRegistry tracks background sync runs by opaque id. Terminal
// sessions are evicted after a retention window; the sweep happens
// opportunistically on access rather than on a timer.
type SessionRegistry struct {
	mu        sync.RWMutex
	sessions  map[string]*session
	retention time.Duration
	now       func() time.Time
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions:  make(map[string]*session),
		retention: sessionRetention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Begin registers a new running session and returns its id.
func (r *SessionRegistry) Begin() string {
	id := uuid.New().String()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	r.sessions[id] = &session{
		ID:       id,
		Status:   SessionRunning,
		Started:  r.now(),
		Progress: make(map[string]Progress),
	}
	return id
}

// ProgressFunc returns the observer that records per-data-type progress
// into the session.
func (r *SessionRegistry) ProgressFunc(id string) ProgressFunc {
	return func(p Progress) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if s, ok := r.sessions[id]; ok {
			s.Progress[p.DataType] = p
		}
	}
}

// Complete moves the session to its terminal state with results attached.
func (r *SessionRegistry) Complete(id string, results PassResult) {
	r.finish(id, SessionCompleted, results, "")
}

// Fail moves the session to failed with the error recorded.
func (r *SessionRegistry) Fail(id string, errMsg string) {
	r.finish(id, SessionFailed, nil, errMsg)
}

func (r *SessionRegistry) finish(id, status string, results PassResult, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return
	}
	now := r.now()
	s.Status = status
	s.Completed = &now
	s.Results = results
	s.Err = errMsg
}

// Snapshot returns the poll view, or false when the id is unknown or
// already evicted. Overall progress is the mean of per-data-type
// percentages.
func (r *SessionRegistry) Snapshot(id string) (*SessionSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()

	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}

	overall := 0.0
	if len(s.Progress) > 0 {
		for _, p := range s.Progress {
			overall += p.Percentage
		}
		overall /= float64(len(s.Progress))
	}

	detailed := make(map[string]Progress, len(s.Progress))
	for k, v := range s.Progress {
		detailed[k] = v
	}

	return &SessionSnapshot{
		ID:              s.ID,
		Status:          s.Status,
		Started:         s.Started,
		Completed:       s.Completed,
		OverallProgress: overall,
		Detailed:        detailed,
		Results:         s.Results,
		Error:           s.Err,
	}, true
}

func (r *SessionRegistry) sweepLocked() {
	cutoff := r.now().Add(-r.retention)
	for id, s := range r.sessions {
		if s.Status != SessionRunning && s.Completed != nil && s.Completed.Before(cutoff) {
			delete(r.sessions, id)
		}
	}
}
