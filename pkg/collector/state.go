package collector

import (
	"sync"
	"time"
)

// Status is a collection run's position in the state machine:
//
//	not_started → enumerating → fetching → normalizing → committing → completed
//
// with retrying entered from a failing step and the terminal failed and
// cancelled states.
type Status string

const (
	StatusNotStarted  Status = "not_started"
	StatusEnumerating Status = "enumerating"
	StatusFetching    Status = "fetching"
	StatusNormalizing Status = "normalizing"
	StatusCommitting  Status = "committing"
	StatusRetrying    Status = "retrying"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether s ends a run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// RunState is the in-memory progress of a run. It is rebuilt from the
// checkpoint on every start and never persisted itself.
type RunState struct {
	mu sync.Mutex

	status      Status
	current     string
	pending     []string
	committed   map[string]struct{}
	skipped     map[string]string
	retries     map[string]int
	consecutive int
	enumerated  int
	changedAt   time.Time
}

func newRunState() *RunState {
	return &RunState{
		status:    StatusNotStarted,
		committed: make(map[string]struct{}),
		skipped:   make(map[string]string),
		retries:   make(map[string]int),
		changedAt: time.Now(),
	}
}

// StateSnapshot is a copy of a RunState at one instant.
type StateSnapshot struct {
	Status              Status
	Current             string
	Pending             int
	Committed           int
	Skipped             int
	Retries             int
	ConsecutiveFailures int
	Enumerated          int
	ChangedAt           time.Time
}

// Snapshot returns a consistent copy of the state.
func (s *RunState) Snapshot() StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	retries := 0
	for _, n := range s.retries {
		retries += n
	}
	return StateSnapshot{
		Status:              s.status,
		Current:             s.current,
		Pending:             len(s.pending),
		Committed:           len(s.committed),
		Skipped:             len(s.skipped),
		Retries:             retries,
		ConsecutiveFailures: s.consecutive,
		Enumerated:          s.enumerated,
		ChangedAt:           s.changedAt,
	}
}

func (s *RunState) setStatus(status Status) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.status
	if prev != status {
		s.status = status
		s.changedAt = time.Now()
	}
	return prev
}

// Status returns the current status.
func (s *RunState) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// begin installs the resume set: enumerated ids minus committed ones.
func (s *RunState) begin(enumerated []string, committed map[string]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enumerated = len(enumerated)
	s.committed = committed
	s.pending = s.pending[:0]
	for _, id := range enumerated {
		if _, ok := committed[id]; !ok {
			s.pending = append(s.pending, id)
		}
	}
}

func (s *RunState) pendingIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.pending...)
}

func (s *RunState) start(id string) {
	s.mu.Lock()
	s.current = id
	s.mu.Unlock()
}

// finish ends the work on id. Committed ids leave the pending list;
// the others stay pending for the next run.
func (s *RunState) finish(id string, committed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = ""
	if !committed {
		return
	}
	s.committed[id] = struct{}{}
	for i, p := range s.pending {
		if p == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			break
		}
	}
}

func (s *RunState) skip(id, reason string) {
	s.mu.Lock()
	s.skipped[id] = reason
	s.mu.Unlock()
}

func (s *RunState) retried(id string) {
	s.mu.Lock()
	s.retries[id]++
	s.mu.Unlock()
}

// failure counts a submission that could not be fetched and returns the
// number of such failures in a row.
func (s *RunState) failure() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutive++
	return s.consecutive
}

func (s *RunState) success() {
	s.mu.Lock()
	s.consecutive = 0
	s.mu.Unlock()
}
