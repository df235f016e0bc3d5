package session

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

type Status int

const (
	Running Status = iota
	Done
	Cancelled
)

var statusNames = map[Status]string{
	Running:   "running",
	Done:      "done",
	Cancelled: "cancelled",
}

var statusFromName = map[string]Status{
	"running":   Running,
	"done":      Done,
	"cancelled": Cancelled,
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var n string
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if v, ok := statusFromName[n]; ok {
		*s = v
	}
	return nil
}

func (s Status) IsTerminal() bool {
	return s == Done || s == Cancelled
}

var (
	// ErrResultOverflow is returned when more results are appended than the
	// session has URLs.
	ErrResultOverflow = errors.New("session: result count exceeds url count")
	// ErrTerminal is returned when appending to a finished session.
	ErrTerminal = errors.New("session: already terminal")
)

// Result is one committed per-URL outcome. Exactly one of Data and Error is
// set. Results are never mutated once appended.
type Result struct {
	URL   string            `json:"url"`
	Data  map[string]string `json:"data,omitempty"`
	Error string            `json:"error,omitempty"`
}

func (r Result) Failed() bool {
	return r.Error != ""
}

func (r Result) clone() Result {
	if r.Data != nil {
		data := make(map[string]string, len(r.Data))
		for k, v := range r.Data {
			data[k] = v
		}
		r.Data = data
	}
	return r
}

// Session is the mutable state of one analysis run. The orchestrator driving
// the run is the only writer of results; cancel and export requests read or
// flip flags concurrently.
type Session struct {
	mu        sync.RWMutex
	id        string
	urls      []string
	results   []Result
	status    Status
	cancelled bool
	failure   string
	createdAt time.Time
	endedAt   time.Time
}

func newSession(id string, urls []string, now time.Time) *Session {
	return &Session{
		id:        id,
		urls:      append([]string(nil), urls...),
		status:    Running,
		createdAt: now,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) URLs() []string {
	return append([]string(nil), s.urls...)
}

// Append commits a result. It fails once the session is terminal or when
// every URL already has a result.
func (s *Session) Append(r Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.IsTerminal() {
		return ErrTerminal
	}
	if len(s.results) >= len(s.urls) {
		return ErrResultOverflow
	}
	s.results = append(s.results, r.clone())
	return nil
}

// Cancel raises the cancellation flag. It reports whether the flag was
// raised by this call; a terminal or already cancelled session is left as is.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.IsTerminal() || s.cancelled {
		return false
	}
	s.cancelled = true
	return true
}

func (s *Session) Cancelled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cancelled
}

// Finish moves a running session to its terminal status. Later calls are
// ignored.
func (s *Session) Finish(status Status, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.IsTerminal() || !status.IsTerminal() {
		return
	}
	if status == Cancelled {
		s.cancelled = true
	}
	s.status = status
	s.endedAt = now
}

// Fail records an internal error and finishes the session as done with
// whatever results were committed.
func (s *Session) Fail(err error, now time.Time) {
	s.mu.Lock()
	if !s.status.IsTerminal() && err != nil {
		s.failure = err.Error()
	}
	s.mu.Unlock()
	s.Finish(Done, now)
}

// Snapshot is a point-in-time copy of a Session, safe to retain.
type Snapshot struct {
	ID        string     `json:"id"`
	URLs      []string   `json:"urls"`
	Results   []Result   `json:"results"`
	Status    Status     `json:"status"`
	Cancelled bool       `json:"cancelled"`
	Failure   string     `json:"failure,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		ID:        s.id,
		URLs:      append([]string(nil), s.urls...),
		Results:   make([]Result, len(s.results)),
		Status:    s.status,
		Cancelled: s.cancelled,
		Failure:   s.failure,
		CreatedAt: s.createdAt,
	}
	for i, r := range s.results {
		snap.Results[i] = r.clone()
	}
	if !s.endedAt.IsZero() {
		t := s.endedAt
		snap.EndedAt = &t
	}
	return snap
}

func (s *Session) terminalSince() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endedAt, s.status.IsTerminal()
}
