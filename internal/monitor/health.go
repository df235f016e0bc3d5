package monitor

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type Status int

const (
	StatusHealthy Status = iota
	StatusDegraded
	StatusFailed
)

var statusNames = map[Status]string{
	StatusHealthy:  "healthy",
	StatusDegraded: "degraded",
	StatusFailed:   "failed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for st, n := range statusNames {
		if n == name {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown health status %q", name)
}

// Health tracks consecutive scorer failures. A single failure marks the
// scorer degraded; threshold consecutive failures mark it failed. Any
// success resets the counter.
//
// Fields are protected by mu because the orchestrator records outcomes from
// run goroutines while the health endpoint reads snapshots.
type Health struct {
	mu          sync.Mutex
	threshold   int
	consecutive int
	successes   int
	failures    int
	lastErr     string
	lastFail    time.Time
	lastSuccess time.Time
	now         func() time.Time
}

func NewHealth(threshold int) *Health {
	if threshold < 1 {
		threshold = 1
	}
	return &Health{threshold: threshold, now: time.Now}
}

func (h *Health) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutive = 0
	h.successes++
	h.lastSuccess = h.now()
}

func (h *Health) RecordFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutive++
	h.failures++
	if err != nil {
		h.lastErr = err.Error()
	}
	h.lastFail = h.now()
}

// statusLocked computes health status. Caller must hold h.mu.
func (h *Health) statusLocked() Status {
	switch {
	case h.consecutive >= h.threshold:
		return StatusFailed
	case h.consecutive > 0:
		return StatusDegraded
	}
	return StatusHealthy
}

func (h *Health) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.statusLocked()
}

type HealthSnapshot struct {
	Status              Status     `json:"status"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	Successes           int        `json:"successes"`
	Failures            int        `json:"failures"`
	LastError           string     `json:"last_error,omitempty"`
	LastFailure         *time.Time `json:"last_failure,omitempty"`
	LastSuccess         *time.Time `json:"last_success,omitempty"`
}

// Snapshot returns a consistent copy of all health fields under the lock.
func (h *Health) Snapshot() HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	snap := HealthSnapshot{
		Status:              h.statusLocked(),
		ConsecutiveFailures: h.consecutive,
		Successes:           h.successes,
		Failures:            h.failures,
		LastError:           h.lastErr,
	}
	if !h.lastFail.IsZero() {
		t := h.lastFail
		snap.LastFailure = &t
	}
	if !h.lastSuccess.IsZero() {
		t := h.lastSuccess
		snap.LastSuccess = &t
	}
	return snap
}
