package analysis

import (
	"github.com/ratemysite/backend/internal/scoring"
)

// Kind tags an Event on the wire.
type Kind string

const (
	KindInit     Kind = "init"
	KindStartURL Kind = "start_url"
	KindProgress Kind = "progress"
	KindDebug    Kind = "debug"
	KindResult   Kind = "result"
	KindError    Kind = "error"
	KindDone     Kind = "done"
)

// Event is one frame of an analysis stream. Payload is one of the *Payload
// types below, matching Kind.
type Event struct {
	Kind    Kind
	Payload any
}

// BestEffort reports whether the event may be dropped under backpressure.
func (e Event) BestEffort() bool {
	return e.Kind == KindProgress || e.Kind == KindDebug
}

type InitPayload struct {
	Total     int           `json:"total"`
	SessionID string        `json:"session_id"`
	Rows      []scoring.Row `json:"rows"`
}

type StartURLPayload struct {
	Index int    `json:"index"`
	URL   string `json:"url"`
}

type ProgressPayload struct {
	Index int    `json:"index"`
	Phase string `json:"phase"`
	P     int    `json:"p"`
	Of    int    `json:"of"`
}

type DebugPayload struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}

// ResultPayload carries either Data or Error, never both.
type ResultPayload struct {
	Index int               `json:"index"`
	URL   string            `json:"url"`
	Data  map[string]string `json:"data,omitempty"`
	Error string            `json:"error,omitempty"`
}

// ErrorPayload reports an internal failure that aborted the run. It is
// always followed by a done event with OK false.
type ErrorPayload struct {
	Message string `json:"message"`
}

type DonePayload struct {
	OK     bool   `json:"ok"`
	Status string `json:"status"`
}
