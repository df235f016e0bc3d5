// Package analysis drives a batch of sites through a scoring.Scorer one at
// a time, recording results in a session and streaming lifecycle events to
// a single consumer.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"goa.design/clue/log"
	"golang.org/x/time/rate"

	"github.com/ratemysite/backend/internal/scoring"
	"github.com/ratemysite/backend/internal/session"
)

var (
	ErrNoURLs      = errors.New("need at least one url")
	ErrTooManyURLs = errors.New("too many urls")
)

// Publisher receives every committed result. Failures are logged and
// otherwise ignored.
type Publisher interface {
	Publish(ctx context.Context, sessionID string, index int, r session.Result) error
}

// HealthRecorder tracks the outcome of each scorer call.
type HealthRecorder interface {
	RecordSuccess()
	RecordFailure(err error)
}

type Options struct {
	MaxURLs      int
	ScoreTimeout time.Duration
	EventBuffer  int
	DebugRate    float64
	DebugBurst   int
}

// URLLimit is the most sites a single run may analyze. Options.MaxURLs can
// lower it but never raise it.
const URLLimit = 4

var DefaultOptions = Options{
	MaxURLs:      URLLimit,
	ScoreTimeout: 45 * time.Second,
	EventBuffer:  64,
	DebugRate:    20,
	DebugBurst:   40,
}

type Orchestrator struct {
	store     *session.Store
	scorer    scoring.Scorer
	opts      Options
	publisher Publisher
	health    HealthRecorder
	now       func() time.Time
}

func New(store *session.Store, scorer scoring.Scorer, opts Options) *Orchestrator {
	if opts.MaxURLs <= 0 || opts.MaxURLs > URLLimit {
		opts.MaxURLs = DefaultOptions.MaxURLs
	}
	if opts.ScoreTimeout <= 0 {
		opts.ScoreTimeout = DefaultOptions.ScoreTimeout
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultOptions.EventBuffer
	}
	return &Orchestrator{
		store:  store,
		scorer: scorer,
		opts:   opts,
		now:    time.Now,
	}
}

// SetPublisher configures where committed results are mirrored.
// Must be called before Start.
func (o *Orchestrator) SetPublisher(p Publisher) {
	o.publisher = p
}

// SetHealth configures the scorer health tracker. Must be called before Start.
func (o *Orchestrator) SetHealth(h HealthRecorder) {
	o.health = h
}

func (o *Orchestrator) MaxURLs() int { return o.opts.MaxURLs }

// Validate trims the submitted urls, drops blank entries and checks the
// count. Order is preserved.
func (o *Orchestrator) Validate(raw []string) ([]string, error) {
	urls := make([]string, 0, len(raw))
	for _, u := range raw {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return nil, ErrNoURLs
	}
	if len(urls) > o.opts.MaxURLs {
		return nil, fmt.Errorf("%w: got %d, max %d", ErrTooManyURLs, len(urls), o.opts.MaxURLs)
	}
	return urls, nil
}

// Run is a started analysis. Events is closed after the terminal done event,
// or early if the consumer's context ends.
type Run struct {
	sess   *session.Session
	events chan Event
}

func (r *Run) SessionID() string { return r.sess.ID() }

func (r *Run) Events() <-chan Event { return r.events }

// Start validates urls, creates a session and begins analyzing in a new
// goroutine. Invalid input is rejected before any session exists. The run
// stops when ctx is done; the caller must drain Events until it is closed.
func (o *Orchestrator) Start(ctx context.Context, urls []string) (*Run, error) {
	urls, err := o.Validate(urls)
	if err != nil {
		return nil, err
	}
	sess := o.store.Create(urls)
	run := &Run{
		sess:   sess,
		events: make(chan Event, o.opts.EventBuffer),
	}
	ctx = log.With(ctx, log.KV{K: "session", V: sess.ID()})
	go o.run(ctx, sess, urls, run.events)
	return run, nil
}

func (o *Orchestrator) run(ctx context.Context, sess *session.Session, urls []string, out chan Event) {
	defer close(out)

	limit := rate.Inf
	if o.opts.DebugRate > 0 {
		limit = rate.Limit(o.opts.DebugRate)
	}
	e := &emitter{ctx: ctx, out: out, debug: rate.NewLimiter(limit, max(o.opts.DebugBurst, 1))}

	defer func() {
		if rec := recover(); rec != nil {
			o.abort(ctx, sess, e, fmt.Errorf("internal error: %v", rec))
		}
	}()

	log.Info(ctx, log.KV{K: "msg", V: "analysis started"}, log.KV{K: "total", V: len(urls)})
	if !e.send(Event{KindInit, InitPayload{Total: len(urls), SessionID: sess.ID(), Rows: scoring.Rows}}) {
		o.disconnected(ctx, sess)
		return
	}

	cancelled := false
	for i, target := range urls {
		index := i + 1
		if sess.Cancelled() {
			cancelled = true
			log.Info(ctx, log.KV{K: "msg", V: "analysis cancelled"}, log.KV{K: "processed", V: i})
			break
		}
		if !e.send(Event{KindStartURL, StartURLPayload{Index: index, URL: target}}) {
			o.disconnected(ctx, sess)
			return
		}

		log.Infof(ctx, "[%d/%d] start %s", index, len(urls), target)
		fields, err := o.score(ctx, index, target, e)
		if ctx.Err() != nil {
			// The consumer went away mid-analysis; nothing left to report to.
			o.disconnected(ctx, sess)
			return
		}

		res, payload := o.outcome(ctx, index, target, fields, err)
		if err := sess.Append(res); err != nil {
			o.abort(ctx, sess, e, fmt.Errorf("commit result %d: %w", index, err))
			return
		}
		o.publish(ctx, sess.ID(), index, res)
		if !e.send(Event{KindResult, payload}) {
			o.disconnected(ctx, sess)
			return
		}
		log.Infof(ctx, "[%d/%d] done %s", index, len(urls), target)
	}

	status := session.Done
	if cancelled {
		status = session.Cancelled
	}
	sess.Finish(status, o.now())
	if dropped := e.droppedCount(); dropped > 0 {
		log.Debugf(ctx, "dropped %d best-effort events", dropped)
	}
	e.send(Event{KindDone, DonePayload{OK: true, Status: status.String()}})
}

// score calls the scorer under the per-URL deadline. Panics are converted
// to errors so one site can never take down the run.
func (o *Orchestrator) score(ctx context.Context, index int, target string, e *emitter) (fields scoring.Fields, err error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.ScoreTimeout)
	defer cancel()
	rep := e.reporter(index)
	defer rep.close()
	defer func() {
		if rec := recover(); rec != nil {
			fields, err = nil, fmt.Errorf("scorer panic: %v", rec)
		}
	}()

	fields, err = o.scorer.Analyze(ctx, target, rep)
	if err == nil && len(fields) == 0 {
		err = scoring.ErrNoResult
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		err = fmt.Errorf("analysis timed out after %s", o.opts.ScoreTimeout)
	}
	return fields, err
}

// failedMessage stands in for errors that carry no text, so a failed result
// always has a non-empty Error.
const failedMessage = "analysis failed"

func (o *Orchestrator) outcome(ctx context.Context, index int, target string, fields scoring.Fields, err error) (session.Result, ResultPayload) {
	if err != nil {
		msg := err.Error()
		if strings.TrimSpace(msg) == "" {
			msg = failedMessage
		}
		log.Error(ctx, err, log.KV{K: "msg", V: "analysis failed"}, log.KV{K: "index", V: index}, log.KV{K: "url", V: target})
		if o.health != nil {
			o.health.RecordFailure(err)
		}
		return session.Result{URL: target, Error: msg},
			ResultPayload{Index: index, URL: target, Error: msg}
	}
	if o.health != nil {
		o.health.RecordSuccess()
	}
	data := map[string]string(fields)
	return session.Result{URL: target, Data: data},
		ResultPayload{Index: index, URL: target, Data: data}
}

func (o *Orchestrator) publish(ctx context.Context, sessionID string, index int, res session.Result) {
	if o.publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := o.publisher.Publish(pctx, sessionID, index, res); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "publish result failed"}, log.KV{K: "index", V: index})
	}
}

// abort ends the run after an unexpected internal error. Committed results
// stay in the session.
func (o *Orchestrator) abort(ctx context.Context, sess *session.Session, e *emitter, err error) {
	log.Error(ctx, err, log.KV{K: "msg", V: "analysis aborted"})
	sess.Fail(err, o.now())
	if e.send(Event{KindError, ErrorPayload{Message: err.Error()}}) {
		e.send(Event{KindDone, DonePayload{OK: false, Status: session.Done.String()}})
	}
}

func (o *Orchestrator) disconnected(ctx context.Context, sess *session.Session) {
	log.Info(ctx, log.KV{K: "msg", V: "stream consumer gone, stopping analysis"})
	sess.Finish(session.Cancelled, o.now())
}
