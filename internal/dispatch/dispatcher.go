// Package dispatch serializes all external model traffic through one shared
// worker pool with a global rate limit, per-call-type circuit breaking and
// bounded retry.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/askadmit/askadmit/internal/config"
	"github.com/askadmit/askadmit/internal/port/llm"
	"github.com/askadmit/askadmit/internal/resilience"
)

// ErrTaskTimeout is returned when a task's wall-clock budget elapses,
// whether it was still queued or already dispatched.
var ErrTaskTimeout = errors.New("model task timed out")

// ErrExhausted is returned when all retry attempts for a retryable failure
// class have been spent.
var ErrExhausted = errors.New("model retries exhausted")

// ErrShuttingDown is returned for submissions after Close.
var ErrShuttingDown = errors.New("dispatcher is shutting down")

// Priority orders tasks in the queue. High-priority tasks (classification,
// main-query generation) dequeue before normal ones.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

func (p Priority) String() string {
	if p == PriorityHigh {
		return "high"
	}
	return "normal"
}

// Request is one model call to be serialized through the shared queue.
type Request struct {
	Purpose  string
	Prompt   string
	Priority Priority
}

type outcome struct {
	text string
	err  error
}

// task is owned exclusively by the dispatcher queue and is destroyed on
// completion, failure exhaustion or timeout.
type task struct {
	id          string
	req         Request
	ctx         context.Context
	result      chan outcome
	submittedAt time.Time
	retries     int
}

func (t *task) deliver(out outcome) {
	select {
	case t.result <- out:
	default:
	}
}

// Dispatcher owns the single process-wide model call queue: a fixed worker
// pool drains a high/normal channel pair under a shared minimum
// inter-dispatch delay. One instance is injected into every component that
// talks to the model; there are no ambient globals.
type Dispatcher struct {
	cfg      config.Dispatch
	client   llm.Client
	breakers *resilience.Registry
	log      *slog.Logger

	high   chan *task
	normal chan *task
	done   chan struct{}
	wg     sync.WaitGroup

	mu       sync.Mutex
	nextSlot time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Dispatcher and starts its worker pool.
func New(cfg config.Dispatch, client llm.Client, breakers *resilience.Registry, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		cfg:      cfg,
		client:   client,
		breakers: breakers,
		log:      log,
		high:     make(chan *task, cfg.QueueSize),
		normal:   make(chan *task, cfg.QueueSize),
		done:     make(chan struct{}),
		now:      time.Now,
		sleep:    sleepCtx,
	}
	for i := 0; i < cfg.MaxConcurrent; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Close stops accepting work and waits for in-flight tasks to finish.
// Queued tasks that were never picked up fail with their own timeouts.
func (d *Dispatcher) Close() {
	close(d.done)
	d.wg.Wait()
}

// Submit enqueues one model call and blocks until it completes, fails, or
// the per-task wall-clock budget elapses. The budget covers queue wait:
// a task that never reaches a worker still fails with ErrTaskTimeout.
func (d *Dispatcher) Submit(ctx context.Context, req Request) (string, error) {
	select {
	case <-d.done:
		return "", ErrShuttingDown
	default:
	}

	taskCtx, cancel := context.WithTimeout(ctx, d.cfg.TaskTimeout)
	defer cancel()

	t := &task{
		id:          uuid.NewString(),
		req:         req,
		ctx:         taskCtx,
		result:      make(chan outcome, 1),
		submittedAt: d.now(),
	}

	queue := d.normal
	if req.Priority == PriorityHigh {
		queue = d.high
	}

	select {
	case queue <- t:
	case <-d.done:
		return "", ErrShuttingDown
	case <-taskCtx.Done():
		return "", d.timeoutError(ctx, t)
	}

	select {
	case out := <-t.result:
		return out.text, out.err
	case <-taskCtx.Done():
		return "", d.timeoutError(ctx, t)
	}
}

// timeoutError distinguishes the task budget expiring from the caller's own
// context being cancelled.
func (d *Dispatcher) timeoutError(parent context.Context, t *task) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	d.log.Warn("model task timed out",
		"task_id", t.id,
		"purpose", t.req.Purpose,
		"queued_for", d.now().Sub(t.submittedAt).String(),
	)
	return fmt.Errorf("%w (%s)", ErrTaskTimeout, t.req.Purpose)
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		t := d.next()
		if t == nil {
			return
		}
		// Expired while queued: the submitter is already gone.
		if t.ctx.Err() != nil {
			t.deliver(outcome{err: ErrTaskTimeout})
			continue
		}
		text, err := d.execute(t)
		t.deliver(outcome{text: text, err: err})
	}
}

// next returns the next task, preferring the high-priority queue, or nil on
// shutdown.
func (d *Dispatcher) next() *task {
	select {
	case t := <-d.high:
		return t
	default:
	}
	select {
	case t := <-d.high:
		return t
	case t := <-d.normal:
		return t
	case <-d.done:
		return nil
	}
}

// execute performs the breaker-guarded call with bounded retry for
// retryable failure classes.
func (d *Dispatcher) execute(t *task) (string, error) {
	breaker := d.breakers.Get(t.req.Purpose)
	prompt := withTimeContext(t.req.Prompt, d.now())

	var text string
	for {
		if err := d.throttle(t.ctx); err != nil {
			return "", fmt.Errorf("%w (%s)", ErrTaskTimeout, t.req.Purpose)
		}

		err := breaker.Execute(func() error {
			var callErr error
			text, callErr = d.client.Complete(t.ctx, prompt)
			return callErr
		})
		if err == nil {
			return text, nil
		}
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return "", fmt.Errorf("%s: %w", t.req.Purpose, err)
		}
		if !llm.IsRetryable(err) {
			return "", fmt.Errorf("%s: %w", t.req.Purpose, err)
		}
		if t.retries >= d.cfg.MaxRetries {
			return "", fmt.Errorf("%s: %w: last error: %v", t.req.Purpose, ErrExhausted, err)
		}

		t.retries++
		delay := Backoff(d.cfg.RetryBase, d.cfg.RetryCap, t.retries)
		d.log.Debug("retrying model call",
			"task_id", t.id,
			"purpose", t.req.Purpose,
			"attempt", t.retries,
			"backoff", delay.String(),
		)
		if serr := d.sleep(t.ctx, delay); serr != nil {
			return "", fmt.Errorf("%w (%s)", ErrTaskTimeout, t.req.Purpose)
		}
	}
}

// throttle reserves the next dispatch slot under the global minimum
// inter-dispatch delay. The delay is shared across the whole queue, not per
// caller.
func (d *Dispatcher) throttle(ctx context.Context) error {
	d.mu.Lock()
	now := d.now()
	next := d.nextSlot
	if next.Before(now) {
		next = now
	}
	d.nextSlot = next.Add(d.cfg.RequestDelay)
	d.mu.Unlock()

	if wait := next.Sub(now); wait > 0 {
		return d.sleep(ctx, wait)
	}
	return nil
}

// withTimeContext prefixes the prompt with the current time so the model can
// anchor relative date reasoning ("this year's deadline").
func withTimeContext(prompt string, now time.Time) string {
	return "Current time: " + now.Format("Monday, 02 January 2006, 15:04 MST") + "\n\n" + prompt
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
