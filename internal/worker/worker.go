// Package worker implements serialized access to physical resources. Every
// device (table controller, environment box, instrument channel) is owned
// by exactly one Worker goroutine; all other goroutines talk to it through
// one-shot Requests drained in strict FIFO order. No two goroutines ever
// write to the same device concurrently.
package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNotEnabled is returned by Submit while the worker is disabled.
var ErrNotEnabled = errors.New("worker not enabled")

const (
	defaultPollInterval    = 25 * time.Millisecond
	defaultMonitorInterval = time.Second
	defaultReopenDelay     = time.Second
)

// DriverFactory constructs a protocol driver over an open resource.
type DriverFactory[D any] func(rwc io.ReadWriteCloser) (D, error)

// Opener opens the worker's underlying transport.
type Opener interface {
	Open(ctx context.Context) (io.ReadWriteCloser, error)
}

// Hooks are the worker's override points. All fields are optional.
type Hooks[D any] struct {
	// OnOpen runs once after the driver is constructed, before the first
	// request is serviced.
	OnOpen func(driver D) error
	// OnMonitor runs between requests whenever the monitoring interval has
	// elapsed. It must be lightweight; it blocks the queue.
	OnMonitor func(driver D)
	// OnClose runs before the resource is released.
	OnClose func(driver D)
}

// Options tune a worker's loop timing.
type Options struct {
	// PollInterval is the queue-pop poll timeout (default 25ms).
	PollInterval time.Duration
	// MonitorInterval is the background status poll period (default 1s).
	MonitorInterval time.Duration
	// ReopenDelay is the backoff after a failed open (default 1s).
	ReopenDelay time.Duration
}

func (o *Options) fill() {
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.MonitorInterval <= 0 {
		o.MonitorInterval = defaultMonitorInterval
	}
	if o.ReopenDelay <= 0 {
		o.ReopenDelay = defaultReopenDelay
	}
}

// Worker serializes all access to one physical resource behind a FIFO
// queue. The zero value is not usable; construct with New.
type Worker[D any] struct {
	name    string
	opener  Opener
	factory DriverFactory[D]
	hooks   Hooks[D]
	opts    Options
	logger  *slog.Logger

	mu    sync.Mutex
	queue []func(D)

	enabled atomic.Bool
	running atomic.Bool
	done    chan struct{}
}

// New constructs a worker for one resource. The worker starts disabled and
// idle; call Start and Enable.
func New[D any](name string, opener Opener, factory DriverFactory[D], hooks Hooks[D], opts Options, logger *slog.Logger) *Worker[D] {
	opts.fill()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Worker[D]{
		name:    name,
		opener:  opener,
		factory: factory,
		hooks:   hooks,
		opts:    opts,
		logger:  logger.With("worker", name),
		done:    make(chan struct{}),
	}
}

// Name returns the worker's resource name.
func (w *Worker[D]) Name() string { return w.name }

// Enabled reports whether the worker accepts and services requests.
func (w *Worker[D]) Enabled() bool { return w.enabled.Load() }

// Enable lets the worker open its resource and service requests.
func (w *Worker[D]) Enable() { w.enabled.Store(true) }

// Disable aborts the open-resource scope. Queued but unserviced requests
// remain queued until the worker is re-enabled or stopped; their callers
// observe a request timeout in the meantime.
func (w *Worker[D]) Disable() { w.enabled.Store(false) }

// QueueLen returns the number of unserviced requests.
func (w *Worker[D]) QueueLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// Start launches the worker goroutine. It may be called once.
func (w *Worker[D]) Start() {
	if !w.running.CompareAndSwap(false, true) {
		return
	}
	go w.run()
}

// Stop terminates the worker loop and waits for it to exit. Unserviced
// requests are abandoned; their callers observe a request timeout.
func (w *Worker[D]) Stop() {
	if !w.running.CompareAndSwap(true, false) {
		return
	}
	<-w.done
}

// Submit appends a request to the FIFO queue and returns its handle
// without blocking. It fails with ErrNotEnabled while the worker is
// disabled.
func Submit[D, T any](w *Worker[D], target func(driver D) (T, error)) (*Request[T], error) {
	if !w.Enabled() {
		return nil, ErrNotEnabled
	}
	r := NewRequest[T]()
	w.push(func(driver D) {
		r.complete(target(driver))
	})
	return r, nil
}

// Exec submits a request and blocks on its outcome with the default
// timeout.
func Exec[D, T any](ctx context.Context, w *Worker[D], target func(driver D) (T, error)) (T, error) {
	r, err := Submit(w, target)
	if err != nil {
		var zero T
		return zero, err
	}
	return r.Get(ctx).Unpack()
}

func (w *Worker[D]) push(job func(D)) {
	w.mu.Lock()
	w.queue = append(w.queue, job)
	w.mu.Unlock()
}

func (w *Worker[D]) pop() func(D) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return nil
	}
	job := w.queue[0]
	w.queue = w.queue[1:]
	return job
}

// run is the worker goroutine. It never terminates on transient I/O
// failure, only on Stop.
func (w *Worker[D]) run() {
	defer close(w.done)
	for w.running.Load() {
		if !w.Enabled() {
			time.Sleep(w.opts.PollInterval)
			continue
		}
		if err := w.serve(); err != nil {
			w.logger.Error("serving resource failed", "err", err)
			time.Sleep(w.opts.ReopenDelay)
		}
	}
}

// serve opens the resource, constructs the driver and drains the queue
// until the worker is disabled or stopped.
func (w *Worker[D]) serve() error {
	ctx := context.Background()
	rwc, err := w.opener.Open(ctx)
	if err != nil {
		return err
	}
	defer rwc.Close()

	driver, err := w.factory(rwc)
	if err != nil {
		return err
	}
	if w.hooks.OnOpen != nil {
		if err := w.hooks.OnOpen(driver); err != nil {
			return err
		}
	}
	if w.hooks.OnClose != nil {
		defer w.hooks.OnClose(driver)
	}

	w.logger.Info("serving resource")
	lastMonitor := time.Now()
	for w.running.Load() && w.Enabled() {
		if job := w.pop(); job != nil {
			job(driver)
		} else {
			time.Sleep(w.opts.PollInterval)
		}
		if w.hooks.OnMonitor != nil && time.Since(lastMonitor) >= w.opts.MonitorInterval {
			w.hooks.OnMonitor(driver)
			lastMonitor = time.Now()
		}
	}
	w.logger.Info("stopped serving resource")
	return nil
}
