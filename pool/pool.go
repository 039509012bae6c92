package pool

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrPoolClosed is returned by Acquire once Close has run.
var ErrPoolClosed = errors.New("pool: closed")

// DefaultAcquireTimeout bounds how long Acquire waits for a free handle
// before falling back to the shared main handle.
const DefaultAcquireTimeout = 60 * time.Second

// HandleFactory creates one new handle for the pool's image. Implemented by
// Factory; a plain func in tests.
type HandleFactory interface {
	NewHandle(ctx context.Context) (*Handle, error)
}

// FactoryFunc adapts a function to the HandleFactory interface.
type FactoryFunc func(ctx context.Context) (*Handle, error)

func (f FactoryFunc) NewHandle(ctx context.Context) (*Handle, error) { return f(ctx) }

// Config tunes one pool. The zero value is usable; unset fields take the
// defaults documented per field.
type Config struct {
	// Capacity is the queue size and the upper bound on handles. Default 4.
	Capacity int

	// Parallelism caps handle creation together with Capacity: the pool
	// never creates more than min(Capacity, max(1, Parallelism)) handles.
	// Default runtime.GOMAXPROCS(0).
	Parallelism int

	// AcquireTimeout bounds the wait in Acquire before the main-handle
	// fallback kicks in. Default DefaultAcquireTimeout.
	AcquireTimeout time.Duration

	Logger  *zap.Logger
	Metrics *Metrics
}

func (c Config) withDefaults() Config {
	if c.Capacity <= 0 {
		c.Capacity = 4
	}
	if c.Parallelism <= 0 {
		c.Parallelism = runtime.GOMAXPROCS(0)
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = DefaultAcquireTimeout
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Metrics == nil {
		c.Metrics = NewMetrics(nil)
	}
	return c
}

// Pool is a bounded pool of handles for one image.
//
// The buffered channel is the queue: hand-off is the channel's own
// synchronization, blocking-on-empty is built in (same construction as a
// conn pool over a chan). The only other shared state is the created-handle
// counter, updated atomically before any decision to create, with a
// compensating decrement when creation fails.
type Pool struct {
	factory HandleFactory
	logger  *zap.Logger
	metrics *Metrics

	handles  chan *Handle // grown handles, FIFO
	mainSlot chan *Handle // 1-slot home of the main handle when idle
	main     *Handle

	capacity       int
	maxHandles     int32
	acquireTimeout time.Duration

	created atomic.Int32 // handles ever created, main included
	growing atomic.Bool  // at most one growth task in flight
	closed  atomic.Bool

	growCtx    context.Context
	growCancel context.CancelFunc

	done      chan struct{}
	closeOnce sync.Once

	mu  sync.Mutex
	all []*Handle // every handle ever created, for Close
}

// New builds a pool and eagerly creates the main handle. If even the main
// handle cannot be created the pool is not viable and New fails — that is the
// fatal all-connections-exhausted case for this image.
func New(ctx context.Context, factory HandleFactory, cfg Config) (*Pool, error) {
	cfg = cfg.withDefaults()

	maxHandles := cfg.Parallelism
	if maxHandles < 1 {
		maxHandles = 1
	}
	if cfg.Capacity < maxHandles {
		maxHandles = cfg.Capacity
	}

	main, err := factory.NewHandle(ctx)
	if err != nil {
		return nil, err
	}
	main.main = true

	growCtx, growCancel := context.WithCancel(context.Background())
	p := &Pool{
		factory:        factory,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		handles:        make(chan *Handle, cfg.Capacity),
		mainSlot:       make(chan *Handle, 1),
		main:           main,
		capacity:       cfg.Capacity,
		maxHandles:     int32(maxHandles),
		acquireTimeout: cfg.AcquireTimeout,
		growCtx:        growCtx,
		growCancel:     growCancel,
		done:           make(chan struct{}),
		all:            []*Handle{main},
	}
	p.created.Store(1)
	p.metrics.handlesCreated.Inc()
	p.mainSlot <- main
	return p, nil
}

// Acquire hands out a handle for exclusive use. If none is idle it schedules
// growth (one task at a time, up to the ceiling) and waits up to the acquire
// timeout for any handle — the new one or one a concurrent caller releases.
//
// On timeout it returns the main handle without removing it from its slot:
// several requesters may then share it, serialized by the handle's own lock.
// That is a liveness escape valve, not a throughput path.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}
	p.metrics.acquires.Inc()

	// Fast path: something is idle right now.
	select {
	case h := <-p.handles:
		return h, nil
	case h := <-p.mainSlot:
		return h, nil
	default:
	}

	p.tryGrow()

	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()
	select {
	case h := <-p.handles:
		return h, nil
	case h := <-p.mainSlot:
		return h, nil
	case <-p.done:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		p.metrics.fallbacks.Inc()
		p.logger.Warn("acquire timed out, sharing main handle",
			zap.String("handle", p.main.ID()),
			zap.Duration("timeout", p.acquireTimeout))
		return p.main, nil
	}
}

// Release returns a handle to the pool. It never blocks and never fails, even
// after Close: an already-closed pool still accepts returns so in-flight
// operations finish cleanly, but the handle is dropped rather than queued
// because the queue is never read again (Close already closed it).
func (p *Pool) Release(h *Handle) {
	if h == nil || p.closed.Load() {
		return
	}
	if h == p.main {
		// Non-blocking: when main was shared out as a fallback, several
		// requesters release it and only the first send refills the slot.
		select {
		case p.mainSlot <- h:
		default:
		}
		return
	}
	select {
	case p.handles <- h:
	default:
		// Queue full can only mean duplicate releases; drop the extra.
	}
}

// WithHandle runs fn with an acquired handle and guarantees the release. This
// is the intended access pattern — bare Acquire/Release is for callers that
// need to hold a handle across scopes.
func (p *Pool) WithHandle(ctx context.Context, fn func(h *Handle) error) error {
	h, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(h)
	return fn(h)
}

// Created returns the number of handles ever created, main included.
func (p *Pool) Created() int {
	return int(p.created.Load())
}

// Main exposes the fallback handle; tests and diagnostics only.
func (p *Pool) Main() *Handle {
	return p.main
}

// tryGrow schedules asynchronous creation of one more handle, if no growth is
// already in flight, the ceiling is not reached, and the pool is open.
//
// The slot below the ceiling is reserved with the atomic increment before the
// factory runs; a failed creation gives the slot back.
func (p *Pool) tryGrow() {
	if p.closed.Load() {
		return
	}
	if !p.growing.CompareAndSwap(false, true) {
		return // one outstanding growth task at a time
	}
	if p.created.Add(1) > p.maxHandles {
		p.created.Add(-1)
		p.growing.Store(false)
		return
	}

	go func() {
		defer p.growing.Store(false)

		h, err := p.factory.NewHandle(p.growCtx)
		if err != nil {
			p.created.Add(-1)
			p.metrics.growthFailures.Inc()
			if !errors.Is(err, context.Canceled) {
				p.logger.Warn("pool growth failed", zap.Error(err))
			}
			return
		}

		p.mu.Lock()
		if p.closed.Load() {
			p.mu.Unlock()
			// Raced with Close: this handle is not in the close set,
			// so it is closed here instead of leaking a session.
			if err := h.close(); err != nil {
				p.logger.Warn("closing post-shutdown handle failed", zap.Error(err))
			}
			return
		}
		p.all = append(p.all, h)
		p.mu.Unlock()

		p.metrics.handlesCreated.Inc()
		p.logger.Debug("pool grew", zap.String("handle", h.ID()), zap.Int32("created", p.created.Load()))
		select {
		case p.handles <- h:
		default:
			// Cannot happen while the invariant created <= capacity holds.
		}
	}()
}

// Close idempotently shuts the pool down: stops growth, then best-effort
// closes every handle ever created, the main one included. Per-handle close
// failures are logged and swallowed — one stuck session must not keep the
// rest open.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.done)
		p.growCancel()

		p.mu.Lock()
		all := make([]*Handle, len(p.all))
		copy(all, p.all)
		p.mu.Unlock()

		var g errgroup.Group
		for _, h := range all {
			h := h
			g.Go(func() error {
				if err := h.close(); err != nil {
					p.logger.Warn("closing handle failed",
						zap.String("handle", h.ID()), zap.Error(err))
				}
				return nil
			})
		}
		_ = g.Wait()

		// Drop queued references; nobody reads these channels again.
		for {
			select {
			case <-p.handles:
			case <-p.mainSlot:
			default:
				return
			}
		}
	})
}
