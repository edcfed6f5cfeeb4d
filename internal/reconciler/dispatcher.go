package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"payment-session-reconciler/internal/core/domain"
	"payment-session-reconciler/internal/core/ports"
	"payment-session-reconciler/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config bounds the dispatcher's worker pool.
type Config struct {
	Capacity     int
	PollInterval time.Duration
	WriteTimeout time.Duration
	// LeaseTTL is how long a lease survives without renewal. Leases are
	// refreshed every LeaseTTL/3 while the worker runs, so one left behind by
	// a crashed instance lapses within LeaseTTL. Defaults to 3 poll intervals.
	LeaseTTL time.Duration
	// Owner identifies this instance in leases. A stable value lets a
	// restarted instance reclaim its own leases at once; empty picks a random
	// one.
	Owner string
	Now   func() time.Time
}

const minLeaseTTL = time.Second

// Dispatcher runs at most one worker per session, bounded by Capacity.
// Submissions beyond capacity wait in a FIFO queue.
type Dispatcher struct {
	deps  WorkerDeps
	lease ports.WorkerLease // nil disables cross-instance leasing
	owner string
	cfg   Config
	log   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	active  map[uuid.UUID]*handle
	queue   []*handle
	running int
	closed  bool
}

var _ ports.SessionDispatcher = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher. lease may be nil.
func NewDispatcher(deps WorkerDeps, lease ports.WorkerLease, cfg Config, log zerolog.Logger) *Dispatcher {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 3 * cfg.PollInterval
	}
	if cfg.LeaseTTL < minLeaseTTL {
		cfg.LeaseTTL = minLeaseTTL
	}
	if cfg.Owner == "" {
		cfg.Owner = uuid.NewString()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		deps:   deps,
		lease:  lease,
		owner:  cfg.Owner,
		cfg:    cfg,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		active: make(map[uuid.UUID]*handle),
	}
}

// Submit starts (or queues) a worker for session. It fails with
// domain.ErrAlreadyActive if the session already has a worker here or a
// lease held by another instance, and with domain.ErrDispatcherClosed after
// Shutdown.
func (d *Dispatcher) Submit(session domain.PaymentSession) (ports.WorkerHandle, error) {
	if session.Status != domain.SessionStatusPending {
		return nil, fmt.Errorf("submit session %s in status %s: %w", session.ID, session.Status, domain.ErrInvalidTransition)
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, domain.ErrDispatcherClosed
	}
	if _, ok := d.active[session.ID]; ok {
		d.mu.Unlock()
		return nil, fmt.Errorf("session %s: %w", session.ID, domain.ErrAlreadyActive)
	}
	h := d.newHandle(session)
	d.active[session.ID] = h
	d.mu.Unlock()

	if err := d.acquireLease(h); err != nil {
		d.mu.Lock()
		delete(d.active, session.ID)
		d.mu.Unlock()
		return nil, err
	}

	d.mu.Lock()
	if d.closed {
		delete(d.active, session.ID)
		d.mu.Unlock()
		d.releaseLease(h)
		return nil, domain.ErrDispatcherClosed
	}
	if h.leased {
		h.leaseDone = make(chan struct{})
		go d.keepLease(h)
	}
	if d.running < d.cfg.Capacity {
		d.start(h)
	} else {
		d.queue = append(d.queue, h)
		metrics.QueuedSessions.Inc()
		d.log.Debug().Str("session_id", session.ID.String()).Int("queued", len(d.queue)).Msg("worker pool saturated, session queued")
	}
	d.mu.Unlock()

	return h, nil
}

// Cancel stops the worker for sessionID without writing a status change.
// It reports whether a worker was active or queued.
func (d *Dispatcher) Cancel(sessionID uuid.UUID) bool {
	d.mu.Lock()
	h, ok := d.active[sessionID]
	d.mu.Unlock()
	if !ok {
		return false
	}
	d.cancelHandle(h)
	return true
}

// RecoverAll resubmits every pending session found in the store. Sessions
// already past their deadline are expired in place without a ledger query.
func (d *Dispatcher) RecoverAll(ctx context.Context) ([]ports.WorkerHandle, error) {
	now := d.cfg.Now()
	sessions, err := d.deps.Repo.ListPendingBefore(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list pending sessions: %w", err)
	}

	var (
		handles []ports.WorkerHandle
		expired int
	)
	for _, s := range sessions {
		if s.Status != domain.SessionStatusPending {
			continue
		}
		if s.IsExpiredAt(now) {
			d.newWorker(s).expire()
			expired++
			continue
		}

		h, err := d.Submit(s)
		switch {
		case errors.Is(err, domain.ErrAlreadyActive):
			d.log.Debug().Str("session_id", s.ID.String()).Msg("session already active, skipping recovery")
			continue
		case errors.Is(err, domain.ErrDispatcherClosed):
			return handles, err
		case err != nil:
			d.log.Warn().Err(err).Str("session_id", s.ID.String()).Msg("could not recover session")
			continue
		}
		handles = append(handles, h)
	}

	d.log.Info().
		Int("pending", len(sessions)).
		Int("resumed", len(handles)).
		Int("expired", expired).
		Msg("recovery pass complete")
	return handles, nil
}

// RunRecovery repeats RecoverAll every interval until ctx is done or the
// dispatcher closes. Sessions that already have a worker are skipped, so the
// sweep only picks up sessions whose submit failed or whose worker was
// cancelled without a terminal write.
func (d *Dispatcher) RunRecovery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.RecoverAll(ctx); err != nil {
				if errors.Is(err, domain.ErrDispatcherClosed) {
					return
				}
				d.log.Warn().Err(err).Msg("recovery sweep failed")
			}
		}
	}
}

// Shutdown rejects new submissions, cancels every worker and waits up to
// timeout for them to exit. Workers still running after timeout are
// abandoned.
func (d *Dispatcher) Shutdown(timeout time.Duration) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	queued := d.queue
	d.queue = nil
	for _, h := range queued {
		delete(d.active, h.session.ID)
	}
	d.mu.Unlock()

	for _, h := range queued {
		metrics.QueuedSessions.Dec()
		d.releaseLease(h)
		h.finish(domain.OutcomeCancelled)
	}

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.log.Info().Msg("all reconciliation workers stopped")
		return nil
	case <-time.After(timeout):
		d.mu.Lock()
		n := d.running
		d.mu.Unlock()
		return fmt.Errorf("shutdown timed out with %d workers still running", n)
	}
}

// Active returns the number of running workers.
func (d *Dispatcher) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Queued returns the number of sessions waiting for a worker slot.
func (d *Dispatcher) Queued() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

func (d *Dispatcher) newWorker(session domain.PaymentSession) *Worker {
	return NewWorker(session, d.deps, WorkerConfig{
		PollInterval: d.cfg.PollInterval,
		WriteTimeout: d.cfg.WriteTimeout,
		Now:          d.cfg.Now,
	}, d.log)
}

func (d *Dispatcher) newHandle(session domain.PaymentSession) *handle {
	ctx, cancel := context.WithCancel(d.ctx)
	return &handle{
		d:       d,
		session: session,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// start launches h. d.mu must be held.
func (d *Dispatcher) start(h *handle) {
	d.running++
	d.wg.Add(1)
	metrics.ActiveWorkers.Inc()
	go d.run(h)
}

func (d *Dispatcher) run(h *handle) {
	defer d.wg.Done()

	outcome := d.newWorker(h.session).Run(h.ctx)
	metrics.WorkerOutcomes.WithLabelValues(string(outcome)).Inc()
	d.releaseLease(h)

	d.mu.Lock()
	delete(d.active, h.session.ID)
	d.running--
	metrics.ActiveWorkers.Dec()
	d.startNext()
	d.mu.Unlock()

	h.finish(outcome)
}

// startNext pulls the oldest queued session into a free slot. d.mu must be
// held.
func (d *Dispatcher) startNext() {
	if d.closed || len(d.queue) == 0 || d.running >= d.cfg.Capacity {
		return
	}
	next := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	metrics.QueuedSessions.Dec()
	d.start(next)
}

func (d *Dispatcher) cancelHandle(h *handle) {
	d.mu.Lock()
	idx := -1
	for i, q := range d.queue {
		if q == h {
			idx = i
			break
		}
	}
	if idx < 0 {
		d.mu.Unlock()
		// Running workers observe the cancellation and clean up themselves.
		h.cancel()
		return
	}
	d.queue = append(d.queue[:idx], d.queue[idx+1:]...)
	if d.active[h.session.ID] == h {
		delete(d.active, h.session.ID)
	}
	d.mu.Unlock()

	metrics.QueuedSessions.Dec()
	h.cancel()
	d.releaseLease(h)
	h.finish(domain.OutcomeCancelled)
}

func (d *Dispatcher) acquireLease(h *handle) error {
	if d.lease == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.WriteTimeout)
	defer cancel()

	ok, err := d.lease.Acquire(ctx, h.session.ID, d.owner, d.cfg.LeaseTTL)
	if err != nil {
		// The conditional write still guards correctness; run unleased.
		d.log.Warn().Err(err).Str("session_id", h.session.ID.String()).Msg("lease unavailable, starting worker without lease")
		return nil
	}
	if !ok {
		return fmt.Errorf("session %s leased by another instance: %w", h.session.ID, domain.ErrAlreadyActive)
	}
	h.leased = true
	return nil
}

// keepLease refreshes h's lease until h is cancelled. A lapsed lease is
// re-acquired; one taken over by another owner stops the worker.
func (d *Dispatcher) keepLease(h *handle) {
	defer close(h.leaseDone)

	ticker := time.NewTicker(d.cfg.LeaseTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(h.ctx, d.cfg.WriteTimeout)
		ok, err := d.lease.Refresh(ctx, h.session.ID, d.owner, d.cfg.LeaseTTL)
		if err == nil && !ok {
			ok, err = d.lease.Acquire(ctx, h.session.ID, d.owner, d.cfg.LeaseTTL)
		}
		cancel()

		switch {
		case h.ctx.Err() != nil:
			return
		case err != nil:
			d.log.Warn().Err(err).Str("session_id", h.session.ID.String()).Msg("lease refresh failed")
		case !ok:
			d.log.Warn().Str("session_id", h.session.ID.String()).Msg("lease taken over by another instance, stopping worker")
			// cancelHandle waits for this goroutine via releaseLease.
			go d.cancelHandle(h)
			return
		}
	}
}

func (d *Dispatcher) releaseLease(h *handle) {
	if d.lease == nil || !h.leased {
		return
	}
	if h.leaseDone != nil {
		// Stop renewal first so a late refresh cannot re-create the lease.
		h.cancel()
		<-h.leaseDone
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.WriteTimeout)
	defer cancel()

	if err := d.lease.Release(ctx, h.session.ID, d.owner); err != nil {
		d.log.Warn().Err(err).Str("session_id", h.session.ID.String()).Msg("failed to release lease")
	}
}

// handle implements ports.WorkerHandle.
type handle struct {
	d       *Dispatcher
	session domain.PaymentSession
	ctx     context.Context
	cancel  context.CancelFunc

	leased    bool
	leaseDone chan struct{} // closed when the renewal goroutine exits

	once    sync.Once
	done    chan struct{}
	outcome domain.Outcome
}

func (h *handle) SessionID() uuid.UUID {
	return h.session.ID
}

func (h *handle) Done() <-chan struct{} {
	return h.done
}

func (h *handle) Outcome() domain.Outcome {
	select {
	case <-h.done:
		return h.outcome
	default:
		return domain.OutcomeNone
	}
}

func (h *handle) Cancel() {
	h.d.cancelHandle(h)
}

func (h *handle) finish(outcome domain.Outcome) {
	h.once.Do(func() {
		h.outcome = outcome
		h.cancel()
		close(h.done)
	})
}
