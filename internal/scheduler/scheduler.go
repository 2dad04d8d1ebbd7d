// Package scheduler implements the drift-free single-writer priority queue
// a per-node queue of owned checks keyed on theoretical due
// time, dispatching probes through a bounded task pool.
package scheduler

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"uptimemesh"
	"uptimemesh/internal/clock"
	"uptimemesh/internal/telemetry"
)

// idleWait is how long the dispatch loop sleeps when the queue is empty.
const idleWait = time.Hour

// Dispatch is called once per due probe. scheduledAtMicros is the
// theoretical due time, never wall time — it is what gets persisted on the
// result row. Dispatch must not block the caller beyond starting the probe;
// long-running work belongs in a goroutine the implementation manages.
type Dispatch func(ctx context.Context, check uptimemesh.Check, scheduledAtMicros int64)

// Scheduler is a single-writer drift-free priority queue. All mutation of
// the queue happens on the Run goroutine: ownership changes arrive as
// CheckEvents on the channel Run consumes, and Run applies them through
// upsert and cancel.
type Scheduler struct {
	clock    clock.Clock
	sem      *semaphore.Weighted
	dispatch Dispatch
	logger   *slog.Logger

	mu    sync.Mutex
	queue checkQueue
	index map[string]*entry
}

// New constructs a Scheduler. maxConcurrent bounds in-flight dispatches
// (MAX_CONCURRENT_HEALTH_CHECKS).
func New(clk clock.Clock, maxConcurrent int64, dispatch Dispatch, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		clock:    clk,
		sem:      semaphore.NewWeighted(maxConcurrent),
		dispatch: dispatch,
		logger:   logger,
		index:    make(map[string]*entry),
	}
}

// Run consumes ownership events and drives dispatch until ctx is canceled.
// It waits on s.clock.After rather than a real timer so tests can drive the
// whole loop with a Manual clock.
func (s *Scheduler) Run(ctx context.Context, events <-chan uptimemesh.CheckEvent) error {
	for {
		wake := s.clock.After(s.nextDelay())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.applyEvent(ev)
		case <-wake:
			s.dispatchDue(ctx)
		}
	}
}

func (s *Scheduler) nextDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return idleWait
	}
	due := s.queue[0].nextDueMicros
	now := s.clock.NowMicros()
	if due <= now {
		return 0
	}
	return time.Duration(due-now) * time.Microsecond
}

func (s *Scheduler) applyEvent(ev uptimemesh.CheckEvent) {
	switch ev.Kind {
	case uptimemesh.CheckGained:
		s.upsert(ev.Check)
	case uptimemesh.CheckLost:
		s.cancel(ev.Check.ID)
	}
}

// upsert inserts a newly-owned check at align(now, freq), or updates the
// frequency of an already-tracked check without disturbing its next_due.
func (s *Scheduler) upsert(c uptimemesh.Check) {
	s.mu.Lock()
	defer s.mu.Unlock()

	freqMicros := int64(c.FrequencySecs) * 1_000_000
	if e, ok := s.index[c.ID]; ok {
		e.check = c
		e.freqMicros = freqMicros
		return
	}

	now := s.clock.NowMicros()
	e := &entry{
		check:         c,
		freqMicros:    freqMicros,
		nextDueMicros: Align(now, freqMicros),
	}
	s.index[c.ID] = e
	heap.Push(&s.queue, e)
	telemetry.SchedulerQueueDepth.Set(float64(len(s.queue)))
}

// cancel removes a check from the queue. An in-flight dispatch (already
// popped and handed to Dispatch) is allowed to complete.
func (s *Scheduler) cancel(checkID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.index[checkID]
	if !ok {
		return
	}
	delete(s.index, checkID)

	if e.index >= 0 && e.index < len(s.queue) && s.queue[e.index] == e {
		heap.Remove(&s.queue, e.index)
		telemetry.SchedulerQueueDepth.Set(float64(len(s.queue)))
		return
	}
	// Entry already popped for dispatch and not yet requeued: mark it so
	// requeue drops it instead of reinserting a canceled check.
	e.canceled = true
}

// dispatchDue pops every entry whose next_due_micros <= now and dispatches
// it. Acquiring a dispatch permit blocks the single-threaded loop when the
// pool is saturated, by design: the entry is not yet re-inserted, and its
// next_due is computed after the permit is granted, so the missed time
// counts as missed ticks rather than rescheduling against stale time.
func (s *Scheduler) dispatchDue(ctx context.Context) {
	for {
		e, ok := s.popDue()
		if !ok {
			return
		}

		if err := s.sem.Acquire(ctx, 1); err != nil {
			// ctx canceled while waiting for a permit: drop the entry, Run
			// is about to return anyway.
			return
		}

		scheduledAt := s.advance(e)
		s.requeue(e)

		telemetry.SchedulerDispatchLatency.Observe(float64(s.clock.NowMicros()-scheduledAt) / 1e6)

		go func(c uptimemesh.Check, scheduledAt int64) {
			defer s.sem.Release(1)
			s.dispatch(ctx, c, scheduledAt)
		}(e.check, scheduledAt)
	}
}

// popDue removes and returns the earliest entry if it is due, without
// advancing its schedule yet.
func (s *Scheduler) popDue() (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return nil, false
	}
	if s.queue[0].nextDueMicros > s.clock.NowMicros() {
		return nil, false
	}
	e := heap.Pop(&s.queue).(*entry)
	return e, true
}

// advance computes the entry's served scheduled_at_micros (its due time at
// the moment the permit was granted) and fast-forwards next_due_micros past
// any whole missed intervals.
func (s *Scheduler) advance(e *entry) int64 {
	scheduledAt := e.nextDueMicros
	now := s.clock.NowMicros()

	next := e.nextDueMicros + e.freqMicros
	for next <= now {
		next += e.freqMicros
		e.missedTicks++
		telemetry.SchedulerMissedTicks.Inc()
	}
	e.nextDueMicros = next
	return scheduledAt
}

func (s *Scheduler) requeue(e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.canceled {
		return
	}
	s.index[e.check.ID] = e
	heap.Push(&s.queue, e)
	telemetry.SchedulerQueueDepth.Set(float64(len(s.queue)))
}
