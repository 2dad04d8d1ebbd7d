// Package rangemgr implements the range manager: it projects
// the live RingView onto the set of enabled checks this node owns, and
// emits ownership deltas to the scheduler over a one-way channel.
package rangemgr

import (
	"context"
	"log/slog"
	"time"

	"uptimemesh"
	"uptimemesh/internal/invariant"
	"uptimemesh/internal/ring"
	"uptimemesh/internal/store"
	"uptimemesh/internal/telemetry"
)

// ViewSource is the subset of the heartbeat service the range manager reads
// from — a capability interface so tests can inject a fake view.
type ViewSource interface {
	View() uptimemesh.RingView
}

// Manager periodically rescans enabled checks and diffs the assignment
// against its previously-owned set, emitting CheckEvents to a single
// consumer (the scheduler).
type Manager struct {
	store    store.Store
	views    ViewSource
	selfID   string
	interval time.Duration
	logger   *slog.Logger
	events   chan uptimemesh.CheckEvent

	owned map[string]uptimemesh.Check
}

// New constructs a Manager. events should be read by exactly one consumer
// the cyclic dependency is broken by a one-way event channel.
func New(st store.Store, views ViewSource, selfID string, interval time.Duration, logger *slog.Logger) *Manager {
	invariant.Assert(st != nil, "rangemgr.New: store must not be nil")
	invariant.Assert(views != nil, "rangemgr.New: view source must not be nil")
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    st,
		views:    views,
		selfID:   selfID,
		interval: interval,
		logger:   logger,
		events:   make(chan uptimemesh.CheckEvent, 256),
		owned:    make(map[string]uptimemesh.Check),
	}
}

// Events returns the one-way channel of ownership deltas for the scheduler
// to consume. It is never closed while Run is executing.
func (m *Manager) Events() <-chan uptimemesh.CheckEvent {
	return m.events
}

// Run rescans and reconciles once immediately, then every m.interval, until
// ctx is canceled. A store read failure keeps the previous owned set
// the range manager never aborts on a store read failure.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.reconcile(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Manager) reconcile(ctx context.Context) {
	checks, err := m.store.ListEnabledChecks(ctx)
	if err != nil {
		m.logger.Warn("list enabled checks failed, keeping previous owned set", "err", err)
		return
	}

	view := m.views.View()
	next := make(map[string]uptimemesh.Check, len(checks))
	for _, c := range checks {
		if !c.Valid() {
			telemetry.ChecksSkipped.Inc()
			continue
		}
		assigned := ring.Assign(view, c.ID)
		if owns(assigned, m.selfID) {
			next[c.ID] = c
		}
	}

	m.diffAndEmit(ctx, next)
}

func owns(assigned []string, selfID string) bool {
	for _, id := range assigned {
		if id == selfID {
			return true
		}
	}
	return false
}

// diffAndEmit compares next against m.owned by set membership only — no-op
// updates (same check still owned) never emit an event, so scheduling is
// undisturbed.
func (m *Manager) diffAndEmit(ctx context.Context, next map[string]uptimemesh.Check) {
	for id, c := range next {
		if _, already := m.owned[id]; !already {
			telemetry.ReconcileChurn.WithLabelValues("gained").Inc()
			m.send(ctx, uptimemesh.CheckEvent{Kind: uptimemesh.CheckGained, Check: c})
		}
	}
	for id, c := range m.owned {
		if _, stillOwned := next[id]; !stillOwned {
			telemetry.ReconcileChurn.WithLabelValues("lost").Inc()
			m.send(ctx, uptimemesh.CheckEvent{Kind: uptimemesh.CheckLost, Check: c})
		}
	}
	m.owned = next
	telemetry.OwnedChecks.Set(float64(len(next)))
}

func (m *Manager) send(ctx context.Context, ev uptimemesh.CheckEvent) {
	select {
	case m.events <- ev:
	case <-ctx.Done():
	}
}
