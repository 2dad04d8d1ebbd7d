// Package heartbeat implements the single long-lived task per process
// that writes the node's own liveness row and derives the
// live RingView the assignment engine and range manager read from.
package heartbeat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"uptimemesh"
	"uptimemesh/internal/clock"
	"uptimemesh/internal/store"
	"uptimemesh/internal/telemetry"
)

// maxConsecutiveFailures is the number of failed self-write intervals before
// the node transitions Suspect -> Dead and self-fences.
const maxConsecutiveFailures = 3

// livenessMultiple is how many heartbeat intervals a peer's last_seen_micros
// may lag before it is excluded from the live set.
const livenessMultiple = 3

// Config is the fixed ring identity this node advertises every interval.
type Config struct {
	Self              uptimemesh.NodeIdentity
	Interval          time.Duration
	BucketsCount      int
	BucketVersion     int
	ReplicationFactor int
}

// Service owns the self-heartbeat write/read loop. It is safe for
// concurrent reads of View/Summary/State/IsFenced from any goroutine while
// Run is in progress.
type Service struct {
	store  store.Store
	clock  clock.Clock
	cfg    Config
	logger *slog.Logger

	mu                  sync.RWMutex
	view                uptimemesh.RingView
	summary             uptimemesh.MembershipSummary
	state               uptimemesh.NodeState
	consecutiveFailures int
}

// New constructs a Service. Run must be called once to start the loop.
func New(st store.Store, clk clock.Clock, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		clock:  clk,
		cfg:    cfg,
		logger: logger,
		state:  uptimemesh.NodeJoining,
	}
}

// Run writes and refreshes the view once immediately, then every cfg.Interval,
// until ctx is canceled. It never returns a non-nil error except ctx.Err() —
// transient store failures are absorbed into the node's Suspect/Dead state
// and the last-published view is retained.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		s.tick(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	s.writeSelf(ctx)
	s.refreshView(ctx)
}

func (s *Service) writeSelf(ctx context.Context) {
	hb := uptimemesh.Heartbeat{
		NodeID:            s.cfg.Self.ID,
		Region:            s.cfg.Self.Region,
		LastSeenMicros:    s.clock.NowMicros(),
		BucketVersion:     s.cfg.BucketVersion,
		BucketsCount:      s.cfg.BucketsCount,
		ReplicationFactor: s.cfg.ReplicationFactor,
	}

	err := s.store.UpsertHeartbeat(ctx, hb)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		telemetry.HeartbeatWrites.WithLabelValues("error").Inc()
		s.consecutiveFailures++
		switch s.state {
		case uptimemesh.NodeLive:
			s.state = uptimemesh.NodeSuspect
			s.logger.Warn("heartbeat write failed, node now suspect", "err", err)
		case uptimemesh.NodeSuspect:
			if s.consecutiveFailures >= maxConsecutiveFailures {
				s.state = uptimemesh.NodeDead
				s.logger.Error("heartbeat write failed repeatedly, self-fencing", "failures", s.consecutiveFailures, "err", err)
			}
		}
		telemetry.NodeState.Set(float64(s.state))
		return
	}

	telemetry.HeartbeatWrites.WithLabelValues("ok").Inc()
	if s.consecutiveFailures > 0 {
		s.logger.Info("heartbeat write recovered", "previous_failures", s.consecutiveFailures)
	}
	s.consecutiveFailures = 0
	s.state = uptimemesh.NodeLive
	telemetry.NodeState.Set(float64(s.state))
}

func (s *Service) refreshView(ctx context.Context) {
	threshold := livenessMultiple * s.cfg.Interval
	live, err := s.store.ListLiveHeartbeats(ctx, s.clock.NowMicros(), threshold)
	if err != nil {
		s.logger.Warn("list live heartbeats failed, keeping last view", "err", err)
		return
	}

	ids := make([]string, 0, len(live))
	for _, hb := range live {
		// Bucket-version mismatch excludes a heartbeat from this ring;
		// version is opaque, there is no migration path defined between versions.
		if hb.BucketVersion != s.cfg.BucketVersion {
			continue
		}
		ids = append(ids, hb.NodeID)
	}

	view := uptimemesh.RingView{
		LiveNodes:         ids,
		BucketsCount:      s.cfg.BucketsCount,
		ReplicationFactor: s.cfg.ReplicationFactor,
	}
	summary := uptimemesh.MembershipSummary{
		Initialized: true,
		Total:       len(ids),
		Live:        len(ids),
	}

	s.mu.Lock()
	s.view = view
	s.summary = summary
	s.mu.Unlock()

	telemetry.ClusterLiveNodes.Set(float64(len(ids)))
}

// View returns the most recently published RingView. Safe to call before the
// first tick completes; the zero value has no live nodes.
func (s *Service) View() uptimemesh.RingView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// Summary returns the most recent membership snapshot for telemetry.
func (s *Service) Summary() uptimemesh.MembershipSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary
}

// State returns the node's own lifecycle state.
func (s *Service) State() uptimemesh.NodeState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsFenced reports whether the probe executor must refuse new probes.
func (s *Service) IsFenced() bool {
	return s.State().Fenced()
}
