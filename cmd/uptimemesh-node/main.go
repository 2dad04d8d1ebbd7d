package main

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"uptimemesh"
	"uptimemesh/internal/aggregator"
	"uptimemesh/internal/api"
	"uptimemesh/internal/clock"
	"uptimemesh/internal/config"
	"uptimemesh/internal/heartbeat"
	"uptimemesh/internal/logging"
	"uptimemesh/internal/probe"
	"uptimemesh/internal/rangemgr"
	"uptimemesh/internal/results"
	"uptimemesh/internal/scheduler"
	"uptimemesh/internal/store"
	"uptimemesh/internal/store/corrosion"
)

const version = "0.1.0"

// shutdownGrace bounds how long the HTTP surface gets to drain in-flight
// requests once a shutdown signal arrives.
const shutdownGrace = 5 * time.Second

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var logLevel string
	var listenAddr string

	cmd := &cobra.Command{
		Use:     "uptimemesh-node",
		Short:   "Distributed uptime monitor probing node",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logging.Configure(logLevel); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return run(ctx, cfg, listenAddr)
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", logging.LevelInfo, "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&listenAddr, "listen", ":8080", "HTTP listen address for the metrics/healthz surface")
	return cmd
}

// run wires every component in dependency order: the
// store adapter first, then C (heartbeat) populates the live set that D+E
// (assignment, range manager) derive owned checks from, which F (scheduler)
// dequeues and hands to G (probe), whose results H (writer) persists; I
// (aggregator) reads independently on demand through the api server.
func run(ctx context.Context, cfg config.Config, listenAddr string) error {
	st, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("construct store: %w", err)
	}
	if err := st.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	selfID := uuid.NewString()
	clk := clock.Real{}

	hb := heartbeat.New(st, clk, heartbeat.Config{
		Self: uptimemesh.NodeIdentity{
			ID:      selfID,
			Region:  cfg.Region,
			Version: version,
		},
		Interval:          cfg.HeartbeatInterval(),
		BucketsCount:      cfg.CurrentBucketsCount,
		BucketVersion:     cfg.CurrentBucketVersion,
		ReplicationFactor: cfg.ReplicationFactor,
	}, nil)

	rm := rangemgr.New(st, hb, selfID, cfg.HeartbeatInterval(), nil)

	executor := probe.New(clk, selfID, cfg.SelfIP)
	writer := results.New(st, nil)

	dispatch := func(ctx context.Context, check uptimemesh.Check, scheduledAtMicros int64) {
		for _, region := range check.Regions {
			if region != cfg.Region {
				continue
			}
			if hb.IsFenced() {
				return
			}
			result := executor.Probe(ctx, check, region, scheduledAtMicros)
			writer.Write(ctx, result)
		}
	}
	sched := scheduler.New(clk, int64(cfg.MaxConcurrentHealthChecks), dispatch, nil)

	agg := aggregator.New(st)
	apiServer := api.New(agg, hb)
	httpServer := &http.Server{Addr: listenAddr, Handler: apiServer.Handler()}

	errCh := make(chan error, 4)
	go func() { errCh <- hb.Run(ctx) }()
	go func() { errCh <- rm.Run(ctx) }()
	go func() { errCh <- sched.Run(ctx, rm.Events()) }()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	select {
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			return err
		}
		return nil
	case <-ctx.Done():
		return nil
	}
}

// newStore dials the first configured node. DATABASE_NODE_URLS may list
// several for failover, but there is no documented failover
// policy between them, so the adapter's own retry budget is what absorbs a
// transient failure of this one node.
func newStore(cfg config.Config) (*store.CorrosionStore, error) {
	if len(cfg.DatabaseNodeURLs) == 0 {
		return nil, fmt.Errorf("no database node URLs configured")
	}
	parsed, err := url.Parse(cfg.DatabaseNodeURLs[0])
	if err != nil {
		return nil, fmt.Errorf("parse database node URL: %w", err)
	}
	addr, err := netip.ParseAddrPort(parsed.Host)
	if err != nil {
		return nil, fmt.Errorf("database node URL host must be ip:port: %w", err)
	}

	client, err := corrosion.NewClient(addr)
	if err != nil {
		return nil, fmt.Errorf("construct store client: %w", err)
	}
	return store.New(client, store.DefaultRetryPolicy, cfg.DatabaseConcurrentReqs), nil
}
