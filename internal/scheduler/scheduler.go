// Package scheduler wires every periodic job the core runs (SPEC_FULL.md
// §5's cadence table) onto a gocron scheduler, grounded on the teacher's own
// scheduler package and generalized to this system's job set.
package scheduler

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/moguard/panel/internal/config"
	"github.com/moguard/panel/internal/domain/node"
	"github.com/moguard/panel/internal/nodeclient"
	"github.com/moguard/panel/internal/reachedtracker"
	"github.com/moguard/panel/internal/reconciler"
	"github.com/moguard/panel/internal/shared/logger"
	"github.com/moguard/panel/internal/usageengine"
)

// Scheduler owns the gocron instance and every job this system schedules.
type Scheduler struct {
	gocron gocron.Scheduler
	nodes  node.Repository
}

// New constructs a Scheduler and registers every job at the cadence
// cfg.Scheduler describes. Each job uses LimitModeReschedule singleton mode
// so an overrunning tick is skipped rather than piling up (§5 "a contending
// tick is dropped, not queued").
func New(
	cfg config.SchedulerConfig,
	nodes node.Repository,
	recon *reconciler.Reconciler,
	usage *usageengine.Engine,
	tracker *reachedtracker.Tracker,
) (*Scheduler, error) {
	g, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("scheduler: new gocron scheduler: %w", err)
	}
	s := &Scheduler{gocron: g, nodes: nodes}

	jobs := []struct {
		name     string
		interval time.Duration
		run      func(context.Context) error
	}{
		{"refresh_configs", cfg.ConfigCacheInterval, recon.RefreshConfigs},
		{"refresh_links", cfg.LinksCacheInterval, recon.RefreshLinks},
		{"reconciler_tick", cfg.ReconcilerInterval, recon.Tick},
		{"usage_log_hourly", cfg.UsageLogInterval, usage.LogHourly},
		{"reached_tracker_tick", cfg.ReachedTrackerInterval, tracker.Tick},
		{"reseller_gate", cfg.ResellerGateInterval, tracker.ResellerGate},
		{"node_access_refresh", cfg.NodeAccessInterval, s.refreshNodeAccess},
		{"health_log", cfg.HealthLogInterval, s.logHealth},
	}

	for _, j := range jobs {
		name := j.name
		run := j.run
		_, err := g.NewJob(
			gocron.DurationJob(j.interval),
			gocron.NewTask(func() {
				start := time.Now()
				if err := run(context.Background()); err != nil {
					logger.Get().Error("job failed", zap.String("job", name), zap.Error(err))
					return
				}
				logger.Get().Debug("job completed", zap.String("job", name), zap.Duration("took", time.Since(start)))
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, fmt.Errorf("scheduler: register job %s: %w", name, err)
		}
	}

	return s, nil
}

// Start begins running every registered job.
func (s *Scheduler) Start() { s.gocron.Start() }

// Shutdown stops the scheduler, waiting for in-flight jobs to finish.
func (s *Scheduler) Shutdown() error { return s.gocron.Shutdown() }

// refreshNodeAccess re-issues the bearer token for any node whose cached
// token is null or older than 8h (§3 access refresh).
func (s *Scheduler) refreshNodeAccess(ctx context.Context) error {
	nodes, err := s.nodes.ListAvailable(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: list available nodes: %w", err)
	}
	now := time.Now().UTC()
	for _, n := range nodes {
		if !n.NeedsAccessRefresh(now) {
			continue
		}
		client, err := nodeclient.New(n.Kind(), n.Host())
		if err != nil {
			logger.Get().Warn("node access refresh: unknown kind", zap.Int64("node_id", n.ID()), zap.Error(err))
			continue
		}
		loginCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		tok, err := client.Login(loginCtx, n.Username(), n.Password())
		cancel()
		if err != nil {
			logger.Get().Warn("node access refresh failed", zap.Int64("node_id", n.ID()), zap.Error(err))
			continue
		}
		if err := s.nodes.UpdateAccess(ctx, n.ID(), tok, now); err != nil {
			logger.Get().Warn("node access persist failed", zap.Int64("node_id", n.ID()), zap.Error(err))
		}
	}
	return nil
}

// logHealth logs process RAM usage, mirroring the teacher's periodic
// health-log task (§5 "RAM/health log").
func (s *Scheduler) logHealth(_ context.Context) error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	logger.Get().Info("health",
		zap.Uint64("alloc_bytes", m.Alloc),
		zap.Uint64("sys_bytes", m.Sys),
		zap.Int("goroutines", runtime.NumGoroutine()),
	)
	return nil
}
