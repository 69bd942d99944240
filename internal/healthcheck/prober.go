// Package healthcheck provides proactive probing of the engine adapters
// and cache tiers, aggregated into the service health states.
package healthcheck

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/searchmux/searchmux/internal/metrics"
)

const (
	defaultProbeInterval = 30 * time.Second
	defaultProbeTimeout  = 5 * time.Second
)

// Aggregate health states.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Target kinds. Engine targets decide between degraded and unhealthy;
// cache targets can only degrade.
type TargetKind string

const (
	KindEngine TargetKind = "engine"
	KindCache  TargetKind = "cache"
)

// ProbeFunc performs one cheap liveness check.
type ProbeFunc func(ctx context.Context) error

// Target is one probed dependency.
type Target struct {
	Name  string
	Kind  TargetKind
	Probe ProbeFunc
}

// TargetStatus is the most recent probe outcome for one target.
type TargetStatus struct {
	Name      string     `json:"name"`
	Kind      TargetKind `json:"kind"`
	Healthy   bool       `json:"healthy"`
	Error     string     `json:"error,omitempty"`
	CheckedAt time.Time  `json:"checked_at"`
}

// Report is the aggregated health snapshot served by /health.
type Report struct {
	Status  Status         `json:"status"`
	Targets []TargetStatus `json:"targets"`
}

// Config controls the prober behavior.
type Config struct {
	Enabled  bool
	Interval time.Duration
	Timeout  time.Duration
}

// Prober periodically checks each target and keeps the latest snapshot.
// Until the first probe round completes, all targets count as healthy
// so a slow dependency cannot block startup readiness.
type Prober struct {
	cfg     Config
	targets []Target
	logger  *slog.Logger
	started atomic.Bool

	mu       sync.RWMutex
	statuses map[string]TargetStatus
}

// NewProber creates a health prober over the given targets.
func NewProber(cfg Config, targets []Target, logger *slog.Logger) *Prober {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultProbeInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultProbeTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	statuses := make(map[string]TargetStatus, len(targets))
	for _, t := range targets {
		statuses[t.Name] = TargetStatus{Name: t.Name, Kind: t.Kind, Healthy: true}
	}
	return &Prober{
		cfg:      cfg,
		targets:  targets,
		logger:   logger,
		statuses: statuses,
	}
}

// Start begins the probe loop until the context is canceled.
func (p *Prober) Start(ctx context.Context) {
	if p == nil || !p.cfg.Enabled {
		return
	}
	if !p.started.CompareAndSwap(false, true) {
		return
	}

	go p.run(ctx)
}

func (p *Prober) run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			p.RunOnce(ctx)
		case <-ctx.Done():
			p.logger.Info("healthcheck prober stopped")
			return
		}
	}
}

// RunOnce probes every target once. Exported so readiness checks and
// tests can force a round without waiting for the ticker.
func (p *Prober) RunOnce(ctx context.Context) {
	for _, target := range p.targets {
		if ctx.Err() != nil {
			return
		}
		p.probeTarget(ctx, target)
	}
}

func (p *Prober) probeTarget(ctx context.Context, target Target) {
	probeCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	status := TargetStatus{
		Name:      target.Name,
		Kind:      target.Kind,
		Healthy:   true,
		CheckedAt: time.Now(),
	}
	if err := target.Probe(probeCtx); err != nil {
		status.Healthy = false
		status.Error = err.Error()
		metrics.ProbeHealthy.WithLabelValues(target.Name).Set(0)
		p.logger.Warn("health probe failed",
			"target", target.Name,
			"kind", string(target.Kind),
			"error", err,
		)
	} else {
		metrics.ProbeHealthy.WithLabelValues(target.Name).Set(1)
	}

	p.mu.Lock()
	p.statuses[target.Name] = status
	p.mu.Unlock()
}

// Report aggregates the latest probe results: healthy when everything
// is up, unhealthy when no engine responds, degraded in between.
func (p *Prober) Report() Report {
	p.mu.RLock()
	targets := make([]TargetStatus, 0, len(p.statuses))
	for _, s := range p.statuses {
		targets = append(targets, s)
	}
	p.mu.RUnlock()

	sort.Slice(targets, func(i, j int) bool { return targets[i].Name < targets[j].Name })

	allHealthy := true
	engines, enginesUp := 0, 0
	for _, s := range targets {
		if !s.Healthy {
			allHealthy = false
		}
		if s.Kind == KindEngine {
			engines++
			if s.Healthy {
				enginesUp++
			}
		}
	}

	status := StatusHealthy
	switch {
	case allHealthy:
		status = StatusHealthy
	case engines > 0 && enginesUp == 0:
		status = StatusUnhealthy
	default:
		status = StatusDegraded
	}
	return Report{Status: status, Targets: targets}
}

// Ready reports readiness: healthy or degraded.
func (p *Prober) Ready() bool {
	return p.Report().Status != StatusUnhealthy
}
