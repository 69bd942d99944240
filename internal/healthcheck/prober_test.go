package healthcheck

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func target(name string, kind TargetKind, err error) Target {
	return Target{
		Name: name,
		Kind: kind,
		Probe: func(ctx context.Context) error {
			return err
		},
	}
}

func TestProberHealthyBeforeFirstRound(t *testing.T) {
	p := NewProber(Config{}, []Target{
		target("engine-a", KindEngine, errors.New("down")),
	}, slog.Default())

	report := p.Report()
	if report.Status != StatusHealthy {
		t.Errorf("status before first round = %s, want healthy", report.Status)
	}
	if !p.Ready() {
		t.Error("prober must be ready before the first round")
	}
}

func TestProberAggregation(t *testing.T) {
	down := errors.New("connection refused")

	tests := []struct {
		name    string
		targets []Target
		want    Status
		ready   bool
	}{
		{
			name: "all healthy",
			targets: []Target{
				target("engine-a", KindEngine, nil),
				target("cache-l1", KindCache, nil),
			},
			want:  StatusHealthy,
			ready: true,
		},
		{
			name: "one engine down",
			targets: []Target{
				target("engine-a", KindEngine, down),
				target("engine-b", KindEngine, nil),
			},
			want:  StatusDegraded,
			ready: true,
		},
		{
			name: "cache down only degrades",
			targets: []Target{
				target("engine-a", KindEngine, nil),
				target("cache-l2", KindCache, down),
			},
			want:  StatusDegraded,
			ready: true,
		},
		{
			name: "all engines down",
			targets: []Target{
				target("engine-a", KindEngine, down),
				target("engine-b", KindEngine, down),
				target("cache-l1", KindCache, nil),
			},
			want:  StatusUnhealthy,
			ready: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProber(Config{}, tt.targets, slog.Default())
			p.RunOnce(context.Background())

			report := p.Report()
			if report.Status != tt.want {
				t.Errorf("status = %s, want %s", report.Status, tt.want)
			}
			if p.Ready() != tt.ready {
				t.Errorf("ready = %v, want %v", p.Ready(), tt.ready)
			}
			if len(report.Targets) != len(tt.targets) {
				t.Errorf("targets = %d, want %d", len(report.Targets), len(tt.targets))
			}
		})
	}
}

func TestProberRecordsFailureDetails(t *testing.T) {
	p := NewProber(Config{}, []Target{
		target("engine-a", KindEngine, errors.New("connection refused")),
		target("engine-b", KindEngine, nil),
	}, slog.Default())
	p.RunOnce(context.Background())

	report := p.Report()
	for _, s := range report.Targets {
		switch s.Name {
		case "engine-a":
			if s.Healthy || s.Error != "connection refused" {
				t.Errorf("engine-a status = %+v", s)
			}
		case "engine-b":
			if !s.Healthy || s.Error != "" {
				t.Errorf("engine-b status = %+v", s)
			}
		}
		if s.CheckedAt.IsZero() {
			t.Errorf("%s missing check timestamp", s.Name)
		}
	}
}

func TestProberTargetsSortedByName(t *testing.T) {
	p := NewProber(Config{}, []Target{
		target("zeta", KindEngine, nil),
		target("alpha", KindCache, nil),
	}, slog.Default())
	p.RunOnce(context.Background())

	report := p.Report()
	if report.Targets[0].Name != "alpha" || report.Targets[1].Name != "zeta" {
		t.Errorf("targets out of order: %+v", report.Targets)
	}
}

func TestProberProbeTimeout(t *testing.T) {
	p := NewProber(Config{Timeout: 10 * time.Millisecond}, []Target{
		{
			Name: "engine-slow",
			Kind: KindEngine,
			Probe: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
		},
	}, slog.Default())
	p.RunOnce(context.Background())

	report := p.Report()
	if report.Targets[0].Healthy {
		t.Error("slow probe must be unhealthy")
	}
}

func TestProberStartDisabled(t *testing.T) {
	ran := false
	p := NewProber(Config{Enabled: false}, []Target{
		{
			Name: "engine-a",
			Kind: KindEngine,
			Probe: func(ctx context.Context) error {
				ran = true
				return nil
			},
		},
	}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	time.Sleep(20 * time.Millisecond)
	if ran {
		t.Error("disabled prober must not probe")
	}
}
