package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

// ── Stubs ────────────────────────────────────────────────────────────────

// scriptedProbe fails the first failures calls and succeeds afterwards.
type scriptedProbe struct {
	failures int
	calls    int
}

func (p *scriptedProbe) probe(_ context.Context) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("dial tcp: connection refused")
	}
	return nil
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestCheck_unknownUntilProbed(t *testing.T) {
	c := New(func(context.Context) error { return nil }, Config{}, zap.NewNop())
	r := c.Report()
	if r.Status != StatusUnknown || !r.Healthy() {
		t.Errorf("expected unknown and healthy, got %+v", r)
	}
	if !c.Check(context.Background()) {
		t.Fatal("expected probe to succeed")
	}
	if got := c.Report().Status; got != StatusHealthy {
		t.Errorf("expected healthy, got %q", got)
	}
}

func TestCheck_degradesAfterThreshold(t *testing.T) {
	p := &scriptedProbe{failures: 10}
	var transitions []string
	c := New(p.probe, Config{FailThreshold: 3}, zap.NewNop())
	c.SetTransitionHook(func(_ context.Context, r Report) {
		transitions = append(transitions, r.Status)
	})

	for i := 0; i < 2; i++ {
		c.Check(context.Background())
	}
	if c.Report().Status == StatusDegraded {
		t.Fatal("degraded before reaching the threshold")
	}

	c.Check(context.Background())
	r := c.Report()
	if r.Status != StatusDegraded || r.Healthy() {
		t.Errorf("expected degraded, got %+v", r)
	}
	if r.LastError == "" {
		t.Error("expected the last error to be kept")
	}

	// further failures do not re-fire the transition
	c.Check(context.Background())
	if len(transitions) != 1 || transitions[0] != StatusDegraded {
		t.Errorf("expected one degraded transition, got %v", transitions)
	}
}

func TestCheck_recoversOnSuccess(t *testing.T) {
	p := &scriptedProbe{failures: 3}
	var transitions []string
	c := New(p.probe, Config{FailThreshold: 3}, zap.NewNop())
	c.SetTransitionHook(func(_ context.Context, r Report) {
		transitions = append(transitions, r.Status)
	})

	// Fail 3 times, then succeed.
	for i := 0; i < 4; i++ {
		c.Check(context.Background())
	}

	r := c.Report()
	if r.Status != StatusHealthy || r.FailCount != 0 {
		t.Errorf("expected healthy after recovery, got %+v", r)
	}
	if r.LastSeenAt.IsZero() {
		t.Error("expected last seen time after a success")
	}
	if len(transitions) != 2 || transitions[1] != StatusHealthy {
		t.Errorf("expected degraded then healthy, got %v", transitions)
	}
}

func TestCheck_metricsCallback(t *testing.T) {
	p := &scriptedProbe{failures: 1}
	var results []bool
	c := New(p.probe, Config{}, zap.NewNop())
	c.SetMetricsRecord(func(ok bool) { results = append(results, ok) })

	c.Check(context.Background())
	c.Check(context.Background())
	if len(results) != 2 || results[0] || !results[1] {
		t.Errorf("expected [false true], got %v", results)
	}
}

func TestCheck_probeTimeout(t *testing.T) {
	c := New(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, Config{ProbeTimeout: 10 * time.Millisecond, FailThreshold: 1}, zap.NewNop())

	if c.Check(context.Background()) {
		t.Fatal("expected a timed-out probe to fail")
	}
	if got := c.Report().Status; got != StatusDegraded {
		t.Errorf("expected degraded, got %q", got)
	}
}

func TestStart_stopsWithContext(t *testing.T) {
	c := New(func(context.Context) error { return nil }, Config{CheckInterval: time.Millisecond}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for c.Report().Status != StatusHealthy {
		select {
		case <-deadline:
			t.Fatal("no probe ran")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-deadline:
		t.Fatal("Start did not return after cancel")
	}
}
