package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/obsidianstack/alertrelay/pkg/types"
	"github.com/obsidianstack/alertrelay/relay/internal/config"
	"github.com/obsidianstack/alertrelay/relay/internal/metrics"
	"github.com/obsidianstack/alertrelay/relay/internal/store"
)

// captureSink records dispatched alerts.
type captureSink struct {
	mu     sync.Mutex
	alerts []types.Alert
}

func (c *captureSink) Dispatch(_ context.Context, a types.Alert) (string, []store.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return a.ID(), nil
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

// endpoint serves whatever body currently holds.
type endpoint struct {
	body   atomic.Value // string
	status atomic.Int32
}

func newEndpoint(t *testing.T, body string) (*endpoint, *httptest.Server) {
	t.Helper()
	e := &endpoint{}
	e.body.Store(body)
	e.status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.WriteHeader(int(e.status.Load()))
		_, _ = w.Write([]byte(e.body.Load().(string)))
	}))
	t.Cleanup(srv.Close)
	return e, srv
}

func walBody(n string) string {
	return "# TYPE prometheus_tsdb_wal_storage_errors_total counter\nprometheus_tsdb_wal_storage_errors_total " + n + "\n"
}

func newTestEngine(t *testing.T, url string, cooldown time.Duration) (*Engine, *captureSink, *metrics.Registry) {
	t.Helper()
	sink := &captureSink{}
	m := metrics.New()
	e, err := NewEngine(config.ProbeConfig{
		ID:       "prom",
		Endpoint: url,
		Rules: []config.RuleConfig{{
			Name:      "wal-errors",
			Condition: "prometheus_tsdb_wal_storage_errors_total > 0",
			Severity:  "critical",
			Cooldown:  cooldown,
		}},
	}, http.DefaultClient, sink, m)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e, sink, m
}

func TestEngine_FireCooldownResolve(t *testing.T) {
	ep, srv := newEndpoint(t, walBody("2"))
	e, sink, _ := newTestEngine(t, srv.URL, time.Minute)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	got, err := e.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("first tick: got %d alerts, want 1", len(got))
	}
	fired := got[0]
	if fired[types.FieldState] != StateFiring || fired.Severity() != "critical" {
		t.Errorf("fired alert: %v", fired)
	}
	for _, k := range []string{"id", "title", "msg", "rule", "source", "value", "timestamp"} {
		if _, ok := fired[k]; !ok {
			t.Errorf("fired alert missing %q", k)
		}
	}
	if v, _ := fired.Lookup("value"); v != "2" {
		t.Errorf("value: got %q", v)
	}

	// Still firing inside the cooldown: suppressed.
	now = now.Add(30 * time.Second)
	if got, _ := e.Tick(context.Background()); len(got) != 0 {
		t.Errorf("within cooldown: got %d alerts, want 0", len(got))
	}

	// Past the cooldown: re-fired.
	now = now.Add(time.Minute)
	if got, _ := e.Tick(context.Background()); len(got) != 1 {
		t.Errorf("after cooldown: got %d alerts, want 1", len(got))
	}
	if len(e.Active()) != 1 {
		t.Errorf("Active: got %d, want 1", len(e.Active()))
	}

	// Condition clears: resolved once.
	ep.body.Store(walBody("0"))
	now = now.Add(time.Second)
	got, _ = e.Tick(context.Background())
	if len(got) != 1 || got[0][types.FieldState] != StateResolved {
		t.Fatalf("resolve tick: got %v", got)
	}
	if len(e.Active()) != 0 {
		t.Errorf("Active after resolve: got %d, want 0", len(e.Active()))
	}
	if got, _ := e.Tick(context.Background()); len(got) != 0 {
		t.Errorf("after resolve: got %d alerts, want 0", len(got))
	}

	if sink.count() != 3 {
		t.Errorf("sink: got %d alerts, want 3", sink.count())
	}
}

func TestEngine_ScrapeFailureCounted(t *testing.T) {
	ep, srv := newEndpoint(t, walBody("1"))
	ep.status.Store(http.StatusInternalServerError)
	e, sink, m := newTestEngine(t, srv.URL, time.Minute)

	if _, err := e.Tick(context.Background()); err == nil {
		t.Fatal("expected scrape error")
	}
	if sink.count() != 0 {
		t.Errorf("sink: got %d alerts, want 0", sink.count())
	}
	if got := testutil.ToFloat64(m.Scrapes.WithLabelValues("prom", "failure")); got != 1 {
		t.Errorf("failure count: got %v", got)
	}
}

func TestEngine_MissingMetricSkipped(t *testing.T) {
	_, srv := newEndpoint(t, "# TYPE up gauge\nup 1\n")
	e, sink, m := newTestEngine(t, srv.URL, time.Minute)

	got, err := e.Tick(context.Background())
	if err != nil || len(got) != 0 || sink.count() != 0 {
		t.Errorf("got %v, %v", got, err)
	}
	if v := testutil.ToFloat64(m.Scrapes.WithLabelValues("prom", "success")); v != 1 {
		t.Errorf("success count: got %v", v)
	}
}

func TestNewEngine_InvalidRule(t *testing.T) {
	_, err := NewEngine(config.ProbeConfig{
		ID:    "p",
		Rules: []config.RuleConfig{{Name: "r", Condition: "up ~ 1"}},
	}, http.DefaultClient, &captureSink{}, nil)
	if err == nil || !strings.Contains(err.Error(), "operator") {
		t.Errorf("expected operator error, got %v", err)
	}
}

func TestSupervisor_ApplyAndStop(t *testing.T) {
	_, srv := newEndpoint(t, walBody("5"))
	sink := &captureSink{}
	s := NewSupervisor(http.DefaultClient, sink, nil)

	probes := []config.ProbeConfig{{
		ID:       "prom",
		Endpoint: srv.URL,
		Interval: time.Hour,
		Rules:    []config.RuleConfig{{Name: "wal", Condition: "prometheus_tsdb_wal_storage_errors_total > 0", Cooldown: time.Hour}},
	}}
	if err := s.Apply(context.Background(), probes); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sink.count() != 1 {
		t.Fatalf("sink: got %d alerts, want 1", sink.count())
	}
	if len(s.Engines()) != 1 {
		t.Errorf("engines: got %d", len(s.Engines()))
	}

	bad := []config.ProbeConfig{{ID: "bad", Rules: []config.RuleConfig{{Name: "r", Condition: "x"}}}}
	if err := s.Apply(context.Background(), bad); err == nil {
		t.Error("expected error for invalid probe")
	}
	if len(s.Engines()) != 1 {
		t.Error("invalid Apply should keep running engines")
	}

	s.Stop()
	if len(s.Engines()) != 0 {
		t.Errorf("engines after Stop: got %d", len(s.Engines()))
	}
}
