package probe

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	dto "github.com/prometheus/client_model/go"

	"github.com/obsidianstack/alertrelay/pkg/types"
	"github.com/obsidianstack/alertrelay/relay/internal/config"
	"github.com/obsidianstack/alertrelay/relay/internal/metrics"
	"github.com/obsidianstack/alertrelay/relay/internal/store"
)

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Sink receives the alerts an Engine produces. *dispatch.Dispatcher implements it.
type Sink interface {
	Dispatch(ctx context.Context, alert types.Alert) (string, []store.Record)
}

type rule struct {
	cfg  config.RuleConfig
	cond Condition
}

// Engine scrapes one endpoint and evaluates its rules.
// Engine is safe for concurrent use.
type Engine struct {
	probe   config.ProbeConfig
	rules   []rule
	client  *http.Client
	sink    Sink
	metrics *metrics.Registry

	mu       sync.Mutex
	active   map[string]types.Alert // firing alert per rule name
	lastFire map[string]time.Time
	now      func() time.Time
}

// NewEngine validates the probe's rules and returns an Engine for it.
// m may be nil.
func NewEngine(p config.ProbeConfig, client *http.Client, sink Sink, m *metrics.Registry) (*Engine, error) {
	e := &Engine{
		probe:    p,
		client:   client,
		sink:     sink,
		metrics:  m,
		active:   make(map[string]types.Alert),
		lastFire: make(map[string]time.Time),
		now:      time.Now,
	}
	for _, rc := range p.Rules {
		c, err := ParseCondition(rc.Condition)
		if err != nil {
			return nil, fmt.Errorf("probe %q rule %q: %w", p.ID, rc.Name, err)
		}
		if rc.Cooldown <= 0 {
			rc.Cooldown = config.DefaultRuleCooldown
		}
		if rc.Severity == "" {
			rc.Severity = config.DefaultRuleSeverity
		}
		e.rules = append(e.rules, rule{cfg: rc, cond: c})
	}
	return e, nil
}

// Run scrapes immediately and then every interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	interval := e.probe.Interval
	if interval <= 0 {
		interval = config.DefaultProbeInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		e.Tick(ctx) //nolint:errcheck // logged and counted inside
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Tick runs one scrape-and-evaluate cycle and returns the alerts it sent.
func (e *Engine) Tick(ctx context.Context) ([]types.Alert, error) {
	mfs, err := fetchMetrics(ctx, e.client, e.probe.Endpoint)
	if e.metrics != nil {
		e.metrics.ProbeScraped(e.probe.ID, err == nil)
	}
	if err != nil {
		slog.Warn("probe: scrape failed", "probe", e.probe.ID, "endpoint", e.probe.Endpoint, "err", err)
		return nil, fmt.Errorf("probe %q: %w", e.probe.ID, err)
	}

	alerts := e.Evaluate(mfs)
	for _, a := range alerts {
		e.sink.Dispatch(ctx, a)
	}
	return alerts, nil
}

// Evaluate tests every rule against mfs and returns the alerts that should be
// sent: new or re-fired alerts past their cooldown and alerts whose condition
// has cleared.
func (e *Engine) Evaluate(mfs map[string]*dto.MetricFamily) []types.Alert {
	now := e.now()
	var out []types.Alert

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, r := range e.rules {
		name := r.cfg.Name
		fires, value, ok := r.cond.Eval(mfs)
		if !ok {
			slog.Debug("probe: metric absent, rule skipped", "probe", e.probe.ID, "rule", name, "metric", r.cond.Metric)
			continue
		}

		if fires {
			if last, seen := e.lastFire[name]; seen && now.Sub(last) < r.cfg.Cooldown {
				continue
			}
			a := e.newAlert(r, value, now)
			e.active[name] = a
			e.lastFire[name] = now
			out = append(out, a.Clone())

			slog.Warn("probe: alert fired",
				"probe", e.probe.ID, "rule", name, "value", value, "severity", r.cfg.Severity)
			continue
		}

		if a, firing := e.active[name]; firing {
			delete(e.active, name)
			resolved := a.Clone()
			resolved[types.FieldState] = StateResolved
			resolved[types.FieldTimestamp] = now.UTC().Format(time.RFC3339)
			resolved["value"] = value
			resolved[types.FieldMessage] = fmt.Sprintf("%s resolved on %s: %s = %s",
				name, e.probe.ID, r.cond.Metric, formatValue(value))
			out = append(out, resolved)

			slog.Info("probe: alert resolved", "probe", e.probe.ID, "rule", name)
		}
	}
	return out
}

// Active returns copies of the currently firing alerts, ordered by rule name.
func (e *Engine) Active() []types.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	names := make([]string, 0, len(e.active))
	for n := range e.active {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]types.Alert, 0, len(names))
	for _, n := range names {
		out = append(out, e.active[n].Clone())
	}
	return out
}

func (e *Engine) newAlert(r rule, value float64, now time.Time) types.Alert {
	return types.Alert{
		types.FieldID:        uuid.NewString(),
		types.FieldTitle:     fmt.Sprintf("%s on %s", r.cfg.Name, e.probe.ID),
		types.FieldMessage:   fmt.Sprintf("[%s] %s fired on %s: %s = %s", r.cfg.Severity, r.cfg.Name, e.probe.ID, r.cond.Metric, formatValue(value)),
		types.FieldSeverity:  r.cfg.Severity,
		types.FieldState:     StateFiring,
		types.FieldTimestamp: now.UTC().Format(time.RFC3339),
		"rule":               r.cfg.Name,
		"condition":          r.cond.String(),
		"source":             e.probe.ID,
		"endpoint":           e.probe.Endpoint,
		"value":              value,
	}
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
