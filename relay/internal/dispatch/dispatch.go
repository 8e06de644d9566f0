// Package dispatch fans an alert out to every configured API transport,
// records each outcome in the history store and counts it in metrics.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/obsidianstack/alertrelay/pkg/types"
	"github.com/obsidianstack/alertrelay/relay/internal/apitransport"
	"github.com/obsidianstack/alertrelay/relay/internal/config"
	"github.com/obsidianstack/alertrelay/relay/internal/metrics"
	"github.com/obsidianstack/alertrelay/relay/internal/store"
)

// ErrUnknownTransport is returned by DeliverTo for a name that is not configured.
var ErrUnknownTransport = errors.New("dispatch: unknown transport")

// Sender delivers one alert to one transport. *apitransport.Transport implements it.
type Sender interface {
	Deliver(ctx context.Context, cfg apitransport.Config, alert types.Alert) apitransport.Outcome
}

// Target is a named transport configuration.
type Target struct {
	Name   string
	Config apitransport.Config
}

// TargetsFrom converts configured transports into targets, resolving
// passwords from the environment at call time.
func TargetsFrom(ts []config.TransportConfig) []Target {
	out := make([]Target, 0, len(ts))
	for _, t := range ts {
		out = append(out, Target{Name: t.Name, Config: t.Transport()})
	}
	return out
}

// Dispatcher delivers alerts to the current set of targets.
// Targets may be replaced at any time with SetTargets; deliveries already in
// flight keep the set they started with. Dispatcher is safe for concurrent use.
type Dispatcher struct {
	sender  Sender
	store   *store.Store
	metrics *metrics.Registry
	limit   int

	targets atomic.Pointer[[]Target]
	newID   func() string
	now     func() time.Time
}

// New creates a Dispatcher. concurrency caps parallel deliveries per alert.
func New(sender Sender, st *store.Store, m *metrics.Registry, concurrency int) *Dispatcher {
	if concurrency <= 0 {
		concurrency = config.DefaultConcurrency
	}
	d := &Dispatcher{
		sender:  sender,
		store:   st,
		metrics: m,
		limit:   concurrency,
		newID:   uuid.NewString,
		now:     time.Now,
	}
	d.SetTargets(nil)
	return d
}

// SetTargets replaces the delivery targets.
func (d *Dispatcher) SetTargets(ts []Target) {
	cp := append([]Target(nil), ts...)
	d.targets.Store(&cp)
}

// Targets returns the current targets.
func (d *Dispatcher) Targets() []Target {
	return append([]Target(nil), (*d.targets.Load())...)
}

// Dispatch delivers alert to every target and returns the alert ID and one
// record per target, in target order. An alert without an id is assigned one.
// Dispatch blocks until every delivery has finished.
func (d *Dispatcher) Dispatch(ctx context.Context, alert types.Alert) (string, []store.Record) {
	alert = d.prepare(alert)
	if d.metrics != nil {
		d.metrics.AlertReceived()
	}

	targets := *d.targets.Load()
	if len(targets) == 0 {
		slog.Warn("dispatch: no transports configured, alert dropped", "alert_id", alert.ID())
		return alert.ID(), nil
	}

	records := make([]store.Record, len(targets))
	var g errgroup.Group
	g.SetLimit(d.limit)
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			records[i] = d.deliver(ctx, t, alert)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // deliveries report through records, never errors

	return alert.ID(), records
}

// DeliverTo delivers alert to the single named target.
func (d *Dispatcher) DeliverTo(ctx context.Context, name string, alert types.Alert) (store.Record, error) {
	for _, t := range *d.targets.Load() {
		if t.Name == name {
			return d.deliver(ctx, t, d.prepare(alert)), nil
		}
	}
	return store.Record{}, fmt.Errorf("%w: %q", ErrUnknownTransport, name)
}

func (d *Dispatcher) prepare(alert types.Alert) types.Alert {
	if alert.ID() != "" {
		return alert
	}
	out := alert.Clone()
	out[types.FieldID] = d.newID()
	return out
}

func (d *Dispatcher) deliver(ctx context.Context, t Target, alert types.Alert) store.Record {
	start := d.now()
	out := d.sender.Deliver(ctx, t.Config, alert)

	rec := store.Record{
		ID:         d.newID(),
		AlertID:    alert.ID(),
		Transport:  t.Name,
		Method:     apitransport.EffectiveMethod(t.Config.Method),
		Host:       apitransport.Redact(t.Config.URL),
		OK:         out.OK,
		StatusCode: out.StatusCode,
		Reason:     out.Reason,
		StartedAt:  start.UTC(),
		DurationMs: float64(d.now().Sub(start).Microseconds()) / 1000,
	}

	if out.OK {
		slog.Debug("dispatch: alert delivered",
			"transport", t.Name, "alert_id", rec.AlertID, "duration_ms", rec.DurationMs)
	} else {
		slog.Warn("dispatch: delivery failed",
			"transport", t.Name, "alert_id", rec.AlertID, "reason", out.Reason)
	}

	if d.store != nil {
		d.store.Put(rec)
	}
	if d.metrics != nil {
		d.metrics.DeliveryDone(t.Name, out.OK, out.StatusCode)
	}
	return rec
}
