package probe

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/obsidianstack/alertrelay/relay/internal/config"
	"github.com/obsidianstack/alertrelay/relay/internal/metrics"
)

// Supervisor runs one Engine per configured probe.
type Supervisor struct {
	client  *http.Client
	sink    Sink
	metrics *metrics.Registry

	mu      sync.Mutex
	engines []*Engine
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSupervisor returns a Supervisor with no running probes.
func NewSupervisor(client *http.Client, sink Sink, m *metrics.Registry) *Supervisor {
	return &Supervisor{client: client, sink: sink, metrics: m}
}

// Apply stops the running engines and starts one per entry in probes, bound
// to ctx. When any probe is invalid nothing is changed and the error is
// returned. Firing state is not carried across an Apply.
func (s *Supervisor) Apply(ctx context.Context, probes []config.ProbeConfig) error {
	engines := make([]*Engine, 0, len(probes))
	for _, p := range probes {
		e, err := NewEngine(p, s.client, s.sink, s.metrics)
		if err != nil {
			return err
		}
		engines = append(engines, e)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.engines = engines
	for _, e := range engines {
		s.wg.Add(1)
		go func(e *Engine) {
			defer s.wg.Done()
			e.Run(runCtx)
		}(e)
	}
	slog.Info("probe: engines started", "count", len(engines))
	return nil
}

// Engines returns the running engines.
func (s *Supervisor) Engines() []*Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Engine(nil), s.engines...)
}

// Stop stops every engine and waits for them to return.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Supervisor) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.wg.Wait()
	s.engines = nil
}
