// Package metrics counts alerts, deliveries and probe scrapes and serves them
// in the Prometheus exposition format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric names.
const (
	AlertsReceived = "alertrelay_alerts_received_total"
	Deliveries     = "alertrelay_deliveries_total"
	LastStatus     = "alertrelay_delivery_last_status"
	ProbeScrapes   = "alertrelay_probe_scrapes_total"
)

// Registry holds the relay's collectors in a private prometheus.Registry so
// tests and multiple instances never collide on the global one.
type Registry struct {
	reg     *prometheus.Registry
	handler http.Handler

	Received  prometheus.Counter
	Delivered *prometheus.CounterVec // transport, result
	Status    *prometheus.GaugeVec   // transport
	Scrapes   *prometheus.CounterVec // probe, result
}

// New returns a Registry with every collector registered.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		Received: prometheus.NewCounter(prometheus.CounterOpts{
			Name: AlertsReceived,
			Help: "Alerts accepted for delivery.",
		}),
		Delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: Deliveries,
			Help: "Delivery attempts by transport and result.",
		}, []string{"transport", "result"}),
		Status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: LastStatus,
			Help: "HTTP status code of the last delivery per transport, 0 for transport errors.",
		}, []string{"transport"}),
		Scrapes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: ProbeScrapes,
			Help: "Probe scrapes by probe and result.",
		}, []string{"probe", "result"}),
	}
	r.reg.MustRegister(r.Received, r.Delivered, r.Status, r.Scrapes)
	r.handler = promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
	return r
}

// AlertReceived counts one alert accepted for dispatch.
func (r *Registry) AlertReceived() {
	r.Received.Inc()
}

// DeliveryDone counts one delivery attempt. status is 0 for transport errors.
func (r *Registry) DeliveryDone(transport string, ok bool, status int) {
	r.Delivered.WithLabelValues(transport, result(ok)).Inc()
	r.Status.WithLabelValues(transport).Set(float64(status))
}

// ProbeScraped counts one probe scrape.
func (r *Registry) ProbeScraped(probe string, ok bool) {
	r.Scrapes.WithLabelValues(probe, result(ok)).Inc()
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// ServeHTTP serves the exposition with content negotiation.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
