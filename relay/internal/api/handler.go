package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/obsidianstack/alertrelay/pkg/types"
	"github.com/obsidianstack/alertrelay/relay/internal/apitransport"
	"github.com/obsidianstack/alertrelay/relay/internal/dispatch"
	"github.com/obsidianstack/alertrelay/relay/internal/metrics"
	"github.com/obsidianstack/alertrelay/relay/internal/store"
)

// maxBody caps the size of an alert payload.
const maxBody = 1 << 20

const redacted = "********"

// Handler is the HTTP handler for all /api/v1/* endpoints and /metrics.
type Handler struct {
	dispatcher *dispatch.Dispatcher
	store      *store.Store
	metrics    *metrics.Registry
	mux        *http.ServeMux
}

// New creates a Handler and registers all routes. m may be nil, in which case
// /metrics is not served.
func New(d *dispatch.Dispatcher, st *store.Store, m *metrics.Registry) http.Handler {
	h := &Handler{dispatcher: d, store: st, metrics: m, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/alerts", h.alerts)
	h.mux.HandleFunc("/api/v1/transports", h.listTransports)
	h.mux.HandleFunc("/api/v1/transports/", h.testTransport) // subtree, extracts {name}
	h.mux.HandleFunc("/api/v1/deliveries", h.deliveries)
	h.mux.HandleFunc("/api/v1/schema", h.schema)
	h.mux.HandleFunc("/api/v1/health", h.health)
	if m != nil {
		h.mux.Handle("/metrics", m)
	}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// alerts handles POST /api/v1/alerts.
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	alert, err := decodeAlert(w, r)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if alert == nil {
		jsonErr(w, http.StatusBadRequest, "request body is empty")
		return
	}

	id, recs := h.dispatcher.Dispatch(r.Context(), alert)
	if recs == nil {
		recs = []store.Record{}
	}
	jsonResp(w, http.StatusOK, DispatchResponse{AlertID: id, Deliveries: recs})
}

// listTransports handles GET /api/v1/transports.
func (h *Handler) listTransports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	targets := h.dispatcher.Targets()
	out := make([]TransportResponse, 0, len(targets))
	for _, t := range targets {
		out = append(out, toTransportResponse(t))
	}
	jsonResp(w, http.StatusOK, out)
}

// testTransport handles POST /api/v1/transports/{name}/test.
func (h *Handler) testTransport(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/transports/")
	if rest == "" {
		h.listTransports(w, r)
		return
	}
	name, action, _ := strings.Cut(rest, "/")
	if name == "" || action != "test" {
		jsonErr(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	alert, err := decodeAlert(w, r)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if alert == nil {
		alert = SampleAlert(time.Now())
	}

	rec, err := h.dispatcher.DeliverTo(r.Context(), name, alert)
	if errors.Is(err, dispatch.ErrUnknownTransport) {
		jsonErr(w, http.StatusNotFound, "transport not found")
		return
	}
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, rec)
}

// deliveries handles GET /api/v1/deliveries.
func (h *Handler) deliveries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.store.List())
}

// schema handles GET /api/v1/schema.
func (h *Handler) schema(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, apitransport.Schema())
}

// health handles GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := HealthResponse{
		Status:         "ok",
		TransportCount: len(h.dispatcher.Targets()),
		DeliveryCount:  h.store.Count(),
	}
	if resp.TransportCount == 0 {
		resp.Status = "no_transports"
	}
	jsonResp(w, http.StatusOK, resp)
}

// --- helpers ----------------------------------------------------------------

// SampleAlert is the alert delivered by a test request without a body.
func SampleAlert(now time.Time) types.Alert {
	return types.Alert{
		types.FieldTitle:     "Test alert",
		types.FieldMessage:   "This is a test alert sent by alertrelay",
		types.FieldSeverity:  "info",
		types.FieldState:     "test",
		types.FieldTimestamp: now.UTC().Format(time.RFC3339),
		"hostname":           "alertrelay",
	}
}

// decodeAlert reads a JSON object from the request body. It returns a nil
// alert and no error when the body is empty.
func decodeAlert(w http.ResponseWriter, r *http.Request) (types.Alert, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.UseNumber()

	var alert types.Alert
	if err := dec.Decode(&alert); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("invalid alert JSON: %w", err)
	}
	if alert == nil {
		return nil, fmt.Errorf("invalid alert JSON: want an object")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid alert JSON: unexpected data after object")
	}
	return alert, nil
}

func toTransportResponse(t dispatch.Target) TransportResponse {
	c := t.Config
	resp := TransportResponse{
		Name:         t.Name,
		Method:       apitransport.EffectiveMethod(c.Method),
		URL:          apitransport.Redact(c.URL),
		OptionKeys:   templateKeys(c.Options),
		HeaderKeys:   templateKeys(c.Headers),
		HasBody:      c.Body != "",
		AuthUsername: c.AuthUsername,
	}
	if c.AuthPassword != "" {
		resp.AuthPassword = redacted
	}
	return resp
}

// templateKeys lists the keys of a KEY=VALUE template, sorted.
func templateKeys(text string) []string {
	kv := apitransport.ParseOptions(text)
	if len(kv) == 0 {
		return nil
	}
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
