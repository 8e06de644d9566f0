package api

import "github.com/obsidianstack/alertrelay/relay/internal/store"

// DispatchResponse is the payload for POST /api/v1/alerts.
type DispatchResponse struct {
	AlertID    string         `json:"alert_id"`
	Deliveries []store.Record `json:"deliveries"`
}

// TransportResponse is one entry in GET /api/v1/transports. Header and
// option values can carry tokens, so only their keys are listed, and the URL
// is shown without userinfo or query.
type TransportResponse struct {
	Name         string   `json:"name"`
	Method       string   `json:"method"`
	URL          string   `json:"url"`
	OptionKeys   []string `json:"option_keys,omitempty"`
	HeaderKeys   []string `json:"header_keys,omitempty"`
	HasBody      bool     `json:"has_body"`
	AuthUsername string   `json:"auth_username,omitempty"`
	AuthPassword string   `json:"auth_password,omitempty"` // always redacted
}

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status         string `json:"status"` // ok | no_transports
	TransportCount int    `json:"transport_count"`
	DeliveryCount  int    `json:"delivery_count"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
