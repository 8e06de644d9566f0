// Package api implements the HTTP REST API for the relay.
//
// New returns an http.Handler that serves:
//
//	POST /api/v1/alerts                  dispatch an alert to every transport
//	POST /api/v1/transports/{name}/test  deliver the body (or a sample alert) to one transport
//	GET  /api/v1/transports              configured transports, password redacted
//	GET  /api/v1/deliveries              recent delivery records, newest first
//	GET  /api/v1/schema                  the transport configuration schema
//	GET  /api/v1/health                  status, transport and history counts
//	GET  /metrics                        Prometheus exposition
//
// Responses are JSON except /metrics. A wrong method gets 405 and a body that
// is not a JSON object gets 400. No external HTTP framework is used.
package api
