// Package auth provides API key authentication for the relay.
//
// APIKeyInterceptor and APIKeyStreamInterceptor guard the gRPC listener by
// reading the key from gRPC metadata. Middleware guards the REST API by
// reading it from an HTTP header.
//
// When mode != "apikey" or key == "", every call passes through (useful for
// local development with auth disabled). A missing or incorrect key is
// rejected with codes.Unauthenticated or HTTP 401.
package auth
