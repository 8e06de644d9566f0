// Package config loads the relay configuration from the `relay:` section of
// config.yaml.
//
// Config fields:
//   - HTTPPort, GRPCPort: REST API/WebSocket and gRPC health listeners
//   - Auth: "apikey" or "none"; the key is read from Auth.KeyEnv
//   - Delivery: per-request timeout and fan-out concurrency
//   - Proxy: outbound proxy policy for every transport
//   - History: how long and how many delivery records are kept
//   - Transports: the API transports (api-method, api-url, ...)
//   - Probes: Prometheus endpoints scraped for alert rules
//
// Load(path) applies defaults before unmarshalling, then validates. Secrets
// (API key, transport passwords) may be given as environment variable names.
//
// Watch(ctx, path, onChange) reloads the file on change using fsnotify and
// keeps the previous config when the new one does not load.
package config
