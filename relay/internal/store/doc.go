// Package store keeps recent delivery records in memory for the REST API and
// the live WebSocket feed.
package store
