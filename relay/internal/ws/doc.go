// Package ws implements the live delivery feed for the relay.
//
// Hub keeps a set of connected WebSocket clients and pushes the recent
// delivery records to all of them on an interval (5s in production) and once
// immediately on connect. Run(ctx) drives the ticker and closes every client
// when ctx is cancelled. The server mounts the hub at /ws/deliveries.
//
// Message format sent to clients:
//
//	{
//	  "event": "deliveries",
//	  "data":  [ /* same schema as GET /api/v1/deliveries */ ]
//	}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level.
package ws
