// Package ws implements the WebSocket hub for the agentwatch dashboard.
//
// Hub manages a set of connected clients and sends them the fleet state:
// on connect, on every broadcast tick (default 5s in production) and on every
// monitor pass it is subscribed to through Push.
//
// New(source, interval) creates a Hub.
// Hub.Run(ctx) starts the broadcast ticker and blocks until ctx is cancelled,
// then closes all active connections.
// Hub.ServeHTTP upgrades an HTTP connection to WebSocket.
//
// Message format sent to clients:
//
//	{
//	  "event": "state" | "update",
//	  "data":  { "summary": {...}, "agents": [...], "alerts": [...] }
//	}
//
// "state" frames come from the ticker and the initial send; "update" frames
// come from Push. The upgrader accepts all origins. Apply CORS restrictions at
// the reverse proxy level. The endpoint is mounted at /ws/stream.
package ws
