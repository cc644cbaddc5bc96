// Package server wires HTTP handlers into a ServeMux.
package server

import "net/http"

// SetupRoutes returns a ServeMux with the relay's routes: health check at /,
// the WebSocket endpoint at /ws, and the test page at /test.
func SetupRoutes(hub *Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler(hub))
	mux.HandleFunc("/ws", WebSocketHandler(hub))
	mux.HandleFunc("/test", TestPageHandler)
	return mux
}
