// Package server constructs and runs the relay's HTTP server.
package server

import (
	"context"
	"log"
	"net/http"
	"time"
)

// CreateServer builds an HTTP server with production timeouts for the given
// address and handler.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartServer starts the HTTP server and blocks until it exits. On graceful
// shutdown it returns http.ErrServerClosed.
func StartServer(server *http.Server) error {
	log.Printf("Server listening on %s", server.Addr)
	return server.ListenAndServe()
}

// ShutdownServer stops the HTTP server, waiting up to timeout for in-flight
// requests to finish.
func ShutdownServer(server *http.Server, timeout time.Duration) error {
	log.Println("Shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		return err
	}

	log.Println("HTTP server shutdown completed")
	return nil
}
