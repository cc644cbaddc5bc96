package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
	"golang.org/x/sync/errgroup"

	"github.com/nkov/chatrelay/internal/server"
)

const (
	httpShutdownTimeout = 10 * time.Second
	hubShutdownTimeout  = 5 * time.Second
)

type options struct {
	Port    string   `short:"p" long:"port" description:"Listen address, e.g. :8080"`
	Origins []string `short:"o" long:"origin" description:"Allowed WebSocket origin (repeatable, * allows all)"`
	MaxSize int64    `long:"max-message-size" description:"Maximum inbound frame size in bytes"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			return
		}
		os.Exit(2)
	}

	// Environment first, command line on top.
	cfg := server.NewConfigFromEnv()
	if opts.Port != "" {
		cfg.Port = opts.Port
	}
	if len(opts.Origins) > 0 {
		cfg.AllowedOrigins = opts.Origins
	}
	if opts.MaxSize > 0 {
		cfg.MaxMessageSize = opts.MaxSize
	}
	server.SetConfig(cfg)

	log.Println("Starting chatrelay...")

	hub := server.NewHub()
	mux := server.SetupRoutes(hub)
	httpServer := server.CreateServer(cfg.Port, mux)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.StartServer(httpServer)
	})
	g.Go(func() error {
		<-ctx.Done()
		if err := server.ShutdownServer(httpServer, httpShutdownTimeout); err != nil {
			log.Printf("HTTP shutdown did not complete cleanly: %v", err)
		}
		return hub.Shutdown(hubShutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("chatrelay exited with error: %v", err)
	}
	log.Println("chatrelay stopped")
}
