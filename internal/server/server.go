// Package server exposes the bridge over an HTTP API: message relay,
// history, status actions from the external channel, and the SSE live feed.
package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/relayops/chatbridge/internal/bridge"
)

// StartOpts holds configuration for the API server.
type StartOpts struct {
	Relay        *bridge.Relay
	Synchronizer *bridge.StatusSynchronizer
	Feed         *bridge.Feed
	Port         int
	Out          io.Writer
}

// Start launches the HTTP server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Relay == nil {
		return fmt.Errorf("server: relay is required")
	}
	if opts.Synchronizer == nil {
		return fmt.Errorf("server: synchronizer is required")
	}
	if opts.Feed == nil {
		return fmt.Errorf("server: feed is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, deps{
		relay: opts.Relay,
		sync:  opts.Synchronizer,
		feed:  opts.Feed,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Printf("server: shutdown: %v", err)
		}
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Bridge API listening on :%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
