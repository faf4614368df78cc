// Package server is a scripted replay server for the Red Card client.
//
// It does no game logic: it answers commands with the canned messages of a
// Script, serves the table constants, and hosts the go-app web client.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/janpfeifer/RedCard/internal/frontend"
	"github.com/janpfeifer/RedCard/internal/transport"
	"github.com/maxence-charriere/go-app/v10/pkg/app"
	"github.com/rs/cors"
	"k8s.io/klog/v2"
)

// Run starts the server and blocks until the context is canceled.
// An empty addr listens on a random local port. If started is not nil, the
// server state is sent on it once the server is listening.
func Run(ctx context.Context, addr string, script *Script, started chan<- *ServerState) error {
	serverState := NewServerState(script)

	if addr == "" {
		addr = "127.0.0.1:0"
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	serverState.Address = listener.Addr().String()

	// Register go-app routes so the server knows how to prerender them.
	app.Route("/", func() app.Composer { return &frontend.Home{} })

	// The web assets and the compiled webassembly
	// are served natively by the go-app framework
	h := &app.Handler{
		Name:        "RedCard",
		Description: "Bet on where the red card is",
		Styles: []string{
			"/web/css/pico.min.css",
			"/web/css/main.css",
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", serverState.HandleWS)
	mux.HandleFunc(transport.ConstantsPath, serverState.HandleConstants)
	mux.Handle("/web/", http.StripPrefix("/web/", http.FileServer(http.Dir("web/"))))
	mux.Handle("/", h)

	// Clients may be served from another origin.
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	})

	srv := &http.Server{
		Handler: corsHandler.Handler(mux),
	}

	go func() {
		klog.Infof("Server started on %s", serverState.Address)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			klog.Errorf("Server error: %v", err)
		}
	}()
	if started != nil {
		started <- serverState
	}

	<-ctx.Done()

	// Graceful shutdown with 5 second timeout. Websockets are hijacked
	// connections, so they are closed explicitly.
	serverState.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	klog.Info("Shutting down server...")
	return srv.Shutdown(shutdownCtx)
}
