// Package cli holds the pieces shared by the streamplan subcommands.
package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sheerbytes/streamplan/internal/eventfeed"
)

// EventsPath is where the websocket event feed is mounted.
const EventsPath = "/events"

// StartFeed serves feed on addr in the background. The returned function
// shuts the server down.
func StartFeed(addr string, feed *eventfeed.Feed, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle(EventsPath, feed)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}` + "\n"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("event feed listening", "addr", addr, "path", EventsPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("event feed failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// HasHelpFlag reports whether args ask for usage.
func HasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}
