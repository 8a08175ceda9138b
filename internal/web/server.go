package web

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hpungsan/momentum/internal/assist"
	"github.com/hpungsan/momentum/internal/journal"
	"github.com/hpungsan/momentum/internal/logging"
)

// NewServer creates the HTTP server for the journal JSON API.
// gen may be nil, in which case /api/prompt always returns the fallback.
func NewServer(c *journal.Coordinator, gen assist.Generator, logger logging.Logger, bind string, port int) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           NewHandler(c, gen, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// NewHandler builds the routed handler. Exposed for tests.
func NewHandler(c *journal.Coordinator, gen assist.Generator, logger logging.Logger) http.Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	h := &Handlers{journal: c, assistant: gen, log: logger}

	mux := http.NewServeMux()

	// Routes using Go 1.22+ pattern syntax
	mux.HandleFunc("GET /api/entries", h.HandleList)
	mux.HandleFunc("POST /api/entries", h.HandleCreate)
	mux.HandleFunc("GET /api/entries/search", h.HandleSearch)
	mux.HandleFunc("GET /api/entries/{id}", h.HandleGet)
	mux.HandleFunc("PUT /api/entries/{id}", h.HandleUpdate)
	mux.HandleFunc("DELETE /api/entries/{id}", h.HandleDelete)
	mux.HandleFunc("GET /api/entries/{id}/versions", h.HandleVersions)
	mux.HandleFunc("GET /api/entries/{id}/html", h.HandleHTML)
	mux.HandleFunc("GET /api/versions/{id}", h.HandleVersion)
	mux.HandleFunc("GET /api/versions/{id}/changes", h.HandleVersionChanges)
	mux.HandleFunc("POST /api/versions/{id}/restore", h.HandleRestore)
	mux.HandleFunc("POST /api/prompt", h.HandlePrompt)

	return securityHeaders(mux)
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and shuts it down gracefully on SIGINT/SIGTERM
// or when ctx is cancelled.
func Run(ctx context.Context, srv *http.Server, logger logging.Logger) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info(ctx, "journal API listening", "addr", "http://"+srv.Addr)

	if strings.HasPrefix(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		logger.Warn(ctx, "server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
	case <-ctx.Done():
	}

	logger.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
