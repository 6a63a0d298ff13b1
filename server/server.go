package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-provision/core"
)

// Server hosts the webhook surface. A health endpoint sits next to the
// webhook route so load balancers can probe without triggering verification.
type Server struct {
	httpServer *http.Server
	logger     core.Logger
}

func New(cfg core.Config, handler *WebhookHandler, logger core.Logger) *Server {
	address := strings.TrimSpace(cfg.Server.Address)
	if address == "" {
		address = ":8080"
	}

	mux := http.NewServeMux()
	mux.Handle("/webhooks/shopify/orders", handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              address,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       time.Minute,
		},
		logger: logger,
	}
}

func (s *Server) ListenAndServe() error {
	if s == nil || s.httpServer == nil {
		return http.ErrServerClosed
	}
	if s.logger != nil {
		s.logger.Info("webhook server listening", "address", s.httpServer.Addr)
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}
	if s.logger != nil {
		s.logger.Info("webhook server shutting down")
	}
	return s.httpServer.Shutdown(ctx)
}
