// Package server assembles the HTTP surface shared by the services:
// health, metrics and the campaign API.
package server

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/config"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/httputil"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/middleware"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/status"
)

// New builds the HTTP server. handler may be nil for services that only
// expose health and metrics.
func New(cfg config.ServerConfig, handler *status.Handler) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	mux.Handle("/metrics", promhttp.Handler())

	if handler != nil {
		mux.HandleFunc("/api/v1/campaigns", handler.Campaigns)
		mux.HandleFunc("/api/v1/campaigns/", handler.CampaignByID)
	}

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      middleware.RequestID(mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
