package main

import (
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"billpay-processing-system/internal/config"
	"billpay-processing-system/internal/observability"
)

// AlertWebhook is the slice of the Alertmanager webhook payload we use.
type AlertWebhook struct {
	Alerts []struct {
		Status string `json:"status"`
		Labels struct {
			Alertname string `json:"alertname"`
			Severity  string `json:"severity"`
		} `json:"labels"`
		Annotations struct {
			Summary string `json:"summary"`
		} `json:"annotations"`
	} `json:"alerts"`
}

func alertHandler(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	var webhook AlertWebhook
	if err := json.NewDecoder(r.Body).Decode(&webhook); err != nil {
		logger.Error("Failed to decode webhook", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	for _, alert := range webhook.Alerts {
		logger.Info("ALERT",
			"status", alert.Status,
			"alertname", alert.Labels.Alertname,
			"severity", alert.Labels.Severity,
			"summary", alert.Annotations.Summary,
		)
	}
	w.WriteHeader(http.StatusOK)
}

func main() {
	port := flag.String("port", "8081", "Port to listen on")
	flag.Parse()

	fallbackLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fallbackLogger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg.App.Env)
	logger.Info("alerter-service starting", "env", cfg.App.Env)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/alert", func(w http.ResponseWriter, req *http.Request) {
		alertHandler(w, req, logger)
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{"status": "OK"}); err != nil {
			logger.Error("Failed to write health response", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	})

	logger.Info("Alerter service started", "port", *port)

	if err := http.ListenAndServe("0.0.0.0:"+*port, r); err != nil {
		logger.Error("Failed to start server", "error", err)
		os.Exit(1)
	}
}
