package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"alphasniper/src/repository"
)

// StartServer exposes the operator health surface: service heartbeats and
// the most recent ERROR events. The admin mutation API lives outside this
// process; the core only reads.
func StartServer(port string) {
	statuses := repository.NewStatusRepository()
	events := repository.NewEventRepository()

	r := chi.NewRouter()

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("/healthcheck write failed")
		}
	})

	r.Get("/health/status", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		rows, err := statuses.FindAll(ctx)
		if err != nil {
			http.Error(w, "status unavailable", http.StatusInternalServerError)
			return
		}
		recent, err := events.RecentErrors(ctx, 10)
		if err != nil {
			http.Error(w, "errors unavailable", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]interface{}{
			"services":      rows,
			"recent_errors": recent,
		}); err != nil {
			logger.WithError(err).Error("/health/status encode failed")
		}
	})

	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
