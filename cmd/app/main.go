package main

import (
	"agenda-service/internal/config"
	blockCreate "agenda-service/internal/http-server/handlers/blocks/create"
	blockDelete "agenda-service/internal/http-server/handlers/blocks/delete"
	blockGet "agenda-service/internal/http-server/handlers/blocks/get"
	bookingCancel "agenda-service/internal/http-server/handlers/bookings/cancel"
	bookingComplete "agenda-service/internal/http-server/handlers/bookings/complete"
	bookingConfirm "agenda-service/internal/http-server/handlers/bookings/confirm"
	bookingCreate "agenda-service/internal/http-server/handlers/bookings/create"
	bookingGet "agenda-service/internal/http-server/handlers/bookings/get"
	bookingList "agenda-service/internal/http-server/handlers/bookings/list"
	bookingNoShow "agenda-service/internal/http-server/handlers/bookings/noshow"
	recurringCreate "agenda-service/internal/http-server/handlers/recurring_slots/create"
	recurringDelete "agenda-service/internal/http-server/handlers/recurring_slots/delete"
	recurringGet "agenda-service/internal/http-server/handlers/recurring_slots/get"
	ruleCreate "agenda-service/internal/http-server/handlers/schedule_rules/create"
	ruleDelete "agenda-service/internal/http-server/handlers/schedule_rules/delete"
	ruleGet "agenda-service/internal/http-server/handlers/schedule_rules/get"
	slotGet "agenda-service/internal/http-server/handlers/slots/get"
	"agenda-service/internal/lock"
	svc "agenda-service/internal/service"
	"agenda-service/internal/storage/postgres"
	slogpretty "agenda-service/pkg/handlers/slogPretty"
	"agenda-service/pkg/middleware/mwLogger"
	"agenda-service/pkg/sl"
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key")
		w.Header().Set("Content-Type", "application/json; charset=utf-8")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {

	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("Starting API", slog.String("env", cfg.Env))
	log.Debug("Debug messages are enabled")

	storage, err := postgres.New(cfg.StoragePath)
	if err != nil {
		log.Error("Failed to init storage", sl.Err(err))
		os.Exit(1)
	}

	locker, err := lock.NewRedisLock(cfg.Redis.Address)
	if err != nil {
		log.Error("Failed to init redis lock", sl.Err(err))
		os.Exit(1)
	}

	service := svc.NewService(storage, locker, svc.SystemClock(), log)

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(mwLogger.New(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)
	router.Use(CORS)

	// Availability
	router.Get("/slots", slotGet.New(log, service))

	// Bookings
	router.Post("/bookings", bookingCreate.New(log, service))
	router.Get("/bookings", bookingList.New(log, service))
	router.Get("/bookings/{id}", bookingGet.New(log, service))
	router.Put("/bookings/{id}/cancel", bookingCancel.New(log, service))
	router.Put("/bookings/{id}/confirm", bookingConfirm.New(log, service))
	router.Put("/bookings/{id}/complete", bookingComplete.New(log, service))
	router.Put("/bookings/{id}/no-show", bookingNoShow.New(log, service))

	// Schedule rules
	router.Post("/schedule-rules", ruleCreate.New(log, service))
	router.Get("/schedule-rules", ruleGet.New(log, service))
	router.Get("/schedule-rules/{id}", ruleGet.New(log, service))
	router.Delete("/schedule-rules/{id}", ruleDelete.New(log, service))

	// Blocks
	router.Post("/blocks", blockCreate.New(log, service))
	router.Get("/blocks", blockGet.New(log, service))
	router.Get("/blocks/{id}", blockGet.New(log, service))
	router.Delete("/blocks/{id}", blockDelete.New(log, service))

	// Recurring slots
	router.Post("/recurring-slots", recurringCreate.New(log, service))
	router.Get("/recurring-slots", recurringGet.New(log, service))
	router.Get("/recurring-slots/{id}", recurringGet.New(log, service))
	router.Delete("/recurring-slots/{id}", recurringDelete.New(log, service))

	serv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	serverErrCh := make(chan error, 1)

	go func() {
		log.Info("Starting HTTP server", slog.String("addr", cfg.HTTPServer.Address))
		if err := serv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		} else {
			serverErrCh <- nil
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case err := <-serverErrCh:
		if err != nil {
			log.Error("HTTP server stopped unexpectedly", sl.Err(err))
		} else {
			log.Info("HTTP server stopped gracefully")
		}
	}

	shutdownTimeout := cfg.HTTPServer.ShutdownTimeout

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info("Shutting down HTTP server", slog.String("timeout", shutdownTimeout.String()))

	if err := serv.Shutdown(ctx); err != nil {
		log.Error("Server shutdown failed", sl.Err(err))
	} else {
		log.Info("Server shutdown complete")
	}

	if storage != nil {
		if err := storage.Close(); err != nil {
			log.Error("Failed to close storage", sl.Err(err))
		} else {
			log.Info("Storage closed")
		}
	} else {
		log.Debug("Storage is nil, nothing to close")
	}

	if locker != nil {
		if err := locker.Close(); err != nil {
			log.Error("Failed to close locker", sl.Err(err))
		} else {
			log.Info("Locker closed")
		}
	}

	log.Info("Shutdown finished, server stopped")

}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger
	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}
