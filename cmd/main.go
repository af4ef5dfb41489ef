// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shivanand-hulikatti/event-checkin/internal/config"
	"github.com/Shivanand-hulikatti/event-checkin/internal/handler"
	"github.com/Shivanand-hulikatti/event-checkin/internal/logging"
	"github.com/Shivanand-hulikatti/event-checkin/internal/repository"
	"github.com/Shivanand-hulikatti/event-checkin/internal/scancode"
	"github.com/Shivanand-hulikatti/event-checkin/internal/service"
	"github.com/Shivanand-hulikatti/event-checkin/internal/sheets"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	// ── 1. Open the record store ─────────────────────────────────────────
	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	store, err := repository.Open(startCtx, cfg, logger)
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Error("close store", "error", err)
		}
	}()
	logger.Info("record store ready", "driver", cfg.Store.Driver)

	// ── 2. Wire up layers ────────────────────────────────────────────────
	codes := scancode.NewGenerator(cfg.Code)
	svc := service.NewAttendeeService(store, codes, logger, service.Options{
		StoreTimeout: cfg.Store.Timeout,
	})

	opts := handler.Options{
		SheetName:      cfg.Sheets.SheetName,
		MaxUploadBytes: cfg.HTTP.MaxUploadBytes,
	}
	if cfg.Sheets.Enabled() {
		sh, err := sheets.New(ctx, cfg.Sheets.CredentialsFile, cfg.Sheets.SpreadsheetID)
		if err != nil {
			return err
		}
		opts.Sheets = sh
		logger.Info("google sheets enabled", "spreadsheet", sh.SpreadsheetID(), "sheet", cfg.Sheets.SheetName)
	}
	attendeeHandler := handler.NewAttendeeHandler(svc, logger, opts)

	// ── 3. Build the router ──────────────────────────────────────────────
	router := handler.NewRouter(logger, handler.RouterDependencies{
		Attendees:      attendeeHandler,
		Health:         store,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})

	// ── 4. Start server with graceful shutdown ───────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           router,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
