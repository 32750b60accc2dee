package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/wes-io-chat/internal/config"
	"github.com/weiawesome/wes-io-chat/internal/handler"
	"github.com/weiawesome/wes-io-chat/internal/history"
	"github.com/weiawesome/wes-io-chat/internal/hub"
	"github.com/weiawesome/wes-io-chat/internal/idgen"
	"github.com/weiawesome/wes-io-chat/internal/notify"
	"github.com/weiawesome/wes-io-chat/internal/registry"
	"github.com/weiawesome/wes-io-chat/internal/service"
	pkglog "github.com/weiawesome/wes-io-chat/pkg/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(cfg.Log)
	logger := pkglog.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ids, err := idgen.New(cfg.History.ID)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create id generator")
	}

	notifier, err := notify.New(ctx, cfg.Notify)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Notify.Driver).Msg("failed to create notifier")
	}
	logger.Info().Str("driver", cfg.Notify.Driver).Msg("notifier ready")

	chatSvc := service.NewChatService(
		registry.NewRegistry(),
		history.NewBuffer(cfg.History.Capacity, ids),
		notifier,
	)

	wsHub := hub.NewHub()

	r := mux.NewRouter()
	r.Use(pkglog.HTTPMiddleware(logger))
	handler.NewWSHandler(wsHub, chatSvc, cfg.WebSocket).RegisterRoutes(r)
	handler.NewHTTPHandler(wsHub, chatSvc).RegisterRoutes(r)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		wsHub.Run(gCtx)
		return nil
	})

	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("chat server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info().Msg("shutting down chat server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("server forced to shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("chat server failed")
	}

	if err := chatSvc.Stop(); err != nil {
		logger.Warn().Err(err).Msg("failed to stop chat service")
	}
	logger.Info().Msg("chat server stopped")
}
