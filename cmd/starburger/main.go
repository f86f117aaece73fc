// Package main запускает HTTP-сервер сервиса star-burger.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Romigo24/star-burger/internal/config"
	"github.com/Romigo24/star-burger/internal/geocoder"
	"github.com/Romigo24/star-burger/internal/handler"
	"github.com/Romigo24/star-burger/internal/middleware"
	"github.com/Romigo24/star-burger/internal/placecache"
	"github.com/Romigo24/star-burger/internal/repository"
	"github.com/Romigo24/star-burger/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	var geocoderClient placecache.Geocoder
	if cfg.GeocoderAPIKey != "" {
		geocoderClient = geocoder.NewClient(cfg.GeocoderAddress, cfg.GeocoderAPIKey, cfg.GeocoderMaxRetries, logger)
	} else {
		sugar.Warn("geocoder API key is not set, addresses will stay unresolved")
	}

	places := placecache.New(repo, geocoderClient, logger)

	svc := service.NewService(repo, places, logger)
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.ManagerSecret)
	h := handler.NewHandler(svc, logger, authMiddleware, cfg.ManagerSecret)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск фонового процесса повторного геокодирования адресов
	g.Go(func() error {
		places.StartPlaceUpdates(ctx)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting star-burger server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
