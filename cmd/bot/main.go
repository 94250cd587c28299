package main

import (
	"MoonshotBridge/internal/adapter/chat/twitch"
	"MoonshotBridge/internal/adapter/httpapi"
	"MoonshotBridge/internal/ai"
	"MoonshotBridge/internal/app/bridge"
	"MoonshotBridge/internal/config"
	"MoonshotBridge/internal/service/image"
	"MoonshotBridge/internal/service/session"
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const cleanInterval = time.Minute

func main() {
	store, err := config.NewConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg := store.Current()

	logger, err := newLogger(cfg.DebugMode)
	if err != nil {
		panic(err)
	}
	sugar := logger.Sugar()
	//сброс буфера логгера
	defer func() {
		if err := logger.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) {
			sugar.Errorw("Failed to sync logger", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sugar.Infow(
		"Starting bot",
		"DebugMode", cfg.DebugMode,
		"Provider", cfg.Provider,
		"Model", cfg.ModelName(),
	)

	sender, err := ai.NewSender(cfg)
	if err != nil {
		sugar.Fatalw("failed to create sender", "error", err)
	}
	client := ai.NewClient(sender, sugar)
	sessions := session.NewManager(store, sugar)
	br := bridge.New(store, sessions, client, sugar)

	if cfg.ConfigWatch {
		if err := config.Watch(ctx, config.EnvFile(), store, sugar); err != nil {
			sugar.Warnw("Config watcher disabled", "error", err)
		}
	}

	// Очистка старых картинок
	cleaner := image.NewCleaner(sugar)
	go cleaner.Run(ctx, cfg.ImagesDir, time.Duration(cfg.ImagesTTLSeconds)*time.Second, cleanInterval)

	var api *httpapi.Server
	if cfg.HTTP.Enabled {
		api = httpapi.NewServer(cfg.HTTP, cfg.ImagesDir, br, image.NewProcessor(), sugar)
		if err := api.Start(ctx); err != nil {
			sugar.Fatalw("failed to start HTTP API", "addr", cfg.HTTP.BindAddr, "error", err)
		}
	}

	chat := twitch.New(cfg.Twitch, br, sugar)
	if chat.Configured() {
		go func() {
			if err := chat.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				sugar.Errorw("Twitch adapter stopped", "error", err)
			}
		}()
	}

	<-ctx.Done()
	sugar.Infow("Shutting down")
	if api != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = api.Stop(shutdownCtx)
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
