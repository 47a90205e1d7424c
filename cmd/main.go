package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"vibegame-backend/internal/config"
	"vibegame-backend/internal/fallback"
	"vibegame-backend/internal/handler"
	"vibegame-backend/internal/imagegen"
	chatmodel "vibegame-backend/internal/model"
	"vibegame-backend/internal/prompt"
	"vibegame-backend/internal/service"
	"vibegame-backend/internal/storage"
	"vibegame-backend/pkg/logger"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./configs/config.yaml", "path to the config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to load .env: %v", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	chatModel := newChatModel(cfg)

	builder, catalog, closeStore := newPromptBuilder(cfg)
	defer closeStore()

	relay := service.NewRelay(chatModel, builder, fallback.NewWithCatalog(catalog, nil), cfg.Relay, cfg.Provider)
	chatHandler := handler.NewChatHandler(relay, cfg.Relay.MaxHistory)
	if cfg.Image.Enabled {
		chatHandler.WithImages(imagegen.New(cfg.Image))
	}

	gin.SetMode(gin.ReleaseMode)
	router := handler.SetupRouter(cfg, chatHandler)

	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		logger.Infof("Relay listening on port %d (mode: %s)", cfg.Server.Port, relay.Mode())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Shutdown failed: %v", err)
	}
	logger.Info("Server stopped")
}

// newChatModel returns nil when no credential is configured; the relay
// then answers every request in mock mode.
func newChatModel(cfg *config.Config) model.BaseChatModel {
	chatModel, err := chatmodel.NewChatModel(context.Background(), cfg.Provider)
	switch {
	case errors.Is(err, chatmodel.ErrNoCredential):
		logger.Warnf("No API key configured for provider %s, serving mock responses", cfg.Provider.Name)
		return nil
	case err != nil:
		logger.Fatalf("Failed to create chat model: %v", err)
	}
	return chatModel
}

// newPromptBuilder also picks the fallback catalog so that canned narration
// stays in the same setting as the prompt.
func newPromptBuilder(cfg *config.Config) (prompt.Builder, *fallback.Catalog, func()) {
	static := prompt.Static(prompt.DungeonMaster)
	if !cfg.World.Enabled {
		return static, fallback.Dungeon, func() {}
	}

	store := storage.NewDiskStorage(cfg.World.DataDir)
	if err := store.Init(); err != nil {
		logger.Warnf("World data unavailable, using the default prompt: %v", err)
		return static, fallback.Dungeon, func() {}
	}

	builder := prompt.NewWorld(store, prompt.WorldOptions{
		OverviewLimit: cfg.World.OverviewLimit,
		MaxCharacters: cfg.World.MaxCharacters,
		MaxLocations:  cfg.World.MaxLocations,
		MaxItems:      cfg.World.MaxItems,
		RecentTurns:   cfg.World.RecentTurns,
	})
	return builder, fallback.StratfordNexus, func() {
		if err := store.Close(); err != nil {
			logger.Errorf("Failed to close world store: %v", err)
		}
	}
}
