package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/agenthands/amalgam/internal/config"
	"github.com/agenthands/amalgam/internal/core"
	"github.com/agenthands/amalgam/internal/core/dedupe"
	"github.com/agenthands/amalgam/internal/core/policy"
	"github.com/agenthands/amalgam/internal/core/scheduler"
	"github.com/agenthands/amalgam/internal/driver"
	"github.com/agenthands/amalgam/internal/llm"
	"github.com/agenthands/amalgam/internal/server"
)

const shutdownTimeout = 5 * time.Second

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := godotenv.Load(); err != nil {
		log.Info("no .env file found, using process environment")
	}

	cfg := loadConfig(log)

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	drv, err := driver.NewMemgraphDriver(cfg.Memgraph.URI, cfg.Memgraph.User, cfg.Memgraph.Password, log)
	if err != nil {
		log.Fatal("graph store unreachable", zap.Error(err))
	}
	if err := drv.BuildIndices(ctx); err != nil {
		log.Warn("index setup incomplete", zap.Error(err))
	}

	// Resolution works without the LLM: borderline pairs just stay
	// flagged for human review instead of being escalated.
	var dis policy.Disambiguator
	if cfg.Resolution.LLMAssist {
		client, err := llm.NewClient(ctx, cfg.LLM)
		if err != nil {
			log.Warn("llm client unavailable, borderline pairs stay flagged", zap.Error(err))
		} else {
			dis = dedupe.NewDisambiguator(client, cfg.Resolution.LLMTimeout(), log)
		}
	}

	resolver := core.NewResolver(drv, dis, cfg.Resolution, log)
	sched := scheduler.New(resolver, cfg.Scheduler.Debounce(), cfg.Scheduler.HistoryLimit, log)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: server.New(resolver, sched, log).SetupRouter(),
	}

	go func() {
		log.Info("server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", zap.Error(err))
	}

	// Scheduler drains the in-flight pass before the store goes away.
	sched.Close()
	if err := drv.Close(shutdownCtx); err != nil {
		log.Error("driver close failed", zap.Error(err))
	}
	log.Info("server exited")
}

func loadConfig(log *zap.Logger) *config.Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.toml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Warn("config file not loaded, using defaults", zap.String("path", path), zap.Error(err))
		cfg = config.Default()
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}
	return cfg
}
