// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/mstrand/partyhub/internal/auth"
	"github.com/mstrand/partyhub/internal/cache"
	"github.com/mstrand/partyhub/internal/content"
	"github.com/mstrand/partyhub/internal/game/clipqueue"
	"github.com/mstrand/partyhub/internal/handlers"
	"github.com/mstrand/partyhub/internal/lobby"
)

func main() {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		logger.SetLevel(level)
	}

	if priv, pub := os.Getenv("JWT_PRIVATE_KEY_FILE"), os.Getenv("JWT_PUBLIC_KEY_FILE"); priv != "" && pub != "" {
		if err := auth.InitFromPath(priv, pub); err != nil {
			logger.Fatalf("failed to load signing keys: %v", err)
		}
	} else if err := auth.Init(); err != nil {
		logger.Fatalf("failed to generate signing keys: %v", err)
	}

	ctx := context.Background()

	cfg := content.Config{
		Source:   getEnv("CONTENT_SOURCE", content.SourceNone),
		FilePath: os.Getenv("CONTENT_FILE"),
	}
	if cfg.Source == content.SourcePostgres {
		pool, err := content.ConnectDB(ctx)
		if err != nil {
			logger.Fatalf("failed to connect to postgres: %v", err)
		}
		defer pool.Close()
		cfg.Pool = pool
	}
	store, err := content.NewStore(ctx, cfg, logger)
	if err != nil {
		// The store falls back to the built-in content on load failure.
		logger.Warnf("content load: %v", err)
	}
	words, questions := store.Counts()
	logger.Infof("content ready: %d words, %d questions", words, questions)

	var sink lobby.EventSink = lobby.NoopSink{}
	if os.Getenv("REDIS_ADDR") != "" {
		client, err := cache.ConnectRedis()
		if err != nil {
			logger.Fatalf("failed to connect to redis: %v", err)
		}
		defer client.Close()
		sink = cache.NewRedisSink(client, logger)
	}

	var resolver clipqueue.Resolver = clipqueue.PassthroughResolver{}
	if key := os.Getenv("YOUTUBE_API_KEY"); key != "" {
		resolver = clipqueue.NewYouTubeResolver(key, logger)
	}

	registry := lobby.NewRegistry(lobby.Deps{
		Logger:        logger,
		Words:         store,
		Questions:     store,
		Resolver:      resolver,
		Sink:          sink,
		MintToken:     auth.CreateLobbyToken,
		VerifyToken:   auth.VerifyLobbyToken,
		EnabledTypes:  splitList(getEnv("ENABLED_GAME_TYPES", "all")),
		IdleTimeout:   getEnvDuration("LOBBY_IDLE_TIMEOUT", 60*time.Minute),
		SweepInterval: getEnvDuration("LOBBY_SWEEP_INTERVAL", 5*time.Minute),
	})
	registry.Start()

	server := &handlers.Server{
		Logger:   logger,
		Registry: registry,
		Content:  store,
	}
	if apiKey := os.Getenv("ADMIN_API_KEY"); apiKey != "" {
		hash, err := auth.HashAPIKey(apiKey)
		if err != nil {
			logger.Fatalf("failed to hash admin api key: %v", err)
		}
		server.APIKeyHash = hash
	}

	addr := ":" + getEnv("PARTYHUB_PORT", "8080")
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Infof("Running on %s", addr)
		errc <- httpServer.ListenAndServe()
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errc:
		logger.Fatalf("server exited: %v", err)
	case sig := <-sigc:
		logger.Infof("received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	registry.Close()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Minute
	}
	return fallback
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
