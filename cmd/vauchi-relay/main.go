// Command vauchi-relay runs the relay server (spec.md §4.9): it
// accepts authenticated clients over WebSocket, routes encrypted
// envelopes by recipient identity, and queues blobs for offline
// recipients. Structured the way cmd/chatserver/main.go wires its own
// HTTP server: gorilla/mux routing, rs/cors, Prometheus metrics,
// signal-driven graceful shutdown.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/vault/api"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/vauchi/core/internal/metrics"
	"github.com/vauchi/core/internal/registry"
	"github.com/vauchi/core/internal/relay"
)

type relayConfig struct {
	serverID        string
	serverPort      string
	blobBackend     string // memory | sqlite | postgres | redis
	sqlitePath      string
	postgresURL     string
	redisURL        string
	redisPassword   string
	rateLimitPerMin int
	maxConnections  int
	blobTTL         time.Duration
	cleanupInterval time.Duration
	consulURL       string
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// resolveRedisPassword reads REDIS_PASSWORD from Vault when
// VAULT_ADDR/VAULT_TOKEN are set, falling back to the plain
// environment variable when Vault is unset, unreachable, or has no
// "redis_password" entry.
func resolveRedisPassword() string {
	vaultAddr := os.Getenv("VAULT_ADDR")
	vaultToken := os.Getenv("VAULT_TOKEN")
	if vaultAddr == "" || vaultToken == "" {
		return os.Getenv("REDIS_PASSWORD")
	}

	cfg := &api.Config{Address: vaultAddr}
	client, err := api.NewClient(cfg)
	if err != nil {
		log.Printf("relay: vault client init failed, falling back to env: %v", err)
		return os.Getenv("REDIS_PASSWORD")
	}
	client.SetToken(vaultToken)

	mountPath := getEnv("VAULT_MOUNT_PATH", "secret")
	secretPath := getEnv("VAULT_SECRET_PATH", "vauchi-relay")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	secret, err := client.KVv2(mountPath).Get(ctx, secretPath)
	if err != nil || secret == nil || secret.Data == nil {
		log.Printf("relay: vault secret lookup failed, falling back to env: %v", err)
		return os.Getenv("REDIS_PASSWORD")
	}
	if pw, ok := secret.Data["redis_password"].(string); ok && pw != "" {
		return pw
	}
	return os.Getenv("REDIS_PASSWORD")
}

func loadConfig() relayConfig {
	_ = godotenv.Load()

	return relayConfig{
		serverID:        getEnv("RELAY_SERVER_ID", "vauchi-relay-1"),
		serverPort:      getEnv("RELAY_SERVER_PORT", "9443"),
		blobBackend:     getEnv("RELAY_BLOB_BACKEND", "memory"),
		sqlitePath:      getEnv("RELAY_SQLITE_PATH", "vauchi-relay.db"),
		postgresURL:     getEnv("RELAY_POSTGRES_URL", ""),
		redisURL:        getEnv("RELAY_REDIS_URL", ""),
		redisPassword:   resolveRedisPassword(),
		rateLimitPerMin: getEnvInt("RELAY_RATE_LIMIT_PER_MIN", relay.DefaultRateLimitPerMin),
		maxConnections:  getEnvInt("RELAY_MAX_CONNECTIONS", 0),
		blobTTL:         time.Duration(getEnvInt("RELAY_BLOB_TTL_SECONDS", int(relay.DefaultBlobTTL.Seconds()))) * time.Second,
		cleanupInterval: time.Duration(getEnvInt("RELAY_CLEANUP_INTERVAL_SECONDS", int(relay.DefaultCleanupInterval.Seconds()))) * time.Second,
		consulURL:       getEnv("RELAY_CONSUL_URL", ""),
	}
}

func openBlobStore(cfg relayConfig, redisClient *redis.Client) (relay.BlobStore, func(), error) {
	switch cfg.blobBackend {
	case "sqlite":
		store, err := relay.OpenSQLiteBlobStore(cfg.sqlitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	case "postgres":
		if cfg.postgresURL == "" {
			return nil, nil, fmt.Errorf("RELAY_BLOB_BACKEND=postgres requires RELAY_POSTGRES_URL")
		}
		store, err := relay.OpenPostgresBlobStore(cfg.postgresURL)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	case "redis":
		if redisClient == nil {
			return nil, nil, fmt.Errorf("RELAY_BLOB_BACKEND=redis requires RELAY_REDIS_URL")
		}
		return relay.NewRedisBlobStore(redisClient), func() {}, nil
	default:
		return relay.NewMemoryBlobStore(), func() {}, nil
	}
}

func main() {
	cfg := loadConfig()
	log.Printf("Starting Vauchi relay: %s", cfg.serverID)

	var redisClient *redis.Client
	if cfg.redisURL != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.redisURL, Password: cfg.redisPassword})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
	}

	blobStore, closeBlobStore, err := openBlobStore(cfg, redisClient)
	if err != nil {
		log.Fatalf("Failed to open blob store (%s): %v", cfg.blobBackend, err)
	}
	defer closeBlobStore()

	limiter := relay.Limiter(relay.NewTokenBucketLimiter(cfg.rateLimitPerMin))
	if redisClient != nil {
		limiter = relay.NewRedisRateLimiter(redisClient, cfg.rateLimitPerMin)
	}

	hub := relay.NewHub(blobStore, limiter, cfg.blobTTL, cfg.maxConnections)

	var fanoutCancel context.CancelFunc
	if redisClient != nil {
		fanout := relay.NewRedisFanout(redisClient)
		hub.WithFanout(fanout)
		var fanoutCtx context.Context
		fanoutCtx, fanoutCancel = context.WithCancel(context.Background())
		go fanout.Subscribe(fanoutCtx, hub)
	}
	if fanoutCancel != nil {
		defer fanoutCancel()
	}

	sweeper := relay.NewSweeper(blobStore, cfg.cleanupInterval)
	go sweeper.Run()
	defer sweeper.Stop()

	var serviceRegistry *registry.ConsulRegistry
	if cfg.consulURL != "" {
		serviceRegistry, err = registry.NewConsulRegistry(cfg.consulURL, "vauchi-relay", cfg.serverID, cfg.serverPort, "relay", "websocket")
		if err != nil {
			log.Fatalf("Failed to connect to Consul: %v", err)
		}
		if err := serviceRegistry.Register(); err != nil {
			log.Fatalf("Failed to register with Consul: %v", err)
		}
	}

	server := relay.NewServer(hub)

	router := mux.NewRouter()
	router.Handle("/health", metrics.MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))).Methods("GET")
	router.Handle("/metrics", metrics.MetricsMiddleware(metrics.Handler())).Methods("GET")
	// /ws is deliberately left outside MetricsMiddleware: it's hijacked
	// for the WebSocket upgrade, and the wrapping ResponseWriter doesn't
	// implement http.Hijacker.
	router.HandleFunc("/ws", server.ServeWS).Methods("GET")

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.serverPort,
		Handler:           corsHandler.Handler(router),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0, // WebSocket connections are long-lived
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Relay listening on port %s (blob backend: %s)", cfg.serverPort, cfg.blobBackend)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Relay server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("Received signal %v - shutting down", sig)

	if serviceRegistry != nil {
		if err := serviceRegistry.Deregister(); err != nil {
			log.Printf("Warning: failed to deregister from Consul: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("Warning: relay HTTP server shutdown error: %v", err)
	}
	log.Println("Relay stopped gracefully")
}
