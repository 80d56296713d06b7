package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hivelab/comb/internal/config"
	"github.com/hivelab/comb/internal/host"
	"github.com/hivelab/comb/pkg/bridge"
	"github.com/hivelab/comb/pkg/mailbox"
	"github.com/hivelab/comb/pkg/manifest"
)

func main() {
	os.Exit(run())
}

// run contains the main logic and returns an exit code.
// This separation makes the logic testable and ensures deferred functions run.
func run() int {
	deploymentName := os.Getenv("COMB_DEPLOYMENT_NAME")
	redisURL := os.Getenv("REDIS_URL")

	if deploymentName == "" || redisURL == "" {
		fmt.Fprintf(os.Stderr, "Error: COMB_DEPLOYMENT_NAME and REDIS_URL must be set\n")
		return 1
	}

	listenAddr := os.Getenv("HIVED_LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":8090"
	}

	configPath := os.Getenv("COMB_CONFIG_PATH")
	if configPath == "" {
		configPath = "/deployment/comb.yml"
	}

	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Invalid REDIS_URL: %v\n", err)
		return 1
	}

	box, err := mailbox.NewClient(redisOpts, deploymentName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to create mailbox client: %v\n", err)
		return 1
	}
	defer box.Close()

	ctx := context.Background()
	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	if err := box.Ping(pingCtx); err != nil {
		cancelPing()
		fmt.Fprintf(os.Stderr, "Error: Redis not accessible: %v\n", err)
		return 1
	}
	cancelPing()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load comb.yml: %v\n", err)
		return 1
	}

	registry := manifest.Default()
	if err := cfg.ValidateElements(registry); err != nil {
		fmt.Fprintf(os.Stderr, "Error: comb.yml validation failed: %v\n", err)
		return 1
	}

	log.Printf("[Hived] Starting for deployment '%s' with %d element instances", deploymentName, len(cfg.Elements))

	srv := host.NewServer(cfg, registry, box, redisOpts)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := srv.Start(runCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to start host server: %v\n", err)
		return 1
	}
	defer srv.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := box.Ping(r.Context()); err != nil {
			http.Error(w, "redis unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/attach", func(w http.ResponseWriter, r *http.Request) {
		instanceName := r.URL.Query().Get("instance")
		userID := r.URL.Query().Get("user")
		if instanceName == "" {
			http.Error(w, "instance query parameter is required", http.StatusBadRequest)
			return
		}
		if userID == "" {
			userID = "anonymous"
		}

		transport, err := bridge.UpgradeWebsocket(w, r)
		if err != nil {
			log.Printf("[Hived] Websocket upgrade failed: %v", err)
			return
		}

		if _, err := srv.Attach(runCtx, instanceName, userID, transport); err != nil {
			log.Printf("[Hived] Attach rejected for instance '%s': %v", instanceName, err)
			transport.Close()
			return
		}
	})

	httpServer := &http.Server{
		Addr:    listenAddr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Hived] Listening on %s", listenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		log.Printf("[Hived] Received signal %v, shutting down gracefully...", sig)
		shutdownCtx, cancelShutdown := context.WithTimeout(ctx, 10*time.Second)
		defer cancelShutdown()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[Hived] HTTP shutdown error: %v", err)
		}
		cancel()
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "Error: HTTP server failed: %v\n", err)
			return 1
		}
	}

	log.Printf("[Hived] Stopped")
	return 0
}
