package main

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hivelab/comb/pkg/bridge"
)

// dialRetries bounds startup: hived may come up after the drones do.
const dialRetries = 30

func main() {
	os.Exit(run())
}

func run() int {
	instanceName := os.Getenv("COMB_INSTANCE_NAME")
	hivedURL := os.Getenv("HIVED_URL")

	if instanceName == "" || hivedURL == "" {
		fmt.Fprintf(os.Stderr, "Error: COMB_INSTANCE_NAME and HIVED_URL must be set\n")
		return 1
	}

	userID := os.Getenv("COMB_USER_ID")
	if userID == "" {
		userID = "drone"
	}

	attachURL, err := buildAttachURL(hivedURL, instanceName, userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Invalid HIVED_URL: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport, err := dialWithRetry(ctx, attachURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect to hived: %v\n", err)
		return 1
	}

	sdk, err := bridge.New(bridge.Config{
		InstanceID: instanceName,
		Transport:  transport,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to create bridge SDK: %v\n", err)
		return 1
	}
	defer sdk.Close()

	log.Printf("[Drone] Connected to hived for instance '%s'", instanceName)

	unsubscribe := sdk.OnStateChange(func(state *bridge.BlockState) {
		log.Printf("[Drone] State update: %d shared keys, %d personal keys", len(state.Shared), len(state.Personal))
	})
	defer unsubscribe()

	if err := sdk.Ready(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to signal ready: %v\n", err)
		return 1
	}
	log.Printf("[Drone] Ready signal sent")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigCh
	log.Printf("[Drone] Received signal %v, shutting down", sig)

	return 0
}

// buildAttachURL appends the instance and user query parameters to the
// hived attach endpoint.
func buildAttachURL(base, instanceName, userID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("instance", instanceName)
	q.Set("user", userID)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// dialWithRetry connects to hived, retrying once per second while it boots.
func dialWithRetry(ctx context.Context, attachURL string) (bridge.Transport, error) {
	var lastErr error

	for i := 0; i < dialRetries; i++ {
		transport, err := bridge.DialWebsocket(ctx, attachURL)
		if err == nil {
			return transport, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}

	return nil, fmt.Errorf("gave up after %d attempts: %w", dialRetries, lastErr)
}
