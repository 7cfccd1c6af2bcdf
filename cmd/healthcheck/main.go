// Command healthcheck checks the releasebot health endpoint. It exits 0 when
// the bot reports itself healthy and 1 otherwise.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"
)

const (
	defaultAddr  = "127.0.0.1:8080"
	checkTimeout = 2 * time.Second
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	client := &http.Client{Timeout: checkTimeout}
	if err := checkHealth(ctx, client, healthURL(os.Getenv("RELEASEBOT_LISTEN_ADDR"))); err != nil {
		fmt.Fprintln(os.Stderr, "releasebot unhealthy:", err)
		os.Exit(1)
	}
}

// checkHealth succeeds when url answers 200 with {"status":"ok"}.
func checkHealth(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode health response: %w", err)
	}
	if body.Status != "ok" {
		return fmt.Errorf("reported status %q", body.Status)
	}

	return nil
}

func healthURL(listenAddr string) string {
	return "http://" + normalizeAddr(listenAddr) + "/api/v1/health"
}

// normalizeAddr points the check at loopback when the server binds all
// interfaces, since the check runs inside the same container.
func normalizeAddr(raw string) string {
	if raw == "" {
		return defaultAddr
	}

	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		return defaultAddr
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	return net.JoinHostPort(host, port)
}
