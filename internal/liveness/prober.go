// Package liveness keeps the coordinator responsive while multi-step
// flows are in flight. The host may kill the process between events, so
// the prober periodically exercises the coordinator's own ping endpoint.
package liveness

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"
)

// SelfTarget builds the ping URL for the coordinator's own listen
// address. Wildcard and empty hosts are reachable via loopback only.
func SelfTarget(listenAddr string) string {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return "http://localhost" + listenAddr + "/v1/ping"
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/v1/ping"
}

// Prober probes a target URL on a fixed interval. Failures are logged,
// never escalated: a missed probe is diagnostic, not fatal.
type Prober struct {
	target   string
	interval time.Duration
	client   *http.Client
}

// New creates a prober for the given target
func New(target string, interval time.Duration) *Prober {
	return &Prober{
		target:   target,
		interval: interval,
		client:   &http.Client{Timeout: interval},
	}
}

// Run probes until the context is cancelled. Call it in a goroutine.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.probe(ctx); err != nil {
				log.Printf("liveness: probe failed: %v", err)
			}
		}
	}
}

// probe performs one reachability check
func (p *Prober) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.target, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", p.target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe %s returned HTTP %d", p.target, resp.StatusCode)
	}
	return nil
}
