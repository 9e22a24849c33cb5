package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// Upstream wraps HTTP calls to one backing service behind a gobreaker.
type Upstream struct {
	name    string
	base    string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	metrics *Metrics
}

func NewUpstream(name, base string, timeout time.Duration, failures uint32, openFor time.Duration, m *Metrics) *Upstream {
	if failures == 0 {
		failures = 3
	}
	if openFor <= 0 {
		openFor = 10 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
	})
	return &Upstream{
		name:    name,
		base:    strings.TrimRight(strings.TrimSpace(base), "/"),
		client:  &http.Client{Timeout: timeout},
		breaker: cb,
		metrics: m,
	}
}

// GetJSON fetches base+path and decodes into out. An unconfigured
// upstream is a no-op, not an error: its dashboard panel stays empty.
func (u *Upstream) GetJSON(ctx context.Context, path string, out any) error {
	if u == nil || u.base == "" {
		return nil
	}
	start := time.Now()
	_, err := u.breaker.Execute(func() (any, error) {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u.base+path, nil)
		resp, err := u.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s request error: %w", u.name, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%s upstream status %d", u.name, resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("%s decode error: %w", u.name, err)
		}
		return nil, nil
	})
	if u.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		u.metrics.UpstreamRequests.WithLabelValues(u.name, outcome).Inc()
		u.metrics.UpstreamLatency.WithLabelValues(u.name).Observe(time.Since(start).Seconds())
	}
	return err
}
