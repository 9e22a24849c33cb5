// Package app is the operator gateway: it aggregates the ingest, control
// and events services into one dashboard payload, with a circuit breaker
// per upstream so one sick service degrades its panel instead of the page.
package app

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	ControlBaseURL string
	IngestBaseURL  string
	EventsBaseURL  string
	HTTPTimeout    time.Duration

	BreakerFailures uint32
	BreakerOpenFor  time.Duration

	Logger *log.Logger
}

type Gateway struct {
	cfg     Config
	control *Upstream
	ingest  *Upstream
	events  *Upstream
	metrics *Metrics
}

func NewGateway(cfg Config, reg prometheus.Registerer) *Gateway {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 3 * time.Second
	}
	m := NewMetrics(reg)
	return &Gateway{
		cfg:     cfg,
		control: NewUpstream("control", cfg.ControlBaseURL, cfg.HTTPTimeout, cfg.BreakerFailures, cfg.BreakerOpenFor, m),
		ingest:  NewUpstream("ingest", cfg.IngestBaseURL, cfg.HTTPTimeout, cfg.BreakerFailures, cfg.BreakerOpenFor, m),
		events:  NewUpstream("events", cfg.EventsBaseURL, cfg.HTTPTimeout, cfg.BreakerFailures, cfg.BreakerOpenFor, m),
		metrics: m,
	}
}
