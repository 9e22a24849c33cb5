package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/munbon/awd-control/internal/services/gateway/app"
)

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	gw := app.NewGateway(app.Config{
		ControlBaseURL:  env("CONTROL_URL", "http://localhost:8082"),
		IngestBaseURL:   env("INGEST_URL", "http://localhost:8081"),
		EventsBaseURL:   env("EVENTS_URL", "http://localhost:8083"),
		HTTPTimeout:     time.Duration(envInt("HTTP_TIMEOUT_MS", 3000)) * time.Millisecond,
		BreakerFailures: uint32(envInt("BREAKER_FAILURES", 3)),
		BreakerOpenFor:  time.Duration(envInt("BREAKER_OPEN_SEC", 10)) * time.Second,
	}, reg)

	mux := app.NewHTTPMux(gw)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              ":" + env("PORT", "8080"),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("gateway HTTP listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	stop()

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shCtx)
	log.Println("gateway: shutdown complete")
}
