package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/joho/godotenv"

	ingestpkg "github.com/munbon/awd-control/internal/services/ingest"
	"github.com/munbon/awd-control/pkg/mqttbus"
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

	mqCfg := &mqttbus.Config{
		Host:     env("MQTT_HOST", "localhost"),
		Port:     envInt("MQTT_PORT", 1883),
		User:     env("MQTT_USER", "mqtt_user"),
		Password: env("MQTT_PASS", "mqtt_pwd"),
		ClientID: env("MQTT_CLIENT_ID", "ingest-service"),
	}
	mqClient, err := mqttbus.NewConn(mqCfg, ctx)
	if err != nil {
		log.Fatalf("mqtt connect failed: %v", err)
	}
	topics := []string{
		env("LEVEL_TOPIC", "sensor/level/#"),
		env("MOISTURE_TOPIC", "sensor/moisture/#"),
	}
	consumer := mqttbus.NewMultiConsumer(mqClient, topics, nil)

	influxURL := env("INFLUX_URL", "http://localhost:8086")
	influxClient := influxdb2.NewClient(influxURL, env("INFLUX_TOKEN", ""))
	svc, err := ingestpkg.NewService(consumer, influxClient, ingestpkg.InfluxConfig{
		InfluxURL:    influxURL,
		InfluxToken:  env("INFLUX_TOKEN", ""),
		InfluxOrg:    env("INFLUX_ORG", "org"),
		InfluxBucket: env("INFLUX_BUCKET", "awd-readings"),
	}, time.Duration(envInt("CACHE_TTL_MIN", 15))*time.Minute)
	if err != nil {
		log.Fatalf("ingest init failed: %v", err)
	}

	mux := ingestpkg.NewHTTPMux(svc)
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ready": true})
	})

	srv := &http.Server{
		Addr:              ":" + env("PORT", "8081"),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("ingest HTTP listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	go svc.Start(ctx)

	<-ctx.Done()
	stop()

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shCtx)
	influxClient.Close()
	log.Println("ingest: shutdown complete")
}
