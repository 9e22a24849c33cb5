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

	mqtt "github.com/eclipse/paho.mqtt.golang"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/joho/godotenv"

	eventspkg "github.com/munbon/awd-control/internal/services/events"
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
		ClientID: env("MQTT_CLIENT_ID", "events-service"),
	}
	mqClient, err := mqttbus.NewConn(mqCfg, ctx)
	if err != nil {
		log.Fatalf("mqtt connect failed: %v", err)
	}

	influxOrg := env("INFLUX_ORG", "org")
	influxBucket := env("INFLUX_BUCKET", "awd-events")
	influxClient := influxdb2.NewClient(env("INFLUX_URL", "http://localhost:8086"), env("INFLUX_TOKEN", ""))
	writer := eventspkg.NewWriter(influxClient.WriteAPI(influxOrg, influxBucket))

	handler := eventspkg.NewMQTTHandler(eventspkg.Sink(writer))
	topics := []string{"event/#", "notify/#"}
	consumer := mqttbus.NewMultiConsumer(mqClient, topics, func(topic string, m mqtt.Message) error {
		return handler.Handle(topic, m)
	})

	mux := eventspkg.NewHTTPMux(influxClient, influxOrg, influxBucket)
	mux.Handle("/healthz", eventspkg.NewHealthHandler(mqClient, influxClient, writer))
	mux.Handle("/readyz", eventspkg.NewReadyHandler(mqClient, influxClient, writer, 30*time.Second))

	srv := &http.Server{
		Addr:              ":" + env("PORT", "8083"),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("events HTTP listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	go consumer.ConsumeMessage(ctx)

	<-ctx.Done()
	stop()

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shCtx)
	influxClient.Close()
	log.Println("events: shutdown complete")
}
