package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/munbon/awd-control/internal/simulator"
	"github.com/munbon/awd-control/internal/store"
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
		ClientID: env("MQTT_CLIENT_ID", "field-simulator"),
	}
	mqClient, err := mqttbus.NewConn(mqCfg, ctx)
	if err != nil {
		log.Fatalf("mqtt connect failed: %v", err)
	}
	publisher := mqttbus.NewPublisher(mqClient, "")

	// Same DB the control service writes gate commands to.
	db, err := store.Open(env("DB_DSN", "awd.db"))
	if err != nil {
		log.Fatalf("store open failed: %v", err)
	}

	interval := time.Duration(envInt("PUBLISH_INTERVAL_SEC", 60)) * time.Second
	initialLevel, _ := strconv.ParseFloat(env("INITIAL_LEVEL_CM", "-10"), 64)

	// FIELDS: comma-separated field_id:sensor_id:station_code triples.
	fieldsEnv := env("FIELDS", "field-01:wl-01:RG-01")
	var sims []*simulator.FieldSimulator
	for i, part := range strings.Split(fieldsEnv, ",") {
		bits := strings.Split(strings.TrimSpace(part), ":")
		if len(bits) != 3 {
			log.Fatalf("invalid FIELDS entry %q (want field:sensor:station)", part)
		}
		gen := simulator.NewLevelGenerator(initialLevel, int64(i+1))
		sims = append(sims, simulator.NewFieldSimulator(bits[0], bits[1], bits[2], gen, publisher, db))
	}

	for _, s := range sims {
		go s.Start(ctx, interval)
	}
	log.Printf("simulator: %d field(s) publishing every %s", len(sims), interval)

	<-ctx.Done()
	publisher.Close()
	log.Println("simulator: shutdown complete")
}
