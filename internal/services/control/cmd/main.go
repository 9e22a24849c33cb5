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

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/munbon/awd-control/internal/model/entities"
	"github.com/munbon/awd-control/internal/scada"
	"github.com/munbon/awd-control/internal/services/analytics"
	controlpkg "github.com/munbon/awd-control/internal/services/control"
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
func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- relational store ---
	db, err := store.Open(env("DB_DSN", "awd.db"))
	if err != nil {
		log.Fatalf("store open failed: %v", err)
	}
	fields := store.NewFieldStore(db)
	sessions := store.NewSessionStore(db)
	anomalies := store.NewAnomalyStore(db)
	perf := store.NewPerformanceStore(db)
	learn := analytics.NewService(perf)

	// --- MQTT ---
	mqCfg := &mqttbus.Config{
		Host:     env("MQTT_HOST", "localhost"),
		Port:     envInt("MQTT_PORT", 1883),
		User:     env("MQTT_USER", "mqtt_user"),
		Password: env("MQTT_PASS", "mqtt_pwd"),
		ClientID: env("MQTT_CLIENT_ID", "control-service"),
	}
	mqClient, err := mqttbus.NewConn(mqCfg, ctx)
	if err != nil {
		log.Fatalf("mqtt connect failed: %v", err)
	}
	events := controlpkg.NewEventPublisher(mqttbus.NewPublisher(mqClient, ""))

	// --- InfluxDB (monitoring samples) ---
	influxClient := influxdb2.NewClient(env("INFLUX_URL", "http://localhost:8086"), env("INFLUX_TOKEN", ""))
	writeAPI := influxClient.WriteAPIBlocking(env("INFLUX_ORG", "org"), env("INFLUX_BUCKET", "awd-monitoring"))
	samples := controlpkg.NewInfluxSampleWriter(writeAPI)

	// --- collaborators ---
	sensors := controlpkg.NewHTTPSensorSource(
		env("INGEST_URL", "http://localhost:8081"),
		time.Duration(envInt("SENSOR_TIMEOUT_SEC", 5))*time.Second,
	)
	flow := controlpkg.NewHTTPFlowClient(
		env("FLOW_URL", "http://localhost:8090"),
		time.Duration(envInt("FLOW_TIMEOUT_SEC", 5))*time.Second,
	)
	var weather controlpkg.WeatherClient
	if key := os.Getenv("OWM_API_KEY"); key != "" {
		weather = controlpkg.NewOWMClient(key)
	}

	scadaTimeout := time.Duration(envInt("SCADA_TIMEOUT_SEC", 10)) * time.Second
	sink := scada.NewDBSink(db, scadaTimeout)

	reg := prometheus.NewRegistry()
	metrics := controlpkg.NewMetrics(reg)

	ctrl := controlpkg.NewController(fields, sessions, anomalies, learn, sensors, flow, sink, events, samples, metrics, controlpkg.Config{
		CheckInterval:        time.Duration(envInt("CHECK_INTERVAL_SEC", 300)) * time.Second,
		DefaultToleranceCm:   envFloat("TOLERANCE_CM", 1),
		DefaultMaxDuration:   time.Duration(envInt("MAX_DURATION_MIN", 720)) * time.Minute,
		MinFlowRateCmMin:     envFloat("MIN_FLOW_RATE_CM_MIN", 0.005),
		RapidDropCm:          envFloat("MONITOR_RAPID_DROP_CM", 2),
		NoRiseChecks:         envInt("NO_RISE_CHECKS", 3),
		SensorFailureLimit:   envInt("SENSOR_FAILURE_LIMIT", 3),
		EmergencyStopAboveCm: envFloat("EMERGENCY_STOP_ABOVE_CM", 5),
		SensorTimeout:        time.Duration(envInt("SENSOR_TIMEOUT_SEC", 5)) * time.Second,
	})

	// SCADA completion poller: the external SCADA flips complete_status;
	// this side only observes and logs.
	poller := scada.NewPoller(db, time.Duration(envInt("SCADA_POLL_SEC", 30))*time.Second, func(cmd entities.GateCommand) {
		log.Printf("control: gate command %s completed gate=%s level=%d", cmd.ID, cmd.GateName, cmd.GateLevel)
	})
	if env("SCADA_SELF_ACK", "") == "true" {
		// Dev mode without a real SCADA: commands complete themselves.
		poller.EnableSelfAck(time.Duration(envInt("SCADA_SELF_ACK_SEC", 60)) * time.Second)
	}

	scheduler := controlpkg.NewScheduler(ctrl, weather,
		time.Duration(envInt("DECISION_INTERVAL_SEC", 3600))*time.Second)

	mux := controlpkg.NewHTTPMux(ctrl, anomalies, fields)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              ":" + env("PORT", "8082"),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("control HTTP listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	go poller.Run(ctx)
	go scheduler.Run(ctx)
	go ctrl.Run(ctx)

	<-ctx.Done()
	stop()

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shCtx)
	influxClient.Close()
	log.Println("control: shutdown complete")
}
