// Gray Logic Controls - buttons, triggers and expression variables
//
// This is the main entry point for the controls service. It owns the
// control definitions (persisted in SQLite), routes feedback values reported
// by connection modules over MQTT, and exposes the editing API over HTTP and
// WebSocket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/gray-logic-controls/migrations"

	"github.com/nerrad567/gray-logic-controls/internal/api"
	"github.com/nerrad567/gray-logic-controls/internal/audit"
	"github.com/nerrad567/gray-logic-controls/internal/control"
	"github.com/nerrad567/gray-logic-controls/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-controls/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-controls/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-controls/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-controls/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-controls/internal/modulehost"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic Controls",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// InfluxDB is optional; feedback history is skipped when disabled.
	var (
		influxClient *influxdb.Client
		history      control.FeedbackHistory
		influxHealth api.HealthChecker
	)
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		history = influxClient
		influxHealth = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	bridge, err := modulehost.NewBridge(modulehost.BridgeOptions{
		MQTTClient:   mqttClient,
		QoS:          byte(cfg.MQTT.QoS), //nolint:gosec // validated to 0..2
		LearnTimeout: cfg.GetLearnTimeout(),
		Logger:       log.Component("modulehost"),
	})
	if err != nil {
		return fmt.Errorf("creating module-host bridge: %w", err)
	}

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go hub.Run(hubCtx)

	registry := control.NewRegistry(control.Deps{
		Repo:          control.NewSQLiteRepository(db.DB),
		Host:          bridge,
		Hub:           hub,
		History:       history,
		Learn:         bridge,
		Logger:        log.Component("control"),
		RotaryActions: cfg.Controls.RotaryActions,
	})
	defer registry.Close()

	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading controls: %w", refreshErr)
	}
	log.Info("control registry initialised", "controls", registry.GetControlCount())

	if startErr := bridge.Start(ctx, registry); startErr != nil {
		return fmt.Errorf("starting module-host bridge: %w", startErr)
	}
	defer func() {
		log.Info("stopping module-host bridge")
		bridge.Stop()
	}()

	// Connection modules drop their subscriptions when the broker restarts.
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected, resubscribing entities")
		bridge.HandleReconnect()
	})

	srv, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log.Component("api"),
		Registry:    registry,
		DB:          db,
		MQTT:        mqttClient,
		Influx:      influxHealth,
		Bridge:      bridge,
		Journal:     audit.NewSQLiteJournal(db.DB),
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := srv.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"api", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil when InfluxDB is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
