// deckd - USB macropad broker daemon
//
// deckd owns the deck's raw HID interface and brokers access to it:
// one persistent WebSocket client gets exclusive control, transient
// HTTP callers get serialized one-shot access, and everyone else gets
// a clean 409.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/deckd/migrations"

	"github.com/nerrad567/deckd/internal/api"
	"github.com/nerrad567/deckd/internal/broker"
	"github.com/nerrad567/deckd/internal/hid"
	"github.com/nerrad567/deckd/internal/infrastructure/config"
	"github.com/nerrad567/deckd/internal/infrastructure/database"
	"github.com/nerrad567/deckd/internal/infrastructure/logging"
	"github.com/nerrad567/deckd/internal/infrastructure/mqtt"
	"github.com/nerrad567/deckd/internal/store"
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

// run is the actual daemon logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting deckd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)

	// Database and preference store
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	st := store.New(db.DB)

	// Device manager
	vid, err := cfg.DeviceVendorID()
	if err != nil {
		return err
	}
	pid, err := cfg.DeviceProductID()
	if err != nil {
		return err
	}

	manager := hid.NewManager(hid.Config{
		VendorID:        vid,
		ProductID:       pid,
		PingInterval:    cfg.GetPingInterval(),
		ResponseTimeout: cfg.GetResponseTimeout(),
		PollInitial:     cfg.GetPollInitial(),
		PollMax:         cfg.GetPollMax(),
	}, hid.RawOpener{VendorID: vid, ProductID: pid}, log.With("component", "hid"))

	go manager.Run(ctx)
	defer manager.Stop()
	log.Info("device manager started",
		"vendor_id", fmt.Sprintf("0x%04x", vid),
		"product_id", fmt.Sprintf("0x%04x", pid),
	)

	// Optional MQTT status publisher
	var publisher broker.StatusPublisher
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		mqttClient.SetLogger(log.With("component", "mqtt"))
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"topic", cfg.MQTT.StatusTopic,
		)
		publisher = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	// Broker
	b := broker.New(broker.Config{
		CommandTimeout: cfg.GetCommandTimeout(),
	}, manager, st, publisher, log.With("component", "broker"))
	go b.Run(ctx)

	// HTTP surface
	server, err := api.New(api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log.With("component", "api"),
		Broker:  b,
		History: st,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating api server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting api server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing api server", "error", closeErr)
		}
	}()
	log.Info("api server listening",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"ws_path", cfg.WebSocket.Path,
	)

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	b.AnnounceShutdown()

	log.Info("deckd stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses DECKD_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("DECKD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
