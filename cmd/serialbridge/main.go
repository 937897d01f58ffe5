// Serial MQTT Bridge
//
// serialbridge connects one serial device to an MQTT broker. Bytes
// published to the transmit topic are written to the device; a read
// request on the receive-control topic reads up to N bytes from the device
// and publishes them on the receive topic. Liveness is advertised on the
// availability topic ("online" / "offline", with "offline" as last will).
//
// Usage:
//
//	serialbridge [config.yaml]
//
// The configuration path defaults to $SERIALBRIDGE_CONFIG, then
// configs/serialbridge.yaml.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	serialbridge "github.com/nerrad567/serial-mqtt-bridge/internal/bridges/serial"
	"github.com/nerrad567/serial-mqtt-bridge/internal/infrastructure/config"
	"github.com/nerrad567/serial-mqtt-bridge/internal/infrastructure/database"
	"github.com/nerrad567/serial-mqtt-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/serial-mqtt-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/serial-mqtt-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/serial-mqtt-bridge/internal/infrastructure/serialport"
	"github.com/nerrad567/serial-mqtt-bridge/internal/journal"
	"github.com/nerrad567/serial-mqtt-bridge/internal/transport"
	"github.com/nerrad567/serial-mqtt-bridge/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/serialbridge.yaml"
	configEnvVar      = "SERIALBRIDGE_CONFIG"

	// closeTimeout bounds the final offline publish and disconnect.
	closeTimeout = 5 * time.Second
)

var errUsage = errors.New("usage: serialbridge [config.yaml]")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application body, separated from main for testability.
//
// Parameters:
//   - ctx: Cancelled on interrupt or SIGTERM
//   - args: Command-line arguments without the program name
//
// Returns:
//   - error: nil on clean shutdown, or the startup/fatal failure
func run(ctx context.Context, args []string) error {
	log := logging.Default()
	log.Info("starting serialbridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath, err := resolveConfigPath(args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"broker", cfg.Broker.String(),
		"device", cfg.Serial.Device,
	)

	// Open the serial device first: without it there is nothing to bridge.
	port, err := serialport.Open(cfg.Serial)
	if err != nil {
		return fmt.Errorf("opening serial device: %w", err)
	}
	port.SetLogger(log.Component("serialport"))
	defer func() {
		log.Info("closing serial device")
		if closeErr := port.Close(); closeErr != nil {
			log.Error("error closing serial device", "error", closeErr)
		}
	}()
	log.Info("serial device open",
		"device", port.Name(),
		"baud", cfg.Serial.Baud,
		"breaker", port.BreakerState(),
	)

	return serve(ctx, cfg, port, log)
}

// serve wires the optional sinks and the broker around an open serial
// device, then runs the bridge until shutdown.
//
// Parameters:
//   - ctx: Cancelled on interrupt or SIGTERM
//   - cfg: Validated configuration
//   - port: Open serial device; the caller closes it
//   - log: Logger instance
//
// Returns:
//   - error: nil on clean shutdown, including a shutdown signal received
//     before the broker session came up
func serve(ctx context.Context, cfg *config.Config, port transport.Serial, log *logging.Logger) error {
	var observers serialbridge.Observers
	var err error

	// Session journal (optional)
	var db *database.DB
	if cfg.Journal.Enabled {
		var recorder *journal.Recorder
		db, recorder, err = openJournal(ctx, cfg.Journal, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing journal")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing journal", "error", closeErr)
			}
		}()
		observers = append(observers, recorder)
	} else {
		log.Info("session journal disabled")
	}

	// InfluxDB telemetry (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		observers = append(observers, serialbridge.NewTelemetryObserver(influxClient, cfg.Broker.ClientID))
	} else {
		log.Info("InfluxDB disabled")
	}

	mqttClient := mqtt.NewClient(cfg.Broker)
	mqttClient.SetLogger(log.Component("mqtt"))

	bridge, err := serialbridge.NewBridge(serialbridge.BridgeOptions{
		Config:   cfg,
		Broker:   mqttClient,
		Serial:   port,
		Logger:   log.Component("bridge"),
		Observer: observers,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	defer bridge.Shutdown()

	if err := bridge.Start(ctx); err != nil {
		if interrupted(ctx) {
			log.Info("shutdown requested during startup")
			return nil
		}
		return fmt.Errorf("starting bridge: %w", err)
	}
	log.Info("MQTT connected",
		"broker", cfg.Broker.Address,
		"client_id", cfg.Broker.ClientID,
	)

	if err := healthCheck(ctx, mqttClient, db, influxClient); err != nil {
		closeBridge(bridge, log)
		if interrupted(ctx) {
			log.Info("shutdown requested during startup")
			return nil
		}
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("bridge running",
		"transmit", cfg.Topics.Transmit,
		"receive", cfg.Topics.Receive,
		"receive_control", cfg.Topics.ReceiveControl,
	)

	runErr := bridge.Run(ctx)

	closeBridge(bridge, log)

	m := bridge.Metrics()
	log.Info("serialbridge stopped",
		"state", m.State,
		"messages", m.Messages,
		"bytes_tx", m.BytesTx,
		"bytes_rx", m.BytesRx,
		"connection_losts", m.ConnectionLosts,
		"reconnects", m.Reconnects,
	)

	if runErr != nil {
		return fmt.Errorf("bridge stopped: %w", runErr)
	}
	return nil
}

// resolveConfigPath picks the configuration file: the single positional
// argument, else $SERIALBRIDGE_CONFIG, else the default path.
func resolveConfigPath(args []string) (string, error) {
	switch len(args) {
	case 0:
		if path := os.Getenv(configEnvVar); path != "" {
			return path, nil
		}
		return defaultConfigPath, nil
	case 1:
		if args[0] == "" {
			return "", errUsage
		}
		return args[0], nil
	default:
		return "", errUsage
	}
}

// openJournal opens the journal database, applies migrations, prunes
// expired rows and returns a recorder over it.
//
// Parameters:
//   - ctx: Context for migration and pruning
//   - cfg: Journal configuration
//   - log: Logger instance
//
// Returns:
//   - *database.DB: Open database; caller closes it
//   - *journal.Recorder: Observer that persists session events
//   - error: If the database cannot be opened or migrated
func openJournal(ctx context.Context, cfg config.JournalConfig, log *logging.Logger) (*database.DB, *journal.Recorder, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening journal: %w", err)
	}

	applied, err := db.Migrate(ctx, migrations.FS)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("running journal migrations: %w", err)
	}
	log.Info("journal open", "path", db.Path(), "migrations_applied", applied)

	repo := journal.NewSQLiteRepository(db.DB)

	if cfg.Retention > 0 {
		pruned, pruneErr := repo.Prune(ctx, time.Now().Add(-cfg.Retention))
		if pruneErr != nil {
			// Stale rows are harmless; keep running.
			log.Warn("journal prune failed", "error", pruneErr)
		} else if pruned > 0 {
			log.Info("journal pruned", "rows", pruned, "retention", cfg.Retention)
		}
	}

	return db, journal.NewRecorder(repo, log.Component("journal")), nil
}

// interrupted reports whether a shutdown signal has cancelled ctx. A startup
// step that fails because of it is a clean shutdown, not a failure.
func interrupted(ctx context.Context) bool {
	return ctx.Err() != nil
}

// healthCheck verifies the connections the bridge depends on.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - mqttClient: Connected MQTT client
//   - db: Journal database (nil if disabled)
//   - influxClient: InfluxDB client (nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, mqttClient *mqtt.Client, db *database.DB, influxClient *influxdb.Client) error {
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("journal: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// closeBridge publishes "offline" and disconnects. The signal context is
// already cancelled by now, so a fresh one bounds the close.
func closeBridge(bridge *serialbridge.Bridge, log *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if err := bridge.Close(ctx); err != nil {
		log.Warn("offline beacon not published", "error", err)
	}
}
