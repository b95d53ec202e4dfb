package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stagg_bridge/internal/coordinator"
	"stagg_bridge/internal/handlers"
	"stagg_bridge/internal/kettle"
	"stagg_bridge/internal/logger"
	"stagg_bridge/internal/models"
	"stagg_bridge/internal/repository"
	"stagg_bridge/internal/repository/db"
	"stagg_bridge/internal/server"
	"stagg_bridge/internal/service"

	"github.com/spf13/viper"
)

const defaultPollTick = 5 * time.Second

func main() {
	// init logger
	log := logger.Get(logger.InfoLevel)

	// load config.yml
	if err := loadConfig(); err != nil {
		log.Fatalw("error reading config", "err", err)
	}

	// open DB
	conn, err := openDB(log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Fatalw("failed to close sqlite", "err", cerr)
		}
	}()

	// wire dependencies
	repos := repository.NewRepository(conn)

	transport, err := buildTransport(log)
	if err != nil {
		log.Fatalw("failed to build kettle transport", "err", err)
	}

	coord := coordinator.New(transport, coordinatorConfig(), eventSink(repos, log), log)
	defer func() {
		if cerr := coord.Close(); cerr != nil {
			log.Warnw("failed to close coordinator", "err", cerr)
		}
	}()

	services := service.NewService(repos, coord, log)
	apiHandler := handlers.NewHandler(services, log)

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// start polling loop (via composed service)
	go services.Poller.Run(ctx, pollTick())

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, viper.GetString("port"), apiHandler, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, log)
}

// ... existing code ...

func loadConfig() error {
	viper.AddConfigPath("configs") // configs/config.yml
	viper.SetConfigName("config")
	return viper.ReadInConfig()
}

// openDB initializes the SQLite database using configuration.
func openDB(log *logger.Logger) (*sql.DB, error) {
	dbPath := viper.GetString("db.path")
	if dbPath == "" {
		log.Infow("db.path not set in config; using default file", "default", "app.db")
		dbPath = "app.db"
	}
	return db.InitDB(dbPath)
}

// buildTransport constructs the configured kettle transport, BLE or HTTP.
func buildTransport(log *logger.Logger) (kettle.Transport, error) {
	switch kind := viper.GetString("kettle.transport"); kind {
	case "", "ble":
		return kettle.NewBLEClient(kettle.BLEConfig{
			Address:     viper.GetString("kettle.address"),
			ServiceUUID: viper.GetString("kettle.service_uuid"),
			CharUUID:    viper.GetString("kettle.char_uuid"),
			Framing:     viper.GetString("kettle.framing"),
			ScanTimeout: viper.GetDuration("kettle.scan_timeout"),
			Layout:      frameLayout(),
		}, log)
	case "http":
		return kettle.NewHTTPClient(kettle.HTTPConfig{
			BaseURL: viper.GetString("kettle.base_url"),
			CLIPath: viper.GetString("kettle.cli_path"),
			Timeout: viper.GetDuration("kettle.http_timeout"),
		}, log)
	default:
		return nil, fmt.Errorf("unknown kettle.transport %q (want ble or http)", kind)
	}
}

// frameLayout applies config overrides for the reverse-engineered primary
// framing. Missing keys keep the captured defaults.
func frameLayout() kettle.FrameLayout {
	layout := kettle.DefaultFrameLayout()
	if viper.IsSet("kettle.frame.current_temp_offset") {
		layout.CurrentTempOffset = viper.GetInt("kettle.frame.current_temp_offset")
	}
	if viper.IsSet("kettle.frame.target_temp_offset") {
		layout.TargetTempOffset = viper.GetInt("kettle.frame.target_temp_offset")
	}
	if viper.IsSet("kettle.frame.temp_scale") {
		layout.TempScale = viper.GetFloat64("kettle.frame.temp_scale")
	}
	if viper.IsSet("kettle.frame.fahrenheit_bit") {
		layout.FahrenheitBit = uint16(viper.GetUint32("kettle.frame.fahrenheit_bit"))
	}
	if viper.IsSet("kettle.frame.state_offset") {
		layout.StateOffset = viper.GetInt("kettle.frame.state_offset")
	}
	return layout
}

func coordinatorConfig() coordinator.Config {
	return coordinator.Config{
		DebounceWindow:   viper.GetDuration("kettle.debounce_window"),
		FailureThreshold: viper.GetInt("kettle.failure_threshold"),
		CommandTimeout:   viper.GetDuration("kettle.command_timeout"),
	}
}

// eventSink persists coordinator lifecycle events to the event log.
func eventSink(repos *repository.Repository, log *logger.Logger) coordinator.EventSink {
	return func(e models.KettleEvent) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := repos.EventRepo.Append(ctx, e); err != nil {
			log.Warnw("failed to persist kettle event", "type", e.Type, "err", err)
		}
	}
}

func pollTick() time.Duration {
	if d := viper.GetDuration("kettle.poll_interval"); d > 0 {
		return d
	}
	return defaultPollTick
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// stop background goroutines
	cancel()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
