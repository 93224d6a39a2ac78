package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aquamon/internal/cache"
	"aquamon/internal/config"
	"aquamon/internal/database"
	"aquamon/internal/handlers"
	"aquamon/internal/logger"
	"aquamon/internal/models"
	"aquamon/internal/publish"
	"aquamon/internal/services"
	"aquamon/internal/stream"
	"aquamon/internal/upstream"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.json", "Path to config file")
	dbPath := flag.String("db", "", "Path to SQLite database file (overrides config)")
	port := flag.String("port", "", "Server port (overrides config)")
	simulate := flag.Bool("simulate", false, "Use simulated readings instead of ThingSpeak")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfigWithDefaults(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Override with command line flags if provided
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *simulate {
		cfg.Simulator.Enabled = true
	}

	appLog := logger.NewLogger(cfg.Logging)
	if err := run(cfg, appLog); err != nil {
		appLog.Fatal().Err(err).Msg("server stopped with error")
	}
}

func run(cfg *config.Config, appLog *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	seed := models.Setpoints{
		Temp:  models.TempBand{Min: cfg.Setpoints.TempMin, Max: cfg.Setpoints.TempMax},
		Level: models.LevelBand{Min: cfg.Setpoints.LevelMin, Max: cfg.Setpoints.LevelMax},
	}

	// Initialize database
	store, err := database.Open(ctx, cfg.Database, seed)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()
	appLog.Info().Str("driver", cfg.Database.Driver).Msg("database initialized")

	// Upstream source: the ThingSpeak channel, or the simulator
	generator := services.NewGenerator(seed, cfg.Simulator.Seed, appLog)
	var fetcher services.Fetcher = generator
	if !cfg.Simulator.Enabled {
		if cfg.ThingSpeak.ChannelID == "" {
			appLog.Warn().Msg("thingspeak channel_id is not set, every fetch will fall back to placeholder readings")
		}
		client, err := upstream.NewClient(upstream.Options{
			BaseURL:    cfg.ThingSpeak.BaseURL,
			ChannelID:  cfg.ThingSpeak.ChannelID,
			ReadAPIKey: cfg.ThingSpeak.ReadAPIKey,
			Timeout:    cfg.ThingSpeak.Timeout.Duration,
			MaxRetries: cfg.ThingSpeak.MaxRetries,
			RetryDelay: cfg.ThingSpeak.RetryDelay.Duration,
		}, appLog)
		if err != nil {
			return fmt.Errorf("failed to create thingspeak client: %w", err)
		}
		fetcher = client
	} else {
		appLog.Info().Msg("simulator enabled, ThingSpeak is not contacted")
	}

	// Fan-out sinks
	hub := stream.NewHub(appLog)
	defer hub.Close()
	sinks := []services.Sink{hub}

	queryService := services.NewQueryService(store, fetcher, appLog)

	if cfg.Redis.Addr != "" {
		latest, err := cache.NewLatestCache(ctx, cfg.Redis.Addr, cfg.Redis.TTL.Duration)
		if err != nil {
			appLog.Warn().Err(err).Msg("latest-reading cache disabled")
		} else {
			defer latest.Close()
			sinks = append(sinks, latest)
			queryService.SetCache(latest)
			appLog.Info().Str("addr", cfg.Redis.Addr).Msg("latest-reading cache enabled")
		}
	}

	if cfg.MQTT.Broker != "" {
		publisher, err := publish.NewMQTTPublisher(cfg.MQTT, appLog)
		if err != nil {
			appLog.Warn().Err(err).Msg("mqtt republishing disabled")
		} else {
			defer publisher.Close()
			sinks = append(sinks, publisher)
			appLog.Info().Str("broker", cfg.MQTT.Broker).Str("topic", cfg.MQTT.Topic).Msg("mqtt republishing enabled")
		}
	}

	// Start the collector
	collector := services.NewCollector(fetcher, store, cfg.Collector.Interval.Duration, appLog, sinks...)
	task := collector.Start(ctx)
	defer task.Stop()

	// Initialize handlers
	loader := services.NewLoader(store, appLog)
	router := handlers.NewRouter(handlers.Routes{
		Query:     handlers.NewQueryHandler(queryService, appLog),
		Setpoints: handlers.NewSetpointsHandler(store, appLog),
		Health:    handlers.NewHealthHandler(store, collector),
		Load:      handlers.NewLoadHandler(loader, cfg.Data.RawDataFolder),
		Upload:    handlers.NewUploadHandler(loader),
		Generator: handlers.NewGeneratorHandler(generator, store),
		Stream:    hub.ServeWS,
	}, appLog)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info().Str("addr", addr).Msg("server starting")
		appLog.Info().Msg("API endpoints: GET /api/temperature/latest, GET /api/temperature?startDate=&endDate=, " +
			"GET /api/temperature/current, GET /api/setpoints, POST /api/load, POST /api/upload-csv, " +
			"POST /api/generate-dummy, GET /ws, GET /health")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		appLog.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
