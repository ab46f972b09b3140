package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/coordinator"
	"github.com/example/ride-dispatch/internal/directions"
	"github.com/example/ride-dispatch/internal/directory"
	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/fare"
	"github.com/example/ride-dispatch/internal/geo"
	httpapi "github.com/example/ride-dispatch/internal/http"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/logging"
	"github.com/example/ride-dispatch/internal/payments"
	"github.com/example/ride-dispatch/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.NewLogger("dispatch-api", cfg.LogLevel)

	if cfg.PGDSN != "" && cfg.RunMigrations {
		if err := runMigrations(cfg.PGDSN); err != nil {
			logger.Error("migration failed", "error", err)
		}
	}

	var idx geo.Index
	if cfg.RedisAddr != "" {
		idx = geo.NewRedisGeo(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
	} else {
		mem := geo.NewMemIndex()
		mem.MaxAge = cfg.PresenceMaxAge
		idx = mem
	}

	var store storage.RideStore
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		store = ps
	} else {
		store = storage.NewMemoryStore()
	}

	var provider directions.Provider
	switch {
	case cfg.MapsAPIKey != "":
		provider, err = directions.NewGoogleProvider(cfg.MapsAPIKey, cfg.MapsRegion)
		if err != nil {
			log.Fatalf("maps: %v", err)
		}
	case cfg.DistanceAPIURL != "":
		provider = directions.NewTextAPIProvider(cfg.DistanceAPIURL)
	case cfg.OSRMEndpoint != "":
		provider = directions.NewOSRMProvider(cfg.OSRMEndpoint)
	default:
		log.Fatal("no distance provider configured: set MAPS_API_KEY, DISTANCE_API_URL or OSRM_ENDPOINT")
	}

	var users coordinator.UserDirectory
	var captains httpapi.CaptainDirectory
	if base := os.Getenv("DIRECTORY_URL"); base != "" {
		client := directory.NewClient(base)
		users = client
		captains = client
	}

	reg := dispatch.NewRegistry()
	hub := dispatch.NewWSHub(logger)
	var channel dispatch.Channel = hub
	if cfg.PushGatewayURL != "" {
		channel = &dispatch.FallbackChannel{
			Primary:  hub,
			Fallback: dispatch.NewPushChannel(cfg.PushGatewayURL, cfg.PushGatewayKey, logger),
		}
	}

	coord := coordinator.New(store, idx, fare.DefaultRates(), provider, reg, channel, users, logger)
	coord.RadiusKm = cfg.DispatchRadiusKm
	coord.NotifyLimit = cfg.NotifyLimit
	if cfg.StripeAPIKey != "" {
		coord.Payments = payments.NewStripeGateway(cfg.StripeAPIKey, cfg.StripeCurrency)
	}

	var producer *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		producer = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaLocationTopic, cfg.KafkaEventTopic)
		coord.Events = producer
		defer producer.Close()
	}

	srv := httpapi.NewServer(coord, idx, hub, reg, logger)
	srv.Kafka = producer
	srv.Captains = captains

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("ride-dispatch listening", "addr", cfg.HTTPAddr, "radius_km", cfg.DispatchRadiusKm)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
}

func runMigrations(dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_rides.sql"))
	if err != nil {
		return err
	}
	_, err = db.Exec(string(b))
	return err
}
