package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-commute/internal/auth"
	"github.com/ukydev/fleet-commute/internal/config"
	"github.com/ukydev/fleet-commute/internal/db"
	"github.com/ukydev/fleet-commute/internal/handlers"
	"github.com/ukydev/fleet-commute/internal/lock"
	"github.com/ukydev/fleet-commute/internal/notify"
	"github.com/ukydev/fleet-commute/internal/relay"
	"github.com/ukydev/fleet-commute/internal/seed"
	"github.com/ukydev/fleet-commute/internal/trips"
)

const (
	shutdownTimeout = 15 * time.Second
	lockLease       = 10 * time.Second
)

// stores bundles the collections behind one backend.
type stores struct {
	trips    db.TripCollection
	vehicles db.VehicleCollection
	routes   db.RouteCollection
	users    db.UserCollection
	close    func(context.Context) error
}

func configureLogging(cfg *config.Config) error {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Store == config.StoreMemory {
		log.Warn("Using in-memory store; data is lost on restart")
		return &stores{
			trips:    db.NewMemoryTripCollection(),
			vehicles: db.NewMemoryVehicleCollection(),
			routes:   db.NewMemoryRouteCollection(),
			users:    db.NewMemoryUserCollection(),
			close:    func(context.Context) error { return nil },
		}, nil
	}

	client, err := db.ConnectMongo(cfg.MongoURI)
	if err != nil {
		return nil, err
	}
	database := client.Database(cfg.MongoDB)
	if err := db.EnsureIndexes(ctx, database); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	log.WithField("database", cfg.MongoDB).Info("Connected to MongoDB")
	return &stores{
		trips:    &db.MongoTripCollection{Collection: database.Collection(db.TripsCollection)},
		vehicles: &db.MongoVehicleCollection{Collection: database.Collection(db.VehiclesCollection)},
		routes:   &db.MongoRouteCollection{Collection: database.Collection(db.RoutesCollection)},
		users:    &db.MongoUserCollection{Collection: database.Collection(db.UsersCollection)},
		close:    client.Disconnect,
	}, nil
}

// newLocker returns a Redis lock shared by every replica when REDIS_ADDR is set, and a
// process-local one otherwise.
func newLocker(ctx context.Context, cfg *config.Config) (lock.Locker, func(), error) {
	if cfg.RedisAddr == "" {
		return lock.NewKeyedMutex(), func() {}, nil
	}
	client, err := lock.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return nil, nil, err
	}
	log.WithField("addr", cfg.RedisAddr).Info("Using Redis trip locks")
	return lock.NewRedisLocker(client, lockLease), func() { _ = client.Close() }, nil
}

// newNotifier fans trip events out to the websocket relay and, when MQTT_BROKER is set,
// to MQTT.
func newNotifier(cfg *config.Config, r *relay.Relay) (notify.Notifier, func(), error) {
	if cfg.MQTTBroker == "" {
		return r, func() {}, nil
	}
	client, err := notify.ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientID)
	if err != nil {
		return nil, nil, err
	}
	log.WithField("broker", cfg.MQTTBroker).Info("Publishing trip events to MQTT")
	return notify.Multi{r, notify.NewMQTTPublisher(client, cfg.MQTTTopicPrefix)},
		func() { client.Disconnect(250) }, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	authService, err := auth.NewService()
	if err != nil {
		return err
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := st.close(closeCtx); err != nil {
			log.WithError(err).Warn("Failed to close store")
		}
	}()

	if cfg.Store == config.StoreMemory {
		if _, err := seed.Demo(ctx, st.users, st.vehicles, authService.HashPassword); err != nil {
			return err
		}
	}

	locker, closeLocker, err := newLocker(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLocker()

	hub := relay.New(cfg.LocationPromptInterval, cfg.DriverPromptInterval)
	notifier, closeNotifier, err := newNotifier(cfg, hub)
	if err != nil {
		return err
	}
	defer closeNotifier()

	engine := trips.NewEngine(st.trips, auth.Gate{},
		trips.WithLocker(locker),
		trips.WithNotifier(notifier),
		trips.WithDirectory(trips.StoreDirectory{Users: st.users, Vehicles: st.vehicles}),
		trips.WithHistoryLimit(cfg.LocationHistoryLimit),
	)

	relayCtx, stopRelay := context.WithCancel(ctx)
	defer stopRelay()
	go hub.Run(relayCtx)

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: handlers.NewRouter(handlers.RouterDeps{
			Auth:               authService,
			Engine:             engine,
			Users:              st.users,
			Vehicles:           st.vehicles,
			Routes:             st.routes,
			Trips:              st.trips,
			Relay:              hub,
			ClientURL:          cfg.ClientURL,
			RateLimitPerMinute: cfg.RateLimitPerMinute,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{"port": cfg.Port, "store": cfg.Store}).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	stopRelay()
	return server.Shutdown(shutdownCtx)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}
	if err := configureLogging(cfg); err != nil {
		log.WithError(err).Fatal("Invalid log level")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.WithError(err).Fatal("Server stopped")
	}
}
