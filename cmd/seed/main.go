// Command seed loads the demo users and vehicles into MongoDB.
package main

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-commute/internal/auth"
	"github.com/ukydev/fleet-commute/internal/config"
	"github.com/ukydev/fleet-commute/internal/db"
	"github.com/ukydev/fleet-commute/internal/seed"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}
	if cfg.Store != config.StoreMongo {
		log.Fatal("seed writes to MongoDB; the in-memory store seeds itself on startup")
	}

	authService, err := auth.NewService()
	if err != nil {
		log.WithError(err).Fatal("Invalid auth configuration")
	}

	client, err := db.ConnectMongo(cfg.MongoURI)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	defer func() { _ = client.Disconnect(context.Background()) }()

	database := client.Database(cfg.MongoDB)
	if err := db.EnsureIndexes(ctx, database); err != nil {
		log.WithError(err).Fatal("Failed to create indexes")
	}

	res, err := seed.Demo(ctx,
		&db.MongoUserCollection{Collection: database.Collection(db.UsersCollection)},
		&db.MongoVehicleCollection{Collection: database.Collection(db.VehiclesCollection)},
		authService.HashPassword,
	)
	if err != nil {
		log.WithError(err).Fatal("Seeding failed")
	}

	for _, du := range seed.DemoUsers {
		log.WithFields(log.Fields{
			"username": du.Username,
			"password": du.Password,
			"role":     du.Role,
			"user_id":  res.Users[du.Role].Hex(),
		}).Info("Demo account")
	}
	log.WithField("vehicles", len(res.Vehicles)).Info("Demo data ready")
}
