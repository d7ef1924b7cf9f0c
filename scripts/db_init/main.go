package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	dbfs "github.com/garnizeh/campuscare/db"
	"github.com/garnizeh/campuscare/internal/config"
	"github.com/garnizeh/campuscare/internal/db"
	"github.com/garnizeh/campuscare/internal/repository/sqlite"
	"github.com/garnizeh/campuscare/pkg/models"
)

func main() {
	configPath := flag.String("config", "", "Path to config YAML file")
	userID := flag.String("profile-user", "", "Seed a profile for this user id")
	name := flag.String("profile-name", "", "Full name of the seeded profile")
	roll := flag.String("profile-roll", "", "Roll number of the seeded profile")
	userType := flag.String("profile-type", "student", "User type of the seeded profile")
	flag.Parse()

	ctx := context.Background()
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	database, err := db.New(ctx, cfg.DatabasePath, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DB init error: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.Migrate(ctx, database, dbfs.Migrations); err != nil {
		fmt.Fprintf(os.Stderr, "Migration runner error: %v\n", err)
		os.Exit(1)
	}

	if *userID != "" {
		repo := sqlite.New(database, nil)
		p := &models.Profile{UserID: *userID, FullName: *name, RollNumber: *roll, UserType: *userType}
		if err := repo.UpsertProfile(ctx, p); err != nil {
			fmt.Fprintf(os.Stderr, "Seed profile error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Profile for %s seeded.\n", *userID)
	}

	fmt.Printf("Database %s initialized successfully.\n", cfg.DatabasePath)
}
