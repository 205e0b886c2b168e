package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/zfogg/pulsefeed/backend/internal/database"
	"github.com/zfogg/pulsefeed/backend/internal/logger"
	"github.com/zfogg/pulsefeed/backend/internal/seed"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	if err := logger.Initialize(os.Getenv("LOG_LEVEL"), "seed.log"); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	if err := database.Initialize(); err != nil {
		logger.FatalWithFields("Failed to initialize database", err)
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		logger.FatalWithFields("Failed to run migrations", err)
	}

	seeder := seed.NewSeeder(database.DB)
	if err := seeder.SeedDev(); err != nil {
		logger.FatalWithFields("Seeding failed", err)
	}

	logger.Log.Info("Database seeded")
}
