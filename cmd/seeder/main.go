package main

import (
	"context"
	"log"

	"github.com/autocare360/autocare-backend/internal/config"
	"github.com/autocare360/autocare-backend/internal/database"
	"github.com/autocare360/autocare-backend/internal/migrations"
	"github.com/autocare360/autocare-backend/internal/seeds"
)

func main() {
	config.LoadConfig()
	database.Connect()

	log.Println("🔄 Running migrations (just in case)...")
	if err := migrations.NewMigrator(database.DB).Run(); err != nil {
		log.Fatalf("❌ Failed to migrate: %v", err)
	}

	users, err := seeds.SeedUsers(database.DB)
	if err != nil {
		log.Fatalf("❌ Failed to seed users: %v", err)
	}

	if err := seeds.SeedConversations(context.Background(), database.DB, users); err != nil {
		log.Fatalf("❌ Failed to seed conversations: %v", err)
	}

	log.Printf("✅ Seeding Complete! Every account uses the password %q", seeds.DefaultPassword)
}
