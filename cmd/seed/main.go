// Seeds a dev installation credential and prints the env lines the agent
// needs to authenticate.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"coinflow/internal/auth"
	"coinflow/internal/domain"
	"coinflow/internal/repository/postgres"
)

func main() {
	_ = godotenv.Load()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	secretBytes := make([]byte, 24)
	if _, err := rand.Read(secretBytes); err != nil {
		log.Fatalf("Failed to generate secret: %v", err)
	}
	secret := hex.EncodeToString(secretBytes)

	hash, err := auth.HashSecret(secret)
	if err != nil {
		log.Fatalf("Failed to hash secret: %v", err)
	}

	inst := &domain.Installation{
		ID:         uuid.New(),
		UserUID:    uuid.New(),
		SecretHash: hash,
		CreatedAt:  time.Now().UTC(),
	}

	repo := postgres.NewInstallationRepository(db)
	if err := repo.Create(context.Background(), inst); err != nil {
		log.Fatalf("Failed to create installation: %v", err)
	}

	fmt.Println("Installation created. Agent environment:")
	fmt.Printf("AGENT_INSTALLATION_ID=%s\n", inst.ID)
	fmt.Printf("AGENT_INSTALLATION_SECRET=%s\n", secret)
	fmt.Printf("# user uid: %s\n", inst.UserUID)
}
