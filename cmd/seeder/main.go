// cmd/seeder/main.go
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/unclebandit/smsleopard-dashboard/internal/auth"
	"github.com/unclebandit/smsleopard-dashboard/internal/model"
)

func main() {
	dsn := os.Getenv("DATABASE_URL")
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	seedFiles := []string{
		"seed/schema.sql",
		"seed/campaigns.sql",
	}

	for _, file := range seedFiles {
		content, err := os.ReadFile(file)
		if err != nil {
			log.Fatalf("failed to read %s: %v", file, err)
		}

		_, err = db.Exec(string(content))
		if err != nil {
			log.Fatalf("failed to execute %s: %v", file, err)
		}
		fmt.Printf("Seeded: %s\n", file)
	}

	// Hand out a dev credential so the dashboard can log straight in.
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-secret-change-me"
	}
	token, err := auth.Issue(secret, model.User{ID: 1, Email: "dev@smsleopard.local"}, 24*time.Hour)
	if err != nil {
		log.Fatalf("failed to issue dev token: %v", err)
	}

	fmt.Println("Database seeding completed successfully!")
	fmt.Println("Dev token:", token)
}
