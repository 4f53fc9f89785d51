package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/scamwatch/portal/internal/authstub/app"
)

func main() {
	// Local overrides live in .env; absence is fine
	_ = godotenv.Load()

	cfg := app.LoadConfig()

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
