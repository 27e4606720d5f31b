package main

import (
	"github.com/joho/godotenv"

	"wallet-ticket-service/cmd"
)

func main() {
	// Optional .env for local development; real deployments use the environment.
	godotenv.Load()

	cmd.Execute()
}
