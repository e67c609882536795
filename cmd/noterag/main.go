package main

import (
	"github.com/joho/godotenv"

	"noterag/internal/cli"
)

func main() {
	// API keys may live in a .env file next to the vault; absence is fine.
	_ = godotenv.Load()

	cli.Execute()
}
