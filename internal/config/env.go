package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// loadEnv loads .env from the working directory, falling back to
// ~/.toolturn.env. Existing environment variables are never replaced.
func loadEnv() {
	if err := godotenv.Load(); err != nil {
		home, err := os.UserHomeDir()
		if err == nil {
			_ = godotenv.Load(filepath.Join(home, "."+appName+".env"))
		}
	}
}
