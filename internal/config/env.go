package config

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadEnvFile loads environment variables from .env/.env.local ahead of
// config parsing so ${VAR} references in the YAML resolve. Existing process
// environment variables are not overwritten. Missing files are not an
// error.
func LoadEnvFile() {
	for _, path := range []string{".env", ".env.local"} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		_ = godotenv.Load(path)
	}
}
