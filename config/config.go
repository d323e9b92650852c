// Package config loads process configuration from the environment,
// following the same .env-then-os.Getenv pattern the rest of this codebase
// was bootstrapped from.
package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds every environment-derived setting the server needs at
// startup. Nothing here is mutated after Load returns.
type Config struct {
	ConnectionString  string
	ServerPort        string
	MachineIDPath     string
	AIAdminListenAddr string
	AIAdminBaseURL    string
	BootstrapSchema   bool
}

// Load reads a .env file if present (missing is not an error, matching the
// teacher's main.go) and then required environment variables. It fails
// loudly if a value with no sane default is absent.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		ConnectionString:  os.Getenv("CONNECTION_STRING"),
		ServerPort:        getOr("SERVER_PORT", ":8080"),
		MachineIDPath:     getOr("MACHINE_ID_PATH", "/etc/machine-id"),
		AIAdminListenAddr: getOr("AI_ADMIN_LISTEN_ADDR", ":1918"),
		AIAdminBaseURL:    getOr("AI_ADMIN_BASE_URL", "http://localhost:1918"),
		BootstrapSchema:   os.Getenv("GOBANSERVER_BOOTSTRAP_SCHEMA") == "1",
	}

	if cfg.ConnectionString == "" {
		return nil, fmt.Errorf("CONNECTION_STRING is required")
	}

	return cfg, nil
}

func getOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
