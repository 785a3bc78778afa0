// Package config loads application settings from the environment, with
// defaults suitable for local development.
package config

import (
	"fmt"
	"os"
)

const (
	defaultAPIAddr   = ":8080"
	defaultRedisAddr = "localhost:6379"
	defaultDBHost    = "localhost"
	defaultDBPort    = "5432"
	defaultDBUser    = "user"
	defaultDBName    = "gorandomdb"
)

type Config struct {
	APIAddr    string
	RedisAddr  string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	JWTSecret  string
}

// Load reads the configuration from environment variables.
func Load() Config {
	return Config{
		APIAddr:    envOr("API_ADDR", defaultAPIAddr),
		RedisAddr:  envOr("REDIS_ADDR", defaultRedisAddr),
		DBHost:     envOr("DB_HOST", defaultDBHost),
		DBPort:     envOr("DB_PORT", defaultDBPort),
		DBUser:     envOr("DB_USER", defaultDBUser),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     envOr("DB_NAME", defaultDBName),
		JWTSecret:  os.Getenv("JWT_SECRET"),
	}
}

// DSN builds the PostgreSQL connection string.
func (c Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
