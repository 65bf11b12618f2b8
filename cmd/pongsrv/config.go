package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is loaded from the environment, with an optional .env file for
// development. Every knob has a default good enough to run locally
// against the in-memory store.
type Config struct {
	ListenAddr string
	DBDSN      string
	DebugLevel string
	TickHz     int
	MaxScore   int
}

func loadConfig() (*Config, error) {
	// Missing .env is fine, the environment wins anyway.
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr: envOr("PONG_LISTEN_ADDR", ":8080"),
		DBDSN:      os.Getenv("PONG_DB_DSN"),
		DebugLevel: envOr("PONG_DEBUG_LEVEL", "info"),
	}

	var err error
	if cfg.TickHz, err = envInt("PONG_TICK_HZ", 30); err != nil {
		return nil, err
	}
	if cfg.MaxScore, err = envInt("PONG_MAX_SCORE", 5); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s: expected a positive integer, got %q", key, v)
	}
	return n, nil
}
