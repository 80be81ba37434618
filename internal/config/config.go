// Package config loads settings from the environment with sane local
// defaults. `.env` files are loaded by the binaries, not here.
package config

import "os"

type Config struct {
	// ListenAddr is where the arena backend serves HTTP + websocket.
	ListenAddr string
	// ArenaURL is the backend base URL the client core talks to.
	ArenaURL string
	// RealtimeURL is the websocket realtime endpoint.
	RealtimeURL string
	// RedisAddr enables the Redis transport adapter when set.
	RedisAddr string
	// Environment switches log formatting ("production" means JSON).
	Environment string
}

func Load() Config {
	return Config{
		ListenAddr:  getenv("ARENA_LISTEN_ADDR", ":8080"),
		ArenaURL:    getenv("ARENA_URL", "http://localhost:8080"),
		RealtimeURL: getenv("REALTIME_URL", "ws://localhost:8080/realtime"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		Environment: getenv("APP_ENV", "development"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
