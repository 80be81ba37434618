package main

import (
	"context"
	"net/http"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Cabritto-Corps/battlecore/internal/arena"
	"github.com/Cabritto-Corps/battlecore/internal/config"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := newLogger(cfg.Environment)
	defer log.Sync()

	ctx := context.Background()
	h := arena.NewHub(ctx, log)

	// Build the router with the hub injected.
	handler := arena.SetupRoutes(h)

	log.Info("arena listening", zap.String("addr", cfg.ListenAddr))
	if err := http.ListenAndServe(cfg.ListenAddr, handler); err != nil {
		log.Fatal("serve failed", zap.Error(err))
	}
}

func newLogger(env string) *zap.Logger {
	if env == "production" {
		log, err := zap.NewProduction()
		if err != nil {
			panic(err)
		}
		return log
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return log
}
