package main

import (
    "log"
    "os"

    "github.com/joho/godotenv"

    "github.com/gin-gonic/gin"
    "go.uber.org/zap"

    "github.com/ydelhoste/emargement_backend/internal/config"
    "github.com/ydelhoste/emargement_backend/internal/database"
    "github.com/ydelhoste/emargement_backend/internal/fanout"
    "github.com/ydelhoste/emargement_backend/internal/routes"
)

func main() {
    // Load .env (non-fatal if missing in production)
    _ = godotenv.Load()

    cfg := config.Load()

    logger, err := zap.NewProduction()
    if err != nil {
        log.Fatalf("logger init failed: %v", err)
    }
    defer logger.Sync()

    db, err := database.Connect(cfg)
    if err != nil {
        log.Fatalf("database connection failed: %v", err)
    }

    if err := database.Migrate(db); err != nil {
        log.Fatalf("database migration failed: %v", err)
    }

    if err := database.SeedAdmin(db, cfg); err != nil {
        log.Fatalf("admin seed failed: %v", err)
    }

    bus := fanout.NewBus()
    go bus.Run()

    r := gin.Default()
    routes.Register(r, db, cfg, logger, bus)

    port := cfg.Port
    if port == "" {
        port = "8080"
    }

    if err := r.Run(":" + port); err != nil {
        logger.Error("server exited with error", zap.Error(err))
        os.Exit(1)
    }
}
