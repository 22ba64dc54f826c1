package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/autocare360/autocare-backend/internal/config"
	"github.com/autocare360/autocare-backend/internal/database"
	"github.com/autocare360/autocare-backend/internal/handlers"
	"github.com/autocare360/autocare-backend/internal/migrations"
	"github.com/autocare360/autocare-backend/internal/realtime"
	"github.com/autocare360/autocare-backend/internal/routes"
	"github.com/autocare360/autocare-backend/pkg/logger"
	"github.com/gin-gonic/gin"
)

func main() {
	config.LoadConfig()
	env := config.AppConfig.Env
	logger.Init(env)

	logger.Info().Str("environment", env).Msg("Starting AutoCare360 messaging backend...")

	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	database.Connect()
	database.InitRedis()

	if err := migrations.NewMigrator(database.DB).Run(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run database migrations")
	}
	logger.Info().Msg("Database migrations complete")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := realtime.NewHub(database.Redis, config.AppConfig.PushChannel, logger.Log)
	handlers.Hub = hub
	go hub.Run(ctx)

	r := gin.New()
	routes.Setup(r)

	port := config.AppConfig.Port
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("port", port).Str("env", env).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down server gracefully...")

	// Hijacked websocket connections are not covered by Shutdown.
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
