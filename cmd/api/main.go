package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"technician-tracking/internal/api"
	"technician-tracking/internal/config"
	"technician-tracking/internal/models"
	"technician-tracking/internal/modules/tracking"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

func main() {
	// 1. --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).Level(level).With().
		Timestamp().
		Str("service", "technician-tracking").
		Logger()

	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()

	// 2. --- Middleware ---
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{cfg.ClientOrigin},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	// 3. --- Database Connection ---
	dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to parse database configuration")
	}
	dbPool, err := pgxpool.NewWithConfig(context.Background(), dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to create connection pool")
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("unable to ping database")
	}
	log.Info().Msg("connected to the database")

	// 4. --- Dependency Injection ---
	trackingRepo := tracking.NewRepository(dbPool)

	// Each tracked technician polls the latest-location table independently,
	// so one slow query never stalls the rest of the fleet.
	pollSource := func(technicianID string) tracking.PollFunc {
		return func(ctx context.Context) (*models.LocationUpdate, error) {
			return trackingRepo.LatestLocation(ctx, technicianID)
		}
	}
	registry := tracking.NewRegistry(
		pollSource,
		time.Duration(cfg.FleetPollSeconds)*time.Second,
		log.With().Str("component", "registry").Logger(),
	)
	defer registry.Stop()

	trackingService := tracking.NewService(trackingRepo, registry, tracking.ServiceConfig{
		RefreshInterval:     time.Duration(cfg.TechnicianPollSeconds) * time.Second,
		ArrivingSoonMinutes: cfg.ArrivingSoonMinutes,
		SessionTTL:          time.Duration(cfg.SessionTTLHours) * time.Hour,
	}, log.With().Str("component", "service").Logger())
	trackingHandler := tracking.NewHandler(trackingService, registry)

	// 5. --- Router ---
	api.SetupRoutes(e, cfg.JWTSecret, trackingHandler)

	// 6. --- Start Server with graceful shutdown ---
	go func() {
		if err := e.Start(":" + cfg.ServerPort); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("shutting down the server, an error occurred")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exiting")
}
