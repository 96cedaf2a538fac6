package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mikeboe/derma-research/pkg/clients"
	"github.com/mikeboe/derma-research/pkg/clinic"
	"github.com/mikeboe/derma-research/pkg/config"
	"github.com/mikeboe/derma-research/pkg/database"
	"github.com/mikeboe/derma-research/pkg/diagnosis"
	"github.com/mikeboe/derma-research/pkg/logging"
	"github.com/mikeboe/derma-research/pkg/metrics"
	"github.com/mikeboe/derma-research/pkg/research"
	"github.com/mikeboe/derma-research/pkg/server"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(logging.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Info("No .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.InitSchema(ctx); err != nil {
		logger.Error("Failed to initialize schema", "error", err)
		os.Exit(1)
	}

	engine, err := clients.NewResearchEngine(ctx, cfg, logger, research.LoopOverrides{})
	if err != nil {
		logger.Error("Failed to initialize research engine", "error", err)
		os.Exit(1)
	}

	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		engine.Observer = metrics.NewRecorder(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	store := clinic.NewStore(db.Pool, logger)
	svc := server.NewService(server.NewPGJobStore(db), store, engine, diagnosis.NewRandomClassifier(nil), cfg.ResearchTimeout)
	svc.Logger = logger
	handler := server.NewHandler(store, svc, metricsHandler)

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))
	handler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Failed to start server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", "error", err)
	}
	svc.Wait()
}
