package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cieplik206/dokumenty/api/handlers"
	"github.com/cieplik206/dokumenty/api/routes"
	"github.com/cieplik206/dokumenty/config"
	"github.com/cieplik206/dokumenty/internal/agent/raster"
	"github.com/cieplik206/dokumenty/internal/repository"
	"github.com/cieplik206/dokumenty/internal/service/intake"
	"github.com/cieplik206/dokumenty/internal/utils/validator"
	"github.com/cieplik206/dokumenty/pkg/logger"
)

func main() {
	appCfg := config.GetAppConfig()

	log, err := logger.NewLogger(
		logger.WithLevel(appCfg.LogLevel),
		logger.WithEncoding(appCfg.LogEncoding),
		logger.WithOutputPaths([]string{"stdout", "logs/server.log"}),
		logger.WithInitialFields(map[string]interface{}{"service": "server", "env": appCfg.Env}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := intake.GetService(ctx, repository.ServerPoolOptions(), log)
	if err != nil {
		log.Fatal("Failed to get intake service", logger.Error(err))
	}
	defer rt.Close()

	uploads := validator.NewUploadValidator(rt.Config.Upload, log)
	h := handlers.NewHandlers(rt.Service, uploads, healthChecks(rt), log)

	if appCfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = rt.Config.Upload.MaxBytes
	routes.SetupRoutes(r, h, log, appCfg.CORSOrigins...)

	srv := &http.Server{
		Addr:              appCfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server starting", logger.String("addr", appCfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
		os.Exit(1)
	}
}

// healthChecks probes the database, redis and the configured renderer.
func healthChecks(rt *intake.Runtime) map[string]handlers.Check {
	checks := map[string]handlers.Check{
		"redis": func(ctx context.Context) error {
			return rt.Redis.Ping(ctx).Err()
		},
	}
	if rt.DB != nil {
		checks["database"] = rt.DB.PingContext
	}
	if rt.Config.Raster.Backend == raster.BackendPdftoppm {
		checks["pdftoppm"] = func(context.Context) error {
			if !rt.Components.Toolchain.Available() {
				return errors.New(raster.MissingPdftoppmMessage)
			}
			return nil
		}
	}
	return checks
}
