package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cieplik206/dokumenty/config"
	"github.com/cieplik206/dokumenty/internal/repository"
	"github.com/cieplik206/dokumenty/internal/service/intake"
	"github.com/cieplik206/dokumenty/pkg/logger"
	"github.com/cieplik206/dokumenty/pkg/worker"
)

func main() {
	appCfg := config.GetAppConfig()

	log, err := logger.NewLogger(
		logger.WithLevel(appCfg.LogLevel),
		logger.WithEncoding(appCfg.LogEncoding),
		logger.WithOutputPaths([]string{"stdout", "logs/worker.log"}),
		logger.WithInitialFields(map[string]interface{}{"service": "worker", "env": appCfg.Env}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := intake.GetService(ctx, repository.ServerPoolOptions(), log)
	if err != nil {
		log.Error("Failed to create intake service", logger.Error(err))
		os.Exit(1)
	}
	defer rt.Close()

	redisCfg := config.GetRedisConfig()
	workerCfg := &worker.Config{
		RedisAddr:     redisCfg.Addr,
		RedisPassword: redisCfg.Password,
		RedisDB:       redisCfg.DB,
		Concurrency:   rt.Config.Worker.Concurrency,
		Queues:        map[string]int{rt.Config.Worker.Queue: 1},
		JobTimeout:    rt.Config.Worker.JobTimeout,
	}

	intakeWorker := worker.NewIntakeWorker(workerCfg, rt.Service, rt.Locker, log)
	if err := intakeWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}
	log.Info("Worker started",
		logger.String("queue", rt.Config.Worker.Queue),
		logger.Int("concurrency", rt.Config.Worker.Concurrency),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down worker...")
	intakeWorker.Stop()
	log.Info("Worker stopped")
}
