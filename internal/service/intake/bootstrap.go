package intake

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/cieplik206/dokumenty/config"
	"github.com/cieplik206/dokumenty/internal/agent"
	"github.com/cieplik206/dokumenty/internal/agent/vision"
	"github.com/cieplik206/dokumenty/internal/media"
	"github.com/cieplik206/dokumenty/internal/repository"
	"github.com/cieplik206/dokumenty/pkg/logger"
	"github.com/cieplik206/dokumenty/pkg/queue"
	"github.com/cieplik206/dokumenty/pkg/storage"
)

// Runtime is the wired process state shared by the server and the worker.
type Runtime struct {
	Service    *Service
	Components *agent.Components
	Store      repository.Store
	Storage    storage.Storage
	DB         *sql.DB
	Redis      *redis.Client
	Queue      *queue.AsynqQueue
	Locker     queue.Locker
	Config     *config.IntakeConfig
}

// GetService wires the intake service from the environment. Without a
// DATABASE_URL intakes live in memory, which only suits single process runs.
func GetService(ctx context.Context, pool repository.PoolOptions, log logger.Logger) (*Runtime, error) {
	appCfg := config.GetAppConfig()
	redisCfg := config.GetRedisConfig()

	intakeCfg, err := config.GetIntakeConfig()
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Config: intakeCfg}
	if appCfg.DatabaseURL != "" {
		db, err := repository.Connect(ctx, appCfg.DatabaseURL, pool, log)
		if err != nil {
			return nil, err
		}
		if err := repository.RunMigrations(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		rt.DB = db
		rt.Store = &repository.PGStore{DB: db}
	} else {
		log.Warn("DATABASE_URL not set, using in-memory store")
		rt.Store = repository.NewMemoryStore()
	}

	rt.Storage, err = storage.NewStorage(storage.StorageType(appCfg.StorageBackend), log)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if appCfg.MediaSigningKey == "" {
		log.Warn("MEDIA_SIGNING_KEY not set, media links expire on restart")
	}
	lib := media.NewLibrary(rt.Store, rt.Storage, media.Options{
		Thumbnail:     intakeCfg.Thumbnail,
		PublicBaseURL: appCfg.PublicBaseURL,
		SigningKey:    []byte(appCfg.MediaSigningKey),
	}, log)

	client, err := vision.NewClient(config.GetVisionConfig(), log)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to initialize vision client: %w", err)
	}

	rt.Components, err = agent.NewComponents(ctx, lib, client, intakeCfg, log)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.Redis = redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	rt.Locker = queue.NewRedisLocker(rt.Redis)
	rt.Queue = queue.NewAsynqQueue(queue.Config{
		RedisAddr:     redisCfg.Addr,
		RedisPassword: redisCfg.Password,
		RedisDB:       redisCfg.DB,
		Queue:         intakeCfg.Worker.Queue,
		JobTimeout:    intakeCfg.Worker.JobTimeout,
	}, log)

	rt.Service = NewService(rt.Store, lib, rt.Components, rt.Queue, intakeCfg, log)
	return rt, nil
}

// Close releases connections held by the runtime.
func (r *Runtime) Close() error {
	var errs []error
	if r.Queue != nil {
		errs = append(errs, r.Queue.Close())
	}
	if r.Redis != nil {
		errs = append(errs, r.Redis.Close())
	}
	if r.DB != nil {
		errs = append(errs, r.DB.Close())
	}
	return errors.Join(errs...)
}
