package config

import (
	"sync"
)

var (
	appOnce   sync.Once
	appConfig *AppConfig

	redisOnce   sync.Once
	redisConfig *RedisConfig
)

type AppConfig struct {
	Env         string
	HTTPAddr    string
	LogLevel    string
	LogEncoding string
	DatabaseURL string
	// StorageBackend is one of local, minio or s3.
	StorageBackend  string
	LocalStorageDir string
	// PublicBaseURL prefixes media fallback URLs.
	PublicBaseURL string
	// MediaSigningKey signs media endpoint links. Every server instance
	// needs the same value.
	MediaSigningKey string
	// CORSOrigins is empty to allow any origin.
	CORSOrigins []string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func GetAppConfig() *AppConfig {
	appOnce.Do(func() {
		loadEnv()
		appConfig = &AppConfig{
			Env:             getEnv("APP_ENV", "development"),
			HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			LogEncoding:     getEnv("LOG_ENCODING", "json"),
			DatabaseURL:     getEnv("DATABASE_URL", ""),
			StorageBackend:  getEnv("STORAGE_BACKEND", "local"),
			LocalStorageDir: getEnv("LOCAL_STORAGE_DIR", "storage"),
			PublicBaseURL:   getEnv("PUBLIC_BASE_URL", ""),
			MediaSigningKey: getEnv("MEDIA_SIGNING_KEY", ""),
			CORSOrigins:     getEnvList("CORS_ORIGINS"),
		}
	})
	return appConfig
}

func GetRedisConfig() *RedisConfig {
	redisOnce.Do(func() {
		loadEnv()
		redisConfig = &RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		}
	})
	return redisConfig
}
