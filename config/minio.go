package config

import (
	"sync"
	"time"
)

var (
	minioOnce   sync.Once
	minioConfig *MinioConfig
)

type MinioConfig struct {
	AccessKey     string
	SecretKey     string
	Endpoint      string
	UseSSL        bool
	Region        string
	BucketName    string
	PresignExpiry time.Duration
}

func GetMinioConfig() *MinioConfig {
	minioOnce.Do(func() {
		loadEnv()
		minioConfig = &MinioConfig{
			AccessKey:     getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey:     getEnv("MINIO_SECRET_KEY", ""),
			Endpoint:      getEnv("MINIO_ENDPOINT", "localhost:9000"),
			UseSSL:        getEnvBool("MINIO_USE_SSL", false),
			Region:        getEnv("MINIO_REGION", ""),
			BucketName:    getEnv("MINIO_BUCKET_NAME", "dokumenty"),
			PresignExpiry: getEnvDuration("MINIO_PRESIGN_EXPIRY", 15*time.Minute),
		}
	})
	return minioConfig
}
