package config

import (
	"sync"
	"time"
)

var (
	s3Once   sync.Once
	s3Config *S3Config
)

type S3Config struct {
	BucketName    string
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	UsePathStyle  bool
	PresignExpiry time.Duration
}

func GetS3Config() *S3Config {
	s3Once.Do(func() {
		loadEnv()
		s3Config = &S3Config{
			BucketName:    getEnv("AWS_S3_BUCKET_NAME", ""),
			Region:        getEnv("AWS_REGION", "eu-central-1"),
			Endpoint:      getEnv("AWS_ENDPOINT", ""),
			AccessKey:     getEnv("AWS_ACCESS_KEY", ""),
			SecretKey:     getEnv("AWS_SECRET_KEY", ""),
			UsePathStyle:  getEnvBool("AWS_S3_PATH_STYLE", false),
			PresignExpiry: getEnvDuration("AWS_S3_PRESIGN_EXPIRY", 15*time.Minute),
		}
	})
	return s3Config
}
