package config

import (
	"sync"
	"time"
)

var (
	visionOnce   sync.Once
	visionConfig *VisionConfig
)

// VisionConfig selects and configures the multimodal inference endpoint.
type VisionConfig struct {
	// Provider is openai (any chat-completions compatible API) or ollama.
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	// MaxConcurrent bounds in-flight inference calls per process.
	MaxConcurrent int
	PoolTimeout   time.Duration
}

func GetVisionConfig() *VisionConfig {
	visionOnce.Do(func() {
		loadEnv()
		provider := getEnv("VISION_PROVIDER", "openai")
		baseURL := "https://api.openai.com/v1"
		model := "gpt-5-mini"
		if provider == "ollama" {
			baseURL = "http://localhost:11434"
			model = "llama3.2-vision"
		}
		visionConfig = &VisionConfig{
			Provider:      provider,
			BaseURL:       getEnv("VISION_BASE_URL", baseURL),
			APIKey:        getEnv("VISION_API_KEY", getEnv("OPENAI_API_KEY", "")),
			Model:         getEnv("VISION_MODEL", model),
			MaxConcurrent: getEnvInt("VISION_MAX_CONCURRENT", 4),
			PoolTimeout:   getEnvDuration("VISION_POOL_TIMEOUT", 30*time.Second),
		}
	})
	return visionConfig
}
