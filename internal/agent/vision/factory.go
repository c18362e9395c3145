package vision

import (
	"fmt"
	"strings"

	"github.com/cieplik206/dokumenty/config"
	"github.com/cieplik206/dokumenty/pkg/logger"
)

// NewClient builds the configured provider behind a concurrency pool.
func NewClient(cfg *config.VisionConfig, log logger.Logger) (*Pool, error) {
	var client Client
	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		c, err := NewOpenAIClient(cfg.BaseURL, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		client = c
	case "ollama":
		client = NewOllamaClient(cfg.BaseURL, cfg.Model)
	default:
		return nil, fmt.Errorf("unsupported vision provider: %s", cfg.Provider)
	}

	log.Info("Vision client configured",
		logger.String("provider", cfg.Provider),
		logger.String("model", cfg.Model),
		logger.Int("maxConcurrent", cfg.MaxConcurrent),
	)
	return NewPool(client, cfg.MaxConcurrent, cfg.PoolTimeout), nil
}
