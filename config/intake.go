package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	intakeOnce   sync.Once
	intakeConfig *IntakeConfig
	intakeErr    error
)

// IntakeConfig holds the pipeline tunables read from config/intake.yaml.
type IntakeConfig struct {
	MaxImages   int `yaml:"max_images"`
	MaxPDFPages int `yaml:"max_pdf_pages"`

	Raster    RasterConfig    `yaml:"raster"`
	Inference InferenceConfig `yaml:"inference"`
	Thumbnail ThumbnailConfig `yaml:"thumbnail"`
	Upload    UploadConfig    `yaml:"upload"`
	Worker    WorkerConfig    `yaml:"worker"`
}

type RasterConfig struct {
	// Backend is fitz (in-process MuPDF) or pdftoppm (poppler subprocess).
	Backend       string        `yaml:"backend"`
	DPI           int           `yaml:"dpi"`
	JPEGQuality   int           `yaml:"jpeg_quality"`
	RenderTimeout time.Duration `yaml:"render_timeout"`
	// PdftoppmPath pins the binary instead of searching candidate paths.
	PdftoppmPath string `yaml:"pdftoppm_path"`
}

type InferenceConfig struct {
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	Timeout         time.Duration `yaml:"timeout"`
}

type ThumbnailConfig struct {
	Width   int `yaml:"width"`
	Height  int `yaml:"height"`
	Quality int `yaml:"quality"`
}

type UploadConfig struct {
	MaxBytes   int64    `yaml:"max_bytes"`
	Extensions []string `yaml:"extensions"`
}

type WorkerConfig struct {
	Concurrency int           `yaml:"concurrency"`
	JobTimeout  time.Duration `yaml:"job_timeout"`
	Queue       string        `yaml:"queue"`
}

// DefaultIntakeConfig returns the built-in tunables.
func DefaultIntakeConfig() *IntakeConfig {
	return &IntakeConfig{
		MaxImages:   10,
		MaxPDFPages: 10,
		Raster: RasterConfig{
			Backend:       "pdftoppm",
			DPI:           75,
			JPEGQuality:   70,
			RenderTimeout: 2 * time.Minute,
		},
		Inference: InferenceConfig{
			MaxOutputTokens: 4096,
			Timeout:         5 * time.Minute,
		},
		Thumbnail: ThumbnailConfig{
			Width:   150,
			Height:  200,
			Quality: 80,
		},
		Upload: UploadConfig{
			MaxBytes:   10 * 1024 * 1024,
			Extensions: []string{".pdf", ".jpg", ".jpeg", ".png"},
		},
		Worker: WorkerConfig{
			Concurrency: 4,
			JobTimeout:  10 * time.Minute,
			Queue:       "default",
		},
	}
}

// LoadIntakeConfig reads path over the defaults. A missing file is not an error.
func LoadIntakeConfig(path string) (*IntakeConfig, error) {
	cfg := DefaultIntakeConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read intake config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse intake config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid intake config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects tunables the pipeline cannot run with.
func (c *IntakeConfig) Validate() error {
	switch {
	case c.MaxImages < 1:
		return errors.New("max_images must be positive")
	case c.MaxPDFPages < 1:
		return errors.New("max_pdf_pages must be positive")
	case c.Raster.Backend != "fitz" && c.Raster.Backend != "pdftoppm":
		return fmt.Errorf("unknown raster backend %q", c.Raster.Backend)
	case c.Raster.DPI < 10:
		return errors.New("raster.dpi must be at least 10")
	case c.Raster.JPEGQuality < 1 || c.Raster.JPEGQuality > 100:
		return errors.New("raster.jpeg_quality must be within 1..100")
	case c.Inference.MaxOutputTokens < 1:
		return errors.New("inference.max_output_tokens must be positive")
	case c.Inference.Timeout <= 0 || c.Worker.JobTimeout <= 0:
		return errors.New("timeouts must be positive")
	case c.Inference.Timeout >= c.Worker.JobTimeout:
		return errors.New("inference.timeout must be shorter than worker.job_timeout")
	}
	return nil
}

// GetIntakeConfig loads INTAKE_CONFIG, or config/intake.yaml, once.
func GetIntakeConfig() (*IntakeConfig, error) {
	intakeOnce.Do(func() {
		loadEnv()
		path := getEnv("INTAKE_CONFIG", filepath.Join(RootDir(), "config", "intake.yaml"))
		intakeConfig, intakeErr = LoadIntakeConfig(path)
	})
	return intakeConfig, intakeErr
}
