package agent

import (
	"context"
	"fmt"

	"github.com/cieplik206/dokumenty/config"
	"github.com/cieplik206/dokumenty/internal/agent/collector"
	"github.com/cieplik206/dokumenty/internal/agent/pages"
	"github.com/cieplik206/dokumenty/internal/agent/raster"
	"github.com/cieplik206/dokumenty/internal/agent/vision"
	"github.com/cieplik206/dokumenty/internal/media"
	"github.com/cieplik206/dokumenty/pkg/logger"
)

// Components is the wired analysis stack.
type Components struct {
	Toolchain  raster.Toolchain
	Rasterizer *raster.Rasterizer
	Pages      *pages.Generator
	Collector  *collector.Collector
	Analyzer   *Analyzer
}

// NewComponents resolves the render toolchain and builds the analysis stack
// around lib and client. A missing pdftoppm is logged, not fatal: PDF intakes
// then fail with an actionable message while image intakes still work.
func NewComponents(ctx context.Context, lib *media.Library, client vision.Client, cfg *config.IntakeConfig, log logger.Logger) (*Components, error) {
	var tool raster.Toolchain
	if cfg.Raster.Backend == raster.BackendPdftoppm || cfg.Raster.Backend == "" {
		var err error
		tool, err = raster.ResolveToolchain(ctx, cfg.Raster.PdftoppmPath, log)
		if err != nil {
			log.Warn("pdftoppm not available", logger.Error(err))
		}
	}

	backend, err := raster.NewBackend(cfg.Raster, tool)
	if err != nil {
		return nil, fmt.Errorf("failed to create raster backend: %w", err)
	}

	rasterizer := raster.NewRasterizer(backend, cfg.MaxPDFPages, cfg.Raster, log)
	gen := pages.NewGenerator(lib, rasterizer, log)
	col := collector.New(lib, gen, rasterizer, cfg.MaxImages, log)

	return &Components{
		Toolchain:  tool,
		Rasterizer: rasterizer,
		Pages:      gen,
		Collector:  col,
		Analyzer:   NewAnalyzer(col, client, cfg.Inference.MaxOutputTokens, cfg.Inference.Timeout, log),
	}, nil
}
