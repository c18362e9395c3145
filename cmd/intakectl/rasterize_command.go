package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cieplik206/dokumenty/internal/agent/raster"
)

func newRasterizeCommand(ctx *commandContext) *cobra.Command {
	var outDir string
	var pages int
	var backendName string

	cmd := &cobra.Command{
		Use:   "rasterize <file.pdf>",
		Short: "Render the first pages of a PDF the way the pipeline does",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			log := ctx.logger()

			rasterCfg := cfg.Raster
			if backendName != "" {
				rasterCfg.Backend = backendName
			}
			if pages <= 0 {
				pages = cfg.MaxPDFPages
			}

			var tool raster.Toolchain
			if rasterCfg.Backend == raster.BackendPdftoppm {
				tool, err = raster.ResolveToolchain(cmd.Context(), rasterCfg.PdftoppmPath, log)
				if err != nil {
					return err
				}
			}
			backend, err := raster.NewBackend(rasterCfg, tool)
			if err != nil {
				return err
			}

			r := raster.NewRasterizer(backend, pages, rasterCfg, log)
			res, err := r.Rasterize(cmd.Context(), args[0], pages)
			if err != nil {
				return err
			}
			defer res.Cleanup()

			written, err := exportPages(res.Pages, outDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, path := range written {
				fmt.Fprintln(out, path)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "Directory for the rendered JPEG pages")
	cmd.Flags().IntVarP(&pages, "pages", "n", 0, "Maximum pages to render (defaults to max_pdf_pages)")
	cmd.Flags().StringVar(&backendName, "backend", "", "Override the raster backend (fitz or pdftoppm)")
	return cmd
}

// exportPages copies rendered pages into dir as page-N.jpg.
func exportPages(pages []raster.Page, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	written := make([]string, 0, len(pages))
	for _, page := range pages {
		dst := filepath.Join(dir, fmt.Sprintf("page-%d.jpg", page.Number))
		if err := copyFile(page.Path, dst); err != nil {
			return written, err
		}
		written = append(written, dst)
	}
	return written, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", filepath.Base(src), err)
	}
	return out.Close()
}
