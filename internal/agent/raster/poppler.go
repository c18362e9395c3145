package raster

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/cieplik206/dokumenty/internal/apperr"
)

const outputPrefix = "page"

// PopplerBackend renders with the pdftoppm command line tool.
type PopplerBackend struct {
	tool    Toolchain
	dpi     int
	quality int
}

func NewPopplerBackend(tool Toolchain, dpi, quality int) *PopplerBackend {
	return &PopplerBackend{tool: tool, dpi: dpi, quality: quality}
}

func (b *PopplerBackend) Name() string { return BackendPdftoppm }

// PageCount reads the page tree without rendering.
func (b *PopplerBackend) PageCount(ctx context.Context, pdfPath string) (int, error) {
	f, r, err := pdf.Open(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()
	return r.NumPage(), nil
}

// Args builds the pdftoppm command line for the first pages pages.
func (b *PopplerBackend) Args(pdfPath, outDir string, pages int) []string {
	return []string{
		"-f", "1",
		"-l", strconv.Itoa(pages),
		"-r", strconv.Itoa(b.dpi),
		"-jpeg",
		"-jpegopt", "quality=" + strconv.Itoa(b.quality),
		pdfPath,
		filepath.Join(outDir, outputPrefix),
	}
}

func (b *PopplerBackend) Render(ctx context.Context, pdfPath, outDir string, pages int) ([]Page, error) {
	if !b.tool.Available() {
		return nil, apperr.Missing("scans", MissingPdftoppmMessage)
	}

	cmd := exec.CommandContext(ctx, b.tool.Pdftoppm, b.Args(pdfPath, outDir, pages)...)
	out, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return nil, apperr.Wrap(apperr.ErrTimeout, "pdftoppm", "rendering timed out", ctx.Err())
	}
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return collectPages(outDir, outputPrefix)
}

// collectPages finds "<prefix>-N.jpg" files. pdftoppm zero-pads N to the
// width of the last page number, so the number is parsed, not matched.
func collectPages(dir, prefix string) ([]Page, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	pages := make([]Page, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix+"-") {
			continue
		}
		ext := filepath.Ext(name)
		if ext != ".jpg" && ext != ".jpeg" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, prefix+"-"), ext))
		if err != nil || n < 1 {
			continue
		}
		pages = append(pages, Page{Number: n, Path: filepath.Join(dir, name)})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	return pages, nil
}
