package raster

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cieplik206/dokumenty/internal/apperr"
	"github.com/cieplik206/dokumenty/pkg/logger"
)

// PdftoppmEnv pins the pdftoppm binary for every process.
const PdftoppmEnv = "INTAKE_PDFTOPPM_PATH"

// MissingPdftoppmMessage is shown when no working pdftoppm was found.
const MissingPdftoppmMessage = "PDF rendering needs pdftoppm from poppler. Install poppler-utils (apt) or poppler (brew), or set " + PdftoppmEnv + " to the binary."

var fallbackDirs = []string{"/opt/homebrew/bin", "/usr/local/bin", "/usr/bin"}

// Toolchain is the resolved set of external rendering tools. The zero value
// means nothing was found.
type Toolchain struct {
	Pdftoppm string
	Version  string
}

func (t Toolchain) Available() bool {
	return t.Pdftoppm != ""
}

// Probe runs a candidate binary and returns its version banner.
type Probe func(ctx context.Context, path string) (string, error)

// Resolver searches candidate locations for pdftoppm.
type Resolver struct {
	Pinned   string
	Getenv   func(string) string
	LookPath func(string) (string, error)
	Dirs     []string
	Probe    Probe
	Timeout  time.Duration
}

func NewResolver(pinned string) *Resolver {
	return &Resolver{
		Pinned:   pinned,
		Getenv:   os.Getenv,
		LookPath: exec.LookPath,
		Dirs:     fallbackDirs,
		Probe:    probeVersion,
		Timeout:  5 * time.Second,
	}
}

// Candidates lists the paths to try, most specific first, without duplicates.
func (r *Resolver) Candidates() []string {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		out = append(out, p)
	}

	add(r.Pinned)
	if r.Getenv != nil {
		add(r.Getenv(PdftoppmEnv))
	}
	if r.LookPath != nil {
		if p, err := r.LookPath("pdftoppm"); err == nil {
			add(p)
		}
	}
	for _, dir := range r.Dirs {
		add(dir + "/pdftoppm")
	}
	return out
}

// Resolve returns the first candidate that answers the version probe.
func (r *Resolver) Resolve(ctx context.Context, log logger.Logger) (Toolchain, error) {
	for _, candidate := range r.Candidates() {
		probeCtx, cancel := context.WithTimeout(ctx, r.Timeout)
		version, err := r.Probe(probeCtx, candidate)
		cancel()
		if err != nil {
			log.Debug("pdftoppm candidate rejected", logger.String("path", candidate), logger.Error(err))
			continue
		}
		log.Info("Resolved pdftoppm", logger.String("path", candidate), logger.String("version", version))
		return Toolchain{Pdftoppm: candidate, Version: version}, nil
	}
	return Toolchain{}, apperr.Missing("scans", MissingPdftoppmMessage)
}

// ResolveToolchain resolves pdftoppm with the default search order.
func ResolveToolchain(ctx context.Context, pinned string, log logger.Logger) (Toolchain, error) {
	return NewResolver(pinned).Resolve(ctx, log)
}

// probeVersion runs "<path> -v". Older poppler builds exit non-zero after
// printing the banner, so the banner decides.
func probeVersion(ctx context.Context, path string) (string, error) {
	if info, err := os.Stat(path); err != nil {
		return "", err
	} else if info.IsDir() {
		return "", errors.New("is a directory")
	}
	out, err := exec.CommandContext(ctx, path, "-v").CombinedOutput()
	banner := firstLine(string(out))
	if strings.Contains(strings.ToLower(banner), "pdftoppm") {
		return banner, nil
	}
	if err == nil {
		err = errors.New("unexpected version output")
	}
	return "", err
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
