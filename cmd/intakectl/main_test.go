package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cieplik206/dokumenty/internal/agent/raster"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"migrate", "doctor", "rasterize", "cleanup"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestConfigFlagLoadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intake.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_images: 3\nraster:\n  backend: fitz\n"), 0o644))

	configFlag, verbose := path, false
	ctx := newCommandContext(&configFlag, &verbose)
	cfg, err := ctx.ensureConfig()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxImages)
	assert.Equal(t, raster.BackendFitz, cfg.Raster.Backend)
	assert.Equal(t, 75, cfg.Raster.DPI)
}

func TestConfigFlagRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intake.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_images: 0\n"), 0o644))

	configFlag, verbose := path, false
	_, err := newCommandContext(&configFlag, &verbose).ensureConfig()
	assert.ErrorContains(t, err, "max_images")
}

func TestRunChecksReportsRows(t *testing.T) {
	var out bytes.Buffer
	err := runChecks(context.Background(), &out, []doctorCheck{
		{name: "redis", run: func(context.Context) (string, error) { return "localhost:6379", nil }},
		{name: "database", run: func(context.Context) (string, error) {
			return "", fmt.Errorf("%w: no url", errSkipped)
		}},
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "redis")
	assert.Contains(t, out.String(), "localhost:6379")
	assert.Contains(t, out.String(), "skip")
}

func TestRunChecksFailsOnError(t *testing.T) {
	var out bytes.Buffer
	err := runChecks(context.Background(), &out, []doctorCheck{
		{name: "pdftoppm", run: func(context.Context) (string, error) { return "", errors.New("not found") }},
		{name: "redis", run: func(context.Context) (string, error) { return "ok", nil }},
	})
	assert.EqualError(t, err, "1 check(s) failed")
	assert.Contains(t, out.String(), "FAIL")
	assert.Contains(t, out.String(), "not found")
}

func TestExportPagesCopiesInOrder(t *testing.T) {
	src := t.TempDir()
	var pages []raster.Page
	for i := 1; i <= 2; i++ {
		path := filepath.Join(src, fmt.Sprintf("tmp-%02d.jpg", i))
		require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("page %d", i)), 0o644))
		pages = append(pages, raster.Page{Number: i, Path: path})
	}

	dst := filepath.Join(t.TempDir(), "out")
	written, err := exportPages(pages, dst)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dst, "page-1.jpg"), filepath.Join(dst, "page-2.jpg")}, written)

	data, err := os.ReadFile(written[1])
	require.NoError(t, err)
	assert.Equal(t, "page 2", string(data))
}

func TestRasterizeRequiresOneArgument(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"rasterize"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	assert.Error(t, root.Execute())
}
