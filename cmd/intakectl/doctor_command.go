package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/cieplik206/dokumenty/config"
	"github.com/cieplik206/dokumenty/internal/agent/raster"
	"github.com/cieplik206/dokumenty/internal/repository"
	"github.com/cieplik206/dokumenty/pkg/storage"
)

// errSkipped marks a check that does not apply to the current setup.
var errSkipped = errors.New("skipped")

// doctorCheck probes one dependency and returns a short detail line.
type doctorCheck struct {
	name string
	run  func(ctx context.Context) (string, error)
}

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the renderer, redis, database and blob storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			checkCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runChecks(checkCtx, cmd.OutOrStdout(), doctorChecks(ctx, cfg))
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall time limit for all checks")
	return cmd
}

func doctorChecks(ctx *commandContext, cfg *config.IntakeConfig) []doctorCheck {
	log := ctx.logger()
	appCfg := config.GetAppConfig()

	return []doctorCheck{
		{name: "pdftoppm", run: func(c context.Context) (string, error) {
			if cfg.Raster.Backend != raster.BackendPdftoppm {
				return "", fmt.Errorf("%w: raster backend is %s", errSkipped, cfg.Raster.Backend)
			}
			tool, err := raster.ResolveToolchain(c, cfg.Raster.PdftoppmPath, log)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s (%s)", tool.Pdftoppm, tool.Version), nil
		}},
		{name: "redis", run: func(c context.Context) (string, error) {
			redisCfg := config.GetRedisConfig()
			client := redis.NewClient(&redis.Options{
				Addr:     redisCfg.Addr,
				Password: redisCfg.Password,
				DB:       redisCfg.DB,
			})
			defer client.Close()
			if err := client.Ping(c).Err(); err != nil {
				return "", err
			}
			return redisCfg.Addr, nil
		}},
		{name: "database", run: func(c context.Context) (string, error) {
			if appCfg.DatabaseURL == "" {
				return "", fmt.Errorf("%w: DATABASE_URL not set, intakes stay in memory", errSkipped)
			}
			db, err := repository.Connect(c, appCfg.DatabaseURL, repository.CLIPoolOptions(), log)
			if err != nil {
				return "", err
			}
			defer db.Close()
			return "reachable", nil
		}},
		{name: "storage", run: func(c context.Context) (string, error) {
			if _, err := storage.NewStorage(storage.StorageType(appCfg.StorageBackend), log); err != nil {
				return "", err
			}
			return appCfg.StorageBackend, nil
		}},
	}
}

// runChecks prints one row per check and fails when any check failed.
func runChecks(ctx context.Context, out io.Writer, checks []doctorCheck) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	failed := 0
	for _, check := range checks {
		detail, err := check.run(ctx)
		status := "ok"
		switch {
		case errors.Is(err, errSkipped):
			status, detail = "skip", err.Error()
		case err != nil:
			status, detail = "FAIL", err.Error()
			failed++
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", check.name, status, detail)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}
