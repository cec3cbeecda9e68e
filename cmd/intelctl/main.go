package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/odyssey-erp/commerce-intel/cmd/intelctl/cli"
	"github.com/odyssey-erp/commerce-intel/internal/app"
	"github.com/odyssey-erp/commerce-intel/internal/auth"
	"github.com/odyssey-erp/commerce-intel/internal/intelligence"
	intelligencedb "github.com/odyssey-erp/commerce-intel/internal/intelligence/db"
	"github.com/odyssey-erp/commerce-intel/internal/inventory"
	"github.com/odyssey-erp/commerce-intel/internal/platform/db"
	"github.com/odyssey-erp/commerce-intel/internal/shared"
)

const usage = `usage: intelctl <command> [flags]

commands:
  schema apply                         create missing tables
  apikey issue -tenant N -user N -roles manager,admin
  sweep enqueue [-tenant N]            queue a sweep (all tenants when omitted)
  sweep run -tenant N [-json]          sweep synchronously and print the alerts
  queue stats                          show default queue counters
  idempotency cleanup [-older-than D]  purge processed request keys
`

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "intelctl:", err)
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var errUsage = errors.New("invalid arguments")

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) < 2 {
		return errUsage
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg, "intelctl")
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}

	cmd, sub, rest := args[0], args[1], args[2:]
	switch cmd + " " + sub {
	case "schema apply":
		return withPool(ctx, cfg, func(pool *pgxpool.Pool) error {
			if err := intelligencedb.ApplySchema(ctx, pool); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "schema applied")
			return nil
		})

	case "apikey issue":
		fs := flag.NewFlagSet("apikey issue", flag.ContinueOnError)
		tenant := fs.Int64("tenant", 0, "tenant id")
		user := fs.Int64("user", 0, "user id the key acts as")
		rolesRaw := fs.String("roles", shared.RoleSalesRep, "comma separated roles")
		if err := fs.Parse(rest); err != nil {
			return errUsage
		}
		roles, err := cli.ParseRoles(*rolesRaw)
		if err != nil {
			return err
		}
		return withPool(ctx, cfg, func(pool *pgxpool.Pool) error {
			key, err := auth.NewService(auth.NewRepository(pool)).Issue(ctx, *tenant, *user, roles)
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, key)
			return nil
		})

	case "sweep enqueue":
		fs := flag.NewFlagSet("sweep enqueue", flag.ContinueOnError)
		tenant := fs.Int64("tenant", 0, "tenant id, 0 for all tenants")
		if err := fs.Parse(rest); err != nil {
			return errUsage
		}
		jobsCLI, err := cli.NewJobsCLI(redisOpts)
		if err != nil {
			return err
		}
		defer jobsCLI.Close()
		info, err := jobsCLI.Trigger(ctx, "sweep", *tenant)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "queued %s (%s)\n", info.ID, info.Queue)
		return nil

	case "sweep run":
		fs := flag.NewFlagSet("sweep run", flag.ContinueOnError)
		tenant := fs.Int64("tenant", 0, "tenant id")
		jsonOut := fs.Bool("json", false, "print the report as JSON")
		if err := fs.Parse(rest); err != nil || *tenant <= 0 {
			return errUsage
		}
		return withPool(ctx, cfg, func(pool *pgxpool.Pool) error {
			repo := intelligencedb.NewRepository(pool, inventory.NewLedger(cfg.AllowNegativeStock))
			engine, err := intelligence.NewEngine(intelligence.EngineConfig{
				Store:       repo,
				Defaults:    cfg.Intelligence,
				Logger:      logger,
				Concurrency: cfg.SweepConcurrency,
			})
			if err != nil {
				return err
			}
			report, err := engine.SweepTenant(ctx, *tenant)
			if err != nil {
				return err
			}
			return cli.WriteSweepReport(stdout, report, *jsonOut)
		})

	case "queue stats":
		jobsCLI, err := cli.NewJobsCLI(redisOpts)
		if err != nil {
			return err
		}
		defer jobsCLI.Close()
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			return err
		}
		return cli.WriteQueueStats(stdout, stats)

	case "idempotency cleanup":
		fs := flag.NewFlagSet("idempotency cleanup", flag.ContinueOnError)
		olderThan := fs.Duration("older-than", cfg.IdempotencyRetention, "retention window")
		if err := fs.Parse(rest); err != nil || *olderThan <= 0 {
			return errUsage
		}
		return withPool(ctx, cfg, func(pool *pgxpool.Pool) error {
			removed, err := shared.NewIdempotencyStore(pool).Cleanup(ctx, *olderThan)
			if err != nil {
				return err
			}
			logger.Info("idempotency keys purged", slog.Int64("removed", removed), slog.Duration("older_than", *olderThan))
			fmt.Fprintf(stdout, "removed %d keys\n", removed)
			return nil
		})
	}
	return errUsage
}

func withPool(ctx context.Context, cfg *app.Config, fn func(*pgxpool.Pool) error) error {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := db.New(connectCtx, cfg.PGDSN, db.WithMaxConns(cfg.PGMaxConns))
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(pool)
}
