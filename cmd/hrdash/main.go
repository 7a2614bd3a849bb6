package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hrdash/hrdash/cmd/hrdash/cli"
	"github.com/hrdash/hrdash/internal/app"
	"github.com/hrdash/hrdash/internal/budget"
	budgethttp "github.com/hrdash/hrdash/internal/budget/http"
	"github.com/hrdash/hrdash/internal/observability"
	"github.com/hrdash/hrdash/internal/platform/cache"
	"github.com/hrdash/hrdash/internal/platform/db"
	"github.com/hrdash/hrdash/jobs"
)

const usage = `usage: hrdash <command> [flags]

commands:
  serve                          run the HTTP API (default)
  schema   [-division a,b]       create the ledger tables
  verify   [-division a,b] [-json]
                                 replay the ledgers and report drift
  jobs     trigger [-division a,b] [task]
           inspect
           scheduled [-size n]
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches one command and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	switch command {
	case "serve", "schema", "verify", "jobs":
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", command, usage)
		return 2
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	logger := app.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "schema", "verify":
		return runLedgerCommand(ctx, command, args, cfg, logger, stdout, stderr)
	case "jobs":
		return runJobsCommand(ctx, args, cfg, stdout, stderr)
	}
	if err := serve(ctx, stop, cfg, logger); err != nil {
		logger.Error("serve", slog.Any("error", err))
		return 1
	}
	return 0
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	metrics := observability.NewMetrics()
	service := budget.NewService(budget.NewRepository(pool), logger)
	service.SetRecorder(metrics)

	// The API keeps serving without Redis; summaries are then built per request.
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, summary cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		service.SetCache(budget.NewSummaryCache(cache.NewVersioned(redisClient, "hrdash", cfg.CacheTTL), logger))
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("asynq inspector close", slog.Any("error", err))
		}
	}()

	budgetHandler := budgethttp.NewHandler(logger, service, budgethttp.Config{
		DefaultActor:   cfg.DefaultActor,
		ImportMaxBytes: cfg.ImportMaxBytes,
		TempDir:        cfg.TempDir,
	})
	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		BudgetHandler: budgetHandler,
		JobHandler:    jobs.NewHandler(inspector, logger),
		Metrics:       metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func openLedger(ctx context.Context, cfg *app.Config, logger *slog.Logger) (*budget.Service, *pgxpool.Pool, error) {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return nil, nil, err
	}
	return budget.NewService(budget.NewRepository(pool), logger), pool, nil
}

func runLedgerCommand(ctx context.Context, command string, args []string, cfg *app.Config, logger *slog.Logger, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	divisions := fs.String("division", "", "comma separated division slugs (default: all)")
	jsonOutput := fs.Bool("json", false, "print reports as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(stderr, "%s: %v\n\n%s", command, err, usage)
		return 2
	}

	service, pool, err := openLedger(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", command, err)
		return 1
	}
	defer pool.Close()

	opts := cli.LedgerOptions{
		Divisions:  cli.ParseDivisions(*divisions),
		JSONOutput: *jsonOutput,
		Stdout:     stdout,
		Stderr:     stderr,
	}
	if command == "schema" {
		return cli.SchemaCommand(ctx, service, opts)
	}
	return cli.VerifyCommand(ctx, service, opts)
}

func runJobsCommand(ctx context.Context, args []string, cfg *app.Config, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	action := args[0]
	fs := flag.NewFlagSet("jobs "+action, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	task := fs.String("task", jobs.TaskLedgerVerify, "task type to enqueue")
	divisions := fs.String("division", "", "comma separated division slugs (default: all)")
	size := fs.Int("size", 10, "number of scheduled tasks to list")
	if err := fs.Parse(args[1:]); err != nil {
		fmt.Fprintf(stderr, "jobs: %v\n\n%s", err, usage)
		return 2
	}

	if fs.NArg() > 0 {
		*task = fs.Arg(0)
	}

	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintf(stderr, "jobs: %v\n", err)
		return 1
	}
	defer func() { _ = jobsCLI.Close() }()

	return cli.JobsCommand(ctx, jobsCLI, cli.JobsOptions{
		Action:    action,
		Task:      *task,
		Divisions: cli.ParseDivisions(*divisions),
		Size:      *size,
		Stdout:    stdout,
		Stderr:    stderr,
	})
}
