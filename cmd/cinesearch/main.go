package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"github.com/user/cinesearch/internal/config"
	"github.com/user/cinesearch/internal/middleware"
	"github.com/user/cinesearch/internal/model"
	"github.com/user/cinesearch/internal/repository"
	"github.com/user/cinesearch/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("未找到 .env 文件，使用系统环境变量")
	}
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "cinesearch",
		Usage: "Natural-language movie search over TMDB, a local catalog and a vector index",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "ingest",
				Usage:  "Fetch popular movies from TMDB, store them and index their overviews",
				Action: ingestCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "pages",
						Usage: "Number of TMDB discover pages to fetch",
						Value: 1,
					},
					&cli.BoolFlag{
						Name:  "recreate-index",
						Usage: "Drop and recreate the vector collection before indexing",
					},
				},
			},
			{
				Name:   "clear",
				Usage:  "Delete every catalog row and recreate the vector collection",
				Action: clearCommand,
			},
			{
				Name:      "search",
				Usage:     "Run one or more queries concurrently and print the results as JSON",
				ArgsUsage: "QUERY [QUERY...]",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "start-year", Usage: "Inclusive lower release year bound"},
					&cli.IntFlag{Name: "end-year", Usage: "Inclusive upper release year bound"},
					&cli.BoolFlag{Name: "enrich", Usage: "Also search TMDB by text on the semantic path"},
					&cli.BoolFlag{Name: "no-llm", Usage: "Skip intent classification and use keyword search"},
					&cli.StringFlag{Name: "log-dir", Usage: "Write one log file per query into this directory", EnvVars: []string{"QUERY_LOG_DIR"}},
				},
			},
			{
				Name:   "token",
				Usage:  "Mint a JWT for the admin endpoints",
				Action: tokenCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "subject", Value: "cli"},
					&cli.StringFlag{Name: "role", Value: "admin"},
					&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour},
					&cli.StringFlag{Name: "secret", Usage: "Signing secret (defaults to APP_SECRET)"},
				},
			},
		},
	}
}

// cliEnv 命令共用的数据库与服务
type cliEnv struct {
	cfg   *config.Config
	stack *service.Stack
	close func()
}

func openRuntime(ctx context.Context, cfg *config.Config) (*cliEnv, error) {
	db, err := repository.InitDB(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	sqlDB, _ := db.DB()
	if err := repository.Migrate(db); err != nil {
		sqlDB.Close()
		return nil, err
	}

	repos := repository.NewRepositories(db, cfg.EmbeddingDim)
	stack, err := service.NewStack(ctx, cfg, repos, slog.Default())
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	return &cliEnv{
		cfg:   cfg,
		stack: stack,
		close: func() {
			stack.Close()
			sqlDB.Close()
		},
	}, nil
}

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func ingestCommand(c *cli.Context) error {
	ctx, cancel := signalContext(c)
	defer cancel()

	rt, err := openRuntime(ctx, config.Load())
	if err != nil {
		return err
	}
	defer rt.close()

	report, err := rt.stack.Ingestion.Ingest(c.Int("pages"), c.Bool("recreate-index"))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "fetched=%d saved=%d indexed=%d\n", report.Fetched, report.Saved, report.Indexed)
	return nil
}

func clearCommand(c *cli.Context) error {
	ctx, cancel := signalContext(c)
	defer cancel()

	rt, err := openRuntime(ctx, config.Load())
	if err != nil {
		return err
	}
	defer rt.close()

	return rt.stack.Ingestion.Clear(ctx)
}

func searchCommand(c *cli.Context) error {
	jobs, err := buildJobs(c)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(c)
	defer cancel()

	cfg := config.Load()
	cfg.QueryLogDir = c.String("log-dir")
	rt, err := openRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	results := rt.stack.Executor.RunAll(ctx, jobs)
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

// buildJobs 把命令行参数转换为查询任务，key 为查询文本
func buildJobs(c *cli.Context) ([]service.QueryJob, error) {
	if c.NArg() == 0 {
		return nil, fmt.Errorf("at least one query is required")
	}

	var sc model.SearchConfig
	if c.IsSet("start-year") {
		v := c.Int("start-year")
		sc.StartYear = &v
	}
	if c.IsSet("end-year") {
		v := c.Int("end-year")
		sc.EndYear = &v
	}
	sc.EnrichFromProvider = c.Bool("enrich")
	sc.SkipClassifier = c.Bool("no-llm")

	jobs := make([]service.QueryJob, 0, c.NArg())
	for _, q := range c.Args().Slice() {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		jobs = append(jobs, service.QueryJob{Key: q, Query: q, Config: sc})
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("at least one query is required")
	}
	return jobs, nil
}

func tokenCommand(c *cli.Context) error {
	secret := c.String("secret")
	if secret == "" {
		secret = config.Load().AppSecret
	}
	token, err := middleware.GenerateToken(c.String("subject"), c.String("role"), secret, c.Duration("ttl"))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, token)
	return nil
}

func setupLogger(c *cli.Context) error {
	var level slog.Level
	switch strings.ToLower(c.String("log-level")) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", c.String("log-level"))
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}
