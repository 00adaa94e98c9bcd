package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/lox/wxetl/internal/api"
	"github.com/lox/wxetl/internal/ask"
	"github.com/lox/wxetl/internal/config"
	"github.com/lox/wxetl/internal/forecast"
	"github.com/lox/wxetl/internal/httputil"
	"github.com/lox/wxetl/internal/ingest"
	"github.com/lox/wxetl/internal/observability"
	"github.com/lox/wxetl/internal/store"
)

type CLI struct {
	Config config.Config `embed:""`

	Run      RunCmd      `cmd:"" default:"1" help:"Collect on a schedule and serve the ops API."`
	Once     OnceCmd     `cmd:"" help:"Run one collection cycle and exit."`
	Report   ReportCmd   `cmd:"" help:"Generate and print daily reports."`
	Accuracy AccuracyCmd `cmd:"" help:"Print forecast accuracy by lead time."`
	Ask      AskCmd      `cmd:"" help:"Ask a question about the stored weather."`
	Serve    ServeCmd    `cmd:"" help:"Serve the ops API without collecting."`
}

// App holds what every command shares once configuration is parsed.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	db     *sql.DB
	store  *store.Store
}

func openApp(cfg config.Config) (*App, error) {
	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db, cfg.Location())
	st.SetLogger(logger.Named("store"))
	st.SetRetryPolicy(store.RetryPolicy{
		MaxAttempts:     cfg.DBMaxAttempts,
		InitialInterval: cfg.DBRetryInterval,
		MaxInterval:     store.DefaultRetryPolicy.MaxInterval,
	})
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	version, err := st.MigrationVersion()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("read schema version: %w", err)
	}
	logger.Debug("database migrated", zap.String("path", cfg.DBPath), zap.Int("schema_version", version))

	return &App{cfg: cfg, logger: logger, db: db, store: st}, nil
}

func (a *App) Close() {
	a.db.Close()
	_ = a.logger.Sync()
}

func (a *App) collector() *ingest.Collector {
	client := ingest.NewClient(a.cfg, httputil.NewClient(a.logger), a.logger)
	return ingest.NewCollector(a.cfg, client, a.store, a.logger)
}

func (a *App) server() *api.Server {
	srv := api.NewServer(a.store, a.cfg.Port, a.cfg.Location(), a.logger)
	srv.SetStaleAfter(2 * a.cfg.CollectionInterval)
	assistant, err := a.assistant()
	if err != nil {
		a.logger.Info("question answering disabled", zap.Error(err))
		return srv
	}
	srv.SetAsker(assistant)
	return srv
}

func (a *App) assistant() (*ask.Assistant, error) {
	return ask.New(a.cfg.OpenAIKey, a.cfg.OpenAIModel, a.store, a.cfg.Location(), a.logger)
}

type RunCmd struct{}

func (c *RunCmd) Run(a *App) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	scheduler := ingest.NewScheduler(a.collector(), ingest.NewDailyJobs(a.store, a.logger),
		a.cfg.CollectionInterval, a.cfg.Location(), a.logger)
	server := a.server()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Run(ctx) })
	g.Go(func() error { return server.Run(ctx) })
	return g.Wait()
}

type OnceCmd struct{}

func (c *OnceCmd) Run(a *App) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result, err := a.collector().RunOnce(ctx)
	if result != nil {
		fmt.Printf("run %s for %s: observation stored=%t, forecast %s stored=%d failed=%d skipped=%d (%s)\n",
			result.RunID, result.Place, result.ObservationStored, orDash(result.ForecastSource),
			result.ForecastStored, result.ForecastFailed, result.ForecastSkipped, result.Duration.Round(time.Millisecond))
	}
	return err
}

type ReportCmd struct {
	Date string `help:"Report date (YYYY-MM-DD). Defaults to yesterday."`
}

func (c *ReportCmd) Run(a *App) error {
	loc := a.cfg.Location()
	date := time.Now().In(loc).AddDate(0, 0, -1)
	if c.Date != "" {
		d, err := time.ParseInLocation("2006-01-02", c.Date, loc)
		if err != nil {
			return fmt.Errorf("invalid --date %q: %w", c.Date, err)
		}
		date = d
	}

	ctx := context.Background()
	locations, err := a.store.ListLocations(ctx)
	if err != nil {
		return err
	}
	if len(locations) == 0 {
		fmt.Println("no locations stored yet; run `wxetl once` first")
		return nil
	}

	for _, l := range locations {
		report, err := a.store.GenerateDailyReport(ctx, l.ID, date)
		if err != nil {
			return fmt.Errorf("%s: %w", l.Name, err)
		}
		if report == nil {
			fmt.Printf("%s, %s: no observations on %s\n", l.Name, l.CountryCode, date.Format("2006-01-02"))
			continue
		}
		fmt.Printf("%s, %s: %s\n", l.Name, l.CountryCode, report.Summary)
	}
	return nil
}

type AccuracyCmd struct {
	Days int `default:"7" help:"Days of forecasts to score."`
}

func (c *AccuracyCmd) Run(a *App) error {
	ctx := context.Background()
	locations, err := a.store.ListLocations(ctx)
	if err != nil {
		return err
	}

	evaluator := forecast.NewEvaluator(a.store)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LOCATION\tLEAD\tSAMPLES\tTEMP MAE\tTEMP MAPE\tRH MAE\tRH MAPE")
	for _, l := range locations {
		records, err := evaluator.Evaluate(ctx, l.ID, c.Days)
		if err != nil {
			return fmt.Errorf("%s: %w", l.Name, err)
		}
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n", l.Name, r.Band.Label, r.Samples,
				formatStat(r.Temperature.AbsError.Mean), formatStat(r.Temperature.PctError.Mean),
				formatStat(r.Humidity.AbsError.Mean), formatStat(r.Humidity.PctError.Mean))
		}
	}
	return w.Flush()
}

type AskCmd struct {
	Question string `arg:"" help:"Question to ask."`
	Location int64  `help:"Location id. Defaults to the first stored location."`
}

func (c *AskCmd) Run(a *App) error {
	assistant, err := a.assistant()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	answer, err := assistant.Ask(ctx, c.Question, c.Location)
	if err != nil {
		return err
	}
	fmt.Println(answer.Answer)
	return nil
}

type ServeCmd struct{}

func (c *ServeCmd) Run(a *App) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return a.server().Run(ctx)
}

func formatStat(v sql.NullFloat64) string {
	if !v.Valid {
		return "-"
	}
	return fmt.Sprintf("%.2f", v.Float64)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("wxetl"),
		kong.Description("Collects OpenWeatherMap observations and forecasts into SQLite."),
		kong.UsageOnError(),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	app, err := openApp(cli.Config)
	kctx.FatalIfErrorf(err)

	err = kctx.Run(app)
	if err != nil {
		app.logger.Error("command failed", zap.String("command", kctx.Command()), zap.Error(err))
	}
	app.Close()
	kctx.FatalIfErrorf(err)
}
