package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/wasteflow/backend-go/internal/cache"
	"github.com/andresuchdata/wasteflow/backend-go/internal/config"
	"github.com/andresuchdata/wasteflow/backend-go/internal/domain"
	"github.com/andresuchdata/wasteflow/backend-go/internal/forecast"
	"github.com/andresuchdata/wasteflow/backend-go/internal/recommend"
	"github.com/andresuchdata/wasteflow/backend-go/internal/repository"
	"github.com/andresuchdata/wasteflow/backend-go/internal/repository/postgres"
	"github.com/andresuchdata/wasteflow/backend-go/internal/service"
	"github.com/andresuchdata/wasteflow/backend-go/internal/storage"
	"github.com/andresuchdata/wasteflow/backend-go/pkg/logger"
)

type dbKey struct{}

func newDBURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "db-url",
		Usage:   "Database connection string (defaults to the DB_* settings)",
		EnvVars: []string{"DATABASE_URL"},
	}
}

func rangeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "from", Usage: "Start date (YYYY-MM-DD), default one year before --to"},
		&cli.StringFlag{Name: "to", Usage: "End date (YYYY-MM-DD), default today"},
	}
}

func initDB(c *cli.Context) error {
	cfg := config.Load()
	logger.Configure(cfg.Server.Mode, cfg.Server.LogLevel)

	dsn := c.String("db-url")
	if dsn == "" {
		dsn = postgres.DSN(&cfg.Database)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(c.Context); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	c.Context = context.WithValue(c.Context, dbKey{}, postgres.Wrap(sqlx.NewDb(db, "pgx"), cfg.Database.MaxConcurrent))
	return nil
}

func closeDB(c *cli.Context) error {
	if db, ok := c.Context.Value(dbKey{}).(*postgres.DB); ok && db != nil {
		return db.Close()
	}
	return nil
}

func main() {
	app := &cli.App{
		Name:   "wastectl",
		Usage:  "Train the waste forecast and size containers from the command line",
		Flags:  []cli.Flag{newDBURLFlag()},
		Before: initDB,
		After:  closeDB,
		Commands: []*cli.Command{
			{
				Name:   "train",
				Usage:  "Train the forecast model over a date range and print the metrics",
				Flags:  rangeFlags(),
				Action: runTrain,
			},
			{
				Name:  "recommend",
				Usage: "Print container recommendations",
				Flags: append(rangeFlags(),
					&cli.StringFlag{Name: "entity", Usage: "Customer number; omit to rank every customer"},
					&cli.IntFlag{Name: "top-n", Value: 50, Usage: "Number of customers to rank"},
					&cli.IntFlag{Name: "frequency-days", Usage: "Pin the pickup frequency instead of searching it"},
					&cli.BoolFlag{Name: "json", Usage: "Print JSON instead of a table"},
				),
				Action: runRecommend,
			},
			{
				Name:  "export",
				Usage: "Upload the ranked recommendation list as CSV to object storage",
				Flags: append(rangeFlags(),
					&cli.IntFlag{Name: "top-n", Value: 1000, Usage: "Number of customers to include"},
					&cli.BoolFlag{Name: "create-bucket", Usage: "Create the bucket if it does not exist"},
				),
				Action: runExport,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("wastectl failed")
	}
}

func newForecastService(c *cli.Context) (*service.ForecastService, error) {
	db, ok := c.Context.Value(dbKey{}).(*postgres.DB)
	if !ok || db == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	cfg := config.Load()
	settings := service.SettingsFromConfig(cfg)
	return service.NewForecastService(
		repository.NewReceiptRepository(db),
		cache.NewModelCache(),
		cache.NewNoopRecommendationCache(),
		forecast.NewTrainer(service.ForecastOptions(cfg.Forecast)),
		recommend.NewEngine(service.EngineConfig(cfg.Recommend, settings.Workers)),
		settings,
	), nil
}

func parseRange(c *cli.Context) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if raw := strings.TrimSpace(c.String("to")); raw != "" {
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to %q: %w", raw, err)
		}
		to = t
	}
	from := to.AddDate(-1, 0, 0)
	if raw := strings.TrimSpace(c.String("from")); raw != "" {
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from %q: %w", raw, err)
		}
		from = t
	}
	return from, to, nil
}

func runTrain(c *cli.Context) error {
	svc, err := newForecastService(c)
	if err != nil {
		return err
	}
	from, to, err := parseRange(c)
	if err != nil {
		return err
	}

	result, err := svc.Train(c.Context, from, to)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "range\t%s .. %s\n", from.Format(time.DateOnly), to.Format(time.DateOnly))
	fmt.Fprintf(w, "observations\t%d\n", result.Observations)
	fmt.Fprintf(w, "rows\t%d\n", result.Rows)
	fmt.Fprintf(w, "train+val / test\t%d / %d\n", result.TrainRows, result.TestRows)
	fmt.Fprintf(w, "candidate\t%s\n", result.Candidate)
	fmt.Fprintf(w, "mae\t%.4f\n", result.MAE)
	fmt.Fprintf(w, "rmse\t%.4f\n", result.RMSE)
	fmt.Fprintf(w, "r2\t%.4f\n", result.RSquared)
	fmt.Fprintf(w, "message\t%s\n", result.Message)
	if err := w.Flush(); err != nil {
		return err
	}

	if !result.OK {
		return cli.Exit("training did not produce a model", 2)
	}
	return nil
}

func runRecommend(c *cli.Context) error {
	svc, err := newForecastService(c)
	if err != nil {
		return err
	}
	from, to, err := parseRange(c)
	if err != nil {
		return err
	}
	opts := service.RecommendOptions{FrequencyDays: c.Int("frequency-days")}

	var recs []domain.Recommendation
	if entity := strings.TrimSpace(c.String("entity")); entity != "" {
		rec, err := svc.RecommendForEntity(c.Context, from, to, entity, opts)
		if err != nil {
			return err
		}
		recs = []domain.Recommendation{*rec}
	} else {
		recs, err = svc.RecommendAll(c.Context, from, to, c.Int("top-n"), opts)
		if err != nil {
			return err
		}
	}

	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ENTITY\tCUSTOMER\tSIZE_L\tCOUNT\tFREQ_D\tFILL\tSAFE_KG_DAY\tSTREAMS")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%.2f\t%.2f\t%d\n",
			r.EntityID, r.CustomerName, r.ContainerSizeLiters, r.ContainerCount,
			r.FrequencyDays, r.ExpectedFillFraction, r.PredictedSafeKgPerDay, r.Streams)
	}
	return w.Flush()
}

func runExport(c *cli.Context) error {
	svc, err := newForecastService(c)
	if err != nil {
		return err
	}
	from, to, err := parseRange(c)
	if err != nil {
		return err
	}

	cfg := config.Load()
	store, err := storage.NewMinioClient(cfg.Storage)
	if err != nil {
		return err
	}
	if c.Bool("create-bucket") {
		if err := store.EnsureBucket(c.Context, cfg.Storage.Region); err != nil {
			return err
		}
	}

	recs, err := svc.RecommendAll(c.Context, from, to, c.Int("top-n"), service.RecommendOptions{})
	if err != nil {
		return err
	}

	key, err := storage.ExportRecommendations(c.Context, store, recs, from, to, time.Now())
	if err != nil {
		return err
	}
	logger.Log.Info().Str("bucket", cfg.Storage.Bucket).Str("key", key).Int("rows", len(recs)).Msg("recommendations exported")
	return nil
}
