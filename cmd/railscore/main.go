package main

import (
	"context"
	"database/sql"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/lox/railscore/internal/api"
	"github.com/lox/railscore/internal/compute"
	"github.com/lox/railscore/internal/hsp"
	"github.com/lox/railscore/internal/ingest"
	"github.com/lox/railscore/internal/jobs"
	"github.com/lox/railscore/internal/reliability"
	"github.com/lox/railscore/internal/rollup"
	"github.com/lox/railscore/internal/store"
	"github.com/lox/railscore/internal/timeutil"
)

var cli struct {
	DB string `help:"Path to SQLite database." default:"data/railscore.db"`

	Serve   ServeCmd   `cmd:"" help:"Run the HTTP query API and daily jobs."`
	Ingest  IngestCmd  `cmd:"" help:"Ingest performance records for a corridor and date range."`
	Rollup  RollupCmd  `cmd:"" help:"Roll up raw events into daily slot aggregates."`
	Compute ComputeCmd `cmd:"" help:"Compute slot metrics as of a metric date."`
}

// AppContext carries the shared store and operating timezone into commands.
type AppContext struct {
	Store *store.Store
	Loc   *time.Location
}

type ServeCmd struct {
	Port   string `help:"HTTP server port." default:"8080"`
	NoJobs bool   `help:"Disable the daily job scheduler (server only)."`
}

func (c *ServeCmd) Run(app *AppContext) error {
	rel := reliability.New(app.Store, app.Loc)
	server := api.NewServer(app.Store, rel, c.Port, app.Loc)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !c.NoJobs {
		go jobs.NewScheduler(app.Store, app.Loc).Run(ctx)
	} else {
		log.Println("daily jobs disabled (--no-jobs)")
	}

	log.Printf("starting server on :%s", c.Port)
	return server.Run(ctx)
}

// hspFlags resolve from flags, environment, or .env via kong-dotenv.
type hspFlags struct {
	BaseURL            string        `env:"HSP_BASE_URL" default:"https://hsp-prod.rockshore.net/api/v1" help:"HSP API base URL."`
	Username           string        `env:"HSP_USERNAME" help:"HSP basic-auth username."`
	Password           string        `env:"HSP_PASSWORD" help:"HSP basic-auth password."`
	ConnectTimeout     time.Duration `env:"HSP_CONNECT_TIMEOUT" default:"10s"`
	WriteTimeout       time.Duration `env:"HSP_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout        time.Duration `env:"HSP_IDLE_TIMEOUT" default:"30s"`
	MetricsReadTimeout time.Duration `env:"HSP_METRICS_READ_TIMEOUT" default:"240s"`
	DetailsReadTimeout time.Duration `env:"HSP_DETAILS_READ_TIMEOUT" default:"60s"`
	WindowMinutes      int           `env:"HSP_METRICS_WINDOW_MINUTES" default:"60" help:"Chunk size for serviceMetrics requests."`
	FilterWeekdays     bool          `env:"HSP_METRICS_FILTER_WEEKDAYS" default:"true" negatable:""`
	Delay              time.Duration `env:"HSP_REQUEST_DELAY" default:"150ms" help:"Politeness delay between serviceDetails requests."`
	MaxDetails         int           `env:"HSP_MAX_DETAILS" default:"0" help:"Cap detail fetches for sampling runs (0 = unlimited)."`
	Retries            int           `env:"HSP_RETRIES" default:"6"`
	BackoffBase        time.Duration `env:"HSP_BACKOFF_BASE" default:"1500ms"`
	ProgressEvery      int           `env:"HSP_PROGRESS_EVERY" default:"50"`
}

func (f hspFlags) config() hsp.Config {
	return hsp.Config{
		BaseURL:            f.BaseURL,
		Username:           f.Username,
		Password:           f.Password,
		ConnectTimeout:     f.ConnectTimeout,
		WriteTimeout:       f.WriteTimeout,
		IdleTimeout:        f.IdleTimeout,
		MetricsReadTimeout: f.MetricsReadTimeout,
		DetailsReadTimeout: f.DetailsReadTimeout,
		WindowMinutes:      f.WindowMinutes,
		FilterWeekdays:     f.FilterWeekdays,
		Delay:              f.Delay,
		MaxDetails:         f.MaxDetails,
		Retries:            f.Retries,
		BackoffBase:        f.BackoffBase,
		ProgressEvery:      f.ProgressEvery,
	}
}

type IngestCmd struct {
	Source   string   `default:"hsp" help:"Feed source name."`
	FromLoc  string   `required:"" help:"Origin CRS code (e.g. RDG)."`
	ToLoc    string   `required:"" help:"Destination CRS code (e.g. PAD)."`
	FromDate string   `required:"" help:"YYYY-MM-DD."`
	ToDate   string   `required:"" help:"YYYY-MM-DD."`
	FromTime string   `required:"" help:"HHMM (e.g. 0630)."`
	ToTime   string   `required:"" help:"HHMM (e.g. 0930)."`
	Days     string   `required:"" enum:"WEEKDAY,SATURDAY,SUNDAY" help:"Day filter passed to the provider."`
	Toc      []string `help:"Optional TOC code filter (repeatable, e.g. --toc GW)."`

	HSP hspFlags `embed:"" prefix:"hsp-"`
}

func (c *IngestCmd) Run(app *AppContext) error {
	cfg := c.HSP.config()
	// Fail on missing credentials before any network activity.
	if err := cfg.Validate(); err != nil {
		return err
	}

	ingest.Register("hsp", func() (ingest.Source, error) {
		return hsp.NewSource(cfg, app.Loc), nil
	})

	src, err := ingest.New(c.Source)
	if err != nil {
		return err
	}

	params := ingest.Params{
		FromLoc:   c.FromLoc,
		ToLoc:     c.ToLoc,
		FromDate:  c.FromDate,
		ToDate:    c.ToDate,
		FromTime:  c.FromTime,
		ToTime:    c.ToTime,
		Days:      c.Days,
		TocFilter: c.Toc,
	}

	runID, err := app.Store.StartJob("ingest_"+c.Source, params)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result, err := src.Ingest(ctx, app.Store, runID, params)
	if err != nil {
		app.Store.FinishJobFail(runID, err)
		return err
	}
	if err := app.Store.FinishJobSuccess(runID, result); err != nil {
		return err
	}

	log.Printf("ingest complete: rids=%d fetched=%d failed=%d skipped=%d inserted=%d duplicate=%d",
		result.RIDsTotal, result.DetailsFetched, result.DetailsFailed, result.InvalidSkipped,
		result.Inserted, result.Skipped)
	return nil
}

type RollupCmd struct {
	FromDate string `required:"" help:"YYYY-MM-DD."`
	ToDate   string `required:"" help:"YYYY-MM-DD."`
	Operator string `help:"Optional operator filter (e.g. GW)."`
	FromLoc  string `help:"Optional origin CRS filter."`
	ToLoc    string `help:"Optional destination CRS filter."`
}

func (c *RollupCmd) Run(app *AppContext) error {
	result, err := rollup.Run(app.Store, rollup.Args{
		FromDate:    c.FromDate,
		ToDate:      c.ToDate,
		Operator:    c.Operator,
		Origin:      c.FromLoc,
		Destination: c.ToLoc,
	})
	if err != nil {
		return err
	}
	log.Printf("rollup complete: rows_before=%d rows_after=%d net_new=%d",
		result.RowsBefore, result.RowsAfter, result.RowsNetNew)
	return nil
}

type ComputeCmd struct {
	MetricDate    string  `help:"YYYY-MM-DD; defaults to today."`
	Model         string  `default:"both" enum:"dow,daytype,both" help:"Which model variant to compute."`
	WindowDays    int     `default:"90"`
	HalfLifeDays  float64 `default:"30"`
	PriorStrength float64 `default:"50"`
	Operator      string  `help:"Optional operator filter."`
	FromLoc       string  `help:"Optional origin CRS filter."`
	ToLoc         string  `help:"Optional destination CRS filter."`
}

func (c *ComputeCmd) Run(app *AppContext) error {
	metricDate := time.Now().In(app.Loc)
	if c.MetricDate != "" {
		d, err := timeutil.ParseServiceDate(c.MetricDate)
		if err != nil {
			return err
		}
		metricDate = d
	}

	params := compute.Params{
		MetricDate:    metricDate,
		WindowDays:    c.WindowDays,
		HalfLifeDays:  c.HalfLifeDays,
		PriorStrength: c.PriorStrength,
		Operator:      c.Operator,
		Origin:        c.FromLoc,
		Destination:   c.ToLoc,
	}

	if c.Model == "dow" || c.Model == "both" {
		result, err := compute.SlotMetrics(app.Store, params)
		if err != nil {
			return err
		}
		log.Printf("compute %s: slots=%d operators=%d", result.ModelVersion, result.SlotsWritten, result.OperatorsSeen)
	}
	if c.Model == "daytype" || c.Model == "both" {
		result, err := compute.SlotMetricsDayType(app.Store, params)
		if err != nil {
			return err
		}
		log.Printf("compute %s: slots=%d operators=%d", result.ModelVersion, result.SlotsWritten, result.OperatorsSeen)
	}
	return nil
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("railscore"),
		kong.Description("Per-departure-slot rail reliability scoring from historical performance data."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	db, err := sql.Open("sqlite", cli.DB)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	// All scheduled times in the HSP feed are local to Britain.
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		log.Fatalf("load timezone: %v", err)
	}

	st := store.New(db, loc)
	if err := st.Migrate(); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	err = ctx.Run(&AppContext{Store: st, Loc: loc})
	ctx.FatalIfErrorf(err)
}
