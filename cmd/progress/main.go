package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/eirki/trek-api/internal/config"
	"github.com/eirki/trek-api/internal/db"
	"github.com/eirki/trek-api/internal/locapi"
	"github.com/eirki/trek-api/internal/mapping"
	"github.com/eirki/trek-api/internal/output"
	"github.com/eirki/trek-api/internal/progress"
	"github.com/eirki/trek-api/internal/tracker"
	"github.com/eirki/trek-api/internal/upload"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig      func() config.Config
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	connectRedis    func(config.Config) *redis.Client
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, *pgxpool.Pool, *redis.Client, <-chan os.Signal, ScheduleFunc) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		connectPostgres: db.ConnectPostgres,
		connectRedis:    db.ConnectRedis,
		notify:          signal.Notify,
		run:             Run,
	}
}

func realMain(deps mainDeps) {
	cfg := deps.loadConfig()

	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		log.Printf("postgres connection failed: %v", err)
	}

	rdb := deps.connectRedis(cfg)

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, pg, rdb, signals, nil); err != nil {
		log.Printf("progress worker exited with error: %v", err)
	}
}

// ScheduleFunc arranges for job to run every hour and returns a stop func.
type ScheduleFunc func(job func()) func()

var defaultSchedule ScheduleFunc = func(job func()) func() {
	c := cron.New()
	if _, err := c.AddFunc("0 * * * *", job); err != nil {
		log.Printf("scheduling progress job: %v", err)
	}
	c.Start()
	return func() { c.Stop() }
}

// Run wires the progress pipeline and ticks it hourly until a termination
// signal arrives. One immediate tick catches treks whose hour passed while
// the worker was down.
func Run(ctx context.Context, cfg config.Config, pg *pgxpool.Pool, rdb *redis.Client, signals <-chan os.Signal, schedule ScheduleFunc) error {
	if schedule == nil {
		schedule = defaultSchedule
	}

	svc := buildService(cfg, pg, rdb)
	job := func() {
		if pg == nil {
			return
		}
		if err := svc.Run(ctx, time.Now()); err != nil {
			log.Printf("progress run failed: %v", err)
		}
	}

	job()
	stop := schedule(job)
	defer stop()

	select {
	case <-signals:
	case <-ctx.Done():
	}

	if pg != nil {
		pg.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	return nil
}

func buildService(cfg config.Config, pg *pgxpool.Pool, rdb *redis.Client) *progress.Service {
	trackers := tracker.NewRegistry(cfg, rdb)
	uploads := upload.NewService(pg, cfg.UploadBaseURL)
	places := locapi.NewFinder(cfg, uploads)
	renderer := mapping.NewRenderer(uploads)
	outputters := map[string]progress.Outputter{
		"discord": output.NewDiscord(cfg.DiscordWebhookURL, cfg.FrontendURL),
		"stream":  output.NewStream(rdb),
	}
	return progress.NewService(pg, trackers, places, renderer, outputters)
}
