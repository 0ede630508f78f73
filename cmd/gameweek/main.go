package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/automaxprocs/maxprocs"

	"gameweek/internal/auth"
	"gameweek/internal/capture"
	"gameweek/internal/config"
	"gameweek/internal/ics"
	"gameweek/internal/jobs"
	appLog "gameweek/internal/log"
	"gameweek/internal/store"
	"gameweek/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	debug      bool
	snapshot   string
	out        string
	offset     int
}

func main() {
	flags := parseFlags()

	if _, err := maxprocs.Set(); err != nil {
		appLog.Warn("could not set GOMAXPROCS", "reason", err.Error())
	}

	if err := run(flags); err != nil {
		appLog.Error("gameweek failed", err)
		os.Exit(1)
	}
}

func run(flags flagConfig) error {
	conf, err := loadConfig(flags)
	if err != nil {
		return err
	}

	// Snapshot mode talks to an already running viewer and needs no store.
	if flags.snapshot != "" {
		return runSnapshot(conf, flags)
	}

	loc, err := conf.Location()
	if err != nil {
		return err
	}
	ttl, err := conf.SessionDuration()
	if err != nil {
		return err
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"data_path", conf.DataPath,
		"max_rows", conf.MaxRows,
		"export_weeks", conf.ExportWeeks,
		"maintenance", conf.Maintenance,
		"feed_count", len(conf.Feeds),
	)

	st, err := store.Open(conf.DataPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	authSvc := auth.NewService(st, ttl)

	feeds := make([]ics.Feed, 0, len(conf.Feeds))
	for _, f := range conf.Feeds {
		feeds = append(feeds, ics.Feed{ID: f.ID, URL: f.URL, ServerID: f.ServerID})
	}

	var srv *web.Server
	importer := jobs.NewImporter(st, ics.NewFetcher(conf.CacheDir, nil), feeds, func() { srv.Invalidate() })
	srv = web.NewServer(web.Deps{
		Config:   conf,
		Location: loc,
		Store:    st,
		Auth:     authSvc,
		Importer: importer,
	})

	tasks := []jobs.Task{jobs.PruneSessionsTask(authSvc.Prune)}
	if len(feeds) > 0 {
		tasks = append(tasks, jobs.ImportFeedsTask(importer))
	}
	sched, err := jobs.NewScheduler(ctx, conf.Maintenance, loc, tasks...)
	if err != nil {
		return err
	}
	// First pass in the background so startup does not wait on feeds.
	go sched.RunOnce(ctx)
	sched.Start()
	defer sched.Stop()

	if err := srv.StartServer(ctx, conf.Listen); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	appLog.Info("gameweek exiting")
	return nil
}

func loadConfig(flags flagConfig) (*config.Config, error) {
	conf, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", flags.configPath, err)
	}
	if err := conf.ApplyEnv(); err != nil {
		return nil, err
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.debug {
		conf.LogLevel = "debug"
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return conf, nil
}

func runSnapshot(conf *config.Config, flags flagConfig) error {
	if flags.out == "" {
		return errors.New("-snapshot requires -out")
	}
	base := conf.PublicURL
	if base == "" {
		base = "http://" + conf.Listen
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return capture.Snapshot(ctx, capture.Options{
		BaseURL:    base,
		ServerID:   flags.snapshot,
		Offset:     flags.offset,
		OutputPath: flags.out,
	})
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/gameweek/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")
	flag.StringVar(&cfg.snapshot, "snapshot", "", "Capture a PNG of this server's week from the running viewer and exit")
	flag.StringVar(&cfg.out, "out", "", "Output path for -snapshot")
	flag.IntVar(&cfg.offset, "offset", 0, "Week offset for -snapshot, relative to the current week")

	flag.Parse()

	return cfg
}
