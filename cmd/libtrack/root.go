package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"libtrack/pkg/catalog"
	"libtrack/pkg/circuitbreaker"
	"libtrack/pkg/clock"
	"libtrack/pkg/config"
	"libtrack/pkg/database"
	"libtrack/pkg/events"
	"libtrack/pkg/inbox"
	"libtrack/pkg/lifecycle"
	"libtrack/pkg/store"
	"libtrack/pkg/sweeper"
	"libtrack/pkg/telemetry"
)

type rootFlags struct {
	envFiles   []string
	logLevel   string
	dbDriver   string
	sqlitePath string
}

// app holds everything a subcommand needs, wired from one config.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	db     *gorm.DB
	clock  clock.Clock

	store      *store.Gorm
	dispatcher *events.Dispatcher
	manager    *lifecycle.Manager
	catalog    *catalog.Service
	inbox      *inbox.Service
	sweeper    *sweeper.Sweeper
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "libtrack",
		Short:         "Library circulation service",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringSliceVar(&flags.envFiles, "env-file", nil, "env files to load before reading the environment")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&flags.dbDriver, "db-driver", "", "database driver (postgres or sqlite)")
	pf.StringVar(&flags.sqlitePath, "sqlite-path", "", "sqlite database file")

	root.AddCommand(
		newServeCmd(flags),
		newSweepCmd(flags),
		newSyncStatusCmd(flags),
		newMigrateCmd(flags),
		newSeedCmd(flags),
	)
	return root
}

func loadConfig(flags *rootFlags) (config.Config, error) {
	cfg, err := config.Load(flags.envFiles...)
	if err != nil {
		return config.Config{}, err
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if flags.dbDriver != "" {
		cfg.DBDriver = flags.dbDriver
	}
	if flags.sqlitePath != "" {
		cfg.SQLitePath = flags.sqlitePath
	}
	return cfg, cfg.Validate()
}

func newApp(cmd *cobra.Command, flags *rootFlags) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	db, err := database.Open(cfg, logger)
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.Global()
	if err != nil {
		database.Close(db)
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	c := clock.System{}
	s := store.New(db)
	sink := events.NewStoreSink(s)
	dispatcher := events.NewDispatcher(sink, sink, c, logger, events.DispatcherConfig{
		MaxRetries: cfg.EventMaxRetries,
		BaseDelay:  cfg.EventRetryInterval,
	})
	manager := lifecycle.New(s, dispatcher, lifecycle.Config{
		MaxBorrowDays:   cfg.MaxBorrowDays,
		MaxBooksPerUser: cfg.MaxBooksPerUser,
	}, lifecycle.WithClock(c), lifecycle.WithLogger(logger), lifecycle.WithTelemetry(tel))

	breaker := circuitbreaker.NewCircuitBreaker(cfg.BreakerMaxFailures, cfg.BreakerCooldown,
		circuitbreaker.WithClock(c),
		circuitbreaker.OnStateChange(func(from, to circuitbreaker.State) {
			logger.Warn("overdue sweep breaker changed state", "from", from.String(), "to", to.String())
		}),
	)

	return &app{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		clock:      c,
		store:      s,
		dispatcher: dispatcher,
		manager:    manager,
		catalog:    catalog.New(s, dispatcher, c, logger),
		inbox:      inbox.New(s),
		sweeper: sweeper.New(s, manager, cfg.OverdueCheckInterval,
			sweeper.WithClock(c),
			sweeper.WithLogger(logger),
			sweeper.WithTelemetry(tel),
			sweeper.WithFlusher(dispatcher),
			sweeper.WithBreaker(breaker),
		),
	}, nil
}

func (a *app) close() {
	if err := database.Close(a.db); err != nil {
		a.logger.Warn("closing database", "error", err)
	}
}
