package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/icodeforyou/priceplan-go/config"
	"github.com/icodeforyou/priceplan-go/database"
	"github.com/icodeforyou/priceplan-go/logging"
	"github.com/icodeforyou/priceplan-go/pricing"
	"github.com/icodeforyou/priceplan-go/readings"
	"github.com/icodeforyou/priceplan-go/redisstore"
	"github.com/icodeforyou/priceplan-go/task"
	"github.com/icodeforyou/priceplan-go/types"
	"github.com/icodeforyou/priceplan-go/www"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

var Version = "?.?.?"

// readingBackend is what every storage driver offers.
type readingBackend interface {
	types.ReadingStore
	types.StatsProvider
}

func main() {
	defer func() {
		if err := recover(); err != nil {
			exitWithError(slog.Default(), fmt.Errorf("application panicked: %v", err))
		}
	}()

	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		exitWithError(slog.Default(), err)
	}
	slog.Default().Info("application is shutting down...")
}

func run(configPath string) error {
	cnfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var consoleLevel, dbLevel slog.LevelVar
	consoleLevel.Set(cnfg.Logging.GetConsoleLevel())
	dbLevel.Set(cnfg.Logging.GetDbLevel())

	consoleHandler := logging.NewConsoleHandler(os.Stdout, &consoleLevel)
	logger := slog.New(consoleHandler)
	slog.SetDefault(logger)
	logger.Debug("priceplan is starting...", slog.String("version", Version))

	var store readingBackend
	var db *database.Database

	switch driver := cnfg.Storage.GetDriver(); driver {
	case config.DriverMemory:
		store = readings.NewMemStore()

	case config.DriverSQLite:
		db, err = database.New(ctx, cnfg.Storage.GetSQLitePath())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		logger = slog.New(logging.NewMultiHandler(
			consoleHandler,
			logging.NewSQLiteHandler(db, &dbLevel, cnfg.Logging.GetDbAttrsFormat())))
		slog.SetDefault(logger)

		// Now we can use the logger to log database operations into the database itself
		db.SetLogger(logger.With("module", "database"))
		store = db

	case config.DriverRedis:
		rs := redisstore.New(logger.With("module", "redisstore"), &redis.Options{
			Addr:     cnfg.Storage.Redis.Address,
			Password: cnfg.Storage.Redis.Password,
			DB:       cnfg.Storage.Redis.DB,
		}, cnfg.Storage.Redis.GetKeyPrefix())
		defer rs.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rs.Ping(pingCtx)
		cancel()
		if err != nil {
			return err
		}
		store = rs

	default:
		return fmt.Errorf("unknown storage driver %q", driver)
	}
	logger.Info("reading store ready", slog.String("driver", cnfg.Storage.GetDriver()))

	plans, err := cnfg.BuildPricePlans()
	if err != nil {
		return fmt.Errorf("invalid price plans: %w", err)
	}
	accounts, err := cnfg.BuildAccounts(plans)
	if err != nil {
		return fmt.Errorf("invalid accounts: %w", err)
	}
	opts, err := cnfg.Estimation.Options()
	if err != nil {
		return fmt.Errorf("invalid estimation options: %w", err)
	}

	engine, err := pricing.NewEngine(logger.With("module", "pricing"), store, plans, accounts, opts)
	if err != nil {
		return err
	}
	logger.Info("price plans loaded", slog.Int("plans", plans.Len()), slog.Int("accounts", accounts.Len()))

	// Only log levels follow the config file, plans and accounts need a restart.
	cnfg.Watch(logger.With("module", "config"), func(next *config.AppConfig) {
		consoleLevel.Set(next.Logging.GetConsoleLevel())
		dbLevel.Set(next.Logging.GetDbLevel())
	})

	var maintainer task.Maintainer
	if db != nil {
		maintainer = db
	}
	tasks := task.NewTasks(logger, store, maintainer, cnfg)
	if err := tasks.Run(); err != nil {
		return err
	}
	defer func() { <-tasks.Stop().Done() }()

	server := www.NewServer(logger, cnfg.Api, engine, store, db, Version)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("main context done")
		return nil
	})
	return g.Wait()
}

func exitWithError(logger *slog.Logger, err error) {
	if err != nil {
		logger.Error("application shutting down with error", slog.Any("error", err))
	}
	os.Exit(1)
}
