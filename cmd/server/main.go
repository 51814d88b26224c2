package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/npezzotti/retro-board/internal/api"
	"github.com/npezzotti/retro-board/internal/config"
	"github.com/npezzotti/retro-board/internal/database"
	"github.com/npezzotti/retro-board/internal/logger"
	"github.com/npezzotti/retro-board/internal/pubsub"
	"github.com/npezzotti/retro-board/internal/server"
	"github.com/npezzotti/retro-board/internal/service"
	"github.com/npezzotti/retro-board/internal/stats"
	"go.uber.org/zap"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	allowedOrigins stringSliceFlag
	logLevel       string
	logFormat      string
	queryTimeout   time.Duration
	subBuffer      int
	writeWait      time.Duration
	pongWait       time.Duration
	seed           bool
	migrate        bool
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "", "postgres connection string, the in-memory store is used when empty")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.StringVar(&logFormat, "log-format", "json", "log format (json or console)")
	flag.DurationVar(&queryTimeout, "query-timeout", 0, "timeout for query and mutation requests, 0 disables it")
	flag.IntVar(&subBuffer, "subscription-buffer", config.DefaultSubscriptionBuffer, "events buffered per subscription before new ones are dropped")
	flag.DurationVar(&writeWait, "write-wait", config.DefaultWriteWait, "websocket write deadline")
	flag.DurationVar(&pongWait, "pong-wait", config.DefaultPongWait, "time allowed between websocket pongs")
	flag.BoolVar(&seed, "seed", false, "populate an empty store with sample rooms")
	flag.BoolVar(&migrate, "migrate", false, "apply database migrations on startup")
	flag.Parse()

	cfg, err := config.NewConfig(addr, allowedOrigins,
		config.WithDatabaseDSN(dsn),
		config.WithLogging(logLevel, logFormat),
		config.WithQueryTimeout(queryTimeout),
		config.WithSubscriptionBuffer(subBuffer),
		config.WithKeepalive(writeWait, pongWait),
		config.WithSeed(seed),
		config.WithMigrate(migrate),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	repo, err := openRepository(cfg, log)
	if err != nil {
		log.Fatal("open store", zap.Error(err))
	}
	defer func() {
		if err := repo.Close(); err != nil {
			log.Error("store close", zap.Error(err))
		}
	}()

	if cfg.Seed {
		if err := database.Seed(repo); err != nil {
			log.Fatal("seed store", zap.Error(err))
		}
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)
	statsUpdater.Run()

	pub := pubsub.New(cfg.SubscriptionBuffer, log.Named("pubsub"), statsUpdater)
	board := service.NewBoardService(repo, pub, log.Named("service"))
	subServer := server.NewSubscriptionServer(log.Named("subscriptions"), pub, statsUpdater, cfg.WriteWait, cfg.PongWait)

	srv := api.NewBoardApp(mux, log.Named("api"), board, subServer, cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		log.Info("received signal", zap.Stringer("signal", sig))
	case err := <-errCh:
		log.Error("server", zap.Error(err))
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		log.Error("HTTP server shutdown", zap.Error(err))
	}

	log.Info("shutting down subscription server...")
	if err := subServer.Shutdown(shutDownCtx); err != nil {
		log.Error("subscription server shutdown", zap.Error(err))
	}
	pub.Close()
	statsUpdater.Stop()

	log.Info("shutdown complete")
}

func openRepository(cfg *config.Config, log *zap.Logger) (database.Repository, error) {
	if cfg.UseMemoryStore() {
		log.Info("using in-memory store")
		return database.NewMemoryRepository(), nil
	}

	pg, err := database.NewPgRepository(cfg.DatabaseDSN, log.Named("postgres"))
	if err != nil {
		return nil, err
	}

	if cfg.Migrate {
		if err := pg.Migrate(); err != nil {
			pg.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return pg, nil
}
