package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DevNeoLee/gameRefactor1-sub001/internal/cache"
	"github.com/DevNeoLee/gameRefactor1-sub001/internal/config"
	"github.com/DevNeoLee/gameRefactor1-sub001/internal/game"
	"github.com/DevNeoLee/gameRefactor1-sub001/internal/room"
	"github.com/DevNeoLee/gameRefactor1-sub001/internal/server"
	"github.com/DevNeoLee/gameRefactor1-sub001/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := map[string]server.HealthCheck{}

	// Room store
	var rooms store.RoomStore
	switch cfg.StoreDriver {
	case config.StorePostgres:
		if err := store.MigratePostgres(cfg.DatabaseURL); err != nil {
			logger.Error("migrate postgres", "err", err)
			os.Exit(1)
		}
		db, err := store.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("connect db", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		pg := store.NewPostgresRoomStore(db)
		if counts, err := pg.CountByState(ctx); err == nil {
			logger.Info("stored rooms", "by_state", counts)
		}
		checks["db"] = db.Ping
		rooms = pg
	case config.StoreSQLite:
		lite, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			logger.Error("open sqlite", "path", cfg.SQLitePath, "err", err)
			os.Exit(1)
		}
		defer lite.Close()
		checks["db"] = lite.Ping
		rooms = lite
	default:
		logger.Warn("using in-memory room store, snapshots will not survive a restart")
		rooms = store.NewMemoryStore()
	}

	// Optional redis status board
	var mirror store.StatusMirror
	var board *cache.StatusBoard
	if cfg.RedisAddr != "" {
		rdb, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Error("connect redis", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		board = cache.NewStatusBoard(rdb)
		mirror = board
		checks["redis"] = board.Ping
	}

	writer := store.NewWriter(rooms, mirror, logger, cfg.StoreTimeout)
	writerCtx, stopWriter := context.WithCancel(context.Background())
	go writer.Run(writerCtx)

	// Wire engine and hub (circular dependency resolved via SetHandler)
	settings := room.DefaultSettings()
	settings.MaxRooms = cfg.MaxRooms
	metrics := server.NewMetrics()

	hub := server.NewHub(nil, server.HubOptions{
		TokenSecret:  []byte(cfg.JoinTokenSecret),
		DevMode:      cfg.IsDevelopment(),
		ReadLimit:    cfg.WSReadLimit,
		PingInterval: cfg.WSPingInterval,
	}, metrics, logger)
	engine := game.NewEngine(hub, logger, game.Options{
		Settings:  settings,
		Snapshots: writer,
		Metrics:   metrics,
	})
	hub.SetHandler(engine)

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("engine stopped", "err", err)
		}
	}()

	var status server.StatusReader = engine
	if board != nil {
		status = board
	}
	srv := server.New(cfg, hub, status, metrics, logger)
	for name, check := range checks {
		srv.AddHealthCheck(name, check)
	}
	go srv.Run(ctx)

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", cfg.HTTPAddr, "env", cfg.Env, "store", cfg.StoreDriver)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}

	// stop the game loop first so its last snapshots reach the writer
	cancel()
	<-engineDone
	stopWriter()
	select {
	case <-writer.Done():
	case <-shutCtx.Done():
		logger.Warn("snapshot writer did not drain before shutdown deadline")
	}
}
