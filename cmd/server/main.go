// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jason-s-yu/arena/internal/auth"
	"github.com/jason-s-yu/arena/internal/cache"
	"github.com/jason-s-yu/arena/internal/config"
	"github.com/jason-s-yu/arena/internal/database"
	"github.com/jason-s-yu/arena/internal/game"
	"github.com/jason-s-yu/arena/internal/handlers"
	"github.com/jason-s-yu/arena/internal/janitor"
	"github.com/jason-s-yu/arena/internal/middleware"
	"github.com/jason-s-yu/arena/internal/room"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := logrus.New()
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	logger.SetLevel(cfg.LogLevel)

	if cfg.AuthPrivateKeyPath != "" {
		err = auth.InitFromPath(cfg.AuthPrivateKeyPath, cfg.AuthPublicKeyPath)
	} else {
		logger.Warn("no key paths configured, generating an ephemeral key pair")
		err = auth.Init()
	}
	if err != nil {
		logger.Fatalf("auth: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		users   handlers.UserDirectory  = database.NewMemoryUsers()
		results handlers.ResultRecorder = database.NopRecorder{}
		moves   handlers.MovePublisher  = cache.NopPublisher{}
	)
	if url := cfg.PostgresURL(); url != "" {
		pool, err := database.ConnectDB(ctx, url)
		if err != nil {
			logger.Fatalf("database: %v", err)
		}
		defer pool.Close()
		if err := database.EnsureSchema(ctx, pool); err != nil {
			logger.Fatalf("database: %v", err)
		}
		users = database.NewUserStore(pool)
		results = database.NewResultStore(pool)
	} else {
		logger.Warn("PG_HOST not set, results will not be persisted")
	}
	if cfg.RedisAddr != "" {
		rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			logger.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		moves = cache.NewMovePublisher(rdb, cfg.HistoryQueueName)
	}

	arena := handlers.NewArenaServer(logger, room.Config{
		Grace:       cfg.FinishedRoomGrace,
		SeatTimeout: cfg.MatchSeatTimeout,
		Engine: game.Options{
			DeckSize:         cfg.MemoryDeckSize,
			PlacementTimeout: cfg.NavalPlacementTimeout,
			FlipBackDelay:    cfg.MemoryFlipBackDelay,
		},
	}, users, results, moves)

	sweeper, err := janitor.New(cfg.JanitorSchedule, cfg.TournamentRetention, arena.Tournaments)
	if err != nil {
		logger.Fatalf("janitor: %v", err)
	}
	sweeper.Stats = func() logrus.Fields {
		return logrus.Fields{"rooms": arena.Rooms.Len(), "clients": arena.ClientCount()}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.LogMiddleware(logger))
	handlers.Routes(r, arena)
	r.Get("/ws", handlers.WSHandler(logger, arena))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sweeper.Start()
		<-gctx.Done()
		<-sweeper.Stop().Done()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		arena.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Errorf("server exited: %v", err)
	}
	arena.Wait()
}
