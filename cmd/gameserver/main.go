// Package main provides the game portal server binary: websocket
// coordination plus the REST API for the Telegram webapp.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"go.uber.org/zap"

	"github.com/cory-johannsen/arcade/internal/config"
	"github.com/cory-johannsen/arcade/internal/frontend/rest"
	"github.com/cory-johannsen/arcade/internal/frontend/ws"
	"github.com/cory-johannsen/arcade/internal/game/catalog"
	"github.com/cory-johannsen/arcade/internal/game/queue"
	"github.com/cory-johannsen/arcade/internal/game/registry"
	"github.com/cory-johannsen/arcade/internal/game/session"
	"github.com/cory-johannsen/arcade/internal/gameserver"
	"github.com/cory-johannsen/arcade/internal/observability"
	"github.com/cory-johannsen/arcade/internal/server"
	"github.com/cory-johannsen/arcade/internal/storage/postgres"
)

const defaultRatingDelta = 25

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting game portal server",
		zap.String("addr", cfg.Server.Addr()),
	)

	// Load the game catalog.
	catStart := time.Now()
	var cat *catalog.Catalog
	if cfg.Content.GamesDir != "" {
		cat, err = catalog.LoadFromDir(cfg.Content.GamesDir)
		if err != nil {
			logger.Fatal("loading game catalog", zap.Error(err))
		}
	} else {
		cat = catalog.Default()
	}
	logger.Info("game catalog loaded",
		zap.Strings("kinds", cat.IDs()),
		zap.Duration("elapsed", time.Since(catStart)),
	)

	// Persistence collaborators are optional: without a database the
	// coordinator still relays games, it just forgets them.
	var (
		pool     *postgres.Pool
		names    gameserver.NameResolver
		archiver gameserver.GameArchiver
		users    rest.UserDirectory
		history  rest.GameHistory
	)
	if cfg.Database.Enabled {
		dbStart := time.Now()
		pool, err = postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)

		userRepo := postgres.NewUserRepository(pool.DB())
		gameRepo := postgres.NewGameRepository(pool.DB())
		names = userRepo
		archiver = gameRepo
		users = userRepo
		history = gameRepo
	} else {
		logger.Info("database disabled, running without persistence")
	}

	coordinator := gameserver.NewService(
		registry.NewRegistry(),
		session.NewStore(),
		queue.New(),
		cat,
		gameserver.StaticRater{Delta: defaultRatingDelta},
		names,
		archiver,
		cfg.Websocket.SendBuffer,
		logger,
	)

	router := chi.NewRouter()
	ws.NewAcceptor(cfg.Websocket, coordinator, logger).Routes(router)
	rest.NewHandler(coordinator, users, history, logger).Routes(router)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	lifecycle := server.NewLifecycle(logger)

	lifecycle.Add("http", &server.FuncService{
		StartFn: func() error {
			logger.Info("http server listening",
				zap.String("addr", cfg.Server.Addr()),
			)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
		StopFn: func() {
			shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http shutdown", zap.Error(err))
			}
		},
	})

	if pool != nil {
		lifecycle.Add("postgres", &server.FuncService{
			StartFn: func() error {
				for {
					time.Sleep(30 * time.Second)
					if err := pool.Health(ctx, 5*time.Second); err != nil {
						logger.Warn("database health check failed", zap.Error(err))
					}
				}
			},
			StopFn: func() {
				pool.Close()
			},
		})
	}

	logger.Info("game portal server initialized",
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
