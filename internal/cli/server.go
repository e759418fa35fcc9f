package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	pgstore "live-quiz-service/internal/infra/postgres"
	redisstore "live-quiz-service/internal/infra/redis"
	transport "live-quiz-service/internal/transport/http"
)

// newStartCmd serves websocket and REST traffic until the context ends.
func newStartCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), opts)
		},
	}
}

// loadConfig reads the config file and applies flag overrides on top of it.
func loadConfig(opts *options) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return cfg, err
	}
	if opts.port != "" {
		cfg.Server.Port = opts.port
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	return cfg, nil
}

func newLogger(cfg config.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()}))
}

func runServer(ctx context.Context, opts *options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	loader, err := quizLoader(cfg, pool)
	if err != nil {
		return err
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var store app.SessionRepository
	switch driver := cfg.StoreDriver(); driver {
	case config.DriverPostgres:
		if pool == nil {
			return errors.New("store driver postgres requires postgres.url")
		}
		store = pgstore.NewSessionStore(pool)
	case config.DriverRedis:
		if redisClient == nil {
			return errors.New("store driver redis requires redis.addr")
		}
		store = redisstore.NewSessionStore(redisClient, config.TTLDuration(cfg.Redis.SessionTTL, 0))
	case config.DriverMemory:
		store = memory.NewSessionStore()
	default:
		return fmt.Errorf("unknown store driver %q", driver)
	}

	hub := transport.NewHub(logger)

	var (
		bus app.Publisher
		sub *redisstore.Subscription
	)
	switch driver := cfg.BusDriver(); driver {
	case config.DriverRedis:
		if redisClient == nil {
			return errors.New("bus driver redis requires redis.addr")
		}
		redisBus := redisstore.NewBus(redisClient, logger)
		sub, err = redisBus.Subscribe(ctx)
		if err != nil {
			return err
		}
		bus = redisBus
	case config.DriverMemory:
		bus = memory.NewBus(hub)
	default:
		return fmt.Errorf("unknown bus driver %q", driver)
	}

	service := app.NewGameService(store, quizRepo, bus, app.Options{
		AllowLateJoin:   cfg.Game.AllowLateJoin,
		LeaderboardSize: cfg.Game.LeaderboardSize,
		PINAttempts:     cfg.Game.PINAttempts,
	}, logger)
	wsHandler := transport.NewWSHandler(service, hub, logger)

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           transport.NewRouter(service, wsHandler, logger),
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting quiz service", "port", cfg.Server.Port,
			"store", cfg.StoreDriver(), "bus", cfg.BusDriver())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	if sub != nil {
		g.Go(func() error {
			return sub.Run(gctx, hub)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		if sub != nil {
			_ = sub.Close()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func quizLoader(cfg config.Config, pool *pgxpool.Pool) (memory.QuizLoader, error) {
	if pool != nil {
		return pgstore.NewQuizLoader(pool), nil
	}
	if cfg.Quiz.File != "" {
		quizzes, err := memory.LoadQuizFile(cfg.Quiz.File)
		if err != nil {
			return nil, err
		}
		return memory.NewStaticQuizLoader(quizzes), nil
	}
	return memory.NewStaticQuizLoader(sampleQuizzes()), nil
}

// sampleQuizzes provides a minimal quiz for demos when no content source is configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Warm-up",
			Questions: []domain.Question{
				{
					Text:          "What is 2 + 2?",
					Options:       []string{"3", "4", "5"},
					CorrectAnswer: 1,
					TimeLimit:     20,
				},
				{
					Text:          "Which planet is known as the Red Planet?",
					Options:       []string{"Venus", "Mars", "Jupiter", "Mercury"},
					CorrectAnswer: 1,
					TimeLimit:     20,
				},
			},
		},
	}
}
