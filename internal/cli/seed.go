package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	pgstore "live-quiz-service/internal/infra/postgres"
	redisstore "live-quiz-service/internal/infra/redis"
)

// newSeedCmd imports a YAML quiz catalogue into Postgres.
func newSeedCmd(opts *options) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load quizzes from a YAML file into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), opts, file)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "quiz catalogue (defaults to quiz.file)")
	return cmd
}

func runSeed(ctx context.Context, opts *options, file string) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if cfg.Postgres.URL == "" {
		return errNoPostgres
	}
	if file == "" {
		file = cfg.Quiz.File
	}
	if file == "" {
		return fmt.Errorf("no quiz file given")
	}

	quizzes, err := memory.LoadQuizFile(file)
	if err != nil {
		return err
	}
	if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
		return err
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	err = seedQuizzes(ctx, pgstore.NewQuizLoader(pool), quizzes, func(id string, questions int) {
		logger.Info("quiz seeded", "quiz", id, "questions", questions)
	})
	if err != nil {
		return err
	}

	if cfg.Redis.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer client.Close()
	ids := make([]string, 0, len(quizzes))
	for id := range quizzes {
		ids = append(ids, id)
	}
	if err := redisstore.NewQuizRepository(client, nil, 0).Invalidate(ctx, ids...); err != nil {
		logger.Warn("quiz cache not invalidated", "err", err)
	}
	return nil
}

type quizSaver interface {
	SaveQuiz(ctx context.Context, quiz domain.Quiz) error
}

// seedQuizzes saves quizzes in id order so reruns report the same sequence.
func seedQuizzes(ctx context.Context, saver quizSaver, quizzes map[string]domain.Quiz, done func(id string, questions int)) error {
	ids := make([]string, 0, len(quizzes))
	for id := range quizzes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		quiz := quizzes[id]
		if err := saver.SaveQuiz(ctx, quiz); err != nil {
			return fmt.Errorf("seed %s: %w", id, err)
		}
		done(id, len(quiz.Questions))
	}
	return nil
}
