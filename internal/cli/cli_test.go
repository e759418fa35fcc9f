package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
)

func TestLoadConfigFlagOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: \"9000\"\nlog:\n  level: warn\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadConfig(&options{configPath: path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9000" || cfg.Log.Level != "warn" {
		t.Fatalf("unexpected config %+v", cfg)
	}

	cfg, err = loadConfig(&options{configPath: path, port: "7000", logLevel: "debug"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "7000" || cfg.Log.Level != "debug" {
		t.Fatalf("flags should win, got port %s level %s", cfg.Server.Port, cfg.Log.Level)
	}

	cfg, err = loadConfig(&options{configPath: filepath.Join(t.TempDir(), "none.yaml")})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Server.Port)
	}
}

func TestQuizLoaderFallbacks(t *testing.T) {
	ctx := context.Background()

	loader, err := quizLoader(config.Config{}, nil)
	if err != nil {
		t.Fatalf("loader: %v", err)
	}
	quiz, err := loader.LoadQuiz(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("sample quiz: %v", err)
	}
	if err := quiz.Validate(); err != nil {
		t.Fatalf("sample quiz must be playable: %v", err)
	}

	var cfg config.Config
	cfg.Quiz.File = filepath.Join("..", "..", "config", "quizzes.yaml")
	loader, err = quizLoader(cfg, nil)
	if err != nil {
		t.Fatalf("file loader: %v", err)
	}
	if quiz, err := loader.LoadQuiz(ctx, "quiz-1"); err != nil || len(quiz.Questions) != 3 {
		t.Fatalf("expected bundled catalogue, got %+v (%v)", quiz, err)
	}

	cfg.Quiz.File = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := quizLoader(cfg, nil); err == nil {
		t.Fatalf("expected error for missing quiz file")
	}
}

func TestSeedQuizzes(t *testing.T) {
	saver := &fakeSaver{}
	quizzes := map[string]domain.Quiz{
		"b": {ID: "b", Questions: []domain.Question{{Options: []string{"x", "y"}}}},
		"a": {ID: "a", Questions: []domain.Question{{Options: []string{"x", "y"}}, {Options: []string{"x", "y"}}}},
	}

	var seen []string
	err := seedQuizzes(context.Background(), saver, quizzes, func(id string, questions int) {
		seen = append(seen, id)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if len(seen) != 2 || seen[0] != "a" || seen[1] != "b" {
		t.Fatalf("expected id order, got %v", seen)
	}

	saver.err = domain.ErrInvalidQuiz
	err = seedQuizzes(context.Background(), saver, quizzes, func(string, int) {})
	if !errors.Is(err, domain.ErrInvalidQuiz) {
		t.Fatalf("expected saver error, got %v", err)
	}
}

type fakeSaver struct {
	saved []string
	err   error
}

func (s *fakeSaver) SaveQuiz(_ context.Context, quiz domain.Quiz) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, quiz.ID)
	return nil
}
