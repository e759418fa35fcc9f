package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	pgstore "live-quiz-service/internal/infra/postgres"
	pgmigrations "live-quiz-service/internal/infra/postgres/migrations"
	infraredis "live-quiz-service/internal/infra/redis"
)

func TestGameAcrossInstances(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	quizzes := pgstore.NewQuizLoader(pool)
	if err := quizzes.SaveQuiz(ctx, sampleQuiz()); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}
	if err := quizzes.SaveQuiz(ctx, domain.Quiz{ID: "broken", Questions: []domain.Question{{Text: "?", Options: []string{"a"}}}}); !errors.Is(err, domain.ErrInvalidQuiz) {
		t.Fatalf("expected invalid quiz rejected, got %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	// Two engine instances share the postgres store and the redis bus.
	store := pgstore.NewSessionStore(pool)
	quizRepo := infraredis.NewQuizRepository(redisClient, quizzes, 5*time.Minute)
	bus := infraredis.NewBus(redisClient, nil)

	rooms := []*roomRecorder{newRoomRecorder(), newRoomRecorder()}
	for _, room := range rooms {
		sub, err := bus.Subscribe(ctx)
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		defer sub.Close()
		go sub.Run(ctx, room)
	}
	first := app.NewGameService(store, quizRepo, bus, app.Options{}, nil)
	second := app.NewGameService(store, quizRepo, bus, app.Options{}, nil)

	session, err := first.CreateSession(ctx, "quiz-1", "host-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	pin := session.PIN

	alice, bob := &client{id: "alice"}, &client{id: "bob"}
	aliceAck, err := first.Join(ctx, alice, pin, "Alice")
	if err != nil {
		t.Fatalf("join alice: %v", err)
	}
	bobAck, err := second.Join(ctx, bob, pin, "Bob")
	if err != nil {
		t.Fatalf("join bob: %v", err)
	}
	if _, err := second.Join(ctx, &client{id: "dup"}, pin, "Alice"); !errors.Is(err, domain.ErrNameTaken) {
		t.Fatalf("expected name taken across instances, got %v", err)
	}

	if err := first.Start(ctx, pin); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Concurrent duplicate submissions from both instances score once.
	var wg sync.WaitGroup
	for _, svc := range []*app.GameService{first, second, first, second} {
		wg.Add(1)
		go func(svc *app.GameService) {
			defer wg.Done()
			if err := svc.SubmitAnswer(ctx, alice, pin, aliceAck.PlayerID, domain.AnswerSubmission{AnswerIndex: 1, TimeLeft: 15}); err != nil {
				t.Errorf("submit alice: %v", err)
			}
		}(svc)
	}
	wg.Wait()
	if err := second.SubmitAnswer(ctx, bob, pin, bobAck.PlayerID, domain.AnswerSubmission{AnswerIndex: 0, TimeLeft: 15}); err != nil {
		t.Fatalf("submit bob: %v", err)
	}

	if err := second.Advance(ctx, pin); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := first.Advance(ctx, pin); err != nil {
		t.Fatalf("advance after finish should be a no-op: %v", err)
	}

	stored, err := store.FindByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.Status != domain.StatusFinished {
		t.Fatalf("expected finished, got %s", stored.Status)
	}
	if p := stored.Player(aliceAck.PlayerID); p == nil || len(p.Answers) != 1 || p.Score != 1150 {
		t.Fatalf("unexpected alice record %+v", p)
	}

	history, err := first.History(ctx, "host-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].ID != session.ID {
		t.Fatalf("unexpected history %+v", history)
	}

	// Both instances see the same ordered stream, ending with one GAME_OVER.
	for i, room := range rooms {
		events := room.waitFor(t, pin, domain.EventGameOver)
		if events[0] != domain.EventPlayerJoined || events[2] != domain.EventGameStarted {
			t.Fatalf("instance %d: unexpected order %v", i, events)
		}
		if countOf(events, domain.EventUpdateAnswersCount) != 2 {
			t.Fatalf("instance %d: expected two answer counts, got %v", i, events)
		}
		board := room.payload(pin, domain.EventGameOver)
		var entries []domain.LeaderboardEntry
		if err := json.Unmarshal(board, &entries); err != nil {
			t.Fatalf("decode board: %v", err)
		}
		if len(entries) != 2 || entries[0].Nickname != "Alice" || entries[0].Score != 1150 {
			t.Fatalf("instance %d: unexpected board %+v", i, entries)
		}
	}

	// The pin of a finished game can be handed out again.
	reused, err := first.WithPINGenerator(func() string { return pin }).CreateSession(ctx, "quiz-1", "host-1")
	if err != nil {
		t.Fatalf("reuse pin: %v", err)
	}
	if found, err := store.FindByPIN(ctx, pin); err != nil || found.ID != reused.ID {
		t.Fatalf("pin should resolve to the live session: %v", err)
	}
	if _, err := second.WithPINGenerator(func() string { return pin }).CreateSession(ctx, "quiz-1", "host-1"); !errors.Is(err, domain.ErrPINExhausted) {
		t.Fatalf("expected pin exhausted while live, got %v", err)
	}

	// The partial unique index on live PINs surfaces as ErrPINTaken; other
	// unique violations do not.
	clash := reused.Clone()
	clash.ID = "clash"
	if err := store.Create(ctx, clash); !errors.Is(err, domain.ErrPINTaken) {
		t.Fatalf("expected pin taken from live pin index, got %v", err)
	}
	dupID := reused.Clone()
	dupID.PIN = "000001"
	if err := store.Create(ctx, dupID); err == nil || errors.Is(err, domain.ErrPINTaken) {
		t.Fatalf("duplicate id should fail as a plain insert error, got %v", err)
	}

	// Concurrent writers on one session all land through the version check.
	before, err := store.FindByPIN(ctx, pin)
	if err != nil {
		t.Fatalf("find live: %v", err)
	}
	const writers = 8
	var writes sync.WaitGroup
	for i := 0; i < writers; i++ {
		writes.Add(1)
		go func(i int) {
			defer writes.Done()
			_, err := store.Update(ctx, pin, func(s *domain.Session) error {
				s.Players = append(s.Players, domain.Player{
					Nickname: fmt.Sprintf("p%d", i),
					Token:    fmt.Sprintf("t%d", i),
					Answers:  []domain.AnswerRecord{},
				})
				return nil
			})
			if err != nil {
				t.Errorf("writer %d: %v", i, err)
			}
		}(i)
	}
	writes.Wait()
	live, err := store.FindByPIN(ctx, pin)
	if err != nil {
		t.Fatalf("find live: %v", err)
	}
	if len(live.Players) != writers || live.Version != before.Version+writers {
		t.Fatalf("expected %d players at version %d, got %d at %d",
			writers, before.Version+writers, len(live.Players), live.Version)
	}
}

type client struct {
	id string
}

func (c *client) ID() string          { return c.id }
func (c *client) Send(domain.Event)   {}
func (c *client) JoinRoom(pin string) {}

type roomRecorder struct {
	mu       sync.Mutex
	events   map[string][]domain.Event
	received chan struct{}
}

func newRoomRecorder() *roomRecorder {
	return &roomRecorder{events: make(map[string][]domain.Event), received: make(chan struct{}, 64)}
}

func (r *roomRecorder) Deliver(pin string, event domain.Event) {
	r.mu.Lock()
	r.events[pin] = append(r.events[pin], event)
	r.mu.Unlock()
	select {
	case r.received <- struct{}{}:
	default:
	}
}

func (r *roomRecorder) waitFor(t *testing.T, pin, eventType string) []string {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		r.mu.Lock()
		var types []string
		for _, e := range r.events[pin] {
			types = append(types, e.Type)
		}
		r.mu.Unlock()
		if countOf(types, eventType) > 0 {
			return types
		}
		select {
		case <-r.received:
		case <-deadline:
			t.Fatalf("timed out waiting for %s, have %v", eventType, types)
		}
	}
}

func (r *roomRecorder) payload(pin, eventType string) json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events[pin] {
		if e.Type == eventType {
			raw, _ := e.Payload.(json.RawMessage)
			return raw
		}
	}
	return nil
}

func countOf(types []string, eventType string) int {
	n := 0
	for _, typ := range types {
		if typ == eventType {
			n++
		}
	}
	return n
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(context.Background())
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(context.Background())
	}
}

func migrateSchema(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	group, err := migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if len(group.Migrations) != 2 {
		t.Fatalf("expected both migrations applied, got %s", group)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Arithmetic",
		Questions: []domain.Question{
			{Text: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectAnswer: 1, TimeLimit: 20},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
