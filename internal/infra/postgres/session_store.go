package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"live-quiz-service/internal/domain"
)

const (
	maxUpdateRetries = 32
	livePINIndex     = "game_sessions_live_pin_idx"
	uniqueViolation  = "23505"
)

// ErrContention is returned when a compare-and-swap update kept losing races.
var ErrContention = errors.New("session update contention")

// SessionStore persists sessions in the game_sessions table. The session
// document lives in a JSONB column; version is bumped on every write and
// updates only apply when the version read is still current.
type SessionStore struct {
	pool *pgxpool.Pool
}

func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

func (s *SessionStore) Create(ctx context.Context, session domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO game_sessions (id, pin, quiz_id, host_id, status, version, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		session.ID, session.PIN, session.QuizID, session.HostID, string(session.Status),
		session.Version, data, session.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == livePINIndex {
		return domain.ErrPINTaken
	}
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// FindByPIN prefers the live holder of a PIN over retired sessions.
func (s *SessionStore) FindByPIN(ctx context.Context, pin string) (domain.Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT data, version FROM game_sessions
		WHERE pin = $1
		ORDER BY (status = 'finished'), created_at DESC
		LIMIT 1`, pin)
	return scanSession(row)
}

func (s *SessionStore) FindByID(ctx context.Context, id string) (domain.Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT data, version FROM game_sessions WHERE id = $1`, id)
	return scanSession(row)
}

func (s *SessionStore) Update(ctx context.Context, pin string, fn func(*domain.Session) error) (domain.Session, error) {
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		current, err := s.FindByPIN(ctx, pin)
		if err != nil {
			return domain.Session{}, err
		}
		next := current.Clone()
		if err := fn(&next); err != nil {
			return domain.Session{}, err
		}
		next.Version = current.Version + 1

		data, err := json.Marshal(next)
		if err != nil {
			return domain.Session{}, fmt.Errorf("marshal session: %w", err)
		}
		var finishedAt *time.Time
		if !next.FinishedAt.IsZero() {
			finishedAt = &next.FinishedAt
		}
		tag, err := s.pool.Exec(ctx, `
			UPDATE game_sessions
			SET data = $1, status = $2, version = $3, finished_at = $4
			WHERE id = $5 AND version = $6`,
			data, string(next.Status), next.Version, finishedAt, next.ID, current.Version)
		if err != nil {
			return domain.Session{}, fmt.Errorf("update session: %w", err)
		}
		if tag.RowsAffected() == 1 {
			return next, nil
		}
	}
	return domain.Session{}, ErrContention
}

func (s *SessionStore) ListFinishedByHost(ctx context.Context, hostID string) ([]domain.Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT data, version FROM game_sessions
		WHERE host_id = $1 AND status = 'finished'
		ORDER BY created_at DESC`, hostID)
	if err != nil {
		return nil, fmt.Errorf("list host sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

func scanSession(row pgx.Row) (domain.Session, error) {
	var (
		raw     []byte
		version int64
	)
	err := row.Scan(&raw, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("scan session: %w", err)
	}
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	session.Version = version
	return session, nil
}
