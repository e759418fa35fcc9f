package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"live-quiz-service/internal/domain"
)

const maxTxRetries = 32

// ErrContention is returned when an optimistic transaction kept losing races.
var ErrContention = errors.New("session update contention")

// SessionStore keeps authoritative session state in Redis so any instance can
// serve any game.
// Keys:
//
//	quiz:game:{id}            JSON session
//	quiz:pin:{pin}            id of the latest session that used the PIN
//	quiz:host:{hostID}:games  sorted set of session ids by creation time
//
// Updates run as WATCH/MULTI transactions on the session key and are retried
// when another writer commits first.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore builds the store. A zero ttl keeps records forever.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *SessionStore) Create(ctx context.Context, session domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	pinKey := s.pinKey(session.PIN)

	return s.watch(ctx, func(tx *redis.Tx) error {
		holderID, err := tx.Get(ctx, pinKey).Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			holder, err := s.load(ctx, tx, holderID)
			if err == nil && holder.Status != domain.StatusFinished {
				return domain.ErrPINTaken
			}
			if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
				return err
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.sessionKey(session.ID), data, s.ttl)
			pipe.Set(ctx, pinKey, session.ID, s.ttl)
			pipe.ZAdd(ctx, s.hostKey(session.HostID), redis.Z{
				Score:  float64(session.CreatedAt.UnixNano()),
				Member: session.ID,
			})
			return nil
		})
		return err
	}, pinKey)
}

func (s *SessionStore) FindByPIN(ctx context.Context, pin string) (domain.Session, error) {
	id, err := s.idForPIN(ctx, pin)
	if err != nil {
		return domain.Session{}, err
	}
	return s.load(ctx, s.client, id)
}

func (s *SessionStore) FindByID(ctx context.Context, id string) (domain.Session, error) {
	return s.load(ctx, s.client, id)
}

func (s *SessionStore) Update(ctx context.Context, pin string, fn func(*domain.Session) error) (domain.Session, error) {
	id, err := s.idForPIN(ctx, pin)
	if err != nil {
		return domain.Session{}, err
	}
	key := s.sessionKey(id)

	var updated domain.Session
	err = s.watch(ctx, func(tx *redis.Tx) error {
		current, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		next := current.Clone()
		if err := fn(&next); err != nil {
			return err
		}
		next.Version = current.Version + 1

		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			if s.ttl > 0 {
				// the PIN index must live as long as the game it resolves to
				pipe.Expire(ctx, s.pinKey(next.PIN), s.ttl)
			}
			return nil
		})
		if err != nil {
			return err
		}
		updated = next
		return nil
	}, key)
	if err != nil {
		return domain.Session{}, err
	}
	return updated, nil
}

func (s *SessionStore) ListFinishedByHost(ctx context.Context, hostID string) ([]domain.Session, error) {
	ids, err := s.client.ZRevRange(ctx, s.hostKey(hostID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list host sessions: %w", err)
	}
	var out []domain.Session
	for _, id := range ids {
		session, err := s.load(ctx, s.client, id)
		if errors.Is(err, domain.ErrSessionNotFound) {
			// expired record
			continue
		}
		if err != nil {
			return nil, err
		}
		if session.Status == domain.StatusFinished {
			out = append(out, session)
		}
	}
	return out, nil
}

func (s *SessionStore) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrContention
}

func (s *SessionStore) idForPIN(ctx context.Context, pin string) (string, error) {
	id, err := s.client.Get(ctx, s.pinKey(pin)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve pin: %w", err)
	}
	return id, nil
}

func (s *SessionStore) load(ctx context.Context, c getter, id string) (domain.Session, error) {
	data, err := c.Get(ctx, s.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}
	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return domain.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return session, nil
}

func (s *SessionStore) sessionKey(id string) string {
	return "quiz:game:" + id
}

func (s *SessionStore) pinKey(pin string) string {
	return "quiz:pin:" + pin
}

func (s *SessionStore) hostKey(hostID string) string {
	return "quiz:host:" + hostID + ":games"
}
