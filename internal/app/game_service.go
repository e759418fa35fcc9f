package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"live-quiz-service/internal/domain"
)

// SessionRepository is the authoritative store of game sessions. Update must
// apply fn atomically: concurrent updates of the same PIN never interleave and
// an error returned by fn leaves the stored session untouched.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	FindByPIN(ctx context.Context, pin string) (domain.Session, error)
	FindByID(ctx context.Context, id string) (domain.Session, error)
	Update(ctx context.Context, pin string, fn func(*domain.Session) error) (domain.Session, error)
	ListFinishedByHost(ctx context.Context, hostID string) ([]domain.Session, error)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Publisher fans an event out to every connection subscribed to a room,
// whichever instance holds the connection.
type Publisher interface {
	Publish(ctx context.Context, pin string, event domain.Event) error
}

// Client is one live connection as seen by the service.
type Client interface {
	ID() string
	Send(event domain.Event)
	JoinRoom(pin string)
}

// Options tune game policy.
type Options struct {
	AllowLateJoin   bool
	LeaderboardSize int
	PINAttempts     int
}

func (o Options) withDefaults() Options {
	if o.LeaderboardSize <= 0 {
		o.LeaderboardSize = 5
	}
	if o.PINAttempts <= 0 {
		o.PINAttempts = 5
	}
	return o
}

// GameService drives the per-session state machine: lobby, questions,
// leaderboard and game over.
type GameService struct {
	sessions SessionRepository
	quizzes  QuizRepository
	bus      Publisher
	opts     Options
	logger   *slog.Logger
	locks    *sessionLocks
	now      func() time.Time
	newPIN   func() string
}

func NewGameService(sessions SessionRepository, quizzes QuizRepository, bus Publisher, opts Options, logger *slog.Logger) *GameService {
	if logger == nil {
		logger = slog.Default()
	}
	return &GameService{
		sessions: sessions,
		quizzes:  quizzes,
		bus:      bus,
		opts:     opts.withDefaults(),
		logger:   logger,
		locks:    newSessionLocks(),
		now:      time.Now,
		newPIN:   randomPIN,
	}
}

// WithPINGenerator replaces the PIN source; used by tests to force collisions.
func (s *GameService) WithPINGenerator(gen func() string) *GameService {
	s.newPIN = gen
	return s
}

func randomPIN() string {
	return strconv.Itoa(100000 + rand.Intn(900000))
}

// CreateSession opens a new lobby for quizID hosted by hostID. PINs are
// redrawn on collision until PINAttempts is exhausted.
func (s *GameService) CreateSession(ctx context.Context, quizID, hostID string) (domain.Session, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Session{}, err
	}
	if err := quiz.Validate(); err != nil {
		return domain.Session{}, err
	}

	for attempt := 1; attempt <= s.opts.PINAttempts; attempt++ {
		session := domain.Session{
			ID:                   uuid.NewString(),
			PIN:                  s.newPIN(),
			QuizID:               quizID,
			HostID:               hostID,
			Status:               domain.StatusWaiting,
			Players:              []domain.Player{},
			CurrentQuestionIndex: domain.LobbyIndex,
			CreatedAt:            s.now().UTC(),
		}
		err := s.sessions.Create(ctx, session)
		if errors.Is(err, domain.ErrPINTaken) {
			s.logger.Debug("pin collision", "pin", session.PIN, "attempt", attempt)
			continue
		}
		if err != nil {
			return domain.Session{}, fmt.Errorf("create session: %w", err)
		}
		s.logger.Info("session created", "pin", session.PIN, "session", session.ID, "quiz", quizID)
		return session, nil
	}
	return domain.Session{}, domain.ErrPINExhausted
}

// HostAttach subscribes a host connection to the room of pin.
func (s *GameService) HostAttach(ctx context.Context, c Client, pin string) error {
	if _, err := s.sessions.FindByPIN(ctx, pin); err != nil {
		return err
	}
	c.JoinRoom(pin)
	s.logger.Info("host attached", "pin", pin, "client", c.ID())
	return nil
}

// Join adds a player to the lobby of pin.
func (s *GameService) Join(ctx context.Context, c Client, pin, nickname string) (domain.JoinSuccess, error) {
	if strings.TrimSpace(nickname) == "" {
		return domain.JoinSuccess{}, domain.ErrInvalidNickname
	}

	unlock := s.locks.lock(pin)
	defer unlock()

	var token string
	session, err := s.sessions.Update(ctx, pin, func(session *domain.Session) error {
		if !s.joinable(session) {
			return domain.ErrNotJoinable
		}
		if session.HasNickname(nickname) {
			return domain.ErrNameTaken
		}
		token = uuid.NewString()
		session.Players = append(session.Players, domain.Player{
			Nickname:     nickname,
			Token:        token,
			ConnectionID: c.ID(),
			Answers:      []domain.AnswerRecord{},
			JoinedAt:     s.now().UTC(),
		})
		return nil
	})
	if errors.Is(err, domain.ErrSessionNotFound) {
		err = domain.ErrNotJoinable
	}
	if err != nil {
		return domain.JoinSuccess{}, err
	}

	c.JoinRoom(pin)
	s.publish(ctx, pin, domain.Event{
		Type:    domain.EventPlayerJoined,
		Payload: domain.PlayerJoined{Nickname: nickname, Total: len(session.Players)},
	})

	ack := domain.JoinSuccess{PIN: pin, Nickname: nickname, PlayerID: token}
	c.Send(domain.Event{Type: domain.EventJoinSuccess, Payload: ack})
	s.sendLiveQuestion(ctx, c, session)
	return ack, nil
}

// sendLiveQuestion catches a late joiner up with the question on screen.
func (s *GameService) sendLiveQuestion(ctx context.Context, c Client, session domain.Session) {
	if session.Status != domain.StatusActive || session.CurrentQuestionIndex < 0 {
		return
	}
	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		s.logger.Warn("late join without question", "pin", session.PIN, "err", err)
		return
	}
	if session.CurrentQuestionIndex >= len(quiz.Questions) {
		return
	}
	c.Send(domain.Event{Type: domain.EventNewQuestion, Payload: domain.Mask(quiz, session.CurrentQuestionIndex)})
}

func (s *GameService) joinable(session *domain.Session) bool {
	switch session.Status {
	case domain.StatusWaiting:
		return true
	case domain.StatusActive:
		return s.opts.AllowLateJoin
	default:
		return false
	}
}

// Resume rebinds a new connection to the player identified by playerID.
func (s *GameService) Resume(ctx context.Context, c Client, pin, playerID string) (domain.ResumeSuccess, error) {
	unlock := s.locks.lock(pin)
	defer unlock()

	quiz, err := s.quizFor(ctx, pin)
	if err != nil {
		return domain.ResumeSuccess{}, err
	}

	session, err := s.sessions.Update(ctx, pin, func(session *domain.Session) error {
		player := session.Player(playerID)
		if player == nil {
			return domain.ErrPlayerNotFound
		}
		player.ConnectionID = c.ID()
		return nil
	})
	if err != nil {
		return domain.ResumeSuccess{}, err
	}

	player := session.Player(playerID)
	resp := domain.ResumeSuccess{
		PIN:      pin,
		Nickname: player.Nickname,
		PlayerID: playerID,
		Score:    player.Score,
		Status:   session.Status,
	}
	if idx := session.CurrentQuestionIndex; session.Status == domain.StatusActive && idx >= 0 && idx < len(quiz.Questions) {
		q := domain.Mask(quiz, idx)
		resp.Question = &q
		resp.Answered = player.HasAnswered(idx)
	}

	c.JoinRoom(pin)
	c.Send(domain.Event{Type: domain.EventResumeSuccess, Payload: resp})
	return resp, nil
}

// Start moves a lobby with at least one player to the first question.
func (s *GameService) Start(ctx context.Context, pin string) error {
	unlock := s.locks.lock(pin)
	defer unlock()

	quiz, err := s.quizFor(ctx, pin)
	if err != nil {
		return err
	}

	_, err = s.sessions.Update(ctx, pin, func(session *domain.Session) error {
		if session.Status != domain.StatusWaiting || session.CurrentQuestionIndex != domain.LobbyIndex {
			return domain.ErrInvalidState
		}
		if len(session.Players) == 0 {
			return domain.ErrNoPlayers
		}
		if len(quiz.Questions) == 0 {
			return domain.ErrEmptyQuiz
		}
		session.Status = domain.StatusActive
		session.CurrentQuestionIndex = 0
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("game started", "pin", pin)
	s.publish(ctx, pin, domain.Event{Type: domain.EventGameStarted})
	s.publish(ctx, pin, domain.Event{Type: domain.EventNewQuestion, Payload: domain.Mask(quiz, 0)})
	return nil
}

// Advance moves to the next question, or finishes the game after the last one.
// Advancing a finished game is a no-op.
func (s *GameService) Advance(ctx context.Context, pin string) error {
	unlock := s.locks.lock(pin)
	defer unlock()

	quiz, err := s.quizFor(ctx, pin)
	if err != nil {
		return err
	}

	session, err := s.sessions.Update(ctx, pin, func(session *domain.Session) error {
		switch session.Status {
		case domain.StatusFinished:
			return domain.ErrStaleAction
		case domain.StatusWaiting:
			return domain.ErrInvalidState
		}
		session.CurrentQuestionIndex++
		if session.CurrentQuestionIndex >= len(quiz.Questions) {
			session.CurrentQuestionIndex = len(quiz.Questions)
			session.Status = domain.StatusFinished
			session.FinishedAt = s.now().UTC()
		}
		return nil
	})
	if domain.IsSilent(err) {
		s.logger.Debug("advance ignored", "pin", pin, "err", err)
		return nil
	}
	if err != nil {
		return err
	}

	if session.Status == domain.StatusFinished {
		s.logger.Info("game over", "pin", pin, "players", len(session.Players))
		s.publish(ctx, pin, domain.Event{Type: domain.EventGameOver, Payload: Rank(session.Players, 0)})
		return nil
	}
	s.publish(ctx, pin, domain.Event{
		Type:    domain.EventNewQuestion,
		Payload: domain.Mask(quiz, session.CurrentQuestionIndex),
	})
	return nil
}

// ShowLeaderboard broadcasts the current top players without touching state.
func (s *GameService) ShowLeaderboard(ctx context.Context, pin string) error {
	unlock := s.locks.lock(pin)
	defer unlock()

	session, err := s.sessions.FindByPIN(ctx, pin)
	if err != nil {
		return err
	}
	if session.Status != domain.StatusActive {
		return domain.ErrInvalidState
	}
	s.publish(ctx, pin, domain.Event{
		Type:    domain.EventShowLeaderboard,
		Payload: Rank(session.Players, s.opts.LeaderboardSize),
	})
	return nil
}

// SubmitAnswer scores the first answer of a player for the live question.
// Late, duplicate and unknown-player submissions are dropped without error.
func (s *GameService) SubmitAnswer(ctx context.Context, c Client, pin, playerID string, sub domain.AnswerSubmission) error {
	unlock := s.locks.lock(pin)
	defer unlock()

	quiz, err := s.quizFor(ctx, pin)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var (
		result        domain.AnswerResult
		questionIndex int
	)
	session, err := s.sessions.Update(ctx, pin, func(session *domain.Session) error {
		idx := session.CurrentQuestionIndex
		if session.Status != domain.StatusActive || idx < 0 || idx >= len(quiz.Questions) {
			return domain.ErrStaleAction
		}
		if sub.QuestionIndex != nil && *sub.QuestionIndex != idx {
			return domain.ErrStaleAction
		}
		player := session.Player(playerID)
		if player == nil {
			return domain.ErrPlayerNotFound
		}
		if player.HasAnswered(idx) {
			return domain.ErrAlreadyAnswered
		}

		record := scoreAnswer(quiz.Questions[idx], idx, sub)
		player.Answers = append(player.Answers, record)
		player.Score += record.Points

		questionIndex = idx
		result = domain.AnswerResult{IsCorrect: record.IsCorrect, Score: player.Score, PointsAdded: record.Points}
		return nil
	})
	if domain.IsSilent(err) || errors.Is(err, domain.ErrPlayerNotFound) || errors.Is(err, domain.ErrSessionNotFound) {
		s.logger.Debug("answer dropped", "pin", pin, "client", c.ID(), "err", err)
		return nil
	}
	if err != nil {
		return err
	}

	c.Send(domain.Event{Type: domain.EventAnswerResult, Payload: result})
	s.publish(ctx, pin, domain.Event{
		Type:    domain.EventUpdateAnswersCount,
		Payload: session.AnsweredCount(questionIndex),
	})
	return nil
}

// Session returns the persisted session with player tokens stripped.
func (s *GameService) Session(ctx context.Context, id string) (domain.Session, error) {
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	return session.Public(), nil
}

// History lists the finished sessions of a host, newest first.
func (s *GameService) History(ctx context.Context, hostID string) ([]domain.Session, error) {
	sessions, err := s.sessions.ListFinishedByHost(ctx, hostID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Session, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, session.Public())
	}
	return out, nil
}

func (s *GameService) quizFor(ctx context.Context, pin string) (domain.Quiz, error) {
	session, err := s.sessions.FindByPIN(ctx, pin)
	if err != nil {
		return domain.Quiz{}, err
	}
	return s.quizzes.GetQuiz(ctx, session.QuizID)
}

// publish runs after the store update; a bus failure leaves the store
// authoritative and clients recover by refetching.
func (s *GameService) publish(ctx context.Context, pin string, event domain.Event) {
	if err := s.bus.Publish(ctx, pin, event); err != nil {
		s.logger.Warn("publish failed", "pin", pin, "event", event.Type, "err", err)
	}
}
