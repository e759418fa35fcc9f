package domain

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a game session.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// LobbyIndex is the question index of a session that has not started yet.
const LobbyIndex = -1

// DefaultTimeLimit applies to questions stored without a time limit (seconds).
const DefaultTimeLimit = 20

// Session is one live run of a quiz, joined by PIN.
type Session struct {
	ID                   string    `json:"id"`
	PIN                  string    `json:"pin"`
	QuizID               string    `json:"quizId"`
	HostID               string    `json:"hostId"`
	Status               Status    `json:"status"`
	Players              []Player  `json:"players"`
	CurrentQuestionIndex int       `json:"currentQuestionIndex"`
	Version              int64     `json:"version"`
	CreatedAt            time.Time `json:"createdAt"`
	FinishedAt           time.Time `json:"finishedAt"`
}

// Player is a participant of a session. Token is the stable identity handed
// out at join time; ConnectionID only tracks the latest live connection.
type Player struct {
	Nickname     string         `json:"nickname"`
	Token        string         `json:"token"`
	ConnectionID string         `json:"connectionId"`
	Score        int            `json:"score"`
	Answers      []AnswerRecord `json:"answers"`
	JoinedAt     time.Time      `json:"joinedAt"`
}

// AnswerRecord is one accepted answer of a player.
type AnswerRecord struct {
	QuestionIndex int  `json:"questionIndex"`
	AnswerIndex   int  `json:"answerIndex"`
	IsCorrect     bool `json:"isCorrect"`
	TimeTaken     int  `json:"timeTaken"`
	Points        int  `json:"points"`
}

// AnswerSubmission is what a player sends for the live question.
// QuestionIndex is optional; when set it must match the live question.
type AnswerSubmission struct {
	AnswerIndex   int
	TimeLeft      int
	QuestionIndex *int
}

// Question is quiz-owned content. CorrectAnswer never leaves the server.
type Question struct {
	Text          string   `json:"text" yaml:"text"`
	Options       []string `json:"options" yaml:"options"`
	CorrectAnswer int      `json:"correctAnswer" yaml:"correctAnswer"`
	TimeLimit     int      `json:"timeLimit" yaml:"timeLimit"`
}

// Quiz is an ordered collection of questions.
type Quiz struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title" yaml:"title"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// LeaderboardEntry is the public view of a player's standing.
type LeaderboardEntry struct {
	Nickname string `json:"nickname"`
	Score    int    `json:"score"`
}

// Limit returns the question time limit, falling back to DefaultTimeLimit.
func (q Question) Limit() int {
	if q.TimeLimit <= 0 {
		return DefaultTimeLimit
	}
	return q.TimeLimit
}

// Player returns the player holding token, or nil.
func (s *Session) Player(token string) *Player {
	for i := range s.Players {
		if s.Players[i].Token == token {
			return &s.Players[i]
		}
	}
	return nil
}

// HasNickname reports whether nickname is already used (case-sensitive).
func (s *Session) HasNickname(nickname string) bool {
	for i := range s.Players {
		if s.Players[i].Nickname == nickname {
			return true
		}
	}
	return false
}

// AnsweredCount counts players with an answer for questionIndex.
func (s *Session) AnsweredCount(questionIndex int) int {
	n := 0
	for i := range s.Players {
		if s.Players[i].HasAnswered(questionIndex) {
			n++
		}
	}
	return n
}

// HasAnswered reports whether the player already answered questionIndex.
func (p *Player) HasAnswered(questionIndex int) bool {
	for _, a := range p.Answers {
		if a.QuestionIndex == questionIndex {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so stores never share slices with callers.
func (s Session) Clone() Session {
	out := s
	if s.Players != nil {
		out.Players = make([]Player, len(s.Players))
		for i, p := range s.Players {
			out.Players[i] = p
			if p.Answers != nil {
				out.Players[i].Answers = append([]AnswerRecord(nil), p.Answers...)
			}
		}
	}
	return out
}

// Public strips player tokens before a session is handed to outside readers.
func (s Session) Public() Session {
	out := s.Clone()
	for i := range out.Players {
		out.Players[i].Token = ""
		out.Players[i].ConnectionID = ""
	}
	return out
}

// Validate checks that quiz content can be played: at least one question,
// two or more options each, and a correct index inside the options.
func (q Quiz) Validate() error {
	if len(q.Questions) == 0 {
		return ErrEmptyQuiz
	}
	for i, question := range q.Questions {
		if len(question.Options) < 2 {
			return fmt.Errorf("%w: question %d needs at least two options", ErrInvalidQuiz, i+1)
		}
		if question.CorrectAnswer < 0 || question.CorrectAnswer >= len(question.Options) {
			return fmt.Errorf("%w: question %d has no valid correct answer", ErrInvalidQuiz, i+1)
		}
		if question.TimeLimit < 0 {
			return fmt.Errorf("%w: question %d has a negative time limit", ErrInvalidQuiz, i+1)
		}
	}
	return nil
}
