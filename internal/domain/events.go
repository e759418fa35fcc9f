package domain

// Inbound event types (client -> engine).
const (
	EventHostJoinGame    = "HOST_JOIN_GAME"
	EventStartGame       = "START_GAME"
	EventNextQuestion    = "NEXT_QUESTION"
	EventShowLeaderboard = "SHOW_LEADERBOARD"
	EventPlayerJoin      = "PLAYER_JOIN"
	EventPlayerResume    = "PLAYER_RESUME"
	EventSubmitAnswer    = "SUBMIT_ANSWER"
)

// Outbound event types (engine -> clients).
const (
	EventJoinSuccess        = "JOIN_SUCCESS"
	EventResumeSuccess      = "RESUME_SUCCESS"
	EventError              = "ERROR"
	EventPlayerJoined       = "PLAYER_JOINED"
	EventGameStarted        = "GAME_STARTED"
	EventNewQuestion        = "NEW_QUESTION"
	EventAnswerResult       = "ANSWER_RESULT"
	EventUpdateAnswersCount = "UPDATE_ANSWERS_COUNT"
	EventGameOver           = "GAME_OVER"
)

// Event is the envelope exchanged with clients and carried by the bus.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// JoinSuccess acknowledges PLAYER_JOIN. PlayerID is the token used to resume
// and to answer.
type JoinSuccess struct {
	PIN      string `json:"pin"`
	Nickname string `json:"nickname"`
	PlayerID string `json:"playerId"`
}

// ResumeSuccess restores a reconnecting player. Question is set while a
// question is live; Answered reports whether it was already answered.
type ResumeSuccess struct {
	PIN      string          `json:"pin"`
	Nickname string          `json:"nickname"`
	PlayerID string          `json:"playerId"`
	Score    int             `json:"score"`
	Status   Status          `json:"status"`
	Answered bool            `json:"answered"`
	Question *MaskedQuestion `json:"question,omitempty"`
}

// ErrorMessage is the payload of ERROR, sent only to the offending connection.
type ErrorMessage struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// PlayerJoined tells the room about a new player and the roster size.
type PlayerJoined struct {
	Nickname string `json:"nickname"`
	Total    int    `json:"total"`
}

// MaskedQuestion is a question as broadcast to the room: no correct index.
type MaskedQuestion struct {
	Text            string   `json:"text"`
	Options         []string `json:"options"`
	TimeLimit       int      `json:"timeLimit"`
	CurrentQuestion int      `json:"currentQuestion"`
	TotalQuestions  int      `json:"totalQuestions"`
}

// AnswerResult is the private feedback for an accepted answer. Score is the
// player's running total.
type AnswerResult struct {
	IsCorrect   bool `json:"isCorrect"`
	Score       int  `json:"score"`
	PointsAdded int  `json:"pointsAdded"`
}

// Mask builds the public payload for question index of quiz.
func Mask(quiz Quiz, index int) MaskedQuestion {
	q := quiz.Questions[index]
	return MaskedQuestion{
		Text:            q.Text,
		Options:         append([]string(nil), q.Options...),
		TimeLimit:       q.Limit(),
		CurrentQuestion: index + 1,
		TotalQuestions:  len(quiz.Questions),
	}
}

// ErrorEvent builds the ERROR event for err.
func ErrorEvent(err error) Event {
	msg := err.Error()
	code := CodeOf(err)
	if code == CodeInternal {
		msg = "request failed"
	}
	return Event{Type: EventError, Payload: ErrorMessage{Message: msg, Code: code}}
}
