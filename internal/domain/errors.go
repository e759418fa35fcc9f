package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no session matches a PIN or ID.
	ErrSessionNotFound = errors.New("game not found")
	// ErrNotJoinable is returned when a join targets a missing, started or finished game.
	ErrNotJoinable = errors.New("game not found or already started")
	// ErrNameTaken is returned when the nickname is already used in the session.
	ErrNameTaken = errors.New("nickname taken")
	// ErrInvalidNickname rejects empty nicknames.
	ErrInvalidNickname = errors.New("nickname required")
	// ErrPlayerNotFound is returned when a player token is unknown to the session.
	ErrPlayerNotFound = errors.New("player not found in game")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrEmptyQuiz rejects sessions for quizzes without questions.
	ErrEmptyQuiz = errors.New("quiz has no questions")
	// ErrInvalidQuiz rejects quiz content that cannot be played.
	ErrInvalidQuiz = errors.New("invalid quiz")
	// ErrInvalidState is returned when the session state does not permit the action.
	ErrInvalidState = errors.New("action not allowed in current game state")
	// ErrNoPlayers is returned when the host starts a game with an empty lobby.
	ErrNoPlayers = errors.New("at least one player is required to start")
	// ErrNotHost is returned when a host action comes from a connection not attached as host.
	ErrNotHost = errors.New("not the host of this game")
	// ErrPINTaken is returned by stores when a non-finished session already holds the PIN.
	ErrPINTaken = errors.New("pin already in use")
	// ErrPINExhausted is returned when no free PIN was found within the attempt budget.
	ErrPINExhausted = errors.New("could not allocate a free pin")
	// ErrInvalidRequest rejects malformed client messages.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrStaleAction marks late or out-of-window actions; they are dropped silently.
	ErrStaleAction = errors.New("stale action")
	// ErrAlreadyAnswered marks duplicate submissions; they are dropped silently.
	ErrAlreadyAnswered = errors.New("question already answered")
)

// Wire codes carried by ERROR events.
const (
	CodeNotFound  = "NOT_FOUND"
	CodeNameTaken = "NAME_TAKEN"
	CodeConflict  = "CONFLICT"
	CodeForbidden = "FORBIDDEN"
	CodeInvalid   = "INVALID"
	CodeInternal  = "INTERNAL"
)

// CodeOf maps an error to the code reported to clients.
func CodeOf(err error) string {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrNotJoinable),
		errors.Is(err, ErrPlayerNotFound), errors.Is(err, ErrQuizNotFound):
		return CodeNotFound
	case errors.Is(err, ErrNameTaken):
		return CodeNameTaken
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrNoPlayers),
		errors.Is(err, ErrEmptyQuiz), errors.Is(err, ErrInvalidQuiz),
		errors.Is(err, ErrPINExhausted):
		return CodeConflict
	case errors.Is(err, ErrNotHost):
		return CodeForbidden
	case errors.Is(err, ErrInvalidNickname), errors.Is(err, ErrInvalidRequest):
		return CodeInvalid
	default:
		return CodeInternal
	}
}

// IsSilent reports whether err is a normal race outcome that clients never see.
func IsSilent(err error) bool {
	return errors.Is(err, ErrStaleAction) || errors.Is(err, ErrAlreadyAnswered)
}
