package domain

import "errors"

// Kind classifies errors for the request boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindInvalidTransition
	KindExhausted
	KindInvalid
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindExhausted:
		return "exhausted"
	case KindInvalid:
		return "invalid"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// Error is a classified domain error. Sentinels are compared with errors.Is.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	// ErrGameNotFound is returned when a game id does not resolve.
	ErrGameNotFound = newError(KindNotFound, "game_not_found", "game not found")
	// ErrPINNotFound is returned when no game carries the PIN.
	ErrPINNotFound = newError(KindNotFound, "pin_not_found", "no game with this pin")
	// ErrPlayerNotFound is returned when a player id does not resolve.
	ErrPlayerNotFound = newError(KindNotFound, "player_not_found", "player not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = newError(KindNotFound, "question_not_found", "question not found")

	// ErrGameFinished is returned when joining a game whose PIN has expired.
	ErrGameFinished = newError(KindInvalidTransition, "game_finished", "game already finished")
	ErrNameTaken    = newError(KindConflict, "name_taken", "display name already taken")
	// ErrAnswerExists rejects a second submission for the same question in the same epoch.
	ErrAnswerExists      = newError(KindConflict, "answer_already_submitted", "answer already submitted")
	ErrAlreadyStarted    = newError(KindConflict, "game_already_started", "game already started")
	ErrNonAdjacent       = newError(KindConflict, "non_adjacent_advance", "advance target must be the next question")
	ErrQuestionNotActive = newError(KindConflict, "question_not_active", "question is not the current question")

	ErrNoPlayers         = newError(KindInvalidTransition, "no_players", "game needs at least one player to start")
	ErrInvalidTransition = newError(KindInvalidTransition, "invalid_transition", "operation not allowed in the current game state")
	// ErrQuestionsExhausted signals the host to call finish instead of advance.
	ErrQuestionsExhausted = newError(KindExhausted, "questions_exhausted", "no more questions; finish the game")

	ErrInvalidQuestions = newError(KindInvalid, "invalid_questions", "invalid question set")
	ErrInvalidName      = newError(KindInvalid, "invalid_display_name", "display name must be 1 to 32 characters")
	ErrInvalidOption    = newError(KindInvalid, "invalid_option", "selected option does not exist")
	ErrInvalidPIN       = newError(KindInvalid, "invalid_pin", "pin must be 6 digits")

	ErrUnauthorized = newError(KindUnauthorized, "unauthorized", "token does not grant this operation")

	// ErrPINTaken and ErrVersionConflict are raised by stores and retried by the service.
	ErrPINTaken        = newError(KindConflict, "pin_taken", "pin already in use")
	ErrVersionConflict = newError(KindConflict, "version_conflict", "game changed concurrently")
	// ErrGameChanged is raised when an answer races a lifecycle transition.
	ErrGameChanged = newError(KindConflict, "game_changed", "game moved on before the answer was recorded")
)

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the machine-readable code of err.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}
