package app

import (
	"context"

	"quiz-engine/internal/domain"
)

// GameRepository abstracts durable game state (in-memory, SQLite, Postgres).
// Implementations enforce uniqueness with constraints, never check-then-insert:
// live PINs, (game, display name) and (player, question, epoch).
type GameRepository interface {
	// CreateGame stores the game and its questions atomically.
	// Returns domain.ErrPINTaken when a non-finished game holds the PIN.
	CreateGame(ctx context.Context, game domain.Game, questions []domain.Question) error
	GetGame(ctx context.Context, gameID string) (domain.Game, error)
	// FindGameByPIN prefers the live game holding pin, then the most recent finished one.
	FindGameByPIN(ctx context.Context, pin string) (domain.Game, error)
	// UpdateGame writes lifecycle fields if the stored version equals expectVersion,
	// otherwise returns domain.ErrVersionConflict.
	UpdateGame(ctx context.Context, game domain.Game, expectVersion int64) error
	// RestartGame updates the game like UpdateGame and zeroes every player's score
	// in the same transaction.
	RestartGame(ctx context.Context, game domain.Game, expectVersion int64) error
	ListQuestions(ctx context.Context, gameID string) ([]domain.Question, error)

	// AddPlayer inserts the player and assigns its join sequence.
	// Returns domain.ErrNameTaken or domain.ErrGameFinished.
	AddPlayer(ctx context.Context, player domain.Player) (domain.Player, error)
	GetPlayer(ctx context.Context, playerID string) (domain.Player, error)
	// ListPlayers returns players in join order.
	ListPlayers(ctx context.Context, gameID string) ([]domain.Player, error)

	// RecordAnswer inserts the answer if absent and increments the player's score
	// by answer.Points in one transaction. It fails with domain.ErrGameChanged unless
	// the game is in progress at answer.Epoch with questionOrder as its current index.
	RecordAnswer(ctx context.Context, answer domain.Answer, questionOrder int) (domain.Player, error)
	ListAnswers(ctx context.Context, gameID, questionID string, epoch int) ([]domain.Answer, error)
}

// QuestionSource serves the immutable question set of a game, usually from a cache.
type QuestionSource interface {
	Questions(ctx context.Context, gameID string) ([]domain.Question, error)
}

// EventBus fans out change events keyed by game id.
type EventBus interface {
	Publish(ctx context.Context, event domain.Event) error
	// Subscribe returns a channel of events for gameID. The caller must invoke the
	// returned cancel function to avoid leaks. The channel is closed on cancel or
	// when the subscriber falls too far behind.
	Subscribe(ctx context.Context, gameID string) (<-chan domain.Event, func(), error)
}
