package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"quiz-engine/internal/domain"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

const (
	maxPINAttempts = 8
	maxCASAttempts = 5
)

// GameService contains the quiz engine use cases. It holds no per-game state;
// every operation re-reads the store, so any number of instances may serve one game.
type GameService struct {
	games     GameRepository
	questions QuestionSource
	bus       EventBus
	log       *slog.Logger
	now       func() time.Time
	newPIN    PINGenerator
	retries   uint64
}

// Option customizes a GameService.
type Option func(*GameService)

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *GameService) { s.now = now }
}

func WithPINGenerator(gen PINGenerator) Option {
	return func(s *GameService) { s.newPIN = gen }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *GameService) { s.log = log }
}

// WithPublishRetries bounds retries of a failed event publish.
func WithPublishRetries(n uint64) Option {
	return func(s *GameService) { s.retries = n }
}

func NewGameService(games GameRepository, questions QuestionSource, bus EventBus, opts ...Option) *GameService {
	s := &GameService{
		games:     games,
		questions: questions,
		bus:       bus,
		log:       slog.Default(),
		now:       time.Now,
		newPIN:    RandomPIN,
		retries:   3,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateGameInput is a finalized question set from the authoring surface.
type CreateGameInput struct {
	Title     string
	Questions []domain.Question
}

// CreateGame registers a new game in waiting with a fresh PIN.
func (s *GameService) CreateGame(ctx context.Context, in CreateGameInput) (domain.Game, error) {
	questions, err := domain.ValidateQuestions(in.Questions)
	if err != nil {
		return domain.Game{}, err
	}
	game, err := s.createGame(ctx, in.Title, questions)
	if err != nil {
		return domain.Game{}, err
	}
	s.publish(ctx, domain.GameEvent(game, domain.EventGameCreated, s.now()))
	s.log.Info("game created", "game_id", game.ID, "pin", game.PIN, "questions", game.QuestionCount)
	return game, nil
}

func (s *GameService) createGame(ctx context.Context, title string, questions []domain.Question) (domain.Game, error) {
	game := domain.Game{
		ID:            uuid.NewString(),
		Title:         title,
		Status:        domain.StatusWaiting,
		CurrentIndex:  domain.NoQuestion,
		QuestionCount: len(questions),
		Version:       1,
		CreatedAt:     s.now().UTC(),
	}
	owned := make([]domain.Question, len(questions))
	for i, q := range questions {
		q.ID = uuid.NewString()
		q.GameID = game.ID
		q.Order = i
		owned[i] = q
	}

	for attempt := 0; attempt < maxPINAttempts; attempt++ {
		pin, err := s.newPIN()
		if err != nil {
			return domain.Game{}, err
		}
		game.PIN = pin
		err = s.games.CreateGame(ctx, game, owned)
		if errors.Is(err, domain.ErrPINTaken) {
			continue
		}
		if err != nil {
			return domain.Game{}, err
		}
		return game, nil
	}
	return domain.Game{}, domain.ErrPINTaken
}

// JoinInput identifies the game by PIN. UserID optionally links a registered identity.
type JoinInput struct {
	PIN         string
	DisplayName string
	UserID      *string
}

// JoinResult is the new player plus the state of the game they joined.
type JoinResult struct {
	Player   domain.Player   `json:"player"`
	Snapshot domain.Snapshot `json:"snapshot"`
}

// Join registers a player in the live game holding the PIN.
func (s *GameService) Join(ctx context.Context, in JoinInput) (JoinResult, error) {
	if err := domain.ValidatePIN(in.PIN); err != nil {
		return JoinResult{}, err
	}
	name, err := domain.NormalizeDisplayName(in.DisplayName)
	if err != nil {
		return JoinResult{}, err
	}
	game, err := s.games.FindGameByPIN(ctx, in.PIN)
	if err != nil {
		return JoinResult{}, err
	}
	if !game.CanJoin() {
		return JoinResult{}, domain.ErrGameFinished
	}

	player, err := s.games.AddPlayer(ctx, domain.Player{
		ID:          uuid.NewString(),
		GameID:      game.ID,
		DisplayName: name,
		UserID:      in.UserID,
		Version:     1,
		JoinedAt:    s.now().UTC(),
	})
	if err != nil {
		return JoinResult{}, err
	}
	s.publish(ctx, domain.PlayerEvent(player, domain.EventPlayerJoined, s.now()))
	s.log.Info("player joined", "game_id", game.ID, "player_id", player.ID)

	// The player is committed: a snapshot failure must not fail the join, or a
	// retry would hit name_taken.
	snapshot, err := s.Snapshot(ctx, game.ID, 0)
	if err != nil {
		s.log.Warn("join snapshot degraded", "game_id", game.ID, "player_id", player.ID, "error", err)
		snapshot = domain.Snapshot{
			Game:        game,
			Leaderboard: domain.Rank(game.ID, []domain.Player{player}, 0),
		}
	}
	return JoinResult{Player: player, Snapshot: snapshot}, nil
}

// Start moves a waiting game with at least one player to its first question.
func (s *GameService) Start(ctx context.Context, gameID string) (domain.Game, error) {
	players, err := s.games.ListPlayers(ctx, gameID)
	if err != nil {
		return domain.Game{}, err
	}
	game, changed, err := s.transition(ctx, gameID, func(g *domain.Game) (bool, error) {
		if !g.CanStart() {
			return false, domain.ErrAlreadyStarted
		}
		if len(players) == 0 {
			return false, domain.ErrNoPlayers
		}
		startedAt := s.now().UTC()
		g.Status = domain.StatusInProgress
		g.CurrentIndex = 0
		g.StartedAt = &startedAt
		return true, nil
	})
	if err != nil {
		return domain.Game{}, err
	}
	if changed {
		s.publish(ctx, domain.GameEvent(game, domain.EventGameStarted, s.now()))
		s.log.Info("game started", "game_id", game.ID, "players", len(players))
	}
	return game, nil
}

// Advance moves the pointer to target. Once started, a target at or below the
// current index is a no-op, including after finish. Advancing past the last
// question fails with domain.ErrQuestionsExhausted; the host calls Finish instead.
func (s *GameService) Advance(ctx context.Context, gameID string, target int) (domain.Game, error) {
	game, changed, err := s.transition(ctx, gameID, func(g *domain.Game) (bool, error) {
		if g.Status != domain.StatusWaiting && target <= g.CurrentIndex {
			return false, nil
		}
		if !g.CanAdvance() {
			return false, domain.ErrInvalidTransition
		}
		if target != g.CurrentIndex+1 {
			return false, domain.ErrNonAdjacent
		}
		if target >= g.QuestionCount {
			return false, domain.ErrQuestionsExhausted
		}
		g.CurrentIndex = target
		return true, nil
	})
	if err != nil {
		return domain.Game{}, err
	}
	if changed {
		s.publish(ctx, domain.GameEvent(game, domain.EventGameAdvanced, s.now()))
		s.log.Info("game advanced", "game_id", game.ID, "index", game.CurrentIndex)
	}
	return game, nil
}

// Finish ends an in-progress game.
func (s *GameService) Finish(ctx context.Context, gameID string) (domain.Game, error) {
	game, _, err := s.transition(ctx, gameID, func(g *domain.Game) (bool, error) {
		if !g.CanFinish() {
			return false, domain.ErrInvalidTransition
		}
		finishedAt := s.now().UTC()
		g.Status = domain.StatusFinished
		g.FinishedAt = &finishedAt
		return true, nil
	})
	if err != nil {
		return domain.Game{}, err
	}
	s.publish(ctx, domain.GameEvent(game, domain.EventGameFinished, s.now()))
	s.log.Info("game finished", "game_id", game.ID)
	return game, nil
}

// transition applies a lifecycle change with compare-and-swap on the game version.
// apply returns false for a no-op. A lost race re-reads and re-applies.
func (s *GameService) transition(ctx context.Context, gameID string, apply func(*domain.Game) (bool, error)) (domain.Game, bool, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		current, err := s.games.GetGame(ctx, gameID)
		if err != nil {
			return domain.Game{}, false, err
		}
		next := current
		changed, err := apply(&next)
		if err != nil {
			return domain.Game{}, false, err
		}
		if !changed {
			return current, false, nil
		}
		next.Version = current.Version + 1
		err = s.games.UpdateGame(ctx, next, current.Version)
		if errors.Is(err, domain.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return domain.Game{}, false, err
		}
		return next, true, nil
	}
	return domain.Game{}, false, domain.ErrVersionConflict
}

// Restart resets a finished game to waiting under a new epoch. Players stay
// joined with their scores zeroed. The PIN is kept unless a live game recycled it.
func (s *GameService) Restart(ctx context.Context, gameID string) (domain.Game, error) {
	for attempt := 0; attempt < maxCASAttempts+maxPINAttempts; attempt++ {
		current, err := s.games.GetGame(ctx, gameID)
		if err != nil {
			return domain.Game{}, err
		}
		if !current.CanRestart() {
			return domain.Game{}, domain.ErrInvalidTransition
		}
		next := current
		next.Status = domain.StatusWaiting
		next.CurrentIndex = domain.NoQuestion
		next.StartedAt = nil
		next.FinishedAt = nil
		next.Epoch = current.Epoch + 1
		next.Version = current.Version + 1

		err = s.games.RestartGame(ctx, next, current.Version)
		for pinAttempt := 0; errors.Is(err, domain.ErrPINTaken) && pinAttempt < maxPINAttempts; pinAttempt++ {
			if next.PIN, err = s.newPIN(); err != nil {
				return domain.Game{}, err
			}
			err = s.games.RestartGame(ctx, next, current.Version)
		}
		if errors.Is(err, domain.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return domain.Game{}, err
		}
		s.publish(ctx, domain.GameEvent(next, domain.EventGameRestarted, s.now()))
		s.log.Info("game restarted", "game_id", next.ID, "epoch", next.Epoch, "pin", next.PIN)
		return next, nil
	}
	return domain.Game{}, domain.ErrVersionConflict
}

// Replay clones the question set of a finished game into a brand-new game.
// Players and answers are not copied.
func (s *GameService) Replay(ctx context.Context, gameID string) (domain.Game, error) {
	source, err := s.games.GetGame(ctx, gameID)
	if err != nil {
		return domain.Game{}, err
	}
	if source.Status != domain.StatusFinished {
		return domain.Game{}, domain.ErrInvalidTransition
	}
	questions, err := s.questions.Questions(ctx, gameID)
	if err != nil {
		return domain.Game{}, err
	}
	game, err := s.createGame(ctx, source.Title, questions)
	if err != nil {
		return domain.Game{}, err
	}
	now := s.now()
	s.publish(ctx,
		domain.GameEvent(game, domain.EventGameCreated, now),
		domain.Event{
			GameID:     source.ID,
			Entity:     domain.EntityGame,
			EntityID:   game.ID,
			Version:    game.Version,
			Type:       domain.EventGameReplayed,
			Status:     game.Status,
			NextGameID: game.ID,
			OccurredAt: now,
		},
	)
	s.log.Info("game replayed", "game_id", source.ID, "new_game_id", game.ID)
	return game, nil
}

// SubmitInput is one player's answer. LatencyMs is measured by the client.
type SubmitInput struct {
	PlayerID   string
	QuestionID string
	Option     int
	LatencyMs  int
}

// SubmitAnswer scores at most one answer per player and question in the current
// epoch. Only the current question is answerable; late answers within it are
// accepted with the speed bonus clamped away.
func (s *GameService) SubmitAnswer(ctx context.Context, in SubmitInput) (domain.AnswerResult, error) {
	player, err := s.games.GetPlayer(ctx, in.PlayerID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	game, err := s.games.GetGame(ctx, player.GameID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	questions, err := s.questions.Questions(ctx, game.ID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	question, ok := findQuestion(questions, in.QuestionID)
	if !ok {
		return domain.AnswerResult{}, domain.ErrQuestionNotFound
	}
	if game.Status != domain.StatusInProgress || question.Order != game.CurrentIndex {
		return domain.AnswerResult{}, domain.ErrQuestionNotActive
	}
	if in.Option < 0 || in.Option >= len(question.Options) {
		return domain.AnswerResult{}, domain.ErrInvalidOption
	}

	correct, points := domain.ScoreAnswer(question, in.Option, in.LatencyMs)
	latency := in.LatencyMs
	if latency < 0 {
		latency = 0
	}
	answer := domain.Answer{
		ID:         uuid.NewString(),
		GameID:     game.ID,
		PlayerID:   player.ID,
		QuestionID: question.ID,
		Epoch:      game.Epoch,
		Selected:   in.Option,
		Correct:    correct,
		LatencyMs:  latency,
		Points:     points,
		CreatedAt:  s.now().UTC(),
	}
	updated, err := s.games.RecordAnswer(ctx, answer, question.Order)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAnswerExists):
			s.log.Debug("duplicate answer rejected", "game_id", game.ID, "player_id", player.ID, "question_id", question.ID)
		case errors.Is(err, domain.ErrGameChanged):
			// the host advanced, finished or restarted while this answer was in flight
			return domain.AnswerResult{}, domain.ErrQuestionNotActive
		}
		return domain.AnswerResult{}, err
	}

	now := s.now()
	s.publish(ctx,
		domain.Event{
			GameID:     game.ID,
			Entity:     domain.EntityAnswer,
			EntityID:   answer.ID,
			Version:    1,
			Type:       domain.EventAnswerRecorded,
			OccurredAt: now,
		},
		domain.PlayerEvent(updated, domain.EventPlayerScored, now),
	)
	return domain.AnswerResult{Answer: answer, TotalScore: updated.Score}, nil
}

// Reveal returns the option tally of the current question and the leaderboard,
// and tells observers to show them.
func (s *GameService) Reveal(ctx context.Context, gameID string, topN int) (domain.Reveal, error) {
	game, err := s.games.GetGame(ctx, gameID)
	if err != nil {
		return domain.Reveal{}, err
	}
	if game.Status == domain.StatusWaiting || game.CurrentIndex < 0 {
		return domain.Reveal{}, domain.ErrInvalidTransition
	}
	questions, err := s.questions.Questions(ctx, gameID)
	if err != nil {
		return domain.Reveal{}, err
	}
	if game.CurrentIndex >= len(questions) {
		return domain.Reveal{}, domain.ErrQuestionNotFound
	}
	question := questions[game.CurrentIndex]
	answers, err := s.games.ListAnswers(ctx, gameID, question.ID, game.Epoch)
	if err != nil {
		return domain.Reveal{}, err
	}
	players, err := s.games.ListPlayers(ctx, gameID)
	if err != nil {
		return domain.Reveal{}, err
	}

	reveal := domain.Reveal{
		Game:        game,
		Question:    question,
		Tally:       domain.Tally(question, answers),
		Leaderboard: domain.Rank(gameID, players, topN),
	}
	idx := game.CurrentIndex
	s.publish(ctx, domain.Event{
		GameID:     gameID,
		Entity:     domain.EntityReveal,
		EntityID:   question.ID,
		Version:    game.Version,
		Type:       domain.EventGameRevealed,
		Status:     game.Status,
		Index:      &idx,
		OccurredAt: s.now(),
	})
	return reveal, nil
}

// Game returns the stored game record.
func (s *GameService) Game(ctx context.Context, gameID string) (domain.Game, error) {
	return s.games.GetGame(ctx, gameID)
}

// Leaderboard ranks the game's players; topN <= 0 returns everyone.
func (s *GameService) Leaderboard(ctx context.Context, gameID string, topN int) (domain.Leaderboard, error) {
	if _, err := s.games.GetGame(ctx, gameID); err != nil {
		return domain.Leaderboard{}, err
	}
	players, err := s.games.ListPlayers(ctx, gameID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return domain.Rank(gameID, players, topN), nil
}

// Snapshot is the aggregate state clients re-fetch on every event.
// The current question is included without its correct option.
func (s *GameService) Snapshot(ctx context.Context, gameID string, topN int) (domain.Snapshot, error) {
	game, err := s.games.GetGame(ctx, gameID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	players, err := s.games.ListPlayers(ctx, gameID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snapshot := domain.Snapshot{
		Game:        game,
		Leaderboard: domain.Rank(gameID, players, topN),
	}
	if game.Status == domain.StatusInProgress {
		questions, err := s.questions.Questions(ctx, gameID)
		if err != nil {
			return domain.Snapshot{}, err
		}
		if game.CurrentIndex >= 0 && game.CurrentIndex < len(questions) {
			q := questions[game.CurrentIndex].Public()
			snapshot.Question = &q
		}
	}
	return snapshot, nil
}

// Player returns a player by id.
func (s *GameService) Player(ctx context.Context, playerID string) (domain.Player, error) {
	return s.games.GetPlayer(ctx, playerID)
}

// Subscribe returns a channel that receives change events for a game.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *GameService) Subscribe(ctx context.Context, gameID string) (<-chan domain.Event, func(), error) {
	if _, err := s.games.GetGame(ctx, gameID); err != nil {
		return nil, nil, err
	}
	return s.bus.Subscribe(ctx, gameID)
}

// publish fans out events after commit. A failed publish is retried with backoff
// and then logged; it never undoes the committed write, since clients re-fetch
// the snapshot on reconnect.
func (s *GameService) publish(ctx context.Context, events ...domain.Event) {
	ctx = context.WithoutCancel(ctx)
	for _, ev := range events {
		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = 10 * time.Millisecond
		policy.MaxInterval = 200 * time.Millisecond
		policy.MaxElapsedTime = time.Second
		err := backoff.Retry(func() error {
			return s.bus.Publish(ctx, ev)
		}, backoff.WithContext(backoff.WithMaxRetries(policy, s.retries), ctx))
		if err != nil {
			s.log.Warn("publish event failed", "game_id", ev.GameID, "type", ev.Type, "err", err)
		}
	}
}

func findQuestion(questions []domain.Question, questionID string) (domain.Question, bool) {
	for _, q := range questions {
		if q.ID == questionID {
			return q, true
		}
	}
	return domain.Question{}, false
}
