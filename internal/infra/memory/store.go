package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"quiz-engine/internal/domain"
)

// Store is an in-memory implementation of app.GameRepository.
// The store-wide lock only guards the id and PIN indexes; game state has its
// own lock, so games never contend with each other.
type Store struct {
	mu           sync.RWMutex
	games        map[string]*gameState
	livePINs     map[string]string
	finishedPINs map[string]string
	players      map[string]*playerState
	joinSeq      atomic.Int64
}

type gameState struct {
	// mu is held shared while answers are recorded and exclusively for
	// lifecycle changes and joins.
	mu        sync.RWMutex
	game      domain.Game
	questions []domain.Question
	players   []*playerState
	names     map[string]struct{}

	answersMu sync.Mutex
	answers   map[answerKey]domain.Answer
	order     []answerKey
}

type playerState struct {
	player  domain.Player
	score   atomic.Int64
	version atomic.Int64
}

func (p *playerState) snapshot() domain.Player {
	out := p.player
	out.Score = p.score.Load()
	out.Version = p.version.Load()
	return out
}

type answerKey struct {
	playerID   string
	questionID string
	epoch      int
}

func NewStore() *Store {
	return &Store{
		games:        make(map[string]*gameState),
		livePINs:     make(map[string]string),
		finishedPINs: make(map[string]string),
		players:      make(map[string]*playerState),
	}
}

func (s *Store) CreateGame(_ context.Context, game domain.Game, questions []domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.livePINs[game.PIN]; ok {
		return domain.ErrPINTaken
	}
	qs := make([]domain.Question, len(questions))
	copy(qs, questions)
	s.games[game.ID] = &gameState{
		game:      game,
		questions: qs,
		names:     make(map[string]struct{}),
		answers:   make(map[answerKey]domain.Answer),
	}
	s.livePINs[game.PIN] = game.ID
	return nil
}

func (s *Store) state(gameID string) (*gameState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[gameID]
	if !ok {
		return nil, domain.ErrGameNotFound
	}
	return g, nil
}

func (s *Store) GetGame(_ context.Context, gameID string) (domain.Game, error) {
	g, err := s.state(gameID)
	if err != nil {
		return domain.Game{}, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.game, nil
}

func (s *Store) FindGameByPIN(ctx context.Context, pin string) (domain.Game, error) {
	s.mu.RLock()
	id, ok := s.livePINs[pin]
	if !ok {
		id, ok = s.finishedPINs[pin]
	}
	s.mu.RUnlock()
	if !ok {
		return domain.Game{}, domain.ErrPINNotFound
	}
	return s.GetGame(ctx, id)
}

func (s *Store) UpdateGame(_ context.Context, game domain.Game, expectVersion int64) error {
	g, err := s.state(game.ID)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.game.Version != expectVersion {
		return domain.ErrVersionConflict
	}
	wasLive := g.game.Status != domain.StatusFinished
	g.game = game
	if wasLive && game.Status == domain.StatusFinished {
		s.mu.Lock()
		if s.livePINs[game.PIN] == game.ID {
			delete(s.livePINs, game.PIN)
		}
		s.finishedPINs[game.PIN] = game.ID
		s.mu.Unlock()
	}
	return nil
}

func (s *Store) RestartGame(_ context.Context, game domain.Game, expectVersion int64) error {
	g, err := s.state(game.ID)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.game.Version != expectVersion {
		return domain.ErrVersionConflict
	}

	s.mu.Lock()
	if owner, ok := s.livePINs[game.PIN]; ok && owner != game.ID {
		s.mu.Unlock()
		return domain.ErrPINTaken
	}
	if s.finishedPINs[g.game.PIN] == game.ID {
		delete(s.finishedPINs, g.game.PIN)
	}
	s.livePINs[game.PIN] = game.ID
	s.mu.Unlock()

	g.game = game
	for _, p := range g.players {
		p.score.Store(0)
		p.version.Add(1)
	}
	return nil
}

func (s *Store) ListQuestions(_ context.Context, gameID string) ([]domain.Question, error) {
	g, err := s.state(gameID)
	if err != nil {
		return nil, err
	}
	qs := make([]domain.Question, len(g.questions))
	copy(qs, g.questions)
	return qs, nil
}

func (s *Store) AddPlayer(_ context.Context, player domain.Player) (domain.Player, error) {
	g, err := s.state(player.GameID)
	if err != nil {
		return domain.Player{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.game.Status == domain.StatusFinished {
		return domain.Player{}, domain.ErrGameFinished
	}
	if _, taken := g.names[player.DisplayName]; taken {
		return domain.Player{}, domain.ErrNameTaken
	}

	player.JoinSeq = s.joinSeq.Add(1)
	ps := &playerState{player: player}
	ps.score.Store(0)
	ps.version.Store(player.Version)
	g.names[player.DisplayName] = struct{}{}
	g.players = append(g.players, ps)

	s.mu.Lock()
	s.players[player.ID] = ps
	s.mu.Unlock()
	return ps.snapshot(), nil
}

func (s *Store) GetPlayer(_ context.Context, playerID string) (domain.Player, error) {
	s.mu.RLock()
	ps, ok := s.players[playerID]
	s.mu.RUnlock()
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return ps.snapshot(), nil
}

func (s *Store) ListPlayers(_ context.Context, gameID string) ([]domain.Player, error) {
	g, err := s.state(gameID)
	if err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]domain.Player, 0, len(g.players))
	for _, p := range g.players {
		out = append(out, p.snapshot())
	}
	return out, nil
}

func (s *Store) RecordAnswer(_ context.Context, answer domain.Answer, questionOrder int) (domain.Player, error) {
	g, err := s.state(answer.GameID)
	if err != nil {
		return domain.Player{}, err
	}
	s.mu.RLock()
	ps, ok := s.players[answer.PlayerID]
	s.mu.RUnlock()
	if !ok || ps.player.GameID != answer.GameID {
		return domain.Player{}, domain.ErrPlayerNotFound
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.game.Status != domain.StatusInProgress || g.game.Epoch != answer.Epoch || g.game.CurrentIndex != questionOrder {
		return domain.Player{}, domain.ErrGameChanged
	}

	key := answerKey{playerID: answer.PlayerID, questionID: answer.QuestionID, epoch: answer.Epoch}
	g.answersMu.Lock()
	if _, exists := g.answers[key]; exists {
		g.answersMu.Unlock()
		return domain.Player{}, domain.ErrAnswerExists
	}
	g.answers[key] = answer
	g.order = append(g.order, key)
	g.answersMu.Unlock()

	ps.score.Add(int64(answer.Points))
	ps.version.Add(1)
	return ps.snapshot(), nil
}

func (s *Store) ListAnswers(_ context.Context, gameID, questionID string, epoch int) ([]domain.Answer, error) {
	g, err := s.state(gameID)
	if err != nil {
		return nil, err
	}
	g.answersMu.Lock()
	defer g.answersMu.Unlock()
	out := make([]domain.Answer, 0)
	for _, key := range g.order {
		if key.questionID == questionID && key.epoch == epoch {
			out = append(out, g.answers[key])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
