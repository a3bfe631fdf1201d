// Package storetest is a contract suite every app.GameRepository must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"quiz-engine/internal/app"
	"quiz-engine/internal/domain"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Factory returns an empty repository for one subtest.
type Factory func(t *testing.T) app.GameRepository

// Run executes the contract suite against repositories produced by newRepo.
func Run(t *testing.T, newRepo Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, repo app.GameRepository)
	}{
		{"CreateAndFindByPIN", testCreateAndFindByPIN},
		{"LivePINIsUnique", testLivePINIsUnique},
		{"FinishedPINIsRecycled", testFinishedPINIsRecycled},
		{"UpdateGameCompareAndSwap", testUpdateGameCompareAndSwap},
		{"QuestionsKeepOrder", testQuestionsKeepOrder},
		{"PlayersJoinInOrder", testPlayersJoinInOrder},
		{"DisplayNameUniquePerGame", testDisplayNameUniquePerGame},
		{"ConcurrentJoinSameName", testConcurrentJoinSameName},
		{"JoinFinishedGame", testJoinFinishedGame},
		{"AnswerRecordedOnce", testAnswerRecordedOnce},
		{"ConcurrentDuplicateAnswers", testConcurrentDuplicateAnswers},
		{"ConcurrentScoresCommute", testConcurrentScoresCommute},
		{"AnswerRejectedAfterAdvance", testAnswerRejectedAfterAdvance},
		{"RestartResetsScoresAndEpoch", testRestartResetsScoresAndEpoch},
		{"RestartWithRecycledPIN", testRestartWithRecycledPIN},
		{"NotFound", testNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newRepo(t))
		})
	}
}

var pinCounter atomic.Int64

func nextPIN() string {
	return fmt.Sprintf("%06d", pinCounter.Add(1)%1_000_000)
}

func newGame(pin string, questions int) (domain.Game, []domain.Question) {
	game := domain.Game{
		ID:            uuid.NewString(),
		PIN:           pin,
		Title:         "contract",
		Status:        domain.StatusWaiting,
		CurrentIndex:  domain.NoQuestion,
		QuestionCount: questions,
		Version:       1,
		CreatedAt:     time.Now().UTC().Truncate(time.Millisecond),
	}
	qs := make([]domain.Question, questions)
	for i := range qs {
		qs[i] = domain.Question{
			ID:           uuid.NewString(),
			GameID:       game.ID,
			Order:        i,
			Text:         fmt.Sprintf("question %d", i),
			Options:      []domain.Option{{Text: "a"}, {Text: "b", MediaURL: "https://cdn.example/b.png"}},
			CorrectIndex: 1,
			Points:       1000,
			TimeLimitMs:  20000,
		}
	}
	return game, qs
}

func mustCreate(t *testing.T, repo app.GameRepository, questions int) (domain.Game, []domain.Question) {
	t.Helper()
	game, qs := newGame(nextPIN(), questions)
	if err := repo.CreateGame(context.Background(), game, qs); err != nil {
		t.Fatalf("create game: %v", err)
	}
	return game, qs
}

func mustJoin(t *testing.T, repo app.GameRepository, gameID, name string) domain.Player {
	t.Helper()
	p, err := repo.AddPlayer(context.Background(), newPlayer(gameID, name))
	if err != nil {
		t.Fatalf("add player %s: %v", name, err)
	}
	return p
}

func newPlayer(gameID, name string) domain.Player {
	return domain.Player{
		ID:          uuid.NewString(),
		GameID:      gameID,
		DisplayName: name,
		Version:     1,
		JoinedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
}

// mustTransition applies mutate with the stored version and returns the new game.
func mustTransition(t *testing.T, repo app.GameRepository, gameID string, mutate func(g *domain.Game)) domain.Game {
	t.Helper()
	ctx := context.Background()
	current, err := repo.GetGame(ctx, gameID)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	next := current
	mutate(&next)
	next.Version = current.Version + 1
	if err := repo.UpdateGame(ctx, next, current.Version); err != nil {
		t.Fatalf("update game: %v", err)
	}
	return next
}

func start(g *domain.Game) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	g.Status = domain.StatusInProgress
	g.CurrentIndex = 0
	g.StartedAt = &now
}

func finish(g *domain.Game) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	g.Status = domain.StatusFinished
	g.FinishedAt = &now
}

func newAnswer(game domain.Game, player domain.Player, q domain.Question, selected, points int) domain.Answer {
	return domain.Answer{
		ID:         uuid.NewString(),
		GameID:     game.ID,
		PlayerID:   player.ID,
		QuestionID: q.ID,
		Epoch:      game.Epoch,
		Selected:   selected,
		Correct:    selected == q.CorrectIndex,
		LatencyMs:  1000,
		Points:     points,
		CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}
}

func testCreateAndFindByPIN(t *testing.T, repo app.GameRepository) {
	ctx := context.Background()
	game, _ := mustCreate(t, repo, 2)

	got, err := repo.FindGameByPIN(ctx, game.PIN)
	if err != nil {
		t.Fatalf("find by pin: %v", err)
	}
	if got.ID != game.ID || got.Status != domain.StatusWaiting || got.CurrentIndex != domain.NoQuestion {
		t.Fatalf("unexpected game %+v", got)
	}
	if got.QuestionCount != 2 || got.Version != 1 || got.Epoch != 0 {
		t.Fatalf("unexpected counters %+v", got)
	}
	if _, err := repo.FindGameByPIN(ctx, "999999"); !errors.Is(err, domain.ErrPINNotFound) {
		t.Fatalf("expected ErrPINNotFound, got %v", err)
	}
}

func testLivePINIsUnique(t *testing.T, repo app.GameRepository) {
	game, _ := mustCreate(t, repo, 1)
	dup, qs := newGame(game.PIN, 1)
	if err := repo.CreateGame(context.Background(), dup, qs); !errors.Is(err, domain.ErrPINTaken) {
		t.Fatalf("expected ErrPINTaken, got %v", err)
	}
	if _, err := repo.GetGame(context.Background(), dup.ID); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("expected rejected game not persisted, got %v", err)
	}
}

func testFinishedPINIsRecycled(t *testing.T, repo app.GameRepository) {
	ctx := context.Background()
	old, _ := mustCreate(t, repo, 1)
	mustJoin(t, repo, old.ID, "Ana")
	mustTransition(t, repo, old.ID, start)
	mustTransition(t, repo, old.ID, finish)

	got, err := repo.FindGameByPIN(ctx, old.PIN)
	if err != nil || got.ID != old.ID || got.Status != domain.StatusFinished {
		t.Fatalf("expected finished game by pin, got %+v err=%v", got, err)
	}

	fresh, qs := newGame(old.PIN, 1)
	if err := repo.CreateGame(ctx, fresh, qs); err != nil {
		t.Fatalf("expected finished pin to be reusable: %v", err)
	}
	got, err = repo.FindGameByPIN(ctx, old.PIN)
	if err != nil || got.ID != fresh.ID {
		t.Fatalf("expected live game preferred, got %+v err=%v", got, err)
	}
}

func testUpdateGameCompareAndSwap(t *testing.T, repo app.GameRepository) {
	ctx := context.Background()
	game, _ := mustCreate(t, repo, 3)
	next := game
	start(&next)
	next.Version = 2
	if err := repo.UpdateGame(ctx, next, 1); err != nil {
		t.Fatalf("update: %v", err)
	}
	stale := next
	stale.CurrentIndex = 1
	stale.Version = 2
	if err := repo.UpdateGame(ctx, stale, 1); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	got, err := repo.GetGame(ctx, game.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != 2 || got.CurrentIndex != 0 || got.Status != domain.StatusInProgress || got.StartedAt == nil {
		t.Fatalf("unexpected stored game %+v", got)
	}
	missing := next
	missing.ID = uuid.NewString()
	if err := repo.UpdateGame(ctx, missing, 1); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
}

func testQuestionsKeepOrder(t *testing.T, repo app.GameRepository) {
	game, qs := mustCreate(t, repo, 4)
	got, err := repo.ListQuestions(context.Background(), game.ID)
	if err != nil {
		t.Fatalf("list questions: %v", err)
	}
	if len(got) != len(qs) {
		t.Fatalf("expected %d questions, got %d", len(qs), len(got))
	}
	for i := range qs {
		if got[i].ID != qs[i].ID || got[i].Order != i || got[i].CorrectIndex != 1 {
			t.Fatalf("question %d mismatch: %+v", i, got[i])
		}
		if len(got[i].Options) != 2 || got[i].Options[1].MediaURL == "" {
			t.Fatalf("question %d options not preserved: %+v", i, got[i].Options)
		}
	}
}

func testPlayersJoinInOrder(t *testing.T, repo app.GameRepository) {
	game, _ := mustCreate(t, repo, 1)
	names := []string{"Ana", "Leo", "Cy"}
	for _, n := range names {
		mustJoin(t, repo, game.ID, n)
	}
	players, err := repo.ListPlayers(context.Background(), game.ID)
	if err != nil {
		t.Fatalf("list players: %v", err)
	}
	if len(players) != 3 {
		t.Fatalf("expected 3 players, got %d", len(players))
	}
	for i, p := range players {
		if p.DisplayName != names[i] || p.Score != 0 {
			t.Fatalf("unexpected player %d: %+v", i, p)
		}
		if i > 0 && p.JoinSeq <= players[i-1].JoinSeq {
			t.Fatalf("join sequence not increasing: %+v", players)
		}
	}
}

func testDisplayNameUniquePerGame(t *testing.T, repo app.GameRepository) {
	ctx := context.Background()
	game, _ := mustCreate(t, repo, 1)
	other, _ := mustCreate(t, repo, 1)
	mustJoin(t, repo, game.ID, "Ana")
	if _, err := repo.AddPlayer(ctx, newPlayer(game.ID, "Ana")); !errors.Is(err, domain.ErrNameTaken) {
		t.Fatalf("expected ErrNameTaken, got %v", err)
	}
	mustJoin(t, repo, other.ID, "Ana")
	mustJoin(t, repo, game.ID, "ana")
}

func testConcurrentJoinSameName(t *testing.T, repo app.GameRepository) {
	game, _ := mustCreate(t, repo, 1)
	var ok, taken atomic.Int32
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := repo.AddPlayer(context.Background(), newPlayer(game.ID, "Ana"))
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrNameTaken):
				taken.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("join: %v", err)
	}
	if ok.Load() != 1 || taken.Load() != 7 {
		t.Fatalf("expected 1 success and 7 conflicts, got %d/%d", ok.Load(), taken.Load())
	}
}

func testJoinFinishedGame(t *testing.T, repo app.GameRepository) {
	game, _ := mustCreate(t, repo, 1)
	mustJoin(t, repo, game.ID, "Ana")
	mustTransition(t, repo, game.ID, start)
	mustJoin(t, repo, game.ID, "Late")
	mustTransition(t, repo, game.ID, finish)
	if _, err := repo.AddPlayer(context.Background(), newPlayer(game.ID, "Leo")); !errors.Is(err, domain.ErrGameFinished) {
		t.Fatalf("expected ErrGameFinished, got %v", err)
	}
}

func testAnswerRecordedOnce(t *testing.T, repo app.GameRepository) {
	ctx := context.Background()
	game, qs := mustCreate(t, repo, 2)
	ana := mustJoin(t, repo, game.ID, "Ana")
	game = mustTransition(t, repo, game.ID, start)

	updated, err := repo.RecordAnswer(ctx, newAnswer(game, ana, qs[0], 1, 875), 0)
	if err != nil {
		t.Fatalf("record answer: %v", err)
	}
	if updated.Score != 875 || updated.Version <= ana.Version {
		t.Fatalf("unexpected player after answer %+v", updated)
	}
	if _, err := repo.RecordAnswer(ctx, newAnswer(game, ana, qs[0], 0, 0), 0); !errors.Is(err, domain.ErrAnswerExists) {
		t.Fatalf("expected ErrAnswerExists, got %v", err)
	}
	p, err := repo.GetPlayer(ctx, ana.ID)
	if err != nil || p.Score != 875 {
		t.Fatalf("expected score to stand at 875, got %+v err=%v", p, err)
	}
	answers, err := repo.ListAnswers(ctx, game.ID, qs[0].ID, game.Epoch)
	if err != nil {
		t.Fatalf("list answers: %v", err)
	}
	if len(answers) != 1 || answers[0].Selected != 1 || !answers[0].Correct || answers[0].Points != 875 {
		t.Fatalf("unexpected answers %+v", answers)
	}
}

func testConcurrentDuplicateAnswers(t *testing.T, repo app.GameRepository) {
	ctx := context.Background()
	game, qs := mustCreate(t, repo, 1)
	ana := mustJoin(t, repo, game.ID, "Ana")
	game = mustTransition(t, repo, game.ID, start)

	var ok, dup atomic.Int32
	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			_, err := repo.RecordAnswer(ctx, newAnswer(game, ana, qs[0], 1, 1000), 0)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrAnswerExists):
				dup.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("record: %v", err)
	}
	if ok.Load() != 1 || dup.Load() != 9 {
		t.Fatalf("expected exactly one accepted answer, got %d ok %d dup", ok.Load(), dup.Load())
	}
	p, _ := repo.GetPlayer(ctx, ana.ID)
	if p.Score != 1000 {
		t.Fatalf("expected a single increment, score=%d", p.Score)
	}
}

func testConcurrentScoresCommute(t *testing.T, repo app.GameRepository) {
	ctx := context.Background()
	game, qs := mustCreate(t, repo, 1)
	players := make([]domain.Player, 12)
	for i := range players {
		players[i] = mustJoin(t, repo, game.ID, fmt.Sprintf("p%02d", i))
	}
	game = mustTransition(t, repo, game.ID, start)

	var g errgroup.Group
	for i, p := range players {
		g.Go(func() error {
			_, err := repo.RecordAnswer(ctx, newAnswer(game, p, qs[0], 1, 100+i), 0)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("record: %v", err)
	}
	all, err := repo.ListPlayers(ctx, game.ID)
	if err != nil {
		t.Fatalf("list players: %v", err)
	}
	for i, p := range all {
		if p.Score != int64(100+i) {
			t.Fatalf("player %s expected %d, got %d", p.DisplayName, 100+i, p.Score)
		}
	}
	answers, _ := repo.ListAnswers(ctx, game.ID, qs[0].ID, game.Epoch)
	if len(answers) != len(players) {
		t.Fatalf("expected %d answers, got %d", len(players), len(answers))
	}
}

func testAnswerRejectedAfterAdvance(t *testing.T, repo app.GameRepository) {
	ctx := context.Background()
	game, qs := mustCreate(t, repo, 2)
	ana := mustJoin(t, repo, game.ID, "Ana")
	started := mustTransition(t, repo, game.ID, start)
	mustTransition(t, repo, game.ID, func(g *domain.Game) { g.CurrentIndex = 1 })

	if _, err := repo.RecordAnswer(ctx, newAnswer(started, ana, qs[0], 1, 1000), 0); !errors.Is(err, domain.ErrGameChanged) {
		t.Fatalf("expected ErrGameChanged, got %v", err)
	}
	p, _ := repo.GetPlayer(ctx, ana.ID)
	if p.Score != 0 {
		t.Fatalf("expected no partial write, score=%d", p.Score)
	}
	answers, _ := repo.ListAnswers(ctx, game.ID, qs[0].ID, started.Epoch)
	if len(answers) != 0 {
		t.Fatalf("expected no answer rows, got %d", len(answers))
	}
}

func testRestartResetsScoresAndEpoch(t *testing.T, repo app.GameRepository) {
	ctx := context.Background()
	game, qs := mustCreate(t, repo, 1)
	ana := mustJoin(t, repo, game.ID, "Ana")
	leo := mustJoin(t, repo, game.ID, "Leo")
	game = mustTransition(t, repo, game.ID, start)
	if _, err := repo.RecordAnswer(ctx, newAnswer(game, ana, qs[0], 1, 900), 0); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := repo.RecordAnswer(ctx, newAnswer(game, leo, qs[0], 1, 600), 0); err != nil {
		t.Fatalf("record: %v", err)
	}
	finished := mustTransition(t, repo, game.ID, finish)

	restarted := finished
	restarted.Status = domain.StatusWaiting
	restarted.CurrentIndex = domain.NoQuestion
	restarted.StartedAt = nil
	restarted.FinishedAt = nil
	restarted.Epoch = finished.Epoch + 1
	restarted.Version = finished.Version + 1
	if err := repo.RestartGame(ctx, restarted, finished.Version); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if err := repo.RestartGame(ctx, restarted, finished.Version); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected second restart with stale version rejected, got %v", err)
	}

	got, err := repo.GetGame(ctx, game.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusWaiting || got.Epoch != 1 || got.StartedAt != nil || got.FinishedAt != nil {
		t.Fatalf("unexpected restarted game %+v", got)
	}
	byPIN, err := repo.FindGameByPIN(ctx, got.PIN)
	if err != nil || byPIN.ID != game.ID {
		t.Fatalf("expected pin live again, got %+v err=%v", byPIN, err)
	}
	players, _ := repo.ListPlayers(ctx, game.ID)
	if len(players) != 2 {
		t.Fatalf("expected players to remain joined, got %d", len(players))
	}
	for _, p := range players {
		if p.Score != 0 {
			t.Fatalf("expected score reset, got %+v", p)
		}
	}

	replayed := mustTransition(t, repo, game.ID, start)
	if _, err := repo.RecordAnswer(ctx, newAnswer(replayed, ana, qs[0], 1, 500), 0); err != nil {
		t.Fatalf("expected new epoch answer accepted: %v", err)
	}
	old, _ := repo.ListAnswers(ctx, game.ID, qs[0].ID, 0)
	current, _ := repo.ListAnswers(ctx, game.ID, qs[0].ID, 1)
	if len(old) != 2 || len(current) != 1 {
		t.Fatalf("expected epochs kept apart, got old=%d current=%d", len(old), len(current))
	}
}

func testRestartWithRecycledPIN(t *testing.T, repo app.GameRepository) {
	ctx := context.Background()
	game, _ := mustCreate(t, repo, 1)
	mustJoin(t, repo, game.ID, "Ana")
	mustTransition(t, repo, game.ID, start)
	finished := mustTransition(t, repo, game.ID, finish)

	squatter, qs := newGame(game.PIN, 1)
	if err := repo.CreateGame(ctx, squatter, qs); err != nil {
		t.Fatalf("create squatter: %v", err)
	}

	restarted := finished
	restarted.Status = domain.StatusWaiting
	restarted.CurrentIndex = domain.NoQuestion
	restarted.StartedAt = nil
	restarted.FinishedAt = nil
	restarted.Epoch++
	restarted.Version++
	if err := repo.RestartGame(ctx, restarted, finished.Version); !errors.Is(err, domain.ErrPINTaken) {
		t.Fatalf("expected ErrPINTaken, got %v", err)
	}
	got, _ := repo.GetGame(ctx, game.ID)
	if got.Status != domain.StatusFinished {
		t.Fatalf("expected failed restart to leave game finished, got %s", got.Status)
	}

	restarted.PIN = nextPIN()
	if err := repo.RestartGame(ctx, restarted, finished.Version); err != nil {
		t.Fatalf("restart with fresh pin: %v", err)
	}
	byPIN, err := repo.FindGameByPIN(ctx, restarted.PIN)
	if err != nil || byPIN.ID != game.ID {
		t.Fatalf("expected fresh pin to resolve, got %+v err=%v", byPIN, err)
	}
}

func testNotFound(t *testing.T, repo app.GameRepository) {
	ctx := context.Background()
	if _, err := repo.GetGame(ctx, uuid.NewString()); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
	if _, err := repo.GetPlayer(ctx, uuid.NewString()); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}
	if _, err := repo.AddPlayer(ctx, newPlayer(uuid.NewString(), "Ana")); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound on join, got %v", err)
	}
}
