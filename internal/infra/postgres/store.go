// Package postgres is the shared game store used when several engine instances
// serve the same games.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"quiz-engine/internal/domain"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const (
	uniqueViolation = "23505"

	gameColumns   = `id, pin, title, status, current_index, question_count, epoch, version, created_at, started_at, finished_at`
	playerColumns = `seq, id, game_id, display_name, user_id, score, version, joined_at`
	answerColumns = `id, game_id, player_id, question_id, epoch, selected, correct, latency_ms, points, created_at`
)

// Store implements app.GameRepository on a pgx pool. The schema is applied by
// the migrations package.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool and verifies the server is reachable.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.Connect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func scanGame(row pgx.Row) (domain.Game, error) {
	var (
		g      domain.Game
		status string
	)
	err := row.Scan(&g.ID, &g.PIN, &g.Title, &status, &g.CurrentIndex, &g.QuestionCount,
		&g.Epoch, &g.Version, &g.CreatedAt, &g.StartedAt, &g.FinishedAt)
	if err != nil {
		return domain.Game{}, err
	}
	g.Status = domain.GameStatus(status)
	g.CreatedAt = g.CreatedAt.UTC()
	if g.StartedAt != nil {
		t := g.StartedAt.UTC()
		g.StartedAt = &t
	}
	if g.FinishedAt != nil {
		t := g.FinishedAt.UTC()
		g.FinishedAt = &t
	}
	return g, nil
}

func scanPlayer(row pgx.Row) (domain.Player, error) {
	var p domain.Player
	if err := row.Scan(&p.JoinSeq, &p.ID, &p.GameID, &p.DisplayName, &p.UserID, &p.Score, &p.Version, &p.JoinedAt); err != nil {
		return domain.Player{}, err
	}
	p.JoinedAt = p.JoinedAt.UTC()
	return p, nil
}

func (s *Store) CreateGame(ctx context.Context, game domain.Game, questions []domain.Question) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create game: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO games (`+gameColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		game.ID, game.PIN, game.Title, string(game.Status), game.CurrentIndex, game.QuestionCount,
		game.Epoch, game.Version, game.CreatedAt, game.StartedAt, game.FinishedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrPINTaken
		}
		return fmt.Errorf("insert game: %w", err)
	}

	batch := &pgx.Batch{}
	for _, q := range questions {
		options, err := json.Marshal(q.Options)
		if err != nil {
			return fmt.Errorf("marshal options: %w", err)
		}
		batch.Queue(
			`INSERT INTO questions (id, game_id, position, text, options, correct_index, points, time_limit_ms)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			q.ID, game.ID, q.Order, q.Text, string(options), q.CorrectIndex, q.Points, q.TimeLimitMs,
		)
	}
	results := tx.SendBatch(ctx, batch)
	for range questions {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("insert question: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("insert questions: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create game: %w", err)
	}
	return nil
}

func (s *Store) GetGame(ctx context.Context, gameID string) (domain.Game, error) {
	g, err := scanGame(s.pool.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1`, gameID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Game{}, domain.ErrGameNotFound
	}
	if err != nil {
		return domain.Game{}, fmt.Errorf("get game: %w", err)
	}
	return g, nil
}

func (s *Store) FindGameByPIN(ctx context.Context, pin string) (domain.Game, error) {
	g, err := scanGame(s.pool.QueryRow(ctx,
		`SELECT `+gameColumns+` FROM games WHERE pin = $1
		 ORDER BY (status <> 'finished') DESC, created_at DESC LIMIT 1`, pin))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Game{}, domain.ErrPINNotFound
	}
	if err != nil {
		return domain.Game{}, fmt.Errorf("find game by pin: %w", err)
	}
	return g, nil
}

func (s *Store) UpdateGame(ctx context.Context, game domain.Game, expectVersion int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE games SET status = $1, current_index = $2, started_at = $3, finished_at = $4, version = $5
		 WHERE id = $6 AND version = $7`,
		string(game.Status), game.CurrentIndex, game.StartedAt, game.FinishedAt, game.Version, game.ID, expectVersion,
	)
	if err != nil {
		return fmt.Errorf("update game: %w", err)
	}
	return checkSwapped(ctx, s.pool, tag, game.ID)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// checkSwapped distinguishes a lost compare-and-swap from a missing game.
func checkSwapped(ctx context.Context, q rowQuerier, tag pgconn.CommandTag, gameID string) error {
	if tag.RowsAffected() > 0 {
		return nil
	}
	var one int
	err := q.QueryRow(ctx, `SELECT 1 FROM games WHERE id = $1`, gameID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrGameNotFound
	}
	if err != nil {
		return fmt.Errorf("check game: %w", err)
	}
	return domain.ErrVersionConflict
}

// RestartGame takes the game row exclusively, so it waits for in-flight
// answers holding the row shared and they observe the new epoch afterwards.
func (s *Store) RestartGame(ctx context.Context, game domain.Game, expectVersion int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin restart: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE games SET pin = $1, status = $2, current_index = $3, epoch = $4, version = $5,
		 started_at = NULL, finished_at = NULL
		 WHERE id = $6 AND version = $7`,
		game.PIN, string(game.Status), game.CurrentIndex, game.Epoch, game.Version, game.ID, expectVersion,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrPINTaken
		}
		return fmt.Errorf("restart game: %w", err)
	}
	if err := checkSwapped(ctx, tx, tag, game.ID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE players SET score = 0, version = version + 1 WHERE game_id = $1`, game.ID); err != nil {
		return fmt.Errorf("reset scores: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit restart: %w", err)
	}
	return nil
}

func (s *Store) ListQuestions(ctx context.Context, gameID string) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, game_id, position, text, options, correct_index, points, time_limit_ms
		 FROM questions WHERE game_id = $1 ORDER BY position`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var out []domain.Question
	for rows.Next() {
		var (
			q   domain.Question
			raw []byte
		)
		if err := rows.Scan(&q.ID, &q.GameID, &q.Order, &q.Text, &raw, &q.CorrectIndex, &q.Points, &q.TimeLimitMs); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(raw, &q.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *Store) AddPlayer(ctx context.Context, player domain.Player) (domain.Player, error) {
	p, err := scanPlayer(s.pool.QueryRow(ctx,
		`INSERT INTO players (id, game_id, display_name, user_id, score, version, joined_at)
		 SELECT $1, $2, $3, $4, 0, $5, $6
		 WHERE EXISTS (SELECT 1 FROM games WHERE id = $2 AND status <> 'finished')
		 RETURNING `+playerColumns,
		player.ID, player.GameID, player.DisplayName, player.UserID, player.Version, player.JoinedAt,
	))
	if err == nil {
		return p, nil
	}
	if isUniqueViolation(err) {
		return domain.Player{}, domain.ErrNameTaken
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Player{}, fmt.Errorf("insert player: %w", err)
	}
	if _, err := s.GetGame(ctx, player.GameID); err != nil {
		return domain.Player{}, err
	}
	return domain.Player{}, domain.ErrGameFinished
}

func (s *Store) GetPlayer(ctx context.Context, playerID string) (domain.Player, error) {
	p, err := scanPlayer(s.pool.QueryRow(ctx, `SELECT `+playerColumns+` FROM players WHERE id = $1`, playerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	if err != nil {
		return domain.Player{}, fmt.Errorf("get player: %w", err)
	}
	return p, nil
}

func (s *Store) ListPlayers(ctx context.Context, gameID string) ([]domain.Player, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+playerColumns+` FROM players WHERE game_id = $1 ORDER BY seq`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var out []domain.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) RecordAnswer(ctx context.Context, answer domain.Answer, questionOrder int) (domain.Player, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Player{}, fmt.Errorf("begin record answer: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		status       string
		epoch, index int
	)
	err = tx.QueryRow(ctx, `SELECT status, epoch, current_index FROM games WHERE id = $1 FOR SHARE`, answer.GameID).
		Scan(&status, &epoch, &index)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Player{}, domain.ErrGameNotFound
	}
	if err != nil {
		return domain.Player{}, fmt.Errorf("lock game: %w", err)
	}
	if domain.GameStatus(status) != domain.StatusInProgress || epoch != answer.Epoch || index != questionOrder {
		return domain.Player{}, domain.ErrGameChanged
	}

	var one int
	err = tx.QueryRow(ctx, `SELECT 1 FROM players WHERE id = $1 AND game_id = $2`, answer.PlayerID, answer.GameID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	if err != nil {
		return domain.Player{}, fmt.Errorf("read player: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO answers (`+answerColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (player_id, question_id, epoch) DO NOTHING`,
		answer.ID, answer.GameID, answer.PlayerID, answer.QuestionID, answer.Epoch, answer.Selected,
		answer.Correct, answer.LatencyMs, answer.Points, answer.CreatedAt,
	)
	if err != nil {
		return domain.Player{}, fmt.Errorf("insert answer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Player{}, domain.ErrAnswerExists
	}

	p, err := scanPlayer(tx.QueryRow(ctx,
		`UPDATE players SET score = score + $1, version = version + 1 WHERE id = $2 RETURNING `+playerColumns,
		answer.Points, answer.PlayerID))
	if err != nil {
		return domain.Player{}, fmt.Errorf("increment score: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Player{}, fmt.Errorf("commit record answer: %w", err)
	}
	return p, nil
}

func (s *Store) ListAnswers(ctx context.Context, gameID, questionID string, epoch int) ([]domain.Answer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+answerColumns+` FROM answers WHERE game_id = $1 AND question_id = $2 AND epoch = $3
		 ORDER BY created_at, id`, gameID, questionID, epoch)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	var out []domain.Answer
	for rows.Next() {
		var a domain.Answer
		if err := rows.Scan(&a.ID, &a.GameID, &a.PlayerID, &a.QuestionID, &a.Epoch, &a.Selected,
			&a.Correct, &a.LatencyMs, &a.Points, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		a.CreatedAt = a.CreatedAt.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}
