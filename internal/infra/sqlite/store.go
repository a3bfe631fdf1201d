// Package sqlite provides an embedded, single-node implementation of app.GameRepository.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"quiz-engine/internal/domain"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const (
	gameColumns   = `id, pin, title, status, current_index, question_count, epoch, version, created_at, started_at, finished_at`
	playerColumns = `seq, id, game_id, display_name, user_id, score, version, joined_at`
	answerColumns = `id, game_id, player_id, question_id, epoch, selected, correct, latency_ms, points, created_at`
)

// Store persists games in SQLite. All access goes through one connection, which
// serializes writers and keeps in-memory databases alive.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if path != ":memory:" {
		path = filepath.Clean(path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{`PRAGMA foreign_keys = ON`, `PRAGMA busy_timeout = 5000`}
	if path != ":memory:" {
		pragmas = append(pragmas, `PRAGMA journal_mode = WAL`, `PRAGMA synchronous = NORMAL`)
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (domain.Game, error) {
	var (
		g                     domain.Game
		status                string
		createdAt             int64
		startedAt, finishedAt sql.NullInt64
	)
	err := row.Scan(&g.ID, &g.PIN, &g.Title, &status, &g.CurrentIndex, &g.QuestionCount,
		&g.Epoch, &g.Version, &createdAt, &startedAt, &finishedAt)
	if err != nil {
		return domain.Game{}, err
	}
	g.Status = domain.GameStatus(status)
	g.CreatedAt = fromMillis(createdAt)
	g.StartedAt = timePtr(startedAt)
	g.FinishedAt = timePtr(finishedAt)
	return g, nil
}

func scanPlayer(row rowScanner) (domain.Player, error) {
	var (
		p        domain.Player
		userID   sql.NullString
		joinedAt int64
	)
	if err := row.Scan(&p.JoinSeq, &p.ID, &p.GameID, &p.DisplayName, &userID, &p.Score, &p.Version, &joinedAt); err != nil {
		return domain.Player{}, err
	}
	if userID.Valid {
		id := userID.String
		p.UserID = &id
	}
	p.JoinedAt = fromMillis(joinedAt)
	return p, nil
}

func (s *Store) CreateGame(ctx context.Context, game domain.Game, questions []domain.Question) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create game: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO games (`+gameColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		game.ID, game.PIN, game.Title, string(game.Status), game.CurrentIndex, game.QuestionCount,
		game.Epoch, game.Version, toMillis(game.CreatedAt), nullMillis(game.StartedAt), nullMillis(game.FinishedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrPINTaken
		}
		return fmt.Errorf("insert game: %w", err)
	}

	for _, q := range questions {
		options, err := json.Marshal(q.Options)
		if err != nil {
			return fmt.Errorf("marshal options: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO questions (id, game_id, position, text, options_json, correct_index, points, time_limit_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			q.ID, game.ID, q.Order, q.Text, string(options), q.CorrectIndex, q.Points, q.TimeLimitMs,
		)
		if err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create game: %w", err)
	}
	return nil
}

func (s *Store) GetGame(ctx context.Context, gameID string) (domain.Game, error) {
	g, err := scanGame(s.db.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE id = ?`, gameID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Game{}, domain.ErrGameNotFound
	}
	if err != nil {
		return domain.Game{}, fmt.Errorf("get game: %w", err)
	}
	return g, nil
}

func (s *Store) FindGameByPIN(ctx context.Context, pin string) (domain.Game, error) {
	g, err := scanGame(s.db.QueryRowContext(ctx,
		`SELECT `+gameColumns+` FROM games WHERE pin = ?
		 ORDER BY (status <> 'finished') DESC, created_at DESC LIMIT 1`, pin))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Game{}, domain.ErrPINNotFound
	}
	if err != nil {
		return domain.Game{}, fmt.Errorf("find game by pin: %w", err)
	}
	return g, nil
}

func (s *Store) UpdateGame(ctx context.Context, game domain.Game, expectVersion int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE games SET status = ?, current_index = ?, started_at = ?, finished_at = ?, version = ?
		 WHERE id = ? AND version = ?`,
		string(game.Status), game.CurrentIndex, nullMillis(game.StartedAt), nullMillis(game.FinishedAt),
		game.Version, game.ID, expectVersion,
	)
	if err != nil {
		return fmt.Errorf("update game: %w", err)
	}
	return s.checkSwapped(ctx, s.db, res, game.ID)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// checkSwapped distinguishes a lost compare-and-swap from a missing game.
func (s *Store) checkSwapped(ctx context.Context, q queryer, res sql.Result, gameID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	var one int
	err = q.QueryRowContext(ctx, `SELECT 1 FROM games WHERE id = ?`, gameID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrGameNotFound
	}
	if err != nil {
		return fmt.Errorf("check game: %w", err)
	}
	return domain.ErrVersionConflict
}

func (s *Store) RestartGame(ctx context.Context, game domain.Game, expectVersion int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin restart: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE games SET pin = ?, status = ?, current_index = ?, epoch = ?, version = ?,
		 started_at = NULL, finished_at = NULL
		 WHERE id = ? AND version = ?`,
		game.PIN, string(game.Status), game.CurrentIndex, game.Epoch, game.Version, game.ID, expectVersion,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrPINTaken
		}
		return fmt.Errorf("restart game: %w", err)
	}
	if err := s.checkSwapped(ctx, tx, res, game.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE players SET score = 0, version = version + 1 WHERE game_id = ?`, game.ID); err != nil {
		return fmt.Errorf("reset scores: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit restart: %w", err)
	}
	return nil
}

func (s *Store) ListQuestions(ctx context.Context, gameID string) ([]domain.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, game_id, position, text, options_json, correct_index, points, time_limit_ms
		 FROM questions WHERE game_id = ? ORDER BY position`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var out []domain.Question
	for rows.Next() {
		var (
			q       domain.Question
			options string
		)
		if err := rows.Scan(&q.ID, &q.GameID, &q.Order, &q.Text, &options, &q.CorrectIndex, &q.Points, &q.TimeLimitMs); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *Store) AddPlayer(ctx context.Context, player domain.Player) (domain.Player, error) {
	var userID sql.NullString
	if player.UserID != nil {
		userID = sql.NullString{String: *player.UserID, Valid: true}
	}
	// The insert only happens while the game is live; the unique
	// (game_id, display_name) constraint decides concurrent joins.
	p, err := scanPlayer(s.db.QueryRowContext(ctx,
		`INSERT INTO players (id, game_id, display_name, user_id, score, version, joined_at)
		 SELECT ?, ?, ?, ?, 0, ?, ?
		 WHERE EXISTS (SELECT 1 FROM games WHERE id = ? AND status <> 'finished')
		 RETURNING `+playerColumns,
		player.ID, player.GameID, player.DisplayName, userID, player.Version, toMillis(player.JoinedAt), player.GameID,
	))
	if err == nil {
		return p, nil
	}
	if isUniqueViolation(err) {
		return domain.Player{}, domain.ErrNameTaken
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Player{}, fmt.Errorf("insert player: %w", err)
	}
	if _, err := s.GetGame(ctx, player.GameID); err != nil {
		return domain.Player{}, err
	}
	return domain.Player{}, domain.ErrGameFinished
}

func (s *Store) GetPlayer(ctx context.Context, playerID string) (domain.Player, error) {
	p, err := scanPlayer(s.db.QueryRowContext(ctx, `SELECT `+playerColumns+` FROM players WHERE id = ?`, playerID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	if err != nil {
		return domain.Player{}, fmt.Errorf("get player: %w", err)
	}
	return p, nil
}

func (s *Store) ListPlayers(ctx context.Context, gameID string) ([]domain.Player, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+playerColumns+` FROM players WHERE game_id = ? ORDER BY seq`, gameID)
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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Player{}, fmt.Errorf("begin record answer: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		status       string
		epoch, index int
	)
	err = tx.QueryRowContext(ctx, `SELECT status, epoch, current_index FROM games WHERE id = ?`, answer.GameID).
		Scan(&status, &epoch, &index)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Player{}, domain.ErrGameNotFound
	}
	if err != nil {
		return domain.Player{}, fmt.Errorf("read game: %w", err)
	}
	if domain.GameStatus(status) != domain.StatusInProgress || epoch != answer.Epoch || index != questionOrder {
		return domain.Player{}, domain.ErrGameChanged
	}

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM players WHERE id = ? AND game_id = ?`, answer.PlayerID, answer.GameID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	if err != nil {
		return domain.Player{}, fmt.Errorf("read player: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO answers (`+answerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (player_id, question_id, epoch) DO NOTHING`,
		answer.ID, answer.GameID, answer.PlayerID, answer.QuestionID, answer.Epoch, answer.Selected,
		answer.Correct, answer.LatencyMs, answer.Points, toMillis(answer.CreatedAt),
	)
	if err != nil {
		return domain.Player{}, fmt.Errorf("insert answer: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return domain.Player{}, fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return domain.Player{}, domain.ErrAnswerExists
	}

	p, err := scanPlayer(tx.QueryRowContext(ctx,
		`UPDATE players SET score = score + ?, version = version + 1 WHERE id = ? RETURNING `+playerColumns,
		answer.Points, answer.PlayerID))
	if err != nil {
		return domain.Player{}, fmt.Errorf("increment score: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Player{}, fmt.Errorf("commit record answer: %w", err)
	}
	return p, nil
}

func (s *Store) ListAnswers(ctx context.Context, gameID, questionID string, epoch int) ([]domain.Answer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+answerColumns+` FROM answers WHERE game_id = ? AND question_id = ? AND epoch = ?
		 ORDER BY created_at, id`, gameID, questionID, epoch)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	var out []domain.Answer
	for rows.Next() {
		var (
			a         domain.Answer
			createdAt int64
		)
		if err := rows.Scan(&a.ID, &a.GameID, &a.PlayerID, &a.QuestionID, &a.Epoch, &a.Selected,
			&a.Correct, &a.LatencyMs, &a.Points, &createdAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		a.CreatedAt = fromMillis(createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}
