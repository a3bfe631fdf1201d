package sqlite

import "context"

func (s *Store) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS games (
			id TEXT PRIMARY KEY,
			pin TEXT NOT NULL,
			title TEXT NOT NULL,
			status TEXT NOT NULL,
			current_index INTEGER NOT NULL,
			question_count INTEGER NOT NULL,
			epoch INTEGER NOT NULL DEFAULT 0,
			version INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			started_at INTEGER,
			finished_at INTEGER
		);`,
		// A finished game's PIN may be recycled.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_games_live_pin ON games(pin) WHERE status <> 'finished';`,
		`CREATE INDEX IF NOT EXISTS idx_games_pin_created ON games(pin, created_at DESC);`,
		`CREATE TABLE IF NOT EXISTS questions (
			id TEXT PRIMARY KEY,
			game_id TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			text TEXT NOT NULL,
			options_json TEXT NOT NULL,
			correct_index INTEGER NOT NULL,
			points INTEGER NOT NULL,
			time_limit_ms INTEGER NOT NULL,
			UNIQUE (game_id, position)
		);`,
		`CREATE TABLE IF NOT EXISTS players (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			game_id TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			display_name TEXT NOT NULL,
			user_id TEXT,
			score INTEGER NOT NULL DEFAULT 0,
			version INTEGER NOT NULL DEFAULT 1,
			joined_at INTEGER NOT NULL,
			UNIQUE (game_id, display_name)
		);`,
		`CREATE TABLE IF NOT EXISTS answers (
			id TEXT PRIMARY KEY,
			game_id TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			player_id TEXT NOT NULL REFERENCES players(id) ON DELETE CASCADE,
			question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
			epoch INTEGER NOT NULL,
			selected INTEGER NOT NULL,
			correct INTEGER NOT NULL,
			latency_ms INTEGER NOT NULL,
			points INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE (player_id, question_id, epoch)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_answers_question_epoch ON answers(game_id, question_id, epoch);`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
