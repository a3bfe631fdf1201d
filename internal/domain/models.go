package domain

import "time"

// GameStatus is the lifecycle state of a game.
type GameStatus string

const (
	StatusWaiting    GameStatus = "waiting"
	StatusInProgress GameStatus = "in_progress"
	StatusFinished   GameStatus = "finished"
)

// NoQuestion is the current question index of a game that is not in progress.
const NoQuestion = -1

// Game is the authoritative record every client re-reads on each event.
type Game struct {
	ID            string     `json:"id"`
	PIN           string     `json:"pin"`
	Title         string     `json:"title"`
	Status        GameStatus `json:"status"`
	CurrentIndex  int        `json:"currentQuestionIndex"`
	QuestionCount int        `json:"questionCount"`
	// Epoch counts restarts; answers are unique per (player, question, epoch).
	Epoch      int        `json:"epoch"`
	Version    int64      `json:"version"`
	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// CanJoin reports whether players may join. Late joins are allowed while in progress.
func (g Game) CanJoin() bool {
	return g.Status == StatusWaiting || g.Status == StatusInProgress
}

func (g Game) CanStart() bool {
	return g.Status == StatusWaiting
}

// CanAdvance reports whether the question pointer may move.
func (g Game) CanAdvance() bool {
	return g.Status == StatusInProgress
}

func (g Game) CanFinish() bool {
	return g.Status == StatusInProgress
}

// CanRestart reports whether the game may be reset to waiting.
func (g Game) CanRestart() bool {
	return g.Status == StatusFinished
}

// Option is one selectable answer of a question.
type Option struct {
	Text     string `json:"text"`
	MediaURL string `json:"mediaUrl,omitempty"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID           string   `json:"id"`
	GameID       string   `json:"gameId"`
	Order        int      `json:"order"`
	Text         string   `json:"text"`
	Options      []Option `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
	Points       int      `json:"points"`
	TimeLimitMs  int      `json:"timeLimitMs"`
}

// PublicQuestion is a question as shown to players, without the correct option.
type PublicQuestion struct {
	ID          string   `json:"id"`
	Order       int      `json:"order"`
	Text        string   `json:"text"`
	Options     []Option `json:"options"`
	Points      int      `json:"points"`
	TimeLimitMs int      `json:"timeLimitMs"`
}

// Public strips the correct option index.
func (q Question) Public() PublicQuestion {
	return PublicQuestion{
		ID:          q.ID,
		Order:       q.Order,
		Text:        q.Text,
		Options:     q.Options,
		Points:      q.Points,
		TimeLimitMs: q.TimeLimitMs,
	}
}

// Player represents a participant scoped to one game.
type Player struct {
	ID          string    `json:"id"`
	GameID      string    `json:"gameId"`
	DisplayName string    `json:"displayName"`
	UserID      *string   `json:"userId,omitempty"`
	Score       int64     `json:"score"`
	Version     int64     `json:"version"`
	JoinSeq     int64     `json:"joinSeq"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// Answer is the immutable record of one scored submission.
type Answer struct {
	ID         string    `json:"id"`
	GameID     string    `json:"gameId"`
	PlayerID   string    `json:"playerId"`
	QuestionID string    `json:"questionId"`
	Epoch      int       `json:"epoch"`
	Selected   int       `json:"selected"`
	Correct    bool      `json:"correct"`
	LatencyMs  int       `json:"latencyMs"`
	Points     int       `json:"points"`
	CreatedAt  time.Time `json:"createdAt"`
}

// AnswerResult summarizes the outcome of a submission for a single player.
type AnswerResult struct {
	Answer     Answer `json:"answer"`
	TotalScore int64  `json:"totalScore"`
}

// LeaderboardEntry is a snapshot-friendly view of a player.
type LeaderboardEntry struct {
	Position    int    `json:"position"`
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Score       int64  `json:"score"`
}

// Leaderboard captures the ordered scoreboard for a game.
type Leaderboard struct {
	GameID  string             `json:"gameId"`
	Entries []LeaderboardEntry `json:"entries"`
	Total   int                `json:"total"`
}

// OptionTally counts the answers that selected one option.
type OptionTally struct {
	Index   int  `json:"index"`
	Count   int  `json:"count"`
	Correct bool `json:"correct"`
}

// QuestionTally is the per-option breakdown shown on the host's reveal screen.
type QuestionTally struct {
	QuestionID string        `json:"questionId"`
	Options    []OptionTally `json:"options"`
	Answered   int           `json:"answered"`
}

// Reveal bundles what the host shows after a question closes.
type Reveal struct {
	Game        Game          `json:"game"`
	Question    Question      `json:"question"`
	Tally       QuestionTally `json:"tally"`
	Leaderboard Leaderboard   `json:"leaderboard"`
}

// Snapshot is the aggregate state clients re-fetch on every event.
type Snapshot struct {
	Game        Game            `json:"game"`
	Question    *PublicQuestion `json:"question,omitempty"`
	Leaderboard Leaderboard     `json:"leaderboard"`
}
