package domain

import "sort"

// Rank orders players by score descending, ties going to the earlier joiner.
// topN <= 0 returns the full ranking.
func Rank(gameID string, players []Player, topN int) Leaderboard {
	sorted := make([]Player, len(players))
	copy(sorted, players)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		if sorted[i].JoinSeq != sorted[j].JoinSeq {
			return sorted[i].JoinSeq < sorted[j].JoinSeq
		}
		return sorted[i].ID < sorted[j].ID
	})

	n := len(sorted)
	if topN > 0 && topN < n {
		n = topN
	}
	entries := make([]LeaderboardEntry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, LeaderboardEntry{
			Position:    i + 1,
			PlayerID:    sorted[i].ID,
			DisplayName: sorted[i].DisplayName,
			Score:       sorted[i].Score,
		})
	}
	return Leaderboard{GameID: gameID, Entries: entries, Total: len(players)}
}

// Tally counts answers per option of q. Every option appears, including unpicked ones.
// Answers for other questions are ignored.
func Tally(q Question, answers []Answer) QuestionTally {
	options := make([]OptionTally, len(q.Options))
	for i := range options {
		options[i] = OptionTally{Index: i, Correct: i == q.CorrectIndex}
	}
	answered := 0
	for _, a := range answers {
		if a.QuestionID != q.ID || a.Selected < 0 || a.Selected >= len(options) {
			continue
		}
		options[a.Selected].Count++
		answered++
	}
	return QuestionTally{QuestionID: q.ID, Options: options, Answered: answered}
}
