package domain

import "math"

// ScoreAnswer grades a selection. A correct answer earns at least half the
// question's points; the other half decays linearly with latency over the time limit.
// Latency is clamped to [0, TimeLimitMs] so late submissions still earn half credit.
func ScoreAnswer(q Question, selected, latencyMs int) (bool, int) {
	if selected != q.CorrectIndex {
		return false, 0
	}
	return true, SpeedPoints(q.Points, q.TimeLimitMs, latencyMs)
}

// SpeedPoints returns round(points * (0.5 + 0.5*timeFactor)).
func SpeedPoints(points, timeLimitMs, latencyMs int) int {
	if points <= 0 {
		return 0
	}
	if timeLimitMs <= 0 {
		return points
	}
	latency := latencyMs
	if latency < 0 {
		latency = 0
	}
	if latency > timeLimitMs {
		latency = timeLimitMs
	}
	timeFactor := 1 - float64(latency)/float64(timeLimitMs)
	return int(math.Round(float64(points) * (0.5 + 0.5*timeFactor)))
}
