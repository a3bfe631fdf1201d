package domain

import "testing"

func TestSpeedPointsBoundaries(t *testing.T) {
	cases := []struct {
		name    string
		latency int
		want    int
	}{
		{"instant", 0, 1000},
		{"at limit", 20000, 500},
		{"quarter", 5000, 875},
		{"negative clamps to zero", -300, 1000},
		{"late clamps to limit", 45000, 500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SpeedPoints(1000, 20000, tc.latency); got != tc.want {
				t.Fatalf("SpeedPoints(1000, 20000, %d) = %d, want %d", tc.latency, got, tc.want)
			}
		})
	}
}

func TestScoreAnswerIncorrectIsZero(t *testing.T) {
	q := Question{CorrectIndex: 1, Points: 1000, TimeLimitMs: 20000}
	correct, points := ScoreAnswer(q, 0, 0)
	if correct || points != 0 {
		t.Fatalf("expected incorrect with 0 points, got correct=%v points=%d", correct, points)
	}
	correct, points = ScoreAnswer(q, 1, 0)
	if !correct || points != 1000 {
		t.Fatalf("expected correct with 1000 points, got correct=%v points=%d", correct, points)
	}
}

func TestScoreAnswerHalfCreditRounds(t *testing.T) {
	q := Question{CorrectIndex: 0, Points: 800, TimeLimitMs: 15000}
	if _, points := ScoreAnswer(q, 0, 15000); points != 400 {
		t.Fatalf("expected 400, got %d", points)
	}
	// 333 * 0.5 = 166.5 rounds half away from zero.
	q.Points = 333
	if _, points := ScoreAnswer(q, 0, 15000); points != 167 {
		t.Fatalf("expected 167, got %d", points)
	}
}

func TestSpeedPointsZeroBudget(t *testing.T) {
	if got := SpeedPoints(0, 20000, 0); got != 0 {
		t.Fatalf("expected 0 points for zero budget, got %d", got)
	}
}
