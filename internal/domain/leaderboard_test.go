package domain

import (
	"reflect"
	"testing"
)

func TestRankOrdersByScoreThenJoinOrder(t *testing.T) {
	players := []Player{
		{ID: "p3", DisplayName: "Cy", Score: 500, JoinSeq: 3},
		{ID: "p1", DisplayName: "Ana", Score: 500, JoinSeq: 1},
		{ID: "p2", DisplayName: "Leo", Score: 900, JoinSeq: 2},
		{ID: "p4", DisplayName: "Di", Score: 0, JoinSeq: 4},
	}

	lb := Rank("g1", players, 0)
	got := make([]string, 0, len(lb.Entries))
	for _, e := range lb.Entries {
		got = append(got, e.PlayerID)
	}
	want := []string{"p2", "p1", "p3", "p4"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected order %v, got %v", want, got)
	}
	if lb.Entries[0].Position != 1 || lb.Entries[3].Position != 4 {
		t.Fatalf("unexpected positions: %+v", lb.Entries)
	}
	if lb.Total != 4 {
		t.Fatalf("expected total 4, got %d", lb.Total)
	}
}

func TestRankIsDeterministicAcrossInputOrder(t *testing.T) {
	a := []Player{
		{ID: "a", Score: 10, JoinSeq: 2},
		{ID: "b", Score: 10, JoinSeq: 1},
		{ID: "c", Score: 20, JoinSeq: 3},
	}
	b := []Player{a[2], a[0], a[1]}
	if !reflect.DeepEqual(Rank("g", a, 0), Rank("g", b, 0)) {
		t.Fatalf("expected identical rankings regardless of input order")
	}
}

func TestRankTopN(t *testing.T) {
	players := []Player{
		{ID: "a", Score: 1, JoinSeq: 1},
		{ID: "b", Score: 2, JoinSeq: 2},
		{ID: "c", Score: 3, JoinSeq: 3},
	}
	lb := Rank("g", players, 2)
	if len(lb.Entries) != 2 || lb.Entries[0].PlayerID != "c" || lb.Entries[1].PlayerID != "b" {
		t.Fatalf("unexpected top 2: %+v", lb.Entries)
	}
	if lb.Total != 3 {
		t.Fatalf("expected total to count all players, got %d", lb.Total)
	}
}

func TestTallyCountsEveryOption(t *testing.T) {
	q := Question{ID: "q1", Options: make([]Option, 4), CorrectIndex: 2}
	answers := []Answer{
		{QuestionID: "q1", Selected: 2},
		{QuestionID: "q1", Selected: 2},
		{QuestionID: "q1", Selected: 0},
		{QuestionID: "q2", Selected: 1},
	}
	tally := Tally(q, answers)
	counts := []int{}
	for _, o := range tally.Options {
		counts = append(counts, o.Count)
	}
	if !reflect.DeepEqual(counts, []int{1, 0, 2, 0}) {
		t.Fatalf("unexpected counts %v", counts)
	}
	if tally.Answered != 3 {
		t.Fatalf("expected 3 answered, got %d", tally.Answered)
	}
	if !tally.Options[2].Correct || tally.Options[0].Correct {
		t.Fatalf("expected only option 2 marked correct: %+v", tally.Options)
	}
}
