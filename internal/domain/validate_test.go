package domain

import (
	"errors"
	"testing"
)

func validQuestion() Question {
	return Question{
		Text:         "2 + 2?",
		Options:      []Option{{Text: "3"}, {Text: "4"}},
		CorrectIndex: 1,
		Points:       1000,
		TimeLimitMs:  20000,
	}
}

func TestValidateQuestionsAssignsOrder(t *testing.T) {
	qs, err := ValidateQuestions([]Question{validQuestion(), validQuestion()})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if qs[0].Order != 0 || qs[1].Order != 1 {
		t.Fatalf("expected orders 0,1 got %d,%d", qs[0].Order, qs[1].Order)
	}
}

func TestValidateQuestionsRejects(t *testing.T) {
	mutations := map[string]func(q *Question){
		"one option":       func(q *Question) { q.Options = q.Options[:1] },
		"correct too high": func(q *Question) { q.CorrectIndex = 2 },
		"negative correct": func(q *Question) { q.CorrectIndex = -1 },
		"no time limit":    func(q *Question) { q.TimeLimitMs = 0 },
		"negative points":  func(q *Question) { q.Points = -5 },
		"blank text":       func(q *Question) { q.Text = "  " },
		"empty option":     func(q *Question) { q.Options[0] = Option{} },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			q := validQuestion()
			q.Options = append([]Option(nil), q.Options...)
			mutate(&q)
			_, err := ValidateQuestions([]Question{q})
			if !errors.Is(err, ErrInvalidQuestions) {
				t.Fatalf("expected ErrInvalidQuestions, got %v", err)
			}
			if KindOf(err) != KindInvalid {
				t.Fatalf("expected invalid kind, got %v", KindOf(err))
			}
		})
	}

	if _, err := ValidateQuestions(nil); !errors.Is(err, ErrInvalidQuestions) {
		t.Fatalf("expected empty set rejected, got %v", err)
	}
}

func TestNormalizeDisplayName(t *testing.T) {
	name, err := NormalizeDisplayName("  Ana ")
	if err != nil || name != "Ana" {
		t.Fatalf("expected Ana, got %q err=%v", name, err)
	}
	if _, err := NormalizeDisplayName("   "); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
	long := "abcdefghijklmnopqrstuvwxyz0123456789"
	if _, err := NormalizeDisplayName(long); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected long name rejected, got %v", err)
	}
}

func TestValidatePIN(t *testing.T) {
	if err := ValidatePIN("012345"); err != nil {
		t.Fatalf("expected valid pin, got %v", err)
	}
	for _, pin := range []string{"", "12345", "1234567", "12a456"} {
		if err := ValidatePIN(pin); !errors.Is(err, ErrInvalidPIN) {
			t.Fatalf("expected %q rejected, got %v", pin, err)
		}
	}
}

func TestKindOfUnclassified(t *testing.T) {
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatalf("expected internal kind for plain errors")
	}
	if CodeOf(ErrNameTaken) != "name_taken" {
		t.Fatalf("unexpected code %q", CodeOf(ErrNameTaken))
	}
}
