package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const maxDisplayNameRunes = 32

// ValidateQuestions checks a question set at the authoring boundary.
// Order fields are rewritten to the slice position.
func ValidateQuestions(questions []Question) ([]Question, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: at least one question is required", ErrInvalidQuestions)
	}
	out := make([]Question, len(questions))
	for i, q := range questions {
		q.Text = strings.TrimSpace(q.Text)
		if q.Text == "" {
			return nil, fmt.Errorf("%w: question %d has no text", ErrInvalidQuestions, i)
		}
		if len(q.Options) < 2 {
			return nil, fmt.Errorf("%w: question %d needs at least two options", ErrInvalidQuestions, i)
		}
		options := make([]Option, len(q.Options))
		for j, opt := range q.Options {
			opt.Text = strings.TrimSpace(opt.Text)
			if opt.Text == "" && opt.MediaURL == "" {
				return nil, fmt.Errorf("%w: question %d option %d is empty", ErrInvalidQuestions, i, j)
			}
			options[j] = opt
		}
		q.Options = options
		if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
			return nil, fmt.Errorf("%w: question %d correct index out of range", ErrInvalidQuestions, i)
		}
		if q.Points < 0 {
			return nil, fmt.Errorf("%w: question %d has negative points", ErrInvalidQuestions, i)
		}
		if q.TimeLimitMs <= 0 {
			return nil, fmt.Errorf("%w: question %d needs a positive time limit", ErrInvalidQuestions, i)
		}
		q.Order = i
		out[i] = q
	}
	return out, nil
}

// NormalizeDisplayName trims the name and enforces its length.
// Uniqueness is an exact match on the normalized value.
func NormalizeDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxDisplayNameRunes {
		return "", ErrInvalidName
	}
	return name, nil
}

// ValidatePIN accepts exactly six ASCII digits.
func ValidatePIN(pin string) error {
	if len(pin) != PINLength {
		return ErrInvalidPIN
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return ErrInvalidPIN
		}
	}
	return nil
}
