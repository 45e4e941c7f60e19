// Package grader judges free-text answers against the expected answer of a question.
package grader

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/victornm/questiontime/internal/domain"
)

var (
	// ErrUnavailable is returned when the judging service cannot be reached or refuses the call.
	ErrUnavailable = stderrors.New("grader unavailable")
	// ErrProtocol is returned when the judge's response is not a yes/no verdict.
	ErrProtocol = stderrors.New("grader protocol error")
)

// Grader decides whether answer is a correct answer to q.
type Grader interface {
	Grade(ctx context.Context, q domain.Question, answer string) (bool, error)
}

// Func adapts a function to Grader.
type Func func(ctx context.Context, q domain.Question, answer string) (bool, error)

func (f Func) Grade(ctx context.Context, q domain.Question, answer string) (bool, error) {
	return f(ctx, q, answer)
}

// ExactMatch compares answers ignoring case, punctuation and spacing.
type ExactMatch struct{}

func (ExactMatch) Grade(_ context.Context, q domain.Question, answer string) (bool, error) {
	return fold(answer) == fold(q.CorrectAnswer), nil
}

func fold(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Prompt builds the judging prompt sent to the language model.
func Prompt(q domain.Question, answer string) string {
	return fmt.Sprintf("Question: %s\nAnswer: %s\nThis should be the correct answer: %s\nIs the answer correct? Respond with \"Yes\" or \"No\" only.",
		q.Prompt, answer, q.CorrectAnswer)
}

// ParseVerdict turns a model reply into a boolean.
func ParseVerdict(reply string) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(reply))
	v = strings.TrimRightFunc(v, func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSpace(r) })

	switch v {
	case "yes":
		return true, nil
	case "no":
		return false, nil
	default:
		return false, fmt.Errorf("%w: unexpected verdict %q", ErrProtocol, reply)
	}
}
