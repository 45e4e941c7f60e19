package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Question is an entry of the question pool. Questions are never mutated at runtime.
type Question struct {
	ID            int    `yaml:"id" json:"id"`
	Hint          string `yaml:"hint" json:"hint"`
	Prompt        string `yaml:"prompt" json:"prompt"`
	CorrectAnswer string `yaml:"answer" json:"-"`
}

// SessionState is a snapshot of one player's game session.
type SessionState struct {
	SessionID              string `json:"sessionId"`
	Player                 string `json:"player"`
	AskedQuestionIDs       []int  `json:"askedQuestionIds"`
	CurrentQuestionID      *int   `json:"currentQuestionId"`
	CurrentPrompt          string `json:"currentPrompt"`
	CurrentHint            string `json:"currentHint"`
	QuestionsAnswered      int    `json:"questionsAnswered"`
	TotalQuestionsRequired int    `json:"totalQuestionsRequired"`
	Paused                 bool   `json:"paused"`
	Completed              bool   `json:"completed"`
	TimeRemainingMs        int64  `json:"timeRemainingMs"`
	LastAnswerCorrect      *bool  `json:"lastAnswerCorrect"`
}

// Clone returns a deep copy, safe to hand out to readers.
func (s SessionState) Clone() SessionState {
	c := s
	c.AskedQuestionIDs = slices.Clone(s.AskedQuestionIDs)
	if s.CurrentQuestionID != nil {
		id := *s.CurrentQuestionID
		c.CurrentQuestionID = &id
	}
	if s.LastAnswerCorrect != nil {
		v := *s.LastAnswerCorrect
		c.LastAnswerCorrect = &v
	}
	return c
}

// SubmitResult is the outcome of a single answer submission.
type SubmitResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// LeaderboardEntry is one player's row on the leaderboard.
type LeaderboardEntry struct {
	Player string `json:"player"`
	Score  int    `json:"score"`
}

// Leaderboard represents the global ranking.
// Entries are sorted by score in descending order, ties by first registration.
type Leaderboard struct {
	Entries []LeaderboardEntry
}

// CompletionReason tells why a session reached its terminal state.
type CompletionReason string

const (
	CompletionAnswered  CompletionReason = "answered"
	CompletionTimeout   CompletionReason = "timeout"
	CompletionExhausted CompletionReason = "exhausted"
)

// GameResult is the record kept for a completed session.
type GameResult struct {
	ID                string
	SessionID         string
	Player            string
	QuestionsAnswered int
	TotalQuestions    int
	Accuracy          decimal.Decimal
	Reason            CompletionReason
	CompletedAt       time.Time
}

// NormalizePlayer returns the case-insensitive key of a player name.
func NormalizePlayer(player string) string {
	return strings.ToLower(strings.TrimSpace(player))
}
