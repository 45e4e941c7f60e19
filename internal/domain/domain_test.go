package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/victornm/questiontime/internal/domain"
)

func TestSessionState_Clone(t *testing.T) {
	id, correct := 2, true
	s := domain.SessionState{
		Player:            "Ada",
		AskedQuestionIDs:  []int{1, 2},
		CurrentQuestionID: &id,
		LastAnswerCorrect: &correct,
	}

	c := s.Clone()
	c.AskedQuestionIDs[0] = 9
	*c.CurrentQuestionID = 9
	*c.LastAnswerCorrect = false

	assert.Equal(t, []int{1, 2}, s.AskedQuestionIDs)
	assert.Equal(t, 2, *s.CurrentQuestionID)
	assert.True(t, *s.LastAnswerCorrect)
}

func TestNormalizePlayer(t *testing.T) {
	assert.Equal(t, "ada", domain.NormalizePlayer("  Ada "))
	assert.Equal(t, domain.NormalizePlayer("ADA"), domain.NormalizePlayer("ada"))
}
