package server

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := map[string]struct {
		arrange func(c *Config)
		assert  func(t *testing.T, err error)
	}{
		"should accept the exact grader without a key": {
			arrange: func(c *Config) { c.Grader.Kind = GraderExact },
			assert: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},
		"should require an API key for the openai grader": {
			arrange: func(c *Config) {},
			assert: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "grader.apikey")
			},
		},
		"should reject an unknown grader": {
			arrange: func(c *Config) { c.Grader.Kind = "oracle" },
			assert: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "oracle")
			},
		},
		"should reject a non-positive duration": {
			arrange: func(c *Config) {
				c.Grader.Kind = GraderExact
				c.Game.Duration = 0
			},
			assert: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "game.duration")
			},
		},
		"should reject a negative question count": {
			arrange: func(c *Config) {
				c.Grader.Kind = GraderExact
				c.Game.TotalQuestions = -1
			},
			assert: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "game.totalquestions")
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			tc.arrange(&c)
			tc.assert(t, c.Validate())
		})
	}
}

func TestInit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)

	c := DefaultConfig()
	c.Grader.Kind = GraderExact
	c.Redis.Leaderboard.Addrs = []string{mr.Addr()}
	c.Redis.Pubsub.Addrs = []string{mr.Addr()}

	s, err := Init(c)
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)

	assert.Nil(t, s.service.history, "history is disabled without postgres")
	assert.NotNil(t, s.infra.redis.leaderboard)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/start", bytes.NewBufferString(`{"player":"Ada"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	s.http.Handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Question Time Started!")

	w = httptest.NewRecorder()
	s.http.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "questiontime_sessions_started_total")
}

func TestInit_InvalidQuestionCount(t *testing.T) {
	c := DefaultConfig()
	c.Grader.Kind = GraderExact
	c.Game.TotalQuestions = 1000

	_, err := Init(c)
	assert.ErrorContains(t, err, "pool")
}
