package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	cachecontrol "go.eigsys.de/gin-cachecontrol/v2"

	"github.com/victornm/questiontime/internal/domain"
	"github.com/victornm/questiontime/internal/errors"
	"github.com/victornm/questiontime/internal/history"
	"github.com/victornm/questiontime/internal/leaderboard"
	"github.com/victornm/questiontime/internal/session"
)

type (
	PlayerRequest struct {
		Player string `json:"player" form:"player"`
	}

	SubmitAnswerRequest struct {
		Player string `json:"player" binding:"required"`
		Answer string `json:"answer" binding:"required"`
	}

	MessageResponse struct {
		Message string `json:"message"`
	}

	StartResponse struct {
		Message   string              `json:"message"`
		SessionID string              `json:"sessionId"`
		State     domain.SessionState `json:"state"`
	}

	GameResult struct {
		SessionID         string `json:"sessionId"`
		Player            string `json:"player"`
		QuestionsAnswered int    `json:"questionsAnswered"`
		TotalQuestions    int    `json:"totalQuestions"`
		Accuracy          string `json:"accuracy"`
		Reason            string `json:"reason"`
		CompletedAt       string `json:"completedAt"`
	}
)

func (a *API) registerHTTP(r gin.IRouter) {
	g := r.Group("/", cachecontrol.New(cachecontrol.Config{
		NoStore:        true,
		NoCache:        true,
		MustRevalidate: true,
	}))

	g.POST("/start", a.handleStart)
	g.POST("/submit-answer", a.handleSubmitAnswer)
	g.POST("/pause", a.handlePause)
	g.POST("/resume", a.handleResume)
	g.GET("/state", a.handleState)
	g.GET("/leaderboard", a.handleLeaderboard)

	if a.hs != nil {
		g.GET("/history", a.handleHistory)
	}
}

func (a *API) handleStart(c *gin.Context) {
	st, err := a.ss.StartSession(c.Request.Context(), session.StartSessionRequest{
		Player: playerOf(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, StartResponse{
		Message:   "Question Time Started!",
		SessionID: st.SessionID,
		State:     *st,
	})
}

func (a *API) handleSubmitAnswer(c *gin.Context) {
	var req SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("Answer and player name are required."),
			errors.WithCause(err),
		))
		return
	}

	res, err := a.ss.SubmitAnswer(c.Request.Context(), session.SubmitAnswerRequest{
		Player: req.Player,
		Answer: req.Answer,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (a *API) handlePause(c *gin.Context) {
	if err := a.ss.PauseSession(c.Request.Context(), session.PauseSessionRequest{Player: playerOf(c)}); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "Game Paused."})
}

func (a *API) handleResume(c *gin.Context) {
	if err := a.ss.ResumeSession(c.Request.Context(), session.ResumeSessionRequest{Player: playerOf(c)}); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "Game Resumed."})
}

func (a *API) handleState(c *gin.Context) {
	st, err := a.ss.GetState(c.Request.Context(), session.GetStateRequest{Player: c.Query("player")})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, st)
}

func (a *API) handleLeaderboard(c *gin.Context) {
	l, err := a.ls.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, l.Entries)
}

func (a *API) handleHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	results, err := a.hs.ListResults(c.Request.Context(), history.ListResultsRequest{
		Player: c.Query("player"),
		Limit:  limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, lo.Map(results, func(r domain.GameResult, _ int) GameResult {
		return GameResult{
			SessionID:         r.SessionID,
			Player:            r.Player,
			QuestionsAnswered: r.QuestionsAnswered,
			TotalQuestions:    r.TotalQuestions,
			Accuracy:          r.Accuracy.String(),
			Reason:            string(r.Reason),
			CompletedAt:       r.CompletedAt.Format(http.TimeFormat),
		}
	}))
}

// playerOf reads the player from a JSON body, falling back to the query string.
func playerOf(c *gin.Context) string {
	var req PlayerRequest
	if c.Request.ContentLength != 0 {
		_ = c.ShouldBindJSON(&req)
	}
	if req.Player == "" {
		req.Player = c.Query("player")
	}
	return req.Player
}

func writeError(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"path", c.FullPath(),
			"error", err,
		)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}
