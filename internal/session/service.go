// Package session runs the per-player game sessions.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/victornm/questiontime/internal/domain"
	"github.com/victornm/questiontime/internal/errors"
	"github.com/victornm/questiontime/internal/event"
	"github.com/victornm/questiontime/internal/grader"
	"github.com/victornm/questiontime/internal/telemetry"
)

const (
	defaultDuration     = 120 * time.Second
	defaultTickInterval = time.Second
	maxPlayerLength     = 64
)

// QuestionSource serves questions that were not asked yet.
type QuestionSource interface {
	Select(asked []int) (domain.Question, error)
	Len() int
}

// ScoreRecorder receives the score of a player after each correct answer.
type ScoreRecorder interface {
	RecordScore(ctx context.Context, player string, score int) error
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type Config struct {
	Pool     QuestionSource
	Grader   grader.Grader
	Scores   ScoreRecorder
	EventBus *event.Bus

	// Duration is the countdown of a session.
	Duration     time.Duration
	TickInterval time.Duration
	// TotalQuestions is the number of correct answers that completes a session. Zero means the whole pool.
	TotalQuestions int
	// ScoreRetryInterval spaces retries of scores the leaderboard did not accept.
	ScoreRetryInterval time.Duration

	NewTickerFunc func(d time.Duration) Ticker
}

// Service is the registry of sessions, keyed by normalized player name.
type Service struct {
	pool      QuestionSource
	grader    grader.Grader
	scores    *scoreOutbox
	eb        *event.Bus
	duration  time.Duration
	tick      time.Duration
	total     int
	newTicker func(d time.Duration) Ticker

	mu     sync.Mutex
	actors map[string]*Actor
}

func NewService(c Config) (*Service, error) {
	if c.Pool == nil || c.Grader == nil || c.Scores == nil {
		return nil, fmt.Errorf("session: pool, grader and scores are required")
	}

	s := &Service{
		pool:      c.Pool,
		grader:    c.Grader,
		eb:        c.EventBus,
		duration:  c.Duration,
		tick:      c.TickInterval,
		total:     c.TotalQuestions,
		newTicker: c.NewTickerFunc,
		actors:    make(map[string]*Actor),
	}

	if s.duration == 0 {
		s.duration = defaultDuration
	}
	if s.tick == 0 {
		s.tick = defaultTickInterval
	}
	if s.total == 0 {
		s.total = s.pool.Len()
	}
	if s.newTicker == nil {
		s.newTicker = newTimeTicker
	}

	if s.duration < 0 || s.tick < 0 {
		return nil, fmt.Errorf("session: duration and tick interval must be positive")
	}
	if s.total < 0 || s.total > s.pool.Len() {
		return nil, fmt.Errorf("session: %d questions required but the pool has %d", s.total, s.pool.Len())
	}

	s.scores = newScoreOutbox(c.Scores, c.ScoreRetryInterval)

	return s, nil
}

// StartSessionRequest represents a request to start a new game session.
type StartSessionRequest struct {
	Player string
}

// StartSession creates the session of a player and serves its first question.
// It fails if the player already has a session that is not completed.
func (s *Service) StartSession(ctx context.Context, req StartSessionRequest) (*domain.SessionState, error) {
	player, key, err := validatePlayer(req.Player)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.actors[key]; ok {
		if !old.Completed() {
			return nil, errors.New(errors.CodeAlreadyExists,
				errors.WithMessagef("Game already started."))
		}
		old.Stop()
		delete(s.actors, key)
	}

	a, err := s.newActor(ctx, player)
	if err != nil {
		return nil, err
	}
	s.actors[key] = a

	st := a.state.Clone()
	go a.loop()

	slog.InfoContext(ctx, "session: started", "player", player, "session", st.SessionID, "question", *st.CurrentQuestionID)
	telemetry.SessionsStarted.Inc()

	if s.eb != nil {
		s.eb.Publish(ctx, domain.EventSessionStarted{State: st})
	}

	return &st, nil
}

func (s *Service) newActor(ctx context.Context, player string) (*Actor, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session ID: %w", err)
	}

	first, err := s.pool.Select(nil)
	if err != nil {
		return nil, convertPoolError(err)
	}

	actx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a := &Actor{
		deps:    s,
		ticker:  s.newTicker(s.tick),
		tick:    s.tick,
		ctx:     actx,
		cancel:  cancel,
		mailbox: make(chan func(), mailboxSize),
		graded:  make(chan gradeResult),
		exited:  make(chan struct{}),
		state: domain.SessionState{
			SessionID:              id.String(),
			Player:                 player,
			AskedQuestionIDs:       []int{},
			TotalQuestionsRequired: s.total,
			TimeRemainingMs:        remainingMs(s.duration),
		},
		remaining: s.duration,
	}
	a.setCurrent(first)

	return a, nil
}

type SubmitAnswerRequest struct {
	Player string
	Answer string
}

// SubmitAnswer grades an answer to the player's current question.
func (s *Service) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*domain.SubmitResult, error) {
	if strings.TrimSpace(req.Answer) == "" {
		return nil, errors.InvalidArgument("Answer and player name are required.")
	}

	a, err := s.lookup(req.Player)
	if err != nil {
		return nil, err
	}

	res, err := a.Submit(ctx, req.Answer)
	if err != nil {
		return nil, err
	}

	return &res, nil
}

type PauseSessionRequest struct {
	Player string
}

func (s *Service) PauseSession(ctx context.Context, req PauseSessionRequest) error {
	a, err := s.lookup(req.Player)
	if err != nil {
		return err
	}

	return a.Pause(ctx)
}

type ResumeSessionRequest struct {
	Player string
}

func (s *Service) ResumeSession(ctx context.Context, req ResumeSessionRequest) error {
	a, err := s.lookup(req.Player)
	if err != nil {
		return err
	}

	return a.Resume(ctx)
}

type GetStateRequest struct {
	Player string
}

// GetState returns a snapshot of the player's session, completed or not.
func (s *Service) GetState(ctx context.Context, req GetStateRequest) (*domain.SessionState, error) {
	a, err := s.lookup(req.Player)
	if err != nil {
		return nil, err
	}

	st, err := a.State(ctx)
	if err != nil {
		return nil, err
	}

	return &st, nil
}

func (s *Service) lookup(player string) (*Actor, error) {
	_, key, err := validatePlayer(player)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	a, ok := s.actors[key]
	s.mu.Unlock()

	if !ok {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: player=%s", key))
	}

	return a, nil
}

// Stop terminates every session, then delivers the scores still pending.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, a := range s.actors {
		a.Stop()
		delete(s.actors, key)
	}
	s.scores.stop()
}

func validatePlayer(player string) (name, key string, err error) {
	name = strings.TrimSpace(player)
	if name == "" {
		return "", "", errors.InvalidArgument("Player name is required.")
	}
	if utf8.RuneCountInString(name) > maxPlayerLength {
		return "", "", errors.InvalidArgument("Player name must be at most %d characters.", maxPlayerLength)
	}

	return name, domain.NormalizePlayer(name), nil
}

type timeTicker struct {
	t *time.Ticker
}

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }
