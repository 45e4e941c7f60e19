// Package history keeps the results of completed game sessions in Postgres.
package history

import (
	"context"
	_ "embed"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/victornm/questiontime/internal/domain"
	"github.com/victornm/questiontime/internal/errors"
	"github.com/victornm/questiontime/internal/event"
)

const (
	codeUniqueViolation = "23505"
	defaultListLimit    = 20
	maxListLimit        = 100
)

//go:embed schema.sql
var schema string

// DB is the subset of *pgxpool.Pool used by the service.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Config struct {
	DB       DB
	EventBus *event.Bus
	Now      func() time.Time
}

type Service struct {
	db  DB
	now func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		db:  c.DB,
		now: c.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}

	if c.EventBus != nil {
		c.EventBus.Subscribe(domain.EventNameSessionCompleted, func(ctx context.Context, e event.Event) error {
			return s.RecordResult(ctx, e.(domain.EventSessionCompleted))
		})
	}

	return s
}

// Migrate creates the tables used by the service.
func (s *Service) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// RecordResult stores the result of a completed session. Recording the same session twice is a no-op.
func (s *Service) RecordResult(ctx context.Context, e domain.EventSessionCompleted) error {
	r, err := s.result(e)
	if err != nil {
		return err
	}

	const stmt = `
INSERT INTO game_results (result_id, session_id, player, player_key, questions_answered, total_questions, accuracy, reason, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`

	_, err = s.db.Exec(ctx, stmt,
		r.ID, r.SessionID, r.Player, domain.NormalizePlayer(r.Player),
		r.QuestionsAnswered, r.TotalQuestions, r.Accuracy, string(r.Reason), r.CompletedAt,
	)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		slog.InfoContext(ctx, "history: result already recorded", "session", r.SessionID)
		return nil
	}

	if err != nil {
		return fmt.Errorf("history: insert result: session=%s: %w", r.SessionID, err)
	}

	return nil
}

func (s *Service) result(e domain.EventSessionCompleted) (domain.GameResult, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return domain.GameResult{}, fmt.Errorf("generate result ID: %w", err)
	}

	st := e.State
	accuracy := decimal.Zero
	if st.TotalQuestionsRequired > 0 {
		accuracy = decimal.NewFromInt(int64(st.QuestionsAnswered)).
			Div(decimal.NewFromInt(int64(st.TotalQuestionsRequired))).
			Round(4)
	}

	return domain.GameResult{
		ID:                id.String(),
		SessionID:         st.SessionID,
		Player:            st.Player,
		QuestionsAnswered: st.QuestionsAnswered,
		TotalQuestions:    st.TotalQuestionsRequired,
		Accuracy:          accuracy,
		Reason:            e.Reason,
		CompletedAt:       s.now().UTC(),
	}, nil
}

type ListResultsRequest struct {
	Player string
	Limit  int
}

// ListResults returns the most recent results of a player, newest first.
func (s *Service) ListResults(ctx context.Context, req ListResultsRequest) ([]domain.GameResult, error) {
	key := domain.NormalizePlayer(req.Player)
	if key == "" {
		return nil, errors.InvalidArgument("Player name is required.")
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	const stmt = `
SELECT result_id, session_id, player, questions_answered, total_questions, accuracy, reason, completed_at
FROM game_results
WHERE player_key = $1
ORDER BY completed_at DESC
LIMIT $2;`

	rows, err := s.db.Query(ctx, stmt, key, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list results: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.GameResult, error) {
		var (
			res    domain.GameResult
			reason string
		)
		if err := r.Scan(&res.ID, &res.SessionID, &res.Player, &res.QuestionsAnswered,
			&res.TotalQuestions, &res.Accuracy, &reason, &res.CompletedAt); err != nil {
			return domain.GameResult{}, err
		}
		res.Reason = domain.CompletionReason(reason)
		return res, nil
	})
	if err != nil {
		return nil, fmt.Errorf("history: collect results: %w", err)
	}

	return results, nil
}
