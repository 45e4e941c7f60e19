package history_test

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/questiontime/internal/domain"
	"github.com/victornm/questiontime/internal/errors"
	"github.com/victornm/questiontime/internal/event"
	"github.com/victornm/questiontime/internal/history"
)

var completedAt = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func TestService_RecordResult(t *testing.T) {
	tests := map[string]struct {
		event   domain.EventSessionCompleted
		execErr error
		assert  func(t *testing.T, db *fakeDB, err error)
	}{
		"should insert the result of a finished session": {
			event: completed("s1", "Ada", 2, 2, domain.CompletionAnswered),
			assert: func(t *testing.T, db *fakeDB, err error) {
				require.NoError(t, err)
				require.Len(t, db.execs, 1)
				args := db.execs[0].args
				assert.Equal(t, "s1", args[1])
				assert.Equal(t, "Ada", args[2])
				assert.Equal(t, "ada", args[3])
				assert.Equal(t, 2, args[4])
				assert.Equal(t, 2, args[5])
				assert.True(t, decimal.NewFromInt(1).Equal(args[6].(decimal.Decimal)))
				assert.Equal(t, "answered", args[7])
				assert.Equal(t, completedAt, args[8])
			},
		},
		"should compute accuracy of a timed out session": {
			event: completed("s2", "Grace", 1, 3, domain.CompletionTimeout),
			assert: func(t *testing.T, db *fakeDB, err error) {
				require.NoError(t, err)
				require.Len(t, db.execs, 1)
				assert.Equal(t, "0.3333", db.execs[0].args[6].(decimal.Decimal).String())
				assert.Equal(t, "timeout", db.execs[0].args[7])
			},
		},
		"should ignore a session recorded twice": {
			event:   completed("s1", "Ada", 2, 2, domain.CompletionAnswered),
			execErr: &pgconn.PgError{Code: "23505"},
			assert: func(t *testing.T, db *fakeDB, err error) {
				require.NoError(t, err)
			},
		},
		"should fail on a database error": {
			event:   completed("s1", "Ada", 2, 2, domain.CompletionAnswered),
			execErr: stderrors.New("connection reset"),
			assert: func(t *testing.T, db *fakeDB, err error) {
				require.Error(t, err)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			db := &fakeDB{execErr: tt.execErr}
			s := history.NewService(history.Config{DB: db, Now: func() time.Time { return completedAt }})

			err := s.RecordResult(context.Background(), tt.event)
			tt.assert(t, db, err)
		})
	}
}

func TestService_RecordsCompletedSessionsFromBus(t *testing.T) {
	eb := event.NewBus()
	db := &fakeDB{}
	history.NewService(history.Config{DB: db, EventBus: eb})

	eb.Publish(context.Background(), completed("s1", "Ada", 1, 2, domain.CompletionTimeout))
	eb.Stop()

	require.Len(t, db.execs, 1)
	assert.Equal(t, "s1", db.execs[0].args[1])
}

func TestService_Migrate(t *testing.T) {
	db := &fakeDB{}
	s := history.NewService(history.Config{DB: db})

	require.NoError(t, s.Migrate(context.Background()))
	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0].sql, "CREATE TABLE IF NOT EXISTS game_results")
}

func TestService_ListResults(t *testing.T) {
	db := &fakeDB{
		rows: [][]any{
			{"r2", "s2", "Ada", 2, 2, decimal.NewFromInt(1), "answered", completedAt},
			{"r1", "s1", "Ada", 0, 2, decimal.Zero, "timeout", completedAt.Add(-time.Hour)},
		},
	}
	s := history.NewService(history.Config{DB: db})

	results, err := s.ListResults(context.Background(), history.ListResultsRequest{Player: " ADA ", Limit: 500})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, domain.CompletionAnswered, results[0].Reason)
	assert.Equal(t, "s1", results[1].SessionID)
	assert.Equal(t, []any{"ada", 100}, db.queries[0].args)

	_, err = s.ListResults(context.Background(), history.ListResultsRequest{})
	assert.Equal(t, errors.CodeInvalidArgument, errors.CodeOf(err))
}

func completed(session, player string, answered, total int, reason domain.CompletionReason) domain.EventSessionCompleted {
	return domain.EventSessionCompleted{
		State: domain.SessionState{
			SessionID:              session,
			Player:                 player,
			QuestionsAnswered:      answered,
			TotalQuestionsRequired: total,
			Completed:              true,
		},
		Reason: reason,
	}
}

type call struct {
	sql  string
	args []any
}

type fakeDB struct {
	mu      sync.Mutex
	execErr error
	execs   []call
	queries []call
	rows    [][]any
}

func (db *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.execs = append(db.execs, call{sql: sql, args: args})
	if db.execErr != nil {
		return pgconn.CommandTag{}, db.execErr
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (db *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.queries = append(db.queries, call{sql: sql, args: args})
	return &fakeRows{rows: db.rows, i: -1}, nil
}

// fakeRows serves pre-typed values; Scan assigns them by destination type.
type fakeRows struct {
	rows [][]any
	i    int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	r.i++
	return r.i < len(r.rows)
}

func (r *fakeRows) Values() ([]any, error) {
	return r.rows[r.i], nil
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.i]
	if len(dest) != len(row) {
		return stderrors.New("column count mismatch")
	}

	for i, d := range dest {
		switch d := d.(type) {
		case *string:
			*d = row[i].(string)
		case *int:
			*d = row[i].(int)
		case *decimal.Decimal:
			*d = row[i].(decimal.Decimal)
		case *time.Time:
			*d = row[i].(time.Time)
		default:
			return stderrors.New("unsupported destination")
		}
	}
	return nil
}
