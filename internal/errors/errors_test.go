package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/victornm/questiontime/internal/errors"
)

func TestError_HTTPStatusCode(t *testing.T) {
	tests := map[string]struct {
		code errors.Code
		want int
	}{
		"invalid argument":    {code: errors.CodeInvalidArgument, want: http.StatusBadRequest},
		"not found":           {code: errors.CodeNotFound, want: http.StatusNotFound},
		"already exists":      {code: errors.CodeAlreadyExists, want: http.StatusConflict},
		"failed precondition": {code: errors.CodeFailedPrecondition, want: http.StatusPreconditionFailed},
		"aborted":             {code: errors.CodeAborted, want: http.StatusBadGateway},
		"unavailable":         {code: errors.CodeUnavailable, want: http.StatusServiceUnavailable},
		"unmapped code":       {code: errors.Code(codes.DataLoss), want: http.StatusInternalServerError},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.New(tt.code).HTTPStatusCode())
		})
	}
}

func TestConvert(t *testing.T) {
	cause := stderrors.New("boom")

	e := errors.Convert(fmt.Errorf("wrapped: %w", errors.New(errors.CodeNotFound,
		errors.WithMessagef("session not found: player=%s", "ada"),
		errors.WithCause(cause),
	)))
	require.Equal(t, errors.CodeNotFound, e.Code)
	assert.Equal(t, "session not found: player=ada", e.Message)
	assert.ErrorIs(t, e, cause)

	e = errors.Convert(cause)
	assert.Equal(t, errors.CodeInternal, e.Code)
	assert.ErrorIs(t, e, cause)
}

func TestError_GRPCStatus(t *testing.T) {
	err := errors.New(errors.CodeUnavailable, errors.WithMessagef("grader unavailable"))

	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.Unavailable, st.Code())
	assert.Equal(t, "grader unavailable", st.Message())
	assert.True(t, err.Retryable())
	assert.False(t, errors.InvalidArgument("player is required").Retryable())
}
