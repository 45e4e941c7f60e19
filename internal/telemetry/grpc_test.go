package telemetry

import (
	"context"
	"testing"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/victornm/questiontime/internal/errors"
)

func TestLevelOf(t *testing.T) {
	tests := map[codes.Code]logging.Level{
		codes.OK:                 logging.LevelInfo,
		codes.NotFound:           logging.LevelInfo,
		codes.AlreadyExists:      logging.LevelInfo,
		codes.FailedPrecondition: logging.LevelInfo,
		codes.Unavailable:        logging.LevelWarn,
		codes.Aborted:            logging.LevelWarn,
		codes.Internal:           logging.LevelError,
	}

	for c, want := range tests {
		t.Run(c.String(), func(t *testing.T) {
			assert.Equal(t, want, levelOf(c))
		})
	}
}

func TestCountRequests(t *testing.T) {
	const method = "/questiontime.v1.QuestionTimeService/GetState"
	info := &grpc.UnaryServerInfo{FullMethod: method}
	before := testutil.ToFloat64(GRPCRequests.WithLabelValues(method, codes.NotFound.String()))

	_, err := countRequests(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return nil, errors.New(errors.CodeNotFound)
	})
	require.Error(t, err)

	after := testutil.ToFloat64(GRPCRequests.WithLabelValues(method, codes.NotFound.String()))
	assert.Equal(t, before+1, after)
}

func TestRecoverPanic(t *testing.T) {
	err := recoverPanic(context.Background(), "boom")
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.ErrorContains(t, err, "boom")
}
