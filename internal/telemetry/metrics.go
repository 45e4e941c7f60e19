package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "questiontime"

var (
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_started_total",
		Help:      "Number of game sessions started.",
	})

	SessionsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_completed_total",
		Help:      "Number of game sessions completed, by reason.",
	}, []string{"reason"})

	AnswersGraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "answers_graded_total",
		Help:      "Number of graded answers, by verdict.",
	}, []string{"verdict"})

	GraderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "grader_failures_total",
		Help:      "Number of grading attempts that failed, by kind.",
	}, []string{"kind"})
)

var GRPCRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "grpc_requests_total",
	Help:      "Number of handled gRPC calls, by method and code.",
}, []string{"method", "code"})
