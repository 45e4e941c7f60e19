package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/victornm/questiontime/internal/api"
	"github.com/victornm/questiontime/internal/event"
	"github.com/victornm/questiontime/internal/grader"
	"github.com/victornm/questiontime/internal/history"
	"github.com/victornm/questiontime/internal/leaderboard"
	"github.com/victornm/questiontime/internal/question"
	"github.com/victornm/questiontime/internal/session"
	"github.com/victornm/questiontime/internal/telemetry"
)

const (
	GraderOpenAI = "openai"
	GraderExact  = "exact"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Log struct {
		Format string
		Level  string
	}

	Game struct {
		Duration       time.Duration
		TickInterval   time.Duration
		TotalQuestions int
		// QuestionsFile replaces the embedded question pool when set.
		QuestionsFile string
	}

	Grader struct {
		Kind    string
		APIKey  string
		Model   string
		BaseURL string
		Timeout time.Duration
		RPS     float64
		Burst   int
	}

	Redis struct {
		Leaderboard struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Postgres struct {
		History struct {
			Addr string
			User string
			Pass string
			Name string
		}
	}
}

func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.GRPC.Port = 9090
	c.Log.Format = "json"
	c.Log.Level = "info"
	c.Game.Duration = 120 * time.Second
	c.Game.TickInterval = time.Second
	c.Grader.Kind = GraderOpenAI
	c.Grader.Model = "gpt-3.5-turbo"
	c.Grader.Timeout = 60 * time.Second
	c.Grader.RPS = 5
	c.Grader.Burst = 5
	c.Redis.Leaderboard.Prefix = "questiontime"
	c.Redis.Pubsub.Prefix = "questiontime"
	return c
}

func (c Config) Validate() error {
	if c.Game.Duration <= 0 {
		return fmt.Errorf("game.duration must be positive, got %s", c.Game.Duration)
	}
	if c.Game.TickInterval <= 0 {
		return fmt.Errorf("game.tickinterval must be positive, got %s", c.Game.TickInterval)
	}
	if c.Game.TotalQuestions < 0 {
		return fmt.Errorf("game.totalquestions must not be negative, got %d", c.Game.TotalQuestions)
	}

	switch c.Grader.Kind {
	case GraderOpenAI:
		if c.Grader.APIKey == "" {
			return errors.New("grader.apikey is required for the openai grader")
		}
	case GraderExact:
	default:
		return fmt.Errorf("unknown grader.kind %q", c.Grader.Kind)
	}

	return nil
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
		}

		postgres struct {
			history *pgxpool.Pool
		}
	}

	service struct {
		session     *session.Service
		leaderboard *leaderboard.Service
		history     *history.Service
	}

	http *http.Server
	grpc *grpc.Server
}

func Init(c Config) (*Server, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("server: invalid config: %w", err)
	}

	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

// initRedis connects the configured clients. A client without addresses stays nil.
func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		if len(addrs) == 0 {
			return nil, nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.leaderboard, err = connect(s.c.Redis.Leaderboard.Addrs, s.c.Redis.Leaderboard.Pass)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() (err error) {
	c := s.c.Postgres.History
	if c.Addr == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", c.User, c.Pass, c.Addr, c.Name))
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return fmt.Errorf("history: %w", err)
	}

	s.infra.postgres.history = db
	return nil
}

func (s *Server) initService() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := question.Load(s.c.Game.QuestionsFile)
	if err != nil {
		return fmt.Errorf("question pool: %w", err)
	}

	g, err := s.newGrader()
	if err != nil {
		return fmt.Errorf("grader: %w", err)
	}

	lc := leaderboard.Config{EventBus: s.eb}
	if r := s.infra.redis.leaderboard; r != nil {
		lc.Store = leaderboard.NewRedisStore(r, s.c.Redis.Leaderboard.Prefix)
	}
	s.service.leaderboard, err = leaderboard.NewService(ctx, lc)
	if err != nil {
		return err
	}

	s.service.session, err = session.NewService(session.Config{
		Pool:           pool,
		Grader:         g,
		Scores:         s.service.leaderboard,
		EventBus:       s.eb,
		Duration:       s.c.Game.Duration,
		TickInterval:   s.c.Game.TickInterval,
		TotalQuestions: s.c.Game.TotalQuestions,
	})
	if err != nil {
		return err
	}

	if db := s.infra.postgres.history; db != nil {
		s.service.history = history.NewService(history.Config{
			DB:       db,
			EventBus: s.eb,
		})
		if err := s.service.history.Migrate(ctx); err != nil {
			return fmt.Errorf("history: %w", err)
		}
	}

	return nil
}

func (s *Server) newGrader() (grader.Grader, error) {
	var g grader.Grader

	switch s.c.Grader.Kind {
	case GraderExact:
		g = grader.ExactMatch{}
	default:
		o, err := grader.NewOpenAI(grader.OpenAIConfig{
			APIKey:  s.c.Grader.APIKey,
			Model:   s.c.Grader.Model,
			BaseURL: s.c.Grader.BaseURL,
			Timeout: s.c.Grader.Timeout,
		})
		if err != nil {
			return nil, err
		}
		g = o
	}

	return grader.NewLimited(g, s.c.Grader.RPS, s.c.Grader.Burst), nil
}

func (s *Server) initAPI() {
	e := gin.New()
	e.Use(gin.Recovery())
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor())

	c := api.Config{
		HTTP:         e.Group("/", gzip.Gzip(gzip.DefaultCompression)),
		GRPC:         s.grpc,
		EventBus:     s.eb,
		Session:      s.service.session,
		Leaderboard:  s.service.leaderboard,
		History:      s.service.history,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	}
	if r := s.infra.redis.pubsub; r != nil {
		c.Redis = r
	}
	api.New(c)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

// Start serves gRPC and HTTP until both servers stop.
func (s *Server) Start() error {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		return fmt.Errorf("grpc server: listen: %w", err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	return eg.Wait()
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.service.session.Stop()
	s.service.leaderboard.Stop()
	s.eb.Stop()

	for _, r := range []redis.UniversalClient{s.infra.redis.leaderboard, s.infra.redis.pubsub} {
		if r != nil {
			_ = r.Close()
		}
	}
	if db := s.infra.postgres.history; db != nil {
		db.Close()
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
