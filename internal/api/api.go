package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/victornm/questiontime/internal/domain"
	"github.com/victornm/questiontime/internal/event"
	"github.com/victornm/questiontime/internal/history"
	"github.com/victornm/questiontime/internal/leaderboard"
	"github.com/victornm/questiontime/internal/session"
)

type Config struct {
	HTTP        gin.IRouter
	GRPC        *grpc.Server
	EventBus    *event.Bus
	Session     *session.Service
	Leaderboard *leaderboard.Service
	// History is optional; without it the history endpoint is not served.
	History *history.Service
	// Redis is optional; without it leaderboard updates are not pushed to players.
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	ss *session.Service
	ls *leaderboard.Service
	hs *history.Service

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		ss:     c.Session,
		ls:     c.Leaderboard,
		hs:     c.History,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	if c.HTTP != nil {
		a.registerHTTP(c.HTTP)
	}

	if c.GRPC != nil {
		c.GRPC.RegisterService(&serviceDesc, a)
	}

	if a.redis != nil && c.EventBus != nil {
		c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
			return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
		})
	}

	return a
}
