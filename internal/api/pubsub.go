package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/questiontime/internal/domain"
)

const publishConcurrency = 16

type LeaderboardNotification struct {
	Player  string                    `json:"player"`
	Rank    int                       `json:"rank"`
	Score   int                       `json:"score"`
	Entries []domain.LeaderboardEntry `json:"entries"`
}

// PlayerChannel is the pubsub channel a player's client listens on.
func PlayerChannel(prefix, player string) string {
	return fmt.Sprintf("%s:player:%s", prefix, domain.NormalizePlayer(player))
}

// PublishLeaderboardUpdated pushes the fresh ranking to every ranked player.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	notifications := lo.Map(e.Leaderboard.Entries, func(entry domain.LeaderboardEntry, i int) LeaderboardNotification {
		return LeaderboardNotification{
			Player:  entry.Player,
			Rank:    i + 1,
			Score:   entry.Score,
			Entries: e.Leaderboard.Entries,
		}
	})

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(publishConcurrency)
	for _, n := range notifications {
		g.Go(func() error {
			b, err := json.Marshal(n)
			if err != nil {
				return err
			}

			return a.redis.Publish(ctx, PlayerChannel(a.prefix, n.Player), b).Err()
		})
	}

	return g.Wait()
}
