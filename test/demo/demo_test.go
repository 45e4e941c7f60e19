//go:build integration_test

package demo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/victornm/questiontime/internal/api"
	"github.com/victornm/questiontime/internal/question"
)

// The server under test runs with grader.kind=exact and redis.pubsub.prefix=local.
const (
	addr   = "localhost:9090"
	prefix = "local"
)

func TestQuestionTime(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var (
		qc      = makeClient(t)
		pool    = makePool(t)
		wg      = new(sync.WaitGroup)
		players = []string{"u1", "u2", "u3"}
	)

	// Prepare Redis subscriber
	subscribeAsPlayer(t, makeRedis(t), wg, "u1")

	var eg errgroup.Group
	for i, p := range players {
		eg.Go(func() error {
			if _, err := qc.Call(ctx, "StartSession", map[string]any{"player": p}); err != nil {
				return fmt.Errorf("player %q start: %w", p, err)
			}

			// Each player answers one more question than the previous one.
			for range i + 1 {
				st, err := qc.Call(ctx, "GetState", map[string]any{"player": p})
				if err != nil {
					return fmt.Errorf("player %q state: %w", p, err)
				}

				id, ok := st["currentQuestionId"].(float64)
				if !ok {
					return fmt.Errorf("player %q has no current question", p)
				}
				q, _ := pool.Get(int(id))

				resp, err := qc.Call(ctx, "SubmitAnswer", map[string]any{"player": p, "answer": q.CorrectAnswer})
				if err != nil {
					return fmt.Errorf("player %q submit answer: %w", p, err)
				}

				t.Logf("Player %q answered question %d: %v", p, q.ID, resp["message"])
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	lb, err := qc.Call(ctx, "GetLeaderboard", nil)
	require.NoError(t, err)
	t.Logf("leaderboard: %v", lb["entries"])

	time.Sleep(2 * time.Second)
	wg.Wait()
}

func makeClient(t *testing.T) *api.Client {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return api.NewClient(conn)
}

func makePool(t *testing.T) *question.Pool {
	p, err := question.Default()
	require.NoError(t, err)
	return p
}

func subscribeAsPlayer(t *testing.T, rc redis.UniversalClient, wg *sync.WaitGroup, p string) {
	wg.Add(1)
	sub := subscribeRedis(t, rc, api.PlayerChannel(prefix, p))
	go func() {
		defer wg.Done()

		for msg := range sub {
			var n api.LeaderboardNotification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				t.Logf("unmarshal notification: %v", err)
				continue
			}

			t.Logf("%s ranked #%d with %d:\n%s", p, n.Rank, n.Score, formatLeaderboard(n))
		}
	}()
}

func subscribeRedis(t *testing.T, rc redis.UniversalClient, channel string) <-chan *redis.Message {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

	sub := rc.Subscribe(ctx, channel)
	t.Cleanup(func() {
		cancel()
		sub.Close()
	})

	c := make(chan *redis.Message)
	go func() {
		defer close(c)

		for {
			msg, err := sub.ReceiveMessage(ctx)
			if err != nil {
				t.Log(err)
				return
			}

			c <- msg
		}
	}()

	return c
}

func makeRedis(t *testing.T) redis.UniversalClient {
	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{"localhost:6379"},
	})
	t.Cleanup(func() { r.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.Ping(ctx).Err(); err != nil {
		t.Fatal(err)
	}

	return r
}

func formatLeaderboard(n api.LeaderboardNotification) string {
	var s string
	for _, e := range n.Entries {
		s += fmt.Sprintf("%s: %d\n", e.Player, e.Score)
	}
	return s
}
