package leaderboard

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/questiontime/internal/domain"
)

// Record is a leaderboard entry with its first-registration sequence number.
type Record struct {
	Entry domain.LeaderboardEntry
	Seq   int64
}

// Store mirrors the leaderboard outside the process.
type Store interface {
	Save(ctx context.Context, r Record) error
	Load(ctx context.Context) ([]Record, error)
}

// RedisStore keeps scores in a sorted set and the display name and sequence
// of each player in hashes, all keyed by the normalized player name.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisStore(r redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{redis: r, prefix: prefix}
}

// Save is idempotent: saving the same record twice leaves the same state.
func (s *RedisStore) Save(ctx context.Context, r Record) error {
	key := domain.NormalizePlayer(r.Entry.Player)

	_, err := s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, s.scoresKey(), redis.Z{Score: float64(r.Entry.Score), Member: key})
		p.HSet(ctx, s.namesKey(), key, r.Entry.Player)
		p.HSetNX(ctx, s.seqKey(), key, r.Seq)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save score: %w", err)
	}

	return nil
}

func (s *RedisStore) Load(ctx context.Context) ([]Record, error) {
	scores, err := s.redis.ZRevRangeWithScores(ctx, s.scoresKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load scores: %w", err)
	}

	names, err := s.redis.HGetAll(ctx, s.namesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("load names: %w", err)
	}

	seqs, err := s.redis.HGetAll(ctx, s.seqKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("load sequences: %w", err)
	}

	records := make([]Record, 0, len(scores))
	for _, z := range scores {
		key := z.Member.(string)

		name, ok := names[key]
		if !ok {
			name = key
		}

		seq, err := strconv.ParseInt(seqs[key], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse sequence of %s: %w", key, err)
		}

		records = append(records, Record{
			Entry: domain.LeaderboardEntry{Player: name, Score: int(z.Score)},
			Seq:   seq,
		})
	}

	return records, nil
}

func (s *RedisStore) scoresKey() string {
	return fmt.Sprintf("%s:leaderboard", s.prefix)
}

func (s *RedisStore) namesKey() string {
	return fmt.Sprintf("%s:leaderboard:names", s.prefix)
}

func (s *RedisStore) seqKey() string {
	return fmt.Sprintf("%s:leaderboard:seq", s.prefix)
}
