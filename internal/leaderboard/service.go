// Package leaderboard owns the global ranking of players.
//
// The table is held by a single goroutine; every mutation and every read is
// a message processed in arrival order, so scores recorded for the same player
// are applied in the order they were sent.
package leaderboard

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/victornm/questiontime/internal/domain"
	"github.com/victornm/questiontime/internal/event"
)

const (
	mailboxSize     = 1024
	storeTimeout    = 2 * time.Second
	publishInterval = 200 * time.Millisecond
)

// ErrStopped is returned by calls made after Stop.
var ErrStopped = stderrors.New("leaderboard stopped")

type Config struct {
	EventBus *event.Bus
	// Store mirrors the table; nil keeps it in memory only.
	Store Store
	// PublishInterval coalesces leaderboard.updated events. Negative publishes on every change.
	PublishInterval time.Duration
	// StoreRetryInterval spaces retries of failed mirror writes.
	StoreRetryInterval time.Duration
	NewTickerFunc      func(d time.Duration) Ticker
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type row struct {
	entry domain.LeaderboardEntry
	seq   int64
}

type Service struct {
	eb     *event.Bus
	store  Store
	mirror *mirror
	ticker Ticker

	mailbox  chan func()
	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once

	// Owned by the loop goroutine.
	rows  map[string]*row
	seq   int64
	dirty bool
}

// NewService restores the table from the store, if any, and starts the actor.
func NewService(ctx context.Context, c Config) (*Service, error) {
	s := &Service{
		eb:      c.EventBus,
		store:   c.Store,
		mailbox: make(chan func(), mailboxSize),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
		rows:    make(map[string]*row),
	}

	if s.store != nil {
		if err := s.restore(ctx); err != nil {
			return nil, fmt.Errorf("leaderboard: restore: %w", err)
		}
	}

	interval := c.PublishInterval
	if interval == 0 {
		interval = publishInterval
	}
	if interval > 0 {
		newTicker := c.NewTickerFunc
		if newTicker == nil {
			newTicker = newTimeTicker
		}
		s.ticker = newTicker(interval)
	}

	if s.store != nil {
		s.mirror = newMirror(s.store, c.StoreRetryInterval)
		go s.mirror.run()
	}

	go s.loop()

	return s, nil
}

func (s *Service) restore(ctx context.Context) error {
	records, err := s.store.Load(ctx)
	if err != nil {
		return err
	}

	for _, r := range records {
		s.rows[domain.NormalizePlayer(r.Entry.Player)] = &row{entry: r.Entry, seq: r.Seq}
		s.seq = max(s.seq, r.Seq)
	}

	slog.InfoContext(ctx, "leaderboard: restored", "entries", len(records))
	return nil
}

func (s *Service) loop() {
	defer close(s.exited)

	var tick <-chan time.Time
	if s.ticker != nil {
		defer s.ticker.Stop()
		tick = s.ticker.C()
	}

	for {
		select {
		case <-s.done:
			return
		case f := <-s.mailbox:
			f()
		case <-tick:
			if s.dirty {
				s.publish()
			}
		}
	}
}

// send enqueues f on the actor's mailbox.
func (s *Service) send(ctx context.Context, f func()) error {
	select {
	case <-s.done:
		return ErrStopped
	default:
	}

	select {
	case s.mailbox <- f:
		return nil
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecordScore overwrites the player's score, registering the player on first sight.
// It returns as soon as the update is queued.
func (s *Service) RecordScore(ctx context.Context, player string, score int) error {
	return s.send(ctx, func() {
		s.upsert(player, score)
	})
}

func (s *Service) upsert(player string, score int) {
	key := domain.NormalizePlayer(player)

	r, ok := s.rows[key]
	if !ok {
		s.seq++
		r = &row{seq: s.seq}
		s.rows[key] = r
	}
	r.entry = domain.LeaderboardEntry{Player: player, Score: score}

	slog.Info("leaderboard: score recorded", "player", player, "score", score)

	if s.mirror != nil {
		s.mirror.push(key, Record{Entry: r.entry, Seq: r.seq})
	}

	s.dirty = true
	if s.ticker == nil {
		s.publish()
	}
}

type GetLeaderboardRequest struct{}

// GetLeaderboard returns a snapshot of the ranking, sorted by score descending
// and by first registration on ties.
func (s *Service) GetLeaderboard(ctx context.Context, _ GetLeaderboardRequest) (*domain.Leaderboard, error) {
	reply := make(chan []domain.LeaderboardEntry, 1)
	if err := s.send(ctx, func() { reply <- s.ranking() }); err != nil {
		return nil, err
	}

	select {
	case entries := <-reply:
		return &domain.Leaderboard{Entries: entries}, nil
	case <-s.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) ranking() []domain.LeaderboardEntry {
	rows := make([]*row, 0, len(s.rows))
	for _, r := range s.rows {
		rows = append(rows, r)
	}

	slices.SortFunc(rows, func(a, b *row) int {
		if a.entry.Score != b.entry.Score {
			return b.entry.Score - a.entry.Score
		}
		return int(a.seq - b.seq)
	})

	entries := make([]domain.LeaderboardEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.entry)
	}
	return entries
}

func (s *Service) publish() {
	s.dirty = false
	if s.eb == nil {
		return
	}

	s.eb.Publish(context.Background(), domain.EventLeaderboardUpdated{
		Leaderboard: domain.Leaderboard{Entries: s.ranking()},
	})
}

// Stop terminates the actor and flushes pending mirror writes. Queued updates
// not yet processed are dropped.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		<-s.exited
		if s.mirror != nil {
			s.mirror.stop()
		}
	})
	<-s.exited
}

type timeTicker struct {
	t *time.Ticker
}

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }
