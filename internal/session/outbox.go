package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/victornm/questiontime/internal/domain"
)

const (
	defaultScoreRetryInterval = 500 * time.Millisecond
	directScoreTimeout        = 100 * time.Millisecond
	scoreTimeout              = time.Second
)

type pendingScore struct {
	player string
	score  int
}

// scoreOutbox delivers scores to the leaderboard at least once. A score is
// first offered directly; when that fails it is kept, one per player with the
// latest score winning, and retried until the leaderboard accepts it.
type scoreOutbox struct {
	scores ScoreRecorder
	retry  time.Duration

	mu       sync.Mutex
	pending  map[string]pendingScore
	inFlight map[string]bool

	wake   chan struct{}
	done   chan struct{}
	exited chan struct{}
	once   sync.Once
}

func newScoreOutbox(scores ScoreRecorder, retry time.Duration) *scoreOutbox {
	if retry <= 0 {
		retry = defaultScoreRetryInterval
	}

	o := &scoreOutbox{
		scores:   scores,
		retry:    retry,
		pending:  make(map[string]pendingScore),
		inFlight: make(map[string]bool),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	go o.run()

	return o
}

// record delivers score for player. It waits at most directScoreTimeout.
func (o *scoreOutbox) record(player string, score int) {
	key := domain.NormalizePlayer(player)

	// A direct write must not overtake an older score still queued for the player.
	o.mu.Lock()
	_, queued := o.pending[key]
	busy := queued || o.inFlight[key]
	o.mu.Unlock()

	if !busy {
		ctx, cancel := context.WithTimeout(context.Background(), directScoreTimeout)
		err := o.scores.RecordScore(ctx, player, score)
		cancel()
		if err == nil {
			return
		}
		slog.Warn("session: record score deferred", "player", player, "score", score, "error", err)
	}

	o.mu.Lock()
	o.pending[key] = pendingScore{player: player, score: score}
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *scoreOutbox) run() {
	defer close(o.exited)

	var retry <-chan time.Time
	for {
		select {
		case <-o.done:
			o.flush()
			return
		case <-o.wake:
		case <-retry:
		}

		retry = nil
		if !o.flush() {
			retry = time.After(o.retry)
		}
	}
}

func (o *scoreOutbox) flush() bool {
	o.mu.Lock()
	batch := o.pending
	o.pending = make(map[string]pendingScore)
	for key := range batch {
		o.inFlight[key] = true
	}
	o.mu.Unlock()

	ok := true
	for key, p := range batch {
		ctx, cancel := context.WithTimeout(context.Background(), scoreTimeout)
		err := o.scores.RecordScore(ctx, p.player, p.score)
		cancel()

		o.mu.Lock()
		delete(o.inFlight, key)
		if err != nil {
			ok = false
			if _, newer := o.pending[key]; !newer {
				o.pending[key] = p
			}
		}
		o.mu.Unlock()

		if err != nil {
			slog.Error("session: record score failed, will retry",
				"player", p.player,
				"score", p.score,
				"error", err,
			)
		}
	}

	return ok
}

// stop makes a last delivery attempt and waits for the outbox goroutine.
func (o *scoreOutbox) stop() {
	o.once.Do(func() { close(o.done) })
	<-o.exited
}
