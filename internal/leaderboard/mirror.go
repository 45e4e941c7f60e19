package leaderboard

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const mirrorRetryInterval = time.Second

// mirror writes records to the store on its own goroutine so a slow store never
// holds up the leaderboard. While a write is pending only the latest record of
// each player is kept.
type mirror struct {
	store Store
	retry time.Duration

	mu      sync.Mutex
	pending map[string]Record

	wake   chan struct{}
	done   chan struct{}
	exited chan struct{}
}

func newMirror(store Store, retry time.Duration) *mirror {
	if retry <= 0 {
		retry = mirrorRetryInterval
	}

	return &mirror{
		store:   store,
		retry:   retry,
		pending: make(map[string]Record),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
}

func (m *mirror) push(key string, r Record) {
	m.mu.Lock()
	m.pending[key] = r
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mirror) run() {
	defer close(m.exited)

	var retry <-chan time.Time
	for {
		select {
		case <-m.done:
			m.flush()
			return
		case <-m.wake:
		case <-retry:
		}

		retry = nil
		if !m.flush() {
			retry = time.After(m.retry)
		}
	}
}

// flush saves every pending record and reports whether all of them succeeded.
// A failed record is queued again unless a newer one arrived meanwhile.
func (m *mirror) flush() bool {
	m.mu.Lock()
	batch := m.pending
	m.pending = make(map[string]Record)
	m.mu.Unlock()

	ok := true
	for key, r := range batch {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		err := m.store.Save(ctx, r)
		cancel()
		if err == nil {
			continue
		}

		ok = false
		slog.Error("leaderboard: mirror score failed", "player", r.Entry.Player, "error", err)

		m.mu.Lock()
		if _, newer := m.pending[key]; !newer {
			m.pending[key] = r
		}
		m.mu.Unlock()
	}

	return ok
}

// stop makes a last attempt at the pending records and waits for the goroutine to exit.
func (m *mirror) stop() {
	close(m.done)
	<-m.exited
}
