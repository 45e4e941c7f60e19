// Package question provides the fixed pool of questions served to players.
package question

import (
	_ "embed"
	stderrors "errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"sync"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/victornm/questiontime/internal/domain"
)

// ErrExhausted is returned when every question of the pool was already asked.
var ErrExhausted = stderrors.New("question pool exhausted")

//go:embed questions.yaml
var defaultQuestions []byte

// Pool is an immutable, ordered set of questions, unique by ID.
// It is safe for concurrent use.
type Pool struct {
	questions []domain.Question

	mu  sync.Mutex
	rnd *rand.Rand
}

type Option func(p *Pool)

// WithSeed makes selection deterministic.
func WithSeed(seed uint64) Option {
	return func(p *Pool) {
		p.rnd = rand.New(rand.NewPCG(seed, seed))
	}
}

// NewPool validates questions and builds a pool from them.
func NewPool(questions []domain.Question, opts ...Option) (*Pool, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("question pool is empty")
	}

	seen := make(map[int]struct{}, len(questions))
	for _, q := range questions {
		if _, ok := seen[q.ID]; ok {
			return nil, fmt.Errorf("duplicate question id %d", q.ID)
		}
		seen[q.ID] = struct{}{}

		if strings.TrimSpace(q.Prompt) == "" || strings.TrimSpace(q.CorrectAnswer) == "" {
			return nil, fmt.Errorf("question %d: prompt and answer are required", q.ID)
		}
	}

	p := &Pool{
		questions: append([]domain.Question(nil), questions...),
		rnd:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Default returns the built-in pool.
func Default(opts ...Option) (*Pool, error) {
	return Parse(defaultQuestions, opts...)
}

// Load reads a YAML list of questions from file. An empty file name loads the built-in pool.
func Load(file string, opts ...Option) (*Pool, error) {
	if file == "" {
		return Default(opts...)
	}

	b, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}

	return Parse(b, opts...)
}

// Parse decodes a YAML list of questions.
func Parse(b []byte, opts ...Option) (*Pool, error) {
	var qs []domain.Question
	if err := yaml.Unmarshal(b, &qs); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}

	return NewPool(qs, opts...)
}

// Len returns the number of questions in the pool.
func (p *Pool) Len() int {
	return len(p.questions)
}

// Questions returns a copy of the pool in declaration order.
func (p *Pool) Questions() []domain.Question {
	return append([]domain.Question(nil), p.questions...)
}

// Get returns the question with the given id.
func (p *Pool) Get(id int) (domain.Question, bool) {
	return lo.Find(p.questions, func(q domain.Question) bool { return q.ID == id })
}

// Select picks uniformly at random a question whose id is not in asked.
func (p *Pool) Select(asked []int) (domain.Question, error) {
	remaining := lo.Reject(p.questions, func(q domain.Question, _ int) bool {
		return lo.Contains(asked, q.ID)
	})
	if len(remaining) == 0 {
		return domain.Question{}, ErrExhausted
	}

	p.mu.Lock()
	i := p.rnd.IntN(len(remaining))
	p.mu.Unlock()

	return remaining[i], nil
}
