package sources

import (
	"context"
	"strings"
	"sync"

	"github.com/pbaille/nutrilog/internal/domain"
)

// Result is the answer to one search on a Channel
type Result struct {
	Generation uint64        `json:"generation"`
	Query      string        `json:"query"`
	Foods      []domain.Food `json:"foods"`
}

// Channel serializes the searches of one input (a search box, a client) against one source.
// Only the most recently issued search delivers results; earlier ones are cancelled and
// report ErrSuperseded, whatever order the responses arrive in.
type Channel struct {
	src NameSearcher

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

func NewChannel(src NameSearcher) *Channel {
	return &Channel{src: src}
}

// Search issues a new generation and cancels the previous in-flight one
func (c *Channel) Search(ctx context.Context, query string) (Result, error) {
	query = strings.TrimSpace(query)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.gen++
	gen := c.gen
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = cancel
	c.mu.Unlock()

	if query == "" {
		return Result{Generation: gen, Query: query, Foods: []domain.Food{}}, nil
	}

	foods, err := c.src.SearchByName(ctx, query)
	if !c.current(gen) {
		return Result{}, ErrSuperseded
	}
	if err != nil {
		return Result{}, err
	}
	if foods == nil {
		foods = []domain.Food{}
	}
	return Result{Generation: gen, Query: query, Foods: foods}, nil
}

// Generation is the number of searches issued so far
func (c *Channel) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *Channel) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}
