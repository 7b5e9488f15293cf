package poller

import (
	"sync"

	"github.com/golang/groupcache/lru"

	"github.com/dukerupert/stockbook/internal/model"
)

// DefaultSeenSize bounds the session-local dedup set.
const DefaultSeenSize = 512

// SeenCache remembers which candidates this session already rendered. It is
// a second line of defense behind the server-side claim.
type SeenCache struct {
	mu    sync.Mutex
	cache *lru.Cache
}

func NewSeenCache(size int) *SeenCache {
	if size <= 0 {
		size = DefaultSeenSize
	}
	return &SeenCache{cache: lru.New(size)}
}

// MarkNew records c and reports whether it had not been seen before.
func (s *SeenCache) MarkNew(c model.Candidate) bool {
	key := c.Key()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cache.Get(key); ok {
		return false
	}
	s.cache.Add(key, struct{}{})
	return true
}

func (s *SeenCache) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}
