package llm

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hpungsan/loom/internal/errors"
)

// Selection strategy names accepted by NewSelector.
const (
	SelectRandom              = "random"
	SelectRoundRobin          = "round_robin"
	SelectLeastRecentlyFailed = "least_recently_failed"
)

// Selector picks which of n credentials to use next. Failure and success
// reports let stateful strategies steer away from keys that just failed.
type Selector interface {
	Select(n int) int
	ReportFailure(i int)
	ReportSuccess(i int)
}

// NewSelector returns the strategy with the given name. Empty means round robin.
func NewSelector(name string) (Selector, error) {
	switch name {
	case "", SelectRoundRobin:
		return &roundRobin{}, nil
	case SelectRandom:
		return randomSelector{}, nil
	case SelectLeastRecentlyFailed:
		return newLeastRecentlyFailed(time.Now), nil
	default:
		return nil, errors.NewInvalidRequest("unknown key_selection: " + name)
	}
}

type randomSelector struct{}

func (randomSelector) Select(n int) int  { return rand.IntN(n) }
func (randomSelector) ReportFailure(int) {}
func (randomSelector) ReportSuccess(int) {}

type roundRobin struct {
	next atomic.Uint64
}

func (r *roundRobin) Select(n int) int {
	return int((r.next.Add(1) - 1) % uint64(n))
}
func (r *roundRobin) ReportFailure(int) {}
func (r *roundRobin) ReportSuccess(int) {}

// leastRecentlyFailed prefers keys that never failed, then the one whose last
// failure is oldest. Ties rotate so healthy keys share the load.
type leastRecentlyFailed struct {
	mu         sync.Mutex
	now        func() time.Time
	lastFailed map[int]time.Time
	cursor     int
}

func newLeastRecentlyFailed(now func() time.Time) *leastRecentlyFailed {
	return &leastRecentlyFailed{now: now, lastFailed: make(map[int]time.Time)}
}

func (l *leastRecentlyFailed) Select(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	best := -1
	var bestAt time.Time
	for off := 0; off < n; off++ {
		i := (l.cursor + off) % n
		at := l.lastFailed[i]
		if best == -1 || at.Before(bestAt) {
			best, bestAt = i, at
		}
	}
	l.cursor = (best + 1) % n
	return best
}

func (l *leastRecentlyFailed) ReportFailure(i int) {
	l.mu.Lock()
	l.lastFailed[i] = l.now()
	l.mu.Unlock()
}

func (l *leastRecentlyFailed) ReportSuccess(i int) {
	l.mu.Lock()
	delete(l.lastFailed, i)
	l.mu.Unlock()
}

// KeyPool holds the credentials loaded at startup. Keys never change after
// construction; only the selector carries state.
type KeyPool struct {
	keys     []string
	index    map[string]int
	selector Selector
}

// NewKeyPool builds a pool over keys. A nil selector means round robin.
func NewKeyPool(keys []string, selector Selector) *KeyPool {
	if selector == nil {
		selector = &roundRobin{}
	}
	owned := append([]string(nil), keys...)
	index := make(map[string]int, len(owned))
	for i, k := range owned {
		if _, dup := index[k]; !dup {
			index[k] = i
		}
	}
	return &KeyPool{keys: owned, index: index, selector: selector}
}

// Len returns the number of credentials.
func (p *KeyPool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Next returns the credential to use for the next call.
func (p *KeyPool) Next() (string, error) {
	if p.Len() == 0 {
		return "", errors.NewConfigurationMissing("API credentials")
	}
	return p.keys[p.selector.Select(len(p.keys))], nil
}

// ReportFailure records that a call with key failed.
func (p *KeyPool) ReportFailure(key string) {
	if i, ok := p.lookup(key); ok {
		p.selector.ReportFailure(i)
	}
}

// ReportSuccess records that a call with key succeeded.
func (p *KeyPool) ReportSuccess(key string) {
	if i, ok := p.lookup(key); ok {
		p.selector.ReportSuccess(i)
	}
}

func (p *KeyPool) lookup(key string) (int, bool) {
	if p == nil {
		return 0, false
	}
	i, ok := p.index[key]
	return i, ok
}
