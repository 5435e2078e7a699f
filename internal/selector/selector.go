// Package selector implements the router/channel selection engine:
// rule matching over model names with glob and case-insensitive
// matching, weighted/priority/random strategies, and a cached decision
// invalidated on config reload (spec.md §4.1).
package selector

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/cregis-dev/apex/internal/config"
)

const (
	cacheCapacity = 10_000
	cacheTTL      = time.Hour
)

// globCache memoizes compiled glob.Glob per lowercased pattern so
// repeated selection does not recompile patterns on every request. It is
// rebuilt (not invalidated key-by-key) on every config swap, matching
// the selector decision cache's own flush-on-swap behavior.
type globCache struct {
	mu    sync.Mutex
	byPat map[string]glob.Glob
}

func newGlobCache() *globCache {
	return &globCache{byPat: make(map[string]glob.Glob)}
}

func (gc *globCache) compile(pattern string) (glob.Glob, error) {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	if g, ok := gc.byPat[pattern]; ok {
		return g, nil
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, err
	}
	gc.byPat[pattern] = g
	return g, nil
}

// cacheKey identifies a memoized (router, model) match decision. Rule
// indices are only meaningful against the snapshot that produced them,
// so the whole cache is flushed (not individually invalidated) whenever
// the config snapshot swaps.
type cacheKey struct {
	router string
	model  string
}

// Selector resolves (router, model) pairs to ordered channel-name lists.
type Selector struct {
	store *config.Store
	globs *globCache
	cache *lru.LRU[cacheKey, int] // value: matching rule index, or -1 for "no match"
	rng   *rand.Rand
	rngMu sync.Mutex
}

// New builds a Selector bound to store. It registers a reload callback on
// store that flushes the decision cache.
func New(store *config.Store) *Selector {
	s := &Selector{
		store: store,
		globs: newGlobCache(),
		cache: lru.NewLRU[cacheKey, int](cacheCapacity, nil, cacheTTL),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	store.OnReload(func(*config.Snapshot) {
		s.Flush()
	})
	return s
}

// Flush drops the entire decision cache and the compiled-glob cache.
// Called on every config swap because rule indices are snapshot-specific.
func (s *Selector) Flush() {
	s.cache.Purge()
	s.globs = newGlobCache()
}

// matchesPattern reports whether model matches pattern using
// case-insensitive exact compare first, then case-insensitive glob.
func (s *Selector) matchesPattern(pattern, model string) bool {
	if strings.EqualFold(pattern, model) {
		return true
	}
	g, err := s.globs.compile(strings.ToLower(pattern))
	if err != nil {
		return false
	}
	return g.Match(strings.ToLower(model))
}

// findRuleIndex returns the index of the first rule in router.Rules
// whose match_spec.models contains a pattern matching model, or -1.
func (s *Selector) findRuleIndex(router config.Router, model string) int {
	for i, rule := range router.Rules {
		for _, pattern := range rule.MatchSpec.Models {
			if s.matchesPattern(pattern, model) {
				return i
			}
		}
	}
	return -1
}

// Select resolves (routerName, model) to the primary channel-list,
// followed by the router's fallback chain, deduplicated by name. Returns
// an empty primary list (but possibly non-empty fallback-derived list)
// when no rule matches, per spec.md §4.1.
func (s *Selector) Select(routerName, model string) []string {
	snap := s.store.Get()
	router, ok := snap.Routers[routerName]
	if !ok {
		return nil
	}

	key := cacheKey{router: routerName, model: model}
	idx, ok := s.cache.Get(key)
	if !ok {
		idx = s.findRuleIndex(router, model)
		s.cache.Add(key, idx)
	}

	var primary []string
	if idx >= 0 {
		ch := s.pickChannel(router.Rules[idx])
		if ch != "" {
			primary = []string{ch}
		}
	}

	return dedupAppend(primary, router.FallbackChannels)
}

// pickChannel applies the rule's strategy to draw one channel name. The
// strategy decision itself is never cached: random/weighted strategies
// must re-draw per request (spec.md §4.1).
func (s *Selector) pickChannel(rule config.RouterRule) string {
	if len(rule.Channels) == 0 {
		return ""
	}
	switch rule.Strategy {
	case config.StrategyRandom:
		s.rngMu.Lock()
		idx := s.rng.Intn(len(rule.Channels))
		s.rngMu.Unlock()
		return rule.Channels[idx].Name
	case config.StrategyRoundRobin:
		return s.weightedDraw(rule.Channels)
	default: // StrategyPriority and any unrecognized value
		return rule.Channels[0].Name
	}
}

// weightedDraw performs a weighted-random draw; weight-0 entries are
// never chosen. If every weight is zero, falls back to the first entry.
func (s *Selector) weightedDraw(channels []config.WeightedChannel) string {
	var total uint64
	for _, c := range channels {
		total += uint64(c.Weight)
	}
	if total == 0 {
		return channels[0].Name
	}

	s.rngMu.Lock()
	r := uint64(s.rng.Int63n(int64(total)))
	s.rngMu.Unlock()

	var cum uint64
	for _, c := range channels {
		if c.Weight == 0 {
			continue
		}
		cum += uint64(c.Weight)
		if r < cum {
			return c.Name
		}
	}
	// unreachable given total > 0, but keep a safe fallback
	return channels[0].Name
}

func dedupAppend(primary []string, fallbacks []string) []string {
	seen := make(map[string]bool, len(primary)+len(fallbacks))
	out := make([]string, 0, len(primary)+len(fallbacks))
	for _, n := range primary {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	for _, n := range fallbacks {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// AppendFallbacks extends an existing candidate list with router's
// fallback chain, skipping names already present. Used by the request
// pipeline's fallback-escalation step (spec.md §4.6) when the caller
// wants to grow a list it already started consuming.
func AppendFallbacks(existing []string, router config.Router) []string {
	return dedupAppend(existing, router.FallbackChannels)
}
