package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"bridge-backend/internal/config"
	"bridge-backend/internal/metrics"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/singleflight"
)

// Query names used in cache keys, refresh tasks and push messages
const (
	QueryDepositHashes        = "deposit_hashes"
	QueryDeposits             = "deposits"
	QueryWithdrawHashes       = "withdraw_hashes"
	QueryWithdraws            = "withdraws"
	QueryPeerDepositHashes    = "peer_deposit_hashes"
	QueryXChainApprovals      = "xchain_approvals"
	QueryXChainWithdrawHashes = "xchain_withdraw_hashes"
	QueryCanApprove           = "can_approve"
	QueryExecutionDelay       = "execution_delay"
	QueryBlockTime            = "block_time"
	QueryTokenMeta            = "token_meta"
	QueryRegistry             = "registry"

	// view-level queries driven by the refresh scheduler
	QueryDepositView  = "deposit_view"
	QueryWithdrawView = "withdraw_view"
)

// QueryKey identifies one cached read: chain, contract and query parameters
type QueryKey struct {
	ChainID  uint64
	Contract common.Address
	Query    string
	Param    string
}

func (k QueryKey) String() string {
	return fmt.Sprintf("%d/%s/%s/%s", k.ChainID, strings.ToLower(k.Contract.Hex()), k.Query, k.Param)
}

type cacheEntry struct {
	value    interface{}
	storedAt time.Time
}

// ViewCache last-value-wins cache of read results. Values are replaced whole.
// Every key carries a generation; Invalidate moves it forward so a fill that
// started earlier cannot store its (stale) result. Generations come from one
// increasing sequence, so a key pruned by Sweep never reuses an old value.
type ViewCache struct {
	mu         sync.Mutex
	entries    map[QueryKey]cacheEntry
	gens       map[QueryKey]uint64
	inflight   map[QueryKey]int
	seq        uint64 // last generation handed out
	floor      uint64 // generation of keys without tracked state
	lastSweep  time.Time
	ttls       map[string]time.Duration
	defaultTTL time.Duration
	group      singleflight.Group
	now        func() time.Time
}

// NewViewCache ttls maps query name to freshness window. Expired entries are
// swept at most once per defaultTTL.
func NewViewCache(ttls map[string]time.Duration, defaultTTL time.Duration) *ViewCache {
	if defaultTTL <= 0 {
		defaultTTL = 30 * time.Second
	}
	return &ViewCache{
		entries:    make(map[QueryKey]cacheEntry),
		gens:       make(map[QueryKey]uint64),
		inflight:   make(map[QueryKey]int),
		ttls:       ttls,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// TTLsFromConfig maps the refresh schedule onto query names
func TTLsFromConfig(r config.RefreshConfig) map[string]time.Duration {
	return map[string]time.Duration{
		QueryDepositHashes:        r.Deposits.Duration,
		QueryDeposits:             r.Deposits.Duration,
		QueryWithdrawHashes:       r.Withdraws.Duration,
		QueryWithdraws:            r.Withdraws.Duration,
		QueryWithdrawView:         r.Withdraws.Duration,
		QueryPeerDepositHashes:    r.Withdraws.Duration,
		QueryXChainApprovals:      r.XChainApprovals.Duration,
		QueryXChainWithdrawHashes: r.XChainWithdrawHashes.Duration,
		QueryCanApprove:           r.CanApprove.Duration,
		QueryExecutionDelay:       r.ExecutionDelay.Duration,
		QueryBlockTime:            r.BlockTime.Duration,
		QueryTokenMeta:            r.TokenMeta.Duration,
		QueryRegistry:             r.Registry.Duration,
	}
}

// TTL freshness window for a query name
func (c *ViewCache) TTL(query string) time.Duration {
	if ttl, ok := c.ttls[query]; ok && ttl > 0 {
		return ttl
	}
	return c.defaultTTL
}

// Get returns a fresh value for key. An expired entry is dropped.
func (c *ViewCache) Get(key QueryKey) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.expired(key, e, c.now()) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *ViewCache) expired(key QueryKey, e cacheEntry, now time.Time) bool {
	return now.Sub(e.storedAt) >= c.TTL(key.Query)
}

// Generation current generation of key
func (c *ViewCache) Generation(key QueryKey) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generationLocked(key)
}

func (c *ViewCache) generationLocked(key QueryKey) uint64 {
	if gen, ok := c.gens[key]; ok {
		return gen
	}
	return c.floor
}

// Put stores value if gen is still the key's generation. Returns false when
// the key was invalidated after gen was taken.
func (c *ViewCache) Put(key QueryKey, value interface{}, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generationLocked(key) != gen {
		return false
	}
	now := c.now()
	c.gens[key] = gen
	c.entries[key] = cacheEntry{value: value, storedAt: now}
	if now.Sub(c.lastSweep) >= c.defaultTTL {
		c.sweepLocked(now)
	}
	return true
}

// Invalidate drops keys and discards fills in flight for them
func (c *ViewCache) Invalidate(keys ...QueryKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	for _, k := range keys {
		c.gens[k] = c.seq
		delete(c.entries, k)
	}
}

// InvalidateMatching drops every known key for which match returns true.
// Returns the number of keys invalidated.
func (c *ViewCache) InvalidateMatching(match func(QueryKey) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	matched := make(map[QueryKey]struct{})
	for k := range c.gens {
		if match(k) {
			matched[k] = struct{}{}
		}
	}
	for k := range c.entries {
		if match(k) {
			matched[k] = struct{}{}
		}
	}
	c.seq++
	for k := range matched {
		c.gens[k] = c.seq
		delete(c.entries, k)
	}
	return len(matched)
}

// Sweep drops expired entries and forgets keys with neither an entry nor a
// fill in flight. Returns the number of entries dropped.
func (c *ViewCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(c.now())
}

func (c *ViewCache) sweepLocked(now time.Time) int {
	removed := 0
	for k, e := range c.entries {
		if c.expired(k, e, now) {
			delete(c.entries, k)
			removed++
		}
	}
	pruned := false
	for k := range c.gens {
		if _, live := c.entries[k]; live || c.inflight[k] > 0 {
			continue
		}
		delete(c.gens, k)
		pruned = true
	}
	if pruned {
		// forgotten keys report a generation no earlier holder can have
		// unless nothing was invalidated since
		c.floor = c.seq
	}
	c.lastSweep = now
	return removed
}

// Len number of stored entries and of keys with tracked generations
func (c *ViewCache) Len() (entries, keys int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries), len(c.gens)
}

func (c *ViewCache) track(key QueryKey) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	gen := c.generationLocked(key)
	c.gens[key] = gen // register the key so chain-wide invalidation sees it
	c.inflight[key]++
	return gen
}

func (c *ViewCache) untrack(key QueryKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight[key]--; c.inflight[key] <= 0 {
		delete(c.inflight, key)
	}
}

// InvalidateChain drops every key of chainID
func (c *ViewCache) InvalidateChain(chainID uint64) int {
	return c.InvalidateMatching(func(k QueryKey) bool { return k.ChainID == chainID })
}

// Load returns the cached value for key or runs fill once across concurrent
// callers. The fill runs detached from the caller's cancellation; its result is
// stored only if the key was not invalidated meanwhile.
func (c *ViewCache) Load(ctx context.Context, key QueryKey, fill func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if v, ok := c.Get(key); ok {
		metrics.CacheHits.WithLabelValues(key.Query).Inc()
		return v, nil
	}
	metrics.CacheMisses.WithLabelValues(key.Query).Inc()

	gen := c.track(key)

	flight := fmt.Sprintf("%s#%d", key, gen)
	ch := c.group.DoChan(flight, func() (interface{}, error) {
		start := time.Now()
		v, err := fill(context.WithoutCancel(ctx))
		metrics.RefreshDuration.WithLabelValues(key.Query).Observe(time.Since(start).Seconds())
		if err != nil {
			return nil, err
		}
		c.Put(key, v, gen)
		return v, nil
	})

	select {
	case res := <-ch:
		c.untrack(key)
		return res.Val, res.Err
	case <-ctx.Done():
		go func() {
			<-ch
			c.untrack(key)
		}()
		return nil, ctx.Err()
	}
}

// Refresh recomputes key regardless of freshness and stores the result
func (c *ViewCache) Refresh(ctx context.Context, key QueryKey, fill func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	gen := c.track(key)
	defer c.untrack(key)
	start := time.Now()
	v, err := fill(ctx)
	metrics.RefreshDuration.WithLabelValues(key.Query).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	c.Put(key, v, gen)
	return v, nil
}

// cached typed wrapper around ViewCache.Load
func cached[T any](ctx context.Context, c *ViewCache, key QueryKey, fill func(ctx context.Context) (T, error)) (T, error) {
	v, err := c.Load(ctx, key, func(ctx context.Context) (interface{}, error) {
		return fill(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache %s: unexpected value type %T", key, v)
	}
	return typed, nil
}
