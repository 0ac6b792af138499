// Package cache implements the adaptive query cache fronting the whole
// engine. TTL is not fixed: each entry carries a per-type base TTL that
// is boosted as its access frequency crosses hot thresholds. A background
// maintenance loop evicts expired entries in bounded batches and keeps a
// preheat list warm. An optional Redis L2 backs the local shards for
// multi-instance deployments; its unavailability degrades transparently
// to local-only.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// QueryType 缓存键的查询类型标签，决定基础 TTL
type QueryType string

const (
	QueryTypePolicy  QueryType = "policy"  // 政策类，变化最少，TTL 最长
	QueryTypeProduct QueryType = "product" // 商品类
	QueryTypeChat    QueryType = "chat"    // 闲聊/生成式回答
)

// TTL 档位
// 频次 >100 升到热门档，>10 保持基础档，其余压到冷门档
const (
	hotFrequency  = 100
	warmFrequency = 10

	hotTTL  = 7 * 24 * time.Hour
	rareTTL = 6 * time.Hour
)

var baseTTL = map[QueryType]time.Duration{
	QueryTypePolicy:  48 * time.Hour,
	QueryTypeProduct: 12 * time.Hour,
	QueryTypeChat:    8 * time.Hour,
}

// PreheatQuery is one known-common query kept warm by maintenance.
type PreheatQuery struct {
	Query string
	Type  QueryType
}

// PreheatLoader computes the payload for a preheat query on demand.
type PreheatLoader func(ctx context.Context, q PreheatQuery) ([]byte, error)

// Config configures the adaptive cache manager.
type Config struct {
	Shards              int           // 分片数（默认 16）
	MaintenanceInterval time.Duration // 维护循环间隔（默认 1m）
	SweepBatch          int           // 单批清理上限（默认 256）
	Preheat             []PreheatQuery
	L2                  Backend // 可选共享后端，nil 表示仅本地
	Logger              *slog.Logger
}

// Backend is the optional shared L2 store. Implementations must treat
// backend failure as a miss/no-op, never as a request failure.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Close() error
}

type cacheEntry struct {
	value      []byte
	queryType  QueryType
	expiresAt  time.Time
	frequency  int64
	lastAccess time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

// Manager 自适应缓存管理器
type Manager struct {
	shards []*shard
	l2     Backend
	logger *slog.Logger

	preheat []PreheatQuery
	loader  PreheatLoader
	loaderM sync.RWMutex

	interval   time.Duration
	sweepBatch int

	statMu sync.Mutex
	stats  counters

	now func() time.Time // injectable clock for tests

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type counters struct {
	hits, misses int64
	byType       map[QueryType]int64
}

// NewManager constructs the manager and starts the maintenance loop.
func NewManager(cfg Config) *Manager {
	if cfg.Shards <= 0 {
		cfg.Shards = 16
	}
	if cfg.MaintenanceInterval <= 0 {
		cfg.MaintenanceInterval = time.Minute
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		shards:     make([]*shard, cfg.Shards),
		l2:         cfg.L2,
		logger:     cfg.Logger,
		preheat:    cfg.Preheat,
		interval:   cfg.MaintenanceInterval,
		sweepBatch: cfg.SweepBatch,
		stats:      counters{byType: make(map[QueryType]int64)},
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
	}
	for i := range m.shards {
		m.shards[i] = &shard{entries: make(map[string]*cacheEntry)}
	}

	m.wg.Add(1)
	go m.maintenanceLoop()
	return m
}

// Close stops maintenance and the L2 backend.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
	if m.l2 != nil {
		if err := m.l2.Close(); err != nil {
			m.logger.Warn("缓存 L2 关闭失败", "error", err)
		}
	}
}

// SetPreheatLoader installs the function maintenance uses to fill the
// preheat list. Installed after construction because the loader usually
// closes over components built later than the cache.
func (m *Manager) SetPreheatLoader(loader PreheatLoader) {
	m.loaderM.Lock()
	m.loader = loader
	m.loaderM.Unlock()
}

// Key derives the composite cache key from a normalized query, an
// optional context token and the query type tag.
func Key(queryType QueryType, normalized, contextToken string) string {
	h := sha256.Sum256([]byte(normalized + "|" + contextToken))
	return string(queryType) + ":" + hex.EncodeToString(h[:6])
}

// Get returns the cached payload, bumping frequency and extending TTL
// when the entry crosses a hot threshold. A local miss falls through to
// the L2 backend when one is configured.
func (m *Manager) Get(ctx context.Context, key string, queryType QueryType) ([]byte, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	e, ok := s.entries[key]
	if ok && m.now().Before(e.expiresAt) {
		e.frequency++
		e.lastAccess = m.now()
		// 频次跨档时就地续期，维护循环只兜底
		if ttl := ttlFor(e.queryType, e.frequency); m.now().Add(ttl).After(e.expiresAt) {
			e.expiresAt = m.now().Add(ttl)
		}
		value := e.value
		s.mu.Unlock()
		m.record(queryType, true)
		return value, true
	}
	if ok {
		delete(s.entries, key)
	}
	s.mu.Unlock()

	if m.l2 != nil {
		if value, hit := m.l2.Get(ctx, key); hit {
			m.storeLocal(key, value, queryType, 1)
			m.record(queryType, true)
			return value, true
		}
	}
	m.record(queryType, false)
	return nil, false
}

// Put stores a payload under its query type's adaptive TTL.
func (m *Manager) Put(ctx context.Context, key string, value []byte, queryType QueryType) {
	m.storeLocal(key, value, queryType, 1)
	if m.l2 != nil {
		m.l2.Set(ctx, key, value, ttlFor(queryType, 1))
	}
}

// Invalidate drops one key from both levels, used when underlying data
// changes out from under a cached answer.
func (m *Manager) Invalidate(ctx context.Context, key string) {
	s := m.shardFor(key)
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	if m.l2 != nil {
		m.l2.Delete(ctx, key)
	}
}

func (m *Manager) storeLocal(key string, value []byte, queryType QueryType, freq int64) {
	s := m.shardFor(key)
	s.mu.Lock()
	if prev, ok := s.entries[key]; ok && prev.frequency > freq {
		freq = prev.frequency
	}
	s.entries[key] = &cacheEntry{
		value:      value,
		queryType:  queryType,
		expiresAt:  m.now().Add(ttlFor(queryType, freq)),
		frequency:  freq,
		lastAccess: m.now(),
	}
	s.mu.Unlock()
}

// ttlFor 按类型基础档和频次档位计算 TTL
func ttlFor(queryType QueryType, frequency int64) time.Duration {
	base, ok := baseTTL[queryType]
	if !ok {
		base = baseTTL[QueryTypeChat]
	}
	switch {
	case frequency > hotFrequency:
		if base > hotTTL {
			return base
		}
		return hotTTL
	case frequency > warmFrequency:
		return base
	default:
		if base < rareTTL {
			return base
		}
		return rareTTL
	}
}

func (m *Manager) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return m.shards[h.Sum32()%uint32(len(m.shards))]
}

func (m *Manager) record(queryType QueryType, hit bool) {
	m.statMu.Lock()
	if hit {
		m.stats.hits++
	} else {
		m.stats.misses++
	}
	m.stats.byType[queryType]++
	m.statMu.Unlock()
}

// maintenanceLoop runs eviction sweeps and preheating until Close.
func (m *Manager) maintenanceLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// 启动后先预热一轮，保证首个用户不踩慢路径
	m.runPreheat()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.sweepExpired()
			m.runPreheat()
		}
	}
}

// sweepExpired evicts expired entries shard by shard and recomputes the
// deadline of live entries whose frequency has outgrown it. Expired keys
// are collected under the shard lock but deleted in bounded batches so a
// sweep never holds a lock across the whole table.
func (m *Manager) sweepExpired() {
	now := m.now()
	evicted, extended := 0, 0
	for _, s := range m.shards {
		s.mu.Lock()
		var expired []string
		for key, e := range s.entries {
			if now.After(e.expiresAt) {
				expired = append(expired, key)
				if len(expired) >= m.sweepBatch {
					break
				}
				continue
			}
			// 续期锚定在最后访问时刻，频次没涨就是空操作
			if cand := e.lastAccess.Add(ttlFor(e.queryType, e.frequency)); cand.After(e.expiresAt) {
				e.expiresAt = cand
				extended++
			}
		}
		for _, key := range expired {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		evicted += len(expired)
	}
	if evicted > 0 || extended > 0 {
		m.logger.Debug("缓存清理完成", "evicted", evicted, "extended", extended)
	}
}

// runPreheat refreshes the preheat list through the installed loader.
func (m *Manager) runPreheat() {
	m.loaderM.RLock()
	loader := m.loader
	m.loaderM.RUnlock()
	if loader == nil || len(m.preheat) == 0 {
		return
	}

	g, ctx := errgroup.WithContext(m.ctx)
	g.SetLimit(4)
	for _, q := range m.preheat {
		q := q
		key := Key(q.Type, q.Query, "")
		if _, hit := m.peek(key); hit {
			continue
		}
		g.Go(func() error {
			value, err := loader(ctx, q)
			if err != nil || value == nil {
				return nil // 预热失败不致命，下一轮重试
			}
			m.storeLocal(key, value, q.Type, warmFrequency+1)
			return nil
		})
	}
	_ = g.Wait()
}

// peek checks liveness without touching frequency.
func (m *Manager) peek(key string) ([]byte, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || m.now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// HotKey is one entry of the hot-key list in Stats.
type HotKey struct {
	Key       string `json:"key"`
	Frequency int64  `json:"frequency"`
}

// Stats is the operational snapshot served by the stats endpoint.
type Stats struct {
	Entries int64               `json:"entries"`
	Hits    int64               `json:"hits"`
	Misses  int64               `json:"misses"`
	HitRate float64             `json:"hit_rate"`
	ByType  map[QueryType]int64 `json:"by_type"`
	HotKeys []HotKey            `json:"hot_keys"`
	L2      bool                `json:"l2_enabled"`
}

// Snapshot gathers current statistics.
func (m *Manager) Snapshot() Stats {
	m.statMu.Lock()
	st := Stats{
		Hits:   m.stats.hits,
		Misses: m.stats.misses,
		ByType: make(map[QueryType]int64, len(m.stats.byType)),
		L2:     m.l2 != nil,
	}
	for k, v := range m.stats.byType {
		st.ByType[k] = v
	}
	m.statMu.Unlock()

	var hot []HotKey
	now := m.now()
	for _, s := range m.shards {
		s.mu.Lock()
		for key, e := range s.entries {
			if now.After(e.expiresAt) {
				continue
			}
			st.Entries++
			hot = append(hot, HotKey{Key: key, Frequency: e.frequency})
		}
		s.mu.Unlock()
	}
	sort.Slice(hot, func(i, j int) bool {
		if hot[i].Frequency != hot[j].Frequency {
			return hot[i].Frequency > hot[j].Frequency
		}
		return hot[i].Key < hot[j].Key
	})
	if len(hot) > 10 {
		hot = hot[:10]
	}
	st.HotKeys = hot

	if total := st.Hits + st.Misses; total > 0 {
		st.HitRate = float64(st.Hits) / float64(total)
	}
	return st
}
