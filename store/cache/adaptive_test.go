package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests move cache time without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T) (*Manager, *fakeClock) {
	t.Helper()
	m := NewManager(Config{MaintenanceInterval: time.Hour})
	clock := &fakeClock{now: time.Now()}
	m.now = clock.Now
	t.Cleanup(m.Close)
	return m, clock
}

func TestPutGetRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	key := Key(QueryTypeProduct, "草莓卖不", "")
	m.Put(ctx, key, []byte("有的"), QueryTypeProduct)

	got, hit := m.Get(ctx, key, QueryTypeProduct)
	require.True(t, hit)
	assert.Equal(t, []byte("有的"), got)
}

func TestExpiryAfterTTL(t *testing.T) {
	m, clock := newTestManager(t)
	ctx := context.Background()

	key := Key(QueryTypeChat, "闲聊", "")
	m.Put(ctx, key, []byte("回答"), QueryTypeChat)

	// chat 冷门档 TTL 是 6h
	clock.Advance(6*time.Hour + time.Minute)
	_, hit := m.Get(ctx, key, QueryTypeChat)
	assert.False(t, hit)
}

func TestFrequencyEscalatesTTL(t *testing.T) {
	m, clock := newTestManager(t)
	ctx := context.Background()

	key := Key(QueryTypePolicy, "怎么付款", "")
	m.Put(ctx, key, []byte("用venmo"), QueryTypePolicy)

	for i := 0; i < 150; i++ {
		_, hit := m.Get(ctx, key, QueryTypePolicy)
		require.True(t, hit)
	}

	// 超过热门档后 TTL 至少 7 天
	clock.Advance(6 * 24 * time.Hour)
	_, hit := m.Get(ctx, key, QueryTypePolicy)
	assert.True(t, hit, "hot entry must outlive its base TTL")
}

func TestRareEntryGetsShortTTL(t *testing.T) {
	assert.Equal(t, rareTTL, ttlFor(QueryTypePolicy, 1))
	assert.Equal(t, baseTTL[QueryTypePolicy], ttlFor(QueryTypePolicy, 11))
	assert.Equal(t, hotTTL, ttlFor(QueryTypeChat, 101))
	// 基础档已超过热门档时保留基础档
	assert.GreaterOrEqual(t, ttlFor(QueryTypePolicy, 101), hotTTL)
}

func TestInvalidate(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	key := Key(QueryTypePolicy, "取货地址", "")
	m.Put(ctx, key, []byte("明德路88号"), QueryTypePolicy)
	m.Invalidate(ctx, key)

	_, hit := m.Get(ctx, key, QueryTypePolicy)
	assert.False(t, hit)
}

func TestSweepExpired(t *testing.T) {
	m, clock := newTestManager(t)
	ctx := context.Background()

	for _, q := range []string{"a", "b", "c"} {
		m.Put(ctx, Key(QueryTypeChat, q, ""), []byte(q), QueryTypeChat)
	}
	clock.Advance(7 * time.Hour)
	m.sweepExpired()

	assert.Equal(t, int64(0), m.Snapshot().Entries)
}

func TestSweepExtendsGrownEntries(t *testing.T) {
	m, clock := newTestManager(t)
	ctx := context.Background()

	key := Key(QueryTypeChat, "热门问题", "")
	m.Put(ctx, key, []byte("回答"), QueryTypeChat)

	// 频次越过热门档但写入后再没被读到，到期时刻还停在冷门档
	s := m.shardFor(key)
	s.mu.Lock()
	s.entries[key].frequency = hotFrequency + 1
	s.mu.Unlock()

	m.sweepExpired()

	// 冷门档 6h 早已过去，热门档续期必须让条目活着
	clock.Advance(7 * time.Hour)
	_, hit := m.Get(ctx, key, QueryTypeChat)
	assert.True(t, hit, "maintenance must recompute TTL for entries whose frequency has grown")
}

func TestSnapshotStats(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	key := Key(QueryTypeProduct, "土豆", "")
	m.Put(ctx, key, []byte("3元/斤"), QueryTypeProduct)
	m.Get(ctx, key, QueryTypeProduct)
	m.Get(ctx, Key(QueryTypeChat, "没有的键", ""), QueryTypeChat)

	st := m.Snapshot()
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
	assert.InDelta(t, 0.5, st.HitRate, 1e-9)
	assert.Equal(t, int64(1), st.Entries)
	require.NotEmpty(t, st.HotKeys)
	assert.Equal(t, key, st.HotKeys[0].Key)
}

func TestPreheatFillsList(t *testing.T) {
	m := NewManager(Config{
		MaintenanceInterval: time.Hour,
		Preheat: []PreheatQuery{
			{Query: "怎么付款", Type: QueryTypePolicy},
			{Query: "配送时间", Type: QueryTypePolicy},
		},
	})
	t.Cleanup(m.Close)

	m.SetPreheatLoader(func(_ context.Context, q PreheatQuery) ([]byte, error) {
		return []byte("预热:" + q.Query), nil
	})
	m.runPreheat()

	got, hit := m.Get(context.Background(), Key(QueryTypePolicy, "怎么付款", ""), QueryTypePolicy)
	require.True(t, hit)
	assert.Equal(t, []byte("预热:怎么付款"), got)
}

// fakeBackend stands in for Redis in L2 tests.
type fakeBackend struct {
	mu   sync.Mutex
	data map[string][]byte
	down bool
}

func (f *fakeBackend) Get(_ context.Context, key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, false
	}
	v, ok := f.data[key]
	return v, ok
}

func (f *fakeBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return
	}
	f.data[key] = value
}

func (f *fakeBackend) Delete(_ context.Context, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
}

func (f *fakeBackend) Close() error { return nil }

func TestL2FallthroughAndDegradation(t *testing.T) {
	backend := &fakeBackend{data: map[string][]byte{}}
	m := NewManager(Config{MaintenanceInterval: time.Hour, L2: backend})
	t.Cleanup(m.Close)
	ctx := context.Background()

	key := Key(QueryTypePolicy, "运费多少", "")
	backend.data[key] = []byte("每单5元")

	got, hit := m.Get(ctx, key, QueryTypePolicy)
	require.True(t, hit, "local miss must fall through to L2")
	assert.Equal(t, []byte("每单5元"), got)

	// L2 故障时照常使用本地
	backend.down = true
	got, hit = m.Get(ctx, key, QueryTypePolicy)
	require.True(t, hit, "entry promoted to local must survive L2 outage")
	assert.Equal(t, []byte("每单5元"), got)
}
