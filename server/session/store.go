package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultPendingTTL 待决澄清的闲置过期时间
	DefaultPendingTTL = 5 * time.Minute
	// DefaultContextTTL 实体上下文的存活窗口
	DefaultContextTTL = 60 * time.Minute
	// DefaultCleanupInterval 过期清理循环间隔
	DefaultCleanupInterval = time.Minute
)

// record 单用户会话记录，小而定形
type record struct {
	pending     *PendingClarification
	lastContext LastContext
}

// Config configures the in-memory session store.
type Config struct {
	PendingTTL      time.Duration
	ContextTTL      time.Duration
	CleanupInterval time.Duration
	Logger          *slog.Logger
}

// memoryStore is the in-memory Service implementation. A single map
// mutex guards the records; it is never held across I/O.
type memoryStore struct {
	mu      sync.Mutex
	records map[string]*record

	pendingTTL time.Duration
	contextTTL time.Duration
	interval   time.Duration
	logger     *slog.Logger

	now func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStore creates the store and starts the expiry loop.
func NewStore(cfg Config) Service {
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = DefaultPendingTTL
	}
	if cfg.ContextTTL <= 0 {
		cfg.ContextTTL = DefaultContextTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &memoryStore{
		records:    make(map[string]*record),
		pendingTTL: cfg.PendingTTL,
		contextTTL: cfg.ContextTTL,
		interval:   cfg.CleanupInterval,
		logger:     cfg.Logger,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
	}
	s.wg.Add(1)
	go s.cleanupLoop()
	return s
}

func (s *memoryStore) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *memoryStore) GetPending(userID string) *PendingClarification {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[userID]
	if !ok || r.pending == nil {
		return nil
	}
	if s.now().After(r.pending.ExpiresAt) {
		r.pending = nil
		return nil
	}
	return r.pending
}

func (s *memoryStore) SetPending(userID string, options []Option) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.record(userID)
	r.pending = &PendingClarification{
		Options:   options,
		CreatedAt: now,
		ExpiresAt: now.Add(s.pendingTTL),
	}
}

func (s *memoryStore) ClearPending(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.records[userID]; ok {
		r.pending = nil
	}
}

func (s *memoryStore) GetLastContext(userID string) LastContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[userID]
	if !ok || r.lastContext.ProductKey == "" {
		return LastContext{}
	}
	if s.now().Sub(r.lastContext.UpdatedAt) > s.contextTTL {
		r.lastContext = LastContext{}
		return LastContext{}
	}
	return r.lastContext
}

func (s *memoryStore) SetLastContext(userID string, productKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.record(userID)
	r.lastContext = LastContext{ProductKey: productKey, UpdatedAt: s.now()}
}

// record returns the user's record, creating it when absent. Caller
// holds the lock.
func (s *memoryStore) record(userID string) *record {
	r, ok := s.records[userID]
	if !ok {
		r = &record{}
		s.records[userID] = r
	}
	return r
}

// cleanupLoop drops expired pending entries and stale records so the
// map does not grow with every user ever seen.
func (s *memoryStore) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *memoryStore) sweep() {
	now := s.now()
	s.mu.Lock()
	removed := 0
	for userID, r := range s.records {
		if r.pending != nil && now.After(r.pending.ExpiresAt) {
			r.pending = nil
		}
		if r.lastContext.ProductKey != "" && now.Sub(r.lastContext.UpdatedAt) > s.contextTTL {
			r.lastContext = LastContext{}
		}
		if r.pending == nil && r.lastContext.ProductKey == "" {
			delete(s.records, userID)
			removed++
		}
	}
	s.mu.Unlock()
	if removed > 0 {
		s.logger.Debug("会话清理完成", "removed", removed)
	}
}
