package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*memoryStore, *time.Time) {
	t.Helper()
	s := NewStore(Config{CleanupInterval: time.Hour}).(*memoryStore)
	now := time.Now()
	s.now = func() time.Time { return now }
	t.Cleanup(s.Close)
	return s, &now
}

func options() []Option {
	return []Option{
		{DisplayText: "草莓 (500g/盒)", Payload: "草莓 (500g/盒)"},
		{DisplayText: "有机草莓 (250g/盒)", Payload: "有机草莓 (250g/盒)"},
	}
}

func TestPendingLifecycle(t *testing.T) {
	s, _ := newTestStore(t)

	assert.Nil(t, s.GetPending("u1"))

	s.SetPending("u1", options())
	p := s.GetPending("u1")
	require.NotNil(t, p)
	assert.Len(t, p.Options, 2)

	s.ClearPending("u1")
	assert.Nil(t, s.GetPending("u1"))
}

func TestPendingReplacedNotStacked(t *testing.T) {
	s, _ := newTestStore(t)

	s.SetPending("u1", options())
	s.SetPending("u1", []Option{{DisplayText: "蜜梨", Payload: "蜜梨"}})

	p := s.GetPending("u1")
	require.NotNil(t, p)
	require.Len(t, p.Options, 1)
	assert.Equal(t, "蜜梨", p.Options[0].DisplayText)
}

func TestPendingExpiresAfterIdle(t *testing.T) {
	s, now := newTestStore(t)

	s.SetPending("u1", options())
	*now = now.Add(DefaultPendingTTL + time.Second)
	assert.Nil(t, s.GetPending("u1"))
}

func TestPendingIsolatedPerUser(t *testing.T) {
	s, _ := newTestStore(t)

	s.SetPending("u1", options())
	assert.Nil(t, s.GetPending("u2"))
	assert.NotNil(t, s.GetPending("u1"))
}

func TestLastContextSurvivesPendingChanges(t *testing.T) {
	s, _ := newTestStore(t)

	s.SetLastContext("u1", "草莓 (500g/盒)")
	s.SetPending("u1", options())
	s.ClearPending("u1")

	assert.Equal(t, "草莓 (500g/盒)", s.GetLastContext("u1").ProductKey)
}

func TestLastContextExpires(t *testing.T) {
	s, now := newTestStore(t)

	s.SetLastContext("u1", "土豆")
	*now = now.Add(DefaultContextTTL + time.Second)
	assert.Empty(t, s.GetLastContext("u1").ProductKey)
}

func TestSweepRemovesEmptyRecords(t *testing.T) {
	s, now := newTestStore(t)

	s.SetPending("u1", options())
	s.SetLastContext("u2", "土豆")
	*now = now.Add(2 * DefaultContextTTL)
	s.sweep()

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Empty(t, s.records)
}
