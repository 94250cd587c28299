package session

import (
	"MoonshotBridge/internal/ai"
	"MoonshotBridge/internal/config"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newManager(t *testing.T, mutate func(*config.Config)) *Manager {
	t.Helper()
	cfg := config.Defaults()
	cfg.CharacterDesc = "sys"
	if mutate != nil {
		mutate(cfg)
	}
	return NewManager(config.NewStaticStore(cfg), zap.NewNop().Sugar())
}

func TestGetOrCreate(t *testing.T) {
	m := newManager(t, nil)
	s := m.GetOrCreate("a")
	assert.Equal(t, "a", s.ID)
	assert.Equal(t, []ai.Message{{Role: ai.RoleSystem, Content: "sys"}}, s.Messages)
	assert.Empty(t, s.Dialogue())
	assert.Equal(t, 1, m.Len())
}

func TestQueryAndReply(t *testing.T) {
	m := newManager(t, nil)
	m.Query("a", "hi")
	s, ok := m.Reply("a", "hello", 42)
	require.True(t, ok)

	assert.Equal(t, []ai.Message{
		{Role: ai.RoleUser, Content: "hi"},
		{Role: ai.RoleAssistant, Content: "hello"},
	}, s.Dialogue())
	assert.Equal(t, 42, s.TotalTokens)

	// копия не связана с хранилищем
	s.Messages[1].Content = "changed"
	assert.Equal(t, "hi", m.GetOrCreate("a").Messages[1].Content)
}

func TestClearIsIdempotent(t *testing.T) {
	m := newManager(t, nil)
	m.Query("a", "hi")
	m.Query("b", "hi")

	m.Clear("a")
	m.Clear("a")
	m.Clear("missing")
	assert.Equal(t, 1, m.Len())
	assert.Len(t, m.GetOrCreate("a").Messages, 1)

	m.ClearAll()
	m.ClearAll()
	assert.Equal(t, 0, m.Len())
}

func TestTrimDropsOldestAfterSystem(t *testing.T) {
	m := newManager(t, func(c *config.Config) { c.ConversationMaxTokens = 10 })
	m.Query("a", "12345")
	m.Reply("a", "1234", 0)
	s := m.Query("a", "123")

	// после ответа 3+5+4 > 10, поэтому 12345 выкинут; 3+4+3 = 10 укладывается в лимит
	assert.Equal(t, []ai.Message{
		{Role: ai.RoleSystem, Content: "sys"},
		{Role: ai.RoleAssistant, Content: "1234"},
		{Role: ai.RoleUser, Content: "123"},
	}, s.Messages)
}

func TestTrimKeepsOversizedQuery(t *testing.T) {
	m := newManager(t, func(c *config.Config) { c.ConversationMaxTokens = 5 })
	long := strings.Repeat("字", 20)
	s := m.Query("a", long)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, long, s.Messages[1].Content)
}

func TestTrimDropsLoneAssistant(t *testing.T) {
	msgs := []ai.Message{
		{Role: ai.RoleSystem, Content: "sys"},
		{Role: ai.RoleAssistant, Content: strings.Repeat("a", 10)},
	}
	assert.Equal(t, msgs[:1], trim(msgs, 5))
}

func TestEstimateTokensCountsRunes(t *testing.T) {
	assert.Equal(t, 5, EstimateTokens([]ai.Message{{Content: "你好"}, {Content: "abc"}}))
}

func TestSessionExpires(t *testing.T) {
	m := newManager(t, func(c *config.Config) { c.ExpiresInSeconds = 1 })
	m.Query("a", "hi")
	assert.Eventually(t, func() bool { return m.Len() == 0 }, 5*time.Second, 100*time.Millisecond)
	assert.Len(t, m.GetOrCreate("a").Messages, 1)
}

func TestReplySkipsMissingSession(t *testing.T) {
	m := newManager(t, nil)
	_, ok := m.Reply("gone", "hello", 7)
	assert.False(t, ok)
	assert.Zero(t, m.Len())

	m.Query("a", "hi")
	m.Clear("a")
	_, ok = m.Reply("a", "hello", 7)
	assert.False(t, ok)
	assert.Empty(t, m.GetOrCreate("a").Dialogue())
}

func TestReplyAfterEvictionKeepsNoOrphanAnswer(t *testing.T) {
	m := newManager(t, func(c *config.Config) { c.MaxSessions = 1 })
	m.Query("a", "question")
	m.Query("b", "other")

	_, ok := m.Reply("a", "answer", 5)
	assert.False(t, ok)
	assert.Empty(t, m.GetOrCreate("a").Dialogue())
}
