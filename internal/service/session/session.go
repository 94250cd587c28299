package session

import (
	"MoonshotBridge/internal/ai"
	"MoonshotBridge/internal/config"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// Session история диалога одного собеседника.
type Session struct {
	ID          string
	Messages    []ai.Message // первым идёт системный промпт
	TotalTokens int          // последнее значение total_tokens от модели
}

// Dialogue возвращает историю без системного промпта.
func (s Session) Dialogue() []ai.Message {
	if len(s.Messages) > 0 && s.Messages[0].Role == ai.RoleSystem {
		return s.Messages[1:]
	}
	return s.Messages
}

func (s *Session) clone() Session {
	return Session{ID: s.ID, Messages: slices.Clone(s.Messages), TotalTokens: s.TotalTokens}
}

// Manager потокобезопасное хранилище сессий с TTL по неактивности.
// Каждое обращение к сессии продлевает её жизнь.
type Manager struct {
	mu     sync.Mutex
	cache  *expirable.LRU[string, *Session]
	store  *config.Store
	logger *zap.SugaredLogger
}

// NewManager создаёт хранилище. Размер и TTL берутся из текущего снимка конфигурации
// и фиксируются; системный промпт и лимит токенов читаются при каждом обращении.
func NewManager(store *config.Store, logger *zap.SugaredLogger) *Manager {
	cfg := store.Current()
	ttl := time.Duration(cfg.ExpiresInSeconds) * time.Second
	size := cfg.MaxSessions
	if size <= 0 {
		size = 1024
	}
	m := &Manager{store: store, logger: logger}
	m.cache = expirable.NewLRU[string, *Session](size, func(id string, _ *Session) {
		logger.Debugw("Сессия удалена из памяти", "session", id)
	}, ttl)
	return m
}

// GetOrCreate возвращает копию сессии, создавая её при отсутствии.
func (m *Manager) GetOrCreate(id string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.touch(id).clone()
}

// Query добавляет реплику пользователя и урезает историю.
func (m *Manager) Query(id, text string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.touch(id)
	s.Messages = append(s.Messages, ai.Message{Role: ai.RoleUser, Content: text})
	s.Messages = trim(s.Messages, m.store.Current().ConversationMaxTokens)
	return s.clone()
}

// Reply добавляет ответ модели, урезает историю и запоминает total_tokens.
// Если сессию успели очистить или вытеснить после Query, ответ не сохраняется
// и возвращается false.
func (m *Manager) Reply(id, text string, totalTokens int) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.cache.Get(id)
	if !ok {
		m.logger.Warnw("Сессия исчезла до ответа модели, ответ не сохранён", "session", id)
		return Session{ID: id}, false
	}
	s.Messages = append(s.Messages, ai.Message{Role: ai.RoleAssistant, Content: text})
	s.Messages = trim(s.Messages, m.store.Current().ConversationMaxTokens)
	s.TotalTokens = totalTokens
	m.cache.Add(id, s)
	return s.clone(), true
}

// Clear удаляет сессию. Отсутствующая сессия не ошибка.
func (m *Manager) Clear(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Remove(id)
}

// ClearAll удаляет все сессии.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Purge()
}

// Len число хранимых сессий.
func (m *Manager) Len() int {
	return m.cache.Len()
}

// touch должен вызываться под m.mu.
func (m *Manager) touch(id string) *Session {
	s, ok := m.cache.Get(id)
	if !ok {
		s = &Session{
			ID:       id,
			Messages: []ai.Message{{Role: ai.RoleSystem, Content: m.store.Current().CharacterDesc}},
		}
		m.logger.Debugw("Новая сессия", "session", id)
	}
	m.cache.Add(id, s)
	return s
}

// EstimateTokens грубая оценка: число символов во всех сообщениях.
func EstimateTokens(msgs []ai.Message) int {
	n := 0
	for _, msg := range msgs {
		n += utf8.RuneCountInString(msg.Content)
	}
	return n
}

// trim выкидывает самые старые реплики после системного промпта, пока оценка
// превышает maxTokens. Последний одиночный запрос пользователя сохраняется всегда.
func trim(msgs []ai.Message, maxTokens int) []ai.Message {
	for EstimateTokens(msgs) > maxTokens {
		switch {
		case len(msgs) > 2:
			msgs = slices.Delete(msgs, 1, 2)
		case len(msgs) == 2 && msgs[1].Role == ai.RoleAssistant:
			return msgs[:1]
		default:
			return msgs
		}
	}
	return msgs
}
