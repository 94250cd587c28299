package bridge

import (
	"MoonshotBridge/internal/ai"
	"MoonshotBridge/internal/config"
	"MoonshotBridge/internal/service/session"
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Служебные команды и ответы на них
const (
	CmdClearAll     = "#清除所有"
	CmdReloadConfig = "#更新配置"

	MsgMemoryCleared   = "记忆已清除"
	MsgAllCleared      = "所有人记忆已清除"
	MsgConfigReloaded  = "配置已更新"
	MsgConfigReloadErr = "配置更新失败"
)

// ContextType тип входящего сообщения.
type ContextType string

const (
	TypeText  ContextType = "TEXT"
	TypeImage ContextType = "IMAGE"
)

// Context метаданные запроса.
type Context struct {
	Type          ContextType
	SessionID     string
	ModelOverride string // если задано, заменяет модель из конфигурации
}

type ReplyKind string

const (
	KindInfo  ReplyKind = "info"
	KindText  ReplyKind = "text"
	KindError ReplyKind = "error"
)

// Reply нормализованный ответ для внешней платформы.
type Reply struct {
	Kind    ReplyKind `json:"kind"`
	Content string    `json:"content"`
}

// Sessions доступ к истории диалогов.
type Sessions interface {
	Query(id, text string) session.Session
	Reply(id, text string, totalTokens int) (session.Session, bool)
	Clear(id string)
	ClearAll()
}

// Bridge превращает запрос пользователя в ответ модели.
type Bridge struct {
	store    *config.Store
	sessions Sessions
	client   ai.Completer
	logger   *zap.SugaredLogger
}

func New(store *config.Store, sessions Sessions, client ai.Completer, logger *zap.SugaredLogger) *Bridge {
	return &Bridge{store: store, sessions: sessions, client: client, logger: logger}
}

// Handle обрабатывает один запрос. Ошибки не возвращаются, а превращаются в Reply с KindError.
func (b *Bridge) Handle(ctx context.Context, query string, qc Context) Reply {
	cfg := b.store.Current()
	var mode ai.Mode
	switch qc.Type {
	case TypeText:
		mode = ai.ModeText
	case TypeImage:
		mode = ai.ModeMultimodal
	default:
		return Reply{Kind: KindError, Content: fmt.Sprintf("Bot不支持处理%s类型的消息", qc.Type)}
	}

	switch {
	case cfg.IsClearMemoryCommand(query):
		b.sessions.Clear(qc.SessionID)
		b.logger.Infow("Память сессии очищена", "session", qc.SessionID)
		return Reply{Kind: KindInfo, Content: MsgMemoryCleared}
	case query == CmdClearAll:
		b.sessions.ClearAll()
		b.logger.Infow("Память всех сессий очищена")
		return Reply{Kind: KindInfo, Content: MsgAllCleared}
	case query == CmdReloadConfig:
		if err := b.store.Reload(); err != nil {
			b.logger.Errorw("Не удалось перечитать конфигурацию", "error", err)
			return Reply{Kind: KindError, Content: MsgConfigReloadErr}
		}
		b.logger.Infow("Конфигурация перечитана по команде")
		return Reply{Kind: KindInfo, Content: MsgConfigReloaded}
	}

	sess := b.sessions.Query(qc.SessionID, query)
	b.logger.Debugw("Запрос пользователя", "session", qc.SessionID, "type", qc.Type, "query", query)

	model := cfg.ModelName()
	if qc.ModelOverride != "" {
		model = qc.ModelOverride
	}
	ans, err := b.client.Complete(ctx, ai.CompletionRequest{
		Model:       model,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		Mode:        mode,
		Messages:    ai.Shape(mode, sess.Dialogue()),
	})
	if err != nil {
		return Reply{Kind: KindError, Content: ai.Classify(err).Message}
	}

	switch {
	case ans.CompletionTokens > 0:
		b.sessions.Reply(qc.SessionID, ans.Content, ans.TotalTokens)
		return Reply{Kind: KindText, Content: ans.Content}
	case ans.Content != "":
		return Reply{Kind: KindError, Content: ans.Content}
	default:
		b.logger.Errorw("Модель вернула пустой ответ", "session", qc.SessionID, "model", model)
		return Reply{Kind: KindError, Content: ai.MsgTired}
	}
}
