package twitch

import (
	"MoonshotBridge/internal/app/bridge"
	"MoonshotBridge/internal/config"
	"context"
	"strings"
	"sync"
	"time"

	twitchirc "github.com/gempir/go-twitch-irc/v4"
	"go.uber.org/zap"
)

const spamWindow = 5 * time.Second

// Handler обработчик запросов пользователя.
type Handler interface {
	Handle(ctx context.Context, query string, qc bridge.Context) bridge.Reply
}

// Adapter превращает обращения к боту в чате Twitch в запросы к бриджу.
type Adapter struct {
	cfg     config.TwitchConfig
	handler Handler
	logger  *zap.SugaredLogger

	mu         sync.Mutex
	lastByUser map[string]lastMsg
}

type lastMsg struct {
	text string
	at   time.Time
}

func New(cfg config.TwitchConfig, h Handler, logger *zap.SugaredLogger) *Adapter {
	cfg.Username = strings.ToLower(strings.TrimSpace(cfg.Username))
	cfg.OAuth = strings.TrimSpace(cfg.OAuth)
	cfg.Channel = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(cfg.Channel), "#"))
	if cfg.Trigger == "" {
		cfg.Trigger = "!ask"
	}
	if cfg.OAuth != "" && !strings.HasPrefix(cfg.OAuth, "oauth:") {
		cfg.OAuth = "oauth:" + cfg.OAuth
	}
	return &Adapter{cfg: cfg, handler: h, logger: logger, lastByUser: map[string]lastMsg{}}
}

// Configured сообщает, заданы ли логин, токен и канал.
func (a *Adapter) Configured() bool {
	return a.cfg.Username != "" && a.cfg.OAuth != "" && a.cfg.Channel != ""
}

// SessionID ключ сессии собеседника в канале.
func SessionID(channel, user string) string {
	return "twitch:" + channel + ":" + strings.ToLower(user)
}

// Decorate добавляет к ответу префикс по его типу.
func Decorate(r bridge.Reply) string {
	switch r.Kind {
	case bridge.KindInfo:
		return "[INFO] " + r.Content
	case bridge.KindError:
		return "[ERROR] " + r.Content
	default:
		return r.Content
	}
}

// Respond обрабатывает одно сообщение чата. Возвращает false, если сообщение не адресовано боту.
func (a *Adapter) Respond(ctx context.Context, user, text string) (string, bool) {
	user = strings.TrimSpace(user)
	text = strings.TrimSpace(text)
	if user == "" || !strings.HasPrefix(text, a.cfg.Trigger) {
		return "", false
	}
	query := strings.TrimSpace(strings.TrimPrefix(text, a.cfg.Trigger))
	if query == "" || a.isSpam(user, query) {
		return "", false
	}

	reply := a.handler.Handle(ctx, query, bridge.Context{
		Type:      bridge.TypeText,
		SessionID: SessionID(a.cfg.Channel, user),
	})
	return "@" + user + " " + Decorate(reply), true
}

// isSpam отбрасывает одинаковый текст от того же пользователя в течение окна.
func (a *Adapter) isSpam(user, text string) bool {
	now := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	if lm, ok := a.lastByUser[user]; ok && lm.text == text && now.Sub(lm.at) <= spamWindow {
		return true
	}
	a.lastByUser[user] = lastMsg{text: text, at: now}
	return false
}

// Run подключается к чату и отвечает на обращения до отмены ctx.
// Базовые реконнекты обеспечиваются клиентом.
func (a *Adapter) Run(ctx context.Context) error {
	if !a.Configured() {
		a.logger.Warnw("Twitch chat not configured: missing env",
			"username", a.cfg.Username != "", "token", a.cfg.OAuth != "", "channel", a.cfg.Channel != "")
		return nil
	}

	client := twitchirc.NewClient(a.cfg.Username, a.cfg.OAuth)
	client.OnConnect(func() {
		a.logger.Infow("Twitch connected", "as", a.cfg.Username, "join", a.cfg.Channel)
		client.Join(a.cfg.Channel)
	})
	client.OnPrivateMessage(func(msg twitchirc.PrivateMessage) {
		// запрос к модели может занять до нескольких минут, не блокируем чтение чата
		go func() {
			out, ok := a.Respond(ctx, msg.User.Name, msg.Message)
			if !ok {
				return
			}
			client.Say(msg.Channel, out)
		}()
	})

	errCh := make(chan error, 1)
	go func() { errCh <- client.Connect() }()

	select {
	case <-ctx.Done():
		_ = client.Disconnect()
		select {
		case <-errCh:
		case <-time.After(2 * time.Second):
		}
		return context.Canceled
	case err := <-errCh:
		if err != nil {
			a.logger.Errorw("twitch connect error", "error", err)
		}
		return err
	}
}
