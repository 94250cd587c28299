package ai

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	MaxRetries   = 2               // Повторов сверх первой попытки
	RetryBackoff = 3 * time.Second // Пауза перед повтором после ответа с кодом ошибки
)

// Sender выполняет одну попытку запроса к модели. Все реализации должны быть взаимозаменяемыми.
type Sender interface {
	Send(ctx context.Context, req CompletionRequest) (Answer, error)
}

// Completer то, что нужно бриджу от клиента модели.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (Answer, error)
}

// Client отправляет запросы через Sender и повторяет их по правилам классификации.
type Client struct {
	sender     Sender
	logger     *zap.SugaredLogger
	maxRetries int
	backoff    time.Duration
}

type Option func(*Client)

// WithBackoff задаёт паузу между повторами.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

// WithMaxRetries задаёт число повторов.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

func NewClient(sender Sender, logger *zap.SugaredLogger, opts ...Option) *Client {
	c := &Client{
		sender:     sender,
		logger:     logger,
		maxRetries: MaxRetries,
		backoff:    RetryBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.maxRetries = max(c.maxRetries, 0)
	return c
}

// Complete возвращает Answer либо *ClassifiedError последней попытки.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (Answer, error) {
	var last *ClassifiedError
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		start := time.Now()
		ans, err := c.sender.Send(ctx, req)
		if err == nil {
			c.logger.Infow("Ответ модели получен",
				"model", req.Model,
				"mode", req.Mode.String(),
				"attempt", attempt,
				"duration", time.Since(start),
				"completion_tokens", ans.CompletionTokens,
				"total_tokens", ans.TotalTokens,
			)
			return ans, nil
		}

		last = Classify(err)
		c.logger.Warnw("Ошибка запроса к модели",
			"model", req.Model,
			"kind", last.Kind,
			"status", last.Status,
			"attempt", attempt,
			"error", err,
		)
		if !last.Retryable() || attempt == c.maxRetries {
			break
		}
		// транспортные ошибки повторяются сразу
		if last.Kind != KindTransport {
			if err := sleep(ctx, c.backoff); err != nil {
				break
			}
		}
	}
	c.logger.Errorw("Запрос к модели не удался", "model", req.Model, "kind", last.Kind, "error", last.Err)
	return Answer{}, last
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
