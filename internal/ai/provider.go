package ai

import (
	"MoonshotBridge/internal/config"
	"fmt"
)

// NewSender выбирает реализацию по BOT_PROVIDER. Ключ и URL фиксируются здесь
// и не меняются при перезагрузке конфигурации.
func NewSender(cfg *config.Config) (Sender, error) {
	switch cfg.Provider {
	case config.ProviderMoonshot, "":
		return NewMoonshotSender(cfg.BaseURL, cfg.APIKey, cfg.RequestTimeout), nil
	case config.ProviderOpenAI:
		return NewOpenAISender(cfg.BaseURL, cfg.APIKey, cfg.RequestTimeout), nil
	case config.ProviderStub:
		return NewStubSender(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
