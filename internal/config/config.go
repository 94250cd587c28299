package config

import (
	"errors"
	"flag"
	"fmt"
	"maps"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Провайдеры чат-комплишена
const (
	ProviderMoonshot = "moonshot"
	ProviderOpenAI   = "openai"
	ProviderStub     = "stub"
)

const (
	defaultModel     = "moonshot-v1-128k"
	shortModelAlias  = "moonshot"
	shortModelTarget = "moonshot-v1-32k"
)

var defaultClearMemoryCommands = []string{"#清除记忆"}

type Config struct {
	DebugMode bool   `env:"DEBUG_MODE"`   // Режим дебага
	Provider  string `env:"BOT_PROVIDER"` // moonshot|openai|stub

	// Параметры запроса к модели
	Model          string        `env:"MODEL"`             // Имя модели; пустое значение значит moonshot-v1-128k
	Temperature    float64       `env:"TEMPERATURE"`       // Значение из [0, 1], рекомендуется 0.3
	TopP           float64       `env:"TOP_P"`             // По умолчанию 1.0
	APIKey         string        `env:"MOONSHOT_API_KEY"`  // Ключ API; уходит в заголовок API-Key
	BaseURL        string        `env:"MOONSHOT_BASE_URL"` // Полный URL chat/completions
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`   // Таймаут одного HTTP-запроса

	// Сессии
	ClearMemoryCommands   []string `env:"CLEAR_MEMORY_COMMANDS" envSeparator:";"` // Фразы очистки памяти текущей сессии
	CharacterDesc         string   `env:"CHARACTER_DESC"`                         // Системный промпт новой сессии
	ConversationMaxTokens int      `env:"CONVERSATION_MAX_TOKENS"`                // Предел оценки токенов истории
	ExpiresInSeconds      int      `env:"EXPIRES_IN_SECONDS"`                     // TTL неактивной сессии
	MaxSessions           int      `env:"MAX_SESSIONS"`                           // Максимум одновременно хранимых сессий

	ConfigWatch bool `env:"CONFIG_WATCH"` // Перечитывать конфигурацию при изменении .env

	// Изображения
	ImagesDir        string `env:"IMAGES_DIR"`         // Куда складываются загруженные картинки
	ImagesTTLSeconds int    `env:"IMAGES_TTL_SECONDS"` // Через сколько секунд картинки удаляются

	HTTP   HTTPConfig
	Twitch TwitchConfig
}

// HTTPConfig конфигурация HTTP/WebSocket API бриджа.
type HTTPConfig struct {
	Enabled  bool   `env:"HTTP_ENABLED"`   // Главный флаг включения
	BindAddr string `env:"HTTP_BIND_ADDR"` // Адрес слушателя, напр. 127.0.0.1:8080
}

// TwitchConfig параметры подключения к чату Twitch.
type TwitchConfig struct {
	Username string `env:"TWITCH_USERNAME"`    // Логин бота
	OAuth    string `env:"TWITCH_OAUTH_TOKEN"` // Токен, можно без префикса oauth:
	Channel  string `env:"TWITCH_CHANNEL"`     // Канал без #
	Trigger  string `env:"TWITCH_TRIGGER"`     // Префикс сообщений, адресованных боту
}

// Defaults возвращает конфигурацию с предустановленными значениями по умолчанию.
// Эти значения перекрываются .env, переменными окружения и флагами CLI.
func Defaults() *Config {
	return &Config{
		Provider:              ProviderMoonshot,
		Model:                 defaultModel,
		Temperature:           0.3,
		TopP:                  1.0,
		BaseURL:               "https://api.moonshot.cn/v1/chat/completions",
		RequestTimeout:        2 * time.Minute,
		ClearMemoryCommands:   slices.Clone(defaultClearMemoryCommands),
		CharacterDesc:         "你是基于大语言模型的AI智能助手，旨在回答并解决人们的任何问题，并且可以使用多种语言与人交流。",
		ConversationMaxTokens: 1000,
		ExpiresInSeconds:      3600,
		MaxSessions:           1024,
		ImagesDir:             "tmp/images",
		ImagesTTLSeconds:      3600,
		HTTP: HTTPConfig{
			Enabled:  true,
			BindAddr: "127.0.0.1:8080",
		},
		Twitch: TwitchConfig{
			Trigger: "!ask",
		},
	}
}

// ModelName возвращает нормализованное имя модели.
func (c *Config) ModelName() string {
	switch m := strings.TrimSpace(c.Model); m {
	case "":
		return defaultModel
	case shortModelAlias:
		return shortModelTarget
	default:
		return m
	}
}

// IsClearMemoryCommand сообщает, является ли запрос командой очистки памяти сессии.
func (c *Config) IsClearMemoryCommand(query string) bool {
	return slices.Contains(c.ClearMemoryCommands, query)
}

// Validate проверяет значения, без которых запросы к модели бессмысленны.
func (c *Config) Validate() error {
	var errs []error
	if c.Temperature < 0 || c.Temperature > 1 {
		errs = append(errs, fmt.Errorf("TEMPERATURE must be within [0, 1], got %v", c.Temperature))
	}
	if c.TopP <= 0 || c.TopP > 1 {
		errs = append(errs, fmt.Errorf("TOP_P must be within (0, 1], got %v", c.TopP))
	}
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("MOONSHOT_BASE_URL is not a valid URL: %q", c.BaseURL))
	}
	switch c.Provider {
	case ProviderMoonshot, ProviderOpenAI, ProviderStub:
	default:
		errs = append(errs, fmt.Errorf("BOT_PROVIDER must be one of moonshot|openai|stub, got %q", c.Provider))
	}
	if c.ConversationMaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("CONVERSATION_MAX_TOKENS must be positive, got %d", c.ConversationMaxTokens))
	}
	return errors.Join(errs...)
}

// Load собирает снимок конфигурации: дефолты → .env → окружение процесса → overrides.
// Переменные окружения процесса имеют приоритет над .env, как у godotenv.Load.
func Load(envFile string, overrides func(*Config)) (*Config, error) {
	vars := make(map[string]string)
	if envFile != "" {
		fileVars, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read env file %s: %w", envFile, err)
		}
		maps.Copy(vars, fileVars)
	}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}

	cfg := Defaults()
	if err := env.Parse(cfg, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if overrides != nil {
		overrides(cfg)
	}
	cfg.ClearMemoryCommands = cleanList(cfg.ClearMemoryCommands, defaultClearMemoryCommands)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewConfig разбирает флаги командной строки и загружает первый снимок конфигурации.
// Флаги применяются и при каждой последующей перезагрузке.
func NewConfig() (*Store, error) {
	def := Defaults()
	envFile := flag.String("env-file", ".env", "путь к .env файлу с настройками")
	debug := flag.Bool("debug-mode", def.DebugMode, "включить режим дебага")
	provider := flag.String("provider", def.Provider, "провайдер модели: moonshot|openai|stub")
	model := flag.String("model", def.Model, "имя модели (moonshot = moonshot-v1-32k)")
	httpAddr := flag.String("http-bind-addr", def.HTTP.BindAddr, "адрес HTTP API (напр. 127.0.0.1:8080)")
	flag.Parse()

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	overrides := func(c *Config) {
		if set["debug-mode"] {
			c.DebugMode = *debug
		}
		if set["provider"] {
			c.Provider = *provider
		}
		if set["model"] {
			c.Model = *model
		}
		if set["http-bind-addr"] {
			c.HTTP.BindAddr = *httpAddr
		}
	}

	return NewStore(func() (*Config, error) { return Load(*envFile, overrides) })
}

// EnvFile возвращает путь к .env, переданный флагом -env-file.
func EnvFile() string {
	if f := flag.Lookup("env-file"); f != nil {
		return f.Value.String()
	}
	return ".env"
}

// cleanList убирает пробелы и пустые элементы; пустой результат заменяется дефолтом.
func cleanList(in []string, def []string) []string {
	cleaned := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.TrimSpace(p)
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) == 0 {
		return slices.Clone(def)
	}
	return cleaned
}
