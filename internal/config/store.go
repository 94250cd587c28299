package config

import (
	"errors"
	"sync"
	"sync/atomic"
)

// Loader строит новый снимок конфигурации.
type Loader func() (*Config, error)

// Store хранит текущий неизменяемый снимок конфигурации.
// Читатели получают указатель на снимок и никогда его не модифицируют;
// перезагрузка подменяет снимок целиком.
type Store struct {
	current atomic.Pointer[Config]
	load    Loader
	mu      sync.Mutex // сериализует Reload
}

// NewStore загружает первый снимок через load.
func NewStore(load Loader) (*Store, error) {
	if load == nil {
		return nil, errors.New("config: nil loader")
	}
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	s := &Store{load: load}
	s.current.Store(cfg)
	return s, nil
}

// NewStaticStore оборачивает готовый снимок; Reload возвращает его же.
func NewStaticStore(cfg *Config) *Store {
	s := &Store{load: func() (*Config, error) { return cfg, nil }}
	s.current.Store(cfg)
	return s
}

// Current возвращает текущий снимок.
func (s *Store) Current() *Config {
	return s.current.Load()
}

// Reload строит новый снимок. При ошибке остаётся предыдущий.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, err := s.load()
	if err != nil {
		return err
	}
	s.current.Store(cfg)
	return nil
}
