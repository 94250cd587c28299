package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const watchDebounce = 500 * time.Millisecond

// Watch перечитывает store при записи в файл path. Следит за директорией файла,
// т.к. редакторы часто пересоздают файл вместо записи в него.
// Неблокирующий: наблюдение завершается по отмене ctx.
func Watch(ctx context.Context, path string, store *Store, logger *zap.SugaredLogger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watch: %w", err)
	}
	target := filepath.Clean(path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		_ = w.Close()
		return fmt.Errorf("config watch %s: %w", path, err)
	}

	go func() {
		defer w.Close()
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				fire = time.After(watchDebounce)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warnw("Ошибка наблюдения за конфигурацией", "error", err)
			case <-fire:
				fire = nil
				if err := store.Reload(); err != nil {
					logger.Errorw("Не удалось перечитать конфигурацию", "path", path, "error", err)
					continue
				}
				logger.Infow("Конфигурация перечитана", "path", path)
			}
		}
	}()
	return nil
}
