package image

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
)

var imageExts = []string{".jpg", ".jpeg", ".png"}

// Cleaner удаляет старые изображения по TTL в заданной директории.
type Cleaner struct {
	logger *zap.SugaredLogger
}

func NewCleaner(logger *zap.SugaredLogger) *Cleaner { return &Cleaner{logger: logger} }

// Run вызывает Clean каждые interval до отмены ctx.
func (c *Cleaner) Run(ctx context.Context, dir string, ttl, interval time.Duration) {
	if ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Clean(dir, ttl)
		}
	}
}

// Clean удаляет файлы изображений старше ttl из dir и возвращает их число.
func (c *Cleaner) Clean(dir string, ttl time.Duration) int {
	if ttl <= 0 || dir == "" {
		return 0
	}

	deadline := time.Now().Add(-ttl)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.Warnw("Не удалось прочитать директорию для очистки", "dir", dir, "error", err)
		}
		return 0
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		lower := strings.ToLower(name)
		if slices.IndexFunc(imageExts, func(ext string) bool { return strings.HasSuffix(lower, ext) }) == -1 {
			continue
		}
		fi, statErr := e.Info()
		if statErr != nil {
			c.logger.Warnw("Не удалось получить информацию о файле при очистке", "name", name, "error", statErr)
			continue
		}
		if fi.ModTime().Before(deadline) {
			full := filepath.Join(dir, name)
			if err := os.Remove(full); err != nil {
				c.logger.Warnw("Не удалось удалить старый файл", "path", full, "error", err)
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		c.logger.Infow("Очистка старых изображений выполнена", "dir", dir, "removed", removed)
	}
	return removed
}
