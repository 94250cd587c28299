package image

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultMaxWidth = 1280
	defaultQuality  = 80
)

// Processor приводит загруженные картинки к JPEG, который понимает модель.
type Processor struct {
	maxWidth int
	quality  int
}

func NewProcessor() *Processor {
	return &Processor{maxWidth: defaultMaxWidth, quality: defaultQuality}
}

// Normalize декодирует PNG или JPEG, уменьшает до maxWidth по ширине и сохраняет
// рядом с исходником как <base>.jpg. Исходный .png удаляется.
// Возвращает путь к результату.
func (p *Processor) Normalize(path string) (string, error) {
	img, err := decode(path)
	if err != nil {
		return "", err
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return "", fmt.Errorf("invalid image size: %dx%d", w, h)
	}
	if w > p.maxWidth {
		h = max(1, h*p.maxWidth/w)
		w = p.maxWidth
		img = resizeNearest(img, w, h)
	}

	encoded, err := encodeJPEG(img, p.quality)
	if err != nil {
		return "", err
	}

	ext := filepath.Ext(path)
	out := strings.TrimSuffix(path, ext) + ".jpg"
	if err := os.WriteFile(out, encoded, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", out, err)
	}
	if err := os.Chmod(out, 0o755); err != nil {
		return "", fmt.Errorf("chmod %s: %w", out, err)
	}
	if strings.EqualFold(ext, ".png") && out != path {
		if err := os.Remove(path); err != nil {
			return "", fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return out, nil
}

func decode(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func resizeNearest(src image.Image, width int, height int) *image.RGBA {
	srcBounds := src.Bounds()
	srcWidth := srcBounds.Dx()
	srcHeight := srcBounds.Dy()

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		srcY := srcBounds.Min.Y + y*srcHeight/height
		for x := range width {
			srcX := srcBounds.Min.X + x*srcWidth/width
			dst.Set(x, y, src.At(srcX, srcY))
		}
	}
	return dst
}
