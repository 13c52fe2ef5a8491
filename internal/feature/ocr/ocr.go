// Package ocr implements the TextExtractor capability on top of tesseract
// via gosseract.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/otiai10/gosseract/v2"

	"github.com/antonkozlov/imgmatch/constants"
	"github.com/antonkozlov/imgmatch/internal/entity"
	"github.com/antonkozlov/imgmatch/internal/feature"
)

type Config struct {
	Language string // tesseract language, default "eng"
}

// client lets us stub the tesseract binding in tests.
type client interface {
	SetImageFromBytes(data []byte) error
	SetLanguage(langs ...string) error
	Text() (string, error)
	Close() error
}

// Extractor runs OCR over image files. A fresh client is created per call;
// gosseract clients are not safe for concurrent use.
type Extractor struct {
	cfg       Config
	newClient func() client
	logger    *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	return &Extractor{
		cfg:       cfg,
		newClient: func() client { return gosseract.NewClient() },
		logger:    logger,
	}
}

// ExtractText recognizes text in the image at path. When recognition fails
// outright it is retried once on a 2x upscaled copy, which rescues small
// scans. Returns feature.ErrNotApplicable for non-images, missing files, and
// images with no recognizable text.
func (e *Extractor) ExtractText(ctx context.Context, path string) (*entity.ExtractedText, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !constants.IsAllowedImage(path) {
		e.logger.Debug("ocr skipped: extension not allowed", "path", path)
		return nil, feature.ErrNotApplicable
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			e.logger.Warn("ocr skipped: file missing", "path", path)
			return nil, feature.ErrNotApplicable
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	start := time.Now()
	text, err := e.recognize(data)
	if err != nil {
		upscaled, upErr := upscale(data)
		if upErr != nil {
			return nil, fmt.Errorf("ocr %s: %w", path, err)
		}
		text, err = e.recognize(upscaled)
		if err != nil {
			return nil, fmt.Errorf("ocr %s (upscaled): %w", path, err)
		}
	}
	e.logger.Debug("ocr completed", "path", path, "duration", time.Since(start), "bytes", len(text))

	text = strings.TrimSpace(text)
	if text == "" {
		e.logger.Info("ocr produced no text", "path", path)
		return nil, feature.ErrNotApplicable
	}
	return &entity.ExtractedText{
		RawText: text,
		Length:  utf8.RuneCountInString(text),
	}, nil
}

func (e *Extractor) recognize(image []byte) (string, error) {
	c := e.newClient()
	defer c.Close()
	if err := c.SetLanguage(e.cfg.Language); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	if err := c.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	return c.Text()
}
