package scanning

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// TesseractConfig configures the tesseract command line engine
type TesseractConfig struct {
	Binary      string // binary name or absolute path; if empty -> "tesseract"
	Lang        string // default "chi_sim+eng"
	TessdataDir string
	PSM         int // page segmentation mode; 0 leaves tesseract's default
}

// TesseractFactory creates engines backed by the tesseract CLI
type TesseractFactory struct {
	cfg    TesseractConfig
	runner Runner
	logger *slog.Logger
}

// NewTesseractFactory creates a new TesseractFactory
func NewTesseractFactory(cfg TesseractConfig, logger *slog.Logger) *TesseractFactory {
	return NewTesseractFactoryWithRunner(cfg, execRunner{}, logger)
}

// NewTesseractFactoryWithRunner creates a TesseractFactory with a custom command runner for testing
func NewTesseractFactoryWithRunner(cfg TesseractConfig, runner Runner, logger *slog.Logger) *TesseractFactory {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "chi_sim+eng"
	}
	return &TesseractFactory{cfg: cfg, runner: runner, logger: logger}
}

// NewEngine returns an engine for a single extraction
func (f *TesseractFactory) NewEngine(ctx context.Context) (Engine, error) {
	return &tesseractEngine{cfg: f.cfg, runner: f.runner, logger: f.logger}, nil
}

type tesseractEngine struct {
	cfg    TesseractConfig
	runner Runner
	logger *slog.Logger
	closed bool
}

// Recognize runs `tesseract <file> stdout -l <lang>` over the staged image
func (e *tesseractEngine) Recognize(ctx context.Context, src Source) (Recognition, error) {
	if e.closed {
		return Recognition{}, fmt.Errorf("tesseract engine is closed")
	}
	if src.Path == "" {
		return Recognition{}, fmt.Errorf("tesseract needs a staged image path")
	}

	start := time.Now()
	args := []string{src.Path, "stdout", "-l", e.cfg.Lang}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", fmt.Sprintf("%d", e.cfg.PSM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}

	out, _, err := e.runner.Run(ctx, e.cfg.Binary, args...)
	if err != nil {
		return Recognition{}, fmt.Errorf("tesseract: %w", err)
	}

	text := joinCJKGaps(Normalize(string(out)))
	e.logger.Debug("tesseract recognized text", "chars", len([]rune(text)), "lang", e.cfg.Lang)
	return Recognition{Text: text, Duration: time.Since(start)}, nil
}

// Close marks the engine as released; each recognition is its own process
func (e *tesseractEngine) Close() error {
	e.closed = true
	return nil
}
