package scanning

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
)

// Pipeline runs one extraction per call: a fresh engine, a staged copy of the
// image, recognition and field extraction. Nothing is shared between calls.
type Pipeline struct {
	engines EngineFactory
	stager  *Stager
	client  *http.Client
	logger  *slog.Logger
}

// NewPipeline creates a new Pipeline
func NewPipeline(engines EngineFactory, stager *Stager, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if stager == nil {
		stager = &Stager{}
	}
	return &Pipeline{
		engines: engines,
		stager:  stager,
		client:  &http.Client{}, // ctx bounds fetches
		logger:  logger,
	}
}

// ProcessImage extracts purchase fields from img. Extraction is optional for
// the user, so every failure is logged and yields empty fields.
func (p *Pipeline) ProcessImage(ctx context.Context, img Image) ExtractedFields {
	fields, err := p.process(ctx, img)
	if err != nil {
		p.logger.Warn("Receipt extraction failed",
			"filename", img.Filename,
			"content_type", img.ContentType,
			"file_size", len(img.Data),
			"error", err,
		)
		return ExtractedFields{}
	}
	return fields
}

func (p *Pipeline) process(ctx context.Context, img Image) (fields ExtractedFields, err error) {
	defer func() {
		if r := recover(); r != nil {
			fields, err = ExtractedFields{}, fmt.Errorf("engine panicked: %v", r)
		}
	}()

	engine, err := p.engines.NewEngine(ctx)
	if err != nil {
		return ExtractedFields{}, fmt.Errorf("acquiring engine: %w", err)
	}
	defer func() {
		if cerr := engine.Close(); cerr != nil {
			p.logger.Warn("Failed to release engine", "error", cerr)
		}
	}()

	data, contentType, err := img.resolve(ctx, p.client)
	if err != nil {
		return ExtractedFields{}, fmt.Errorf("resolving image: %w", err)
	}

	pngData, _, err := toPNG(data, contentType)
	if err != nil {
		return ExtractedFields{}, err
	}

	path, release, err := p.stager.Stage(pngData, ".png")
	defer release()
	if err != nil {
		return ExtractedFields{}, err
	}

	rec, err := engine.Recognize(ctx, Source{Path: path, Data: pngData, ContentType: "image/png"})
	if err != nil {
		return ExtractedFields{}, fmt.Errorf("recognizing text: %w", err)
	}

	fields = Extract(rec.Text)
	p.logger.Debug("Receipt extracted",
		"filename", img.Filename,
		"text_chars", len([]rune(rec.Text)),
		"fields", fields.Count(),
		"duration_ms", rec.Duration.Milliseconds(),
	)
	return fields, nil
}
