package scanning

import (
	"context"
	"time"
)

// ExtractedFields contains the purchase fields inferred from recognized receipt text.
// A nil field means no confident match was found.
type ExtractedFields struct {
	Shop     *string  `json:"shop,omitempty"`
	Name     *string  `json:"name,omitempty"`
	Price    *float64 `json:"price,omitempty"`
	Capacity *string  `json:"capacity,omitempty"`
	Flavor   *string  `json:"flavor,omitempty"`
	CupSize  *string  `json:"cupSize,omitempty"`
}

// Count returns the number of fields that were extracted
func (f ExtractedFields) Count() int {
	n := 0
	for _, set := range []bool{
		f.Shop != nil, f.Name != nil, f.Price != nil,
		f.Capacity != nil, f.Flavor != nil, f.CupSize != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// Empty reports whether nothing was extracted
func (f ExtractedFields) Empty() bool {
	return f.Count() == 0
}

// Source is an image handed to an Engine. Path points at a staged copy of Data
// and is only valid until the pipeline releases it.
type Source struct {
	Path        string
	Data        []byte
	ContentType string
}

// Recognition is the raw output of an Engine
type Recognition struct {
	Text       string
	Confidence float32
	Duration   time.Duration
}

// Engine turns an image into raw text
type Engine interface {
	// Recognize runs text recognition over the source image
	Recognize(ctx context.Context, src Source) (Recognition, error)
	// Close releases the engine and any resources it holds
	Close() error
}

// EngineFactory creates a fresh Engine for each extraction
type EngineFactory interface {
	NewEngine(ctx context.Context) (Engine, error)
}

// Scanner extracts purchase fields from an image
type Scanner interface {
	ProcessImage(ctx context.Context, img Image) ExtractedFields
}
