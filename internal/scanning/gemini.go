package scanning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// transcribePrompt asks a vision model to behave like plain OCR. Field
// interpretation stays in Extract so every engine feeds the same parser.
const transcribePrompt = `You are an OCR engine. Transcribe every piece of text visible in this receipt image exactly as printed, in reading order.

Rules:
- Keep each printed line on its own output line
- Keep labels and their values together on the same line (for example "价格: 18.5")
- Keep Chinese text in Chinese; do not translate or summarize
- Do not add commentary, headings, or markdown code blocks`

// GeminiFactory creates engines backed by Google Gemini
type GeminiFactory struct {
	apiKey string
	model  string
	logger *slog.Logger
}

// NewGeminiFactory creates a new GeminiFactory
func NewGeminiFactory(apiKey string, modelName string, logger *slog.Logger) (*GeminiFactory, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiFactory{apiKey: apiKey, model: modelName, logger: logger}, nil
}

// NewEngine opens a Gemini client that lives for a single extraction
func (f *GeminiFactory) NewEngine(ctx context.Context) (Engine, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(f.apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	model := client.GenerativeModel(f.model)
	model.SetTemperature(0)

	return &geminiEngine{client: client, model: model, logger: f.logger}, nil
}

// contentGenerator is the part of *genai.GenerativeModel an engine uses
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type geminiEngine struct {
	client *genai.Client
	model  contentGenerator
	logger *slog.Logger
}

// Recognize sends the image to Gemini and returns the transcribed text
func (g *geminiEngine) Recognize(ctx context.Context, src Source) (Recognition, error) {
	start := time.Now()

	// genai.ImageData expects just the format suffix ("png"), not the full MIME type
	parts := []genai.Part{
		genai.ImageData("png", src.Data),
		genai.Text(transcribePrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return Recognition{}, fmt.Errorf("generating content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Recognition{}, fmt.Errorf("no response from gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	out := Normalize(stripCodeFence(text.String()))
	g.logger.Debug("gemini recognized text", "chars", len([]rune(out)))
	return Recognition{Text: out, Duration: time.Since(start)}, nil
}

// Close closes the Gemini client
func (g *geminiEngine) Close() error {
	return g.client.Close()
}

// stripCodeFence removes a markdown code block some models wrap answers in
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	if i := strings.Index(text, "\n"); i >= 0 {
		text = text[i+1:]
	} else {
		text = strings.TrimPrefix(text, "```")
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
}
