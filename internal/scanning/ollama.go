package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// OllamaFactory creates engines backed by a local Ollama vision model
type OllamaFactory struct {
	baseURL string
	model   string
	logger  *slog.Logger
}

// NewOllamaFactory creates a new OllamaFactory
// Vision models that transcribe Chinese receipts reasonably well:
//   - qwen2-vl:7b
//   - llava:1.6
//   - minicpm-v
func NewOllamaFactory(baseURL string, modelName string, logger *slog.Logger) *OllamaFactory {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaFactory{
		baseURL: baseURL,
		model:   modelName,
		logger:  logger,
	}
}

// NewEngine returns an engine with its own HTTP client. Requests are bounded
// only by the caller's context.
func (f *OllamaFactory) NewEngine(ctx context.Context) (Engine, error) {
	return &ollamaEngine{
		baseURL: f.baseURL,
		model:   f.model,
		client:  &http.Client{Transport: &http.Transport{}},
		logger:  f.logger,
	}, nil
}

type ollamaEngine struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

// ollamaChatRequest represents the request body for Ollama's chat API
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// ollamaChatResponse represents the response from Ollama's chat API
type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Recognize asks the Ollama model to transcribe the image
func (o *ollamaEngine) Recognize(ctx context.Context, src Source) (Recognition, error) {
	start := time.Now()

	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Messages: []ollamaMessage{
			{
				Role:    "user",
				Content: transcribePrompt,
				Images:  []string{base64.StdEncoding.EncodeToString(src.Data)},
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return Recognition{}, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return Recognition{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return Recognition{}, fmt.Errorf("calling ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return Recognition{}, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return Recognition{}, fmt.Errorf("decoding response: %w", err)
	}

	text := Normalize(stripCodeFence(chatResp.Message.Content))
	o.logger.Debug("ollama recognized text", "model", o.model, "chars", len([]rune(text)))
	return Recognition{Text: text, Duration: time.Since(start)}, nil
}

// Close drops the engine's pooled connections
func (o *ollamaEngine) Close() error {
	o.client.CloseIdleConnections()
	return nil
}
