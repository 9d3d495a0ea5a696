package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// DefaultOCRPrompt instructs the vision model to transcribe the page as-is.
const DefaultOCRPrompt = "Transcribe all text visible on this document page. " +
	"Preserve reading order and line breaks. Output only the transcribed text, " +
	"with no commentary."

// VisionClient talks to an OpenAI-compatible chat/completions endpoint
// serving a vision-language model. Transport errors and non-200 responses
// wrap ErrBackendUnavailable; deadline expiry wraps ErrTimeout.
type VisionClient struct {
	baseURL     string
	model       string
	maxTokens   int
	temperature float32
	client      *http.Client
	logger      *slog.Logger
}

// NewVisionClient builds a client for the inference service at baseURL
// (e.g. "http://localhost:8000"). Zero maxTokens defaults to 4096.
func NewVisionClient(baseURL, model string, maxTokens int, temperature float32, logger *slog.Logger) *VisionClient {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VisionClient{
		baseURL:     baseURL,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		client:      &http.Client{Timeout: 120 * time.Second},
		logger:      logger,
	}
}

// ChatRequest is an OpenAI Chat Completions request.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float32       `json:"temperature"`
}

// ChatMessage carries mixed text and image content.
type ChatMessage struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart is one piece of message content, either text or image_url.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL holds an image reference, here always a data: URI.
type ImageURL struct {
	URL string `json:"url"`
}

// ChatResponse is the OpenAI-format completion response.
type ChatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   ChatUsage    `json:"usage"`
}

// ChatChoice is one response alternative.
type ChatChoice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// ResponseMessage is the assistant's reply.
type ResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatUsage reports token consumption.
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// TranscribePage submits one page image and returns the model's
// transcription.
func (c *VisionClient) TranscribePage(ctx context.Context, img PageImage) (string, error) {
	dataURL := "data:" + mimeType(img.Format) + ";base64," +
		base64.StdEncoding.EncodeToString(img.Data)

	req := ChatRequest{
		Model: c.model,
		Messages: []ChatMessage{
			{
				Role: "user",
				Content: []ContentPart{
					{Type: "image_url", ImageURL: &ImageURL{URL: dataURL}},
					{Type: "text", Text: DefaultOCRPrompt},
				},
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/chat/completions", bytes.NewReader(reqJSON))
	if err != nil {
		return "", fmt.Errorf("create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debug("sending vision request",
		"url", c.baseURL,
		"page", img.Number,
		"payload_size", len(reqJSON))

	startTime := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	duration := time.Since(startTime)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Error("vision HTTP error",
			"status", resp.StatusCode,
			"body", string(body),
			"duration", duration)
		return "", fmt.Errorf("%w: status %d: %s", ErrBackendUnavailable, resp.StatusCode, string(body))
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrBackendUnavailable, err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("%w: response has no choices", ErrBackendUnavailable)
	}

	c.logger.Debug("vision response received",
		"duration", duration,
		"tokens", chatResp.Usage.TotalTokens,
		"finish_reason", chatResp.Choices[0].FinishReason)

	return chatResp.Choices[0].Message.Content, nil
}

func mimeType(format string) string {
	switch format {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "tif", "tiff":
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}
