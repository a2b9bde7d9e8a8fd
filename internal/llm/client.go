package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mindmirror-ai/mindmirror/internal/utils"
)

const defaultHTTPTimeout = 60 * time.Second

// ErrAPIKeyRequired is returned when no API key was configured.
var ErrAPIKeyRequired = errors.New("llm: api key is required")

// Message mirrors OpenAI-style chat message payloads.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionOptions carries the per-call sampling parameters.
type CompletionOptions struct {
	Temperature float64
	MaxTokens   int
}

type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client forwards prompt message lists to an OpenAI-compatible
// chat-completion endpoint and extracts the single reply text.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  httpDoer
	logger  *zap.SugaredLogger
}

func NewClient(cfg utils.OpenAIConfig, logger *zap.SugaredLogger) *Client {
	base := cfg.BaseURL()
	if base == "" {
		base = "https://api.openai.com/v1"
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	return &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Complete sends one chat-completion request and returns the reply content.
// No retries: callers surface failures to the user for manual retry.
func (c *Client) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return "", ErrAPIKeyRequired
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("llm: at least one message is required")
	}

	payload := apiRequest{
		Model:    c.model,
		Messages: messages,
	}
	if opts.Temperature > 0 {
		payload.Temperature = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		payload.MaxTokens = opts.MaxTokens
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("llm: marshal payload: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm: create request: %w", err)
	}

	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := c.client.Do(request)
	if err != nil {
		c.logger.Warnf("chat completion request to %s failed: %v", c.baseURL, err)
		return "", fmt.Errorf("llm: call chat api: %w", err)
	}
	defer response.Body.Close()

	respBody, err := io.ReadAll(response.Body)
	if err != nil {
		return "", fmt.Errorf("llm: read response: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		apiErr := buildAPIError(response.StatusCode, respBody)
		c.logger.Warnf("chat completion rejected: %v", apiErr)
		return "", apiErr
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("llm: decode response: %w", err)
	}

	if apiResp.Error != nil && apiResp.Error.Message != "" {
		return "", fmt.Errorf("llm: api error: %s", apiResp.Error.Message)
	}

	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("llm: response contained no choices")
	}

	return apiResp.Choices[0].Message.Content, nil
}

type apiRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type apiChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type apiError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type apiResponse struct {
	ID      string      `json:"id"`
	Object  string      `json:"object"`
	Created int64       `json:"created"`
	Choices []apiChoice `json:"choices"`
	Error   *apiError   `json:"error,omitempty"`
}

type errorEnvelope struct {
	Error *apiError `json:"error,omitempty"`
}

func decodeAPIError(body []byte) *apiError {
	if len(body) == 0 {
		return nil
	}

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}

	if envelope.Error == nil {
		return nil
	}

	envelope.Error.Message = strings.TrimSpace(envelope.Error.Message)
	return envelope.Error
}

func buildAPIError(statusCode int, body []byte) error {
	if apiErr := decodeAPIError(body); apiErr != nil {
		if apiErr.Code != "" && apiErr.Message != "" {
			return fmt.Errorf("llm: api error (%d, %s): %s", statusCode, apiErr.Code, apiErr.Message)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("llm: api error (%d): %s", statusCode, apiErr.Message)
		}
		if apiErr.Code != "" {
			return fmt.Errorf("llm: api error (%d, %s)", statusCode, apiErr.Code)
		}
	}

	snippet := strings.TrimSpace(string(body))
	if snippet == "" {
		snippet = http.StatusText(statusCode)
	}
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}

	return fmt.Errorf("llm: api error (%d): %s", statusCode, snippet)
}
