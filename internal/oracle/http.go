package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config contains the HTTP oracle client configuration.
type Config struct {
	// Endpoint is an OpenAI-compatible chat completions URL.
	Endpoint string
	Model    string
	APIKey   string
	// PromptTemplate may contain {{message}} and {{context}} placeholders.
	PromptTemplate string
	Timeout        time.Duration
	RequestsPerSec float64
	Burst          int
}

// HTTPClient judges messages through an OpenAI-style chat completion call.
type HTTPClient struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewHTTPClient creates a new HTTP oracle client.
func NewHTTPClient(config Config, logger *zap.Logger) *HTTPClient {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RequestsPerSec <= 0 {
		config.RequestsPerSec = 1
	}
	if config.Burst <= 0 {
		config.Burst = 5
	}

	return &HTTPClient{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSec), config.Burst),
		logger:  logger,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Judge renders the prompt template with the candidate text and history and
// asks the judgment endpoint for a verdict. The call is rate limited; waiting
// is bounded by the call timeout, so a saturated limiter surfaces as an error
// rather than an unbounded stall.
func (c *HTTPClient) Judge(ctx context.Context, candidate string, history []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("oracle rate limit: %w", err)
	}

	prompt := renderPrompt(c.config.PromptTemplate, candidate, history)

	body, err := json.Marshal(chatRequest{
		Model:       c.config.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   16,
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode oracle request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build oracle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("oracle call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a little of the body for the log, then give up.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Error("Oracle returned non-success status",
			zap.Int("status_code", resp.StatusCode),
			zap.ByteString("body", snippet),
		)
		return "", fmt.Errorf("oracle returned HTTP %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode oracle response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("oracle response contained no choices")
	}

	verdict := parsed.Choices[0].Message.Content
	c.logger.Debug("Oracle responded",
		zap.String("verdict", verdict),
		zap.Duration("duration", time.Since(start)),
	)
	return verdict, nil
}

// renderPrompt fills the {{message}} and {{context}} placeholders.
func renderPrompt(template, candidate string, history []string) string {
	return strings.NewReplacer(
		"{{message}}", candidate,
		"{{context}}", strings.Join(history, "\n"),
	).Replace(template)
}
