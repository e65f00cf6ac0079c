package advisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
)

const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 2

	completionsPath = "/v1/chat/completions"
)

const systemPrompt = `You are a cautious trading assistant reviewing a spot crypto setup.
Reply with a single JSON object and nothing else:
{"action": "buy" | "sell" | "hold", "confidence": 0-100, "reasoning": "<one or two sentences>"}`

// Advisor is the external inference service consulted by the advised policy.
// It returns the raw model output, which is parsed with ParseAdvice.
type Advisor interface {
	Advise(ctx context.Context, contextText string, model string) (string, error)
}

type Config struct {
	Endpoint   string        `yaml:"endpoint" json:"endpoint"`
	Model      string        `yaml:"model" json:"model"`
	APIKey     string        `yaml:"-" json:"-"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries int           `yaml:"max_retries" json:"maxRetries"`
	// ConfidenceThreshold is the advisor confidence below which a trade is vetoed.
	ConfidenceThreshold float64 `yaml:"confidence_threshold" json:"confidenceThreshold"`
}

// Client talks to an OpenAI compatible chat completions endpoint. Each run
// owns its own client, so endpoint, model and key never leak between runs.
type Client struct {
	http       *resty.Client
	maxRetries int
	newBackOff func() backoff.BackOff
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("advisor endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	h := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Endpoint, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		h.SetAuthToken(cfg.APIKey)
	}

	return &Client{
		http:       h,
		maxRetries: cfg.MaxRetries,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}, nil
}

// Advise sends the context to the model and returns its reply. Network
// failures, 429 and 5xx responses are retried with exponential backoff.
func (c *Client) Advise(ctx context.Context, contextText string, model string) (string, error) {
	req := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: contextText},
		},
		Temperature: 0,
	}

	var content string
	attempt := 0
	op := func() error {
		attempt++
		var out chatResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(req).
			SetResult(&out).
			Post(completionsPath)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			slog.Warn("Advisor request failed", "attempt", attempt, "error", err)
			return err
		}

		status := resp.StatusCode()
		if status == http.StatusTooManyRequests || status >= 500 {
			slog.Warn("Advisor returned transient status", "attempt", attempt, "status", status)
			return fmt.Errorf("advisor returned status %d", status)
		}
		if resp.IsError() {
			return backoff.Permanent(fmt.Errorf("advisor returned status %d: %s", status, resp.String()))
		}
		if len(out.Choices) == 0 {
			return backoff.Permanent(errors.New("advisor returned no choices"))
		}

		content = out.Choices[0].Message.Content
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(c.newBackOff(), uint64(c.maxRetries)),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return "", fmt.Errorf("advisor call failed after %d attempt(s): %w", attempt, err)
	}
	return content, nil
}
