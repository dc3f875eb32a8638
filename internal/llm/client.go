package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client completes prompts with one langchaingo model.
type Client struct {
	model       llms.Model
	name        string
	modelName   string
	temperature float64
	maxTokens   int
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Client) { c.temperature = t }
}

// WithMaxTokens caps the completion length. Zero leaves the provider default.
func WithMaxTokens(n int) Option {
	return func(c *Client) { c.maxTokens = n }
}

// WithRateLimit limits requests to perSecond with the given burst.
// A non-positive rate disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient wraps model. name and modelName are reported by Name and Model.
func NewClient(model llms.Model, name, modelName string, opts ...Option) *Client {
	c := &Client{
		model:     model,
		name:      name,
		modelName: modelName,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the provider name.
func (c *Client) Name() string { return c.name }

// Model returns the model name.
func (c *Client) Model() string { return c.modelName }

func (c *Client) callOptions() []llms.CallOption {
	opts := []llms.CallOption{llms.WithTemperature(c.temperature)}
	if c.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.maxTokens))
	}
	return opts
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if _, ok := ctx.Deadline(); ok {
			return fmt.Errorf("rate limit wait exceeds deadline: %w", context.DeadlineExceeded)
		}
		return fmt.Errorf("rate limit: %w", err)
	}
	return nil
}

// Complete returns the full completion for prompt.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	out, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt, c.callOptions()...)
	if err != nil {
		return "", fmt.Errorf("%s completion failed: %w", c.name, err)
	}
	c.logger.Debug("completion finished",
		zap.String("provider", c.name),
		zap.Int("prompt_len", len(prompt)),
		zap.Int("answer_len", len(out)))
	return strings.TrimSpace(out), nil
}

// Stream calls fn with each chunk of the completion as it arrives. An error
// returned by fn stops the stream and is returned as is.
func (c *Client) Stream(ctx context.Context, prompt string, fn func(chunk string) error) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	var fnErr error
	opts := append(c.callOptions(), llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		if err := fn(string(chunk)); err != nil {
			fnErr = err
			return err
		}
		return nil
	}))
	_, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt, opts...)
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%s stream failed: %w", c.name, err)
	}
	return nil
}
