package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/avolkov/paperboy/internal/model"
	"github.com/avolkov/paperboy/internal/worker"
)

// OpenAIClassifier calls an OpenAI-compatible chat endpoint with a strict
// JSON response contract. Retries and rate limiting live here so the
// pipeline sees one Classify call per paper.
type OpenAIClassifier struct {
	client  *openai.Client
	cfg     model.ClassifierConfig
	system  string
	buckets []string
	limiter *worker.Limiter
	logger  *slog.Logger
}

var _ Classifier = (*OpenAIClassifier)(nil)

// NewOpenAIClassifier creates a classifier from config. The API key is
// required; BaseURL overrides the default endpoint for compatible servers.
func NewOpenAIClassifier(cfg model.ClassifierConfig, buckets []model.BucketConfig, logger *slog.Logger) (*OpenAIClassifier, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("classifier API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}

	names := make([]string, 0, len(buckets))
	for _, bucket := range buckets {
		names = append(names, bucket.Name)
	}

	return &OpenAIClassifier{
		client:  openai.NewClientWithConfig(clientConfig),
		cfg:     cfg,
		system:  systemPrompt(buckets),
		buckets: names,
		limiter: worker.NewLimiter(rps, 1),
		logger:  logger,
	}, nil
}

func (c *OpenAIClassifier) Name() string {
	return "openai"
}

func (c *OpenAIClassifier) Classify(ctx context.Context, paper model.Paper, bucketHints []string) (*Decision, error) {
	policy := worker.Policy{
		MaxAttempts: c.cfg.MaxAttempts,
		BaseDelay:   c.cfg.BaseDelay,
		Multiplier:  2,
	}

	var decision *Decision
	err := worker.Retry(ctx, policy, IsTransient, func(ctx context.Context) error {
		var err error
		decision, err = c.classifyOnce(ctx, paper, bucketHints)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("classified paper",
		"key", paper.Key(),
		"keep", decision.Keep,
		"score", decision.RelevanceScore,
		"buckets", strings.Join(decision.Buckets, ","))

	return decision, nil
}

func (c *OpenAIClassifier) classifyOnce(ctx context.Context, paper model.Paper, bucketHints []string) (*Decision, error) {
	if err := c.limiter.WaitKey(ctx, "classifier"); err != nil {
		return nil, err
	}

	timeout := c.cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	mdl := c.cfg.Model
	if mdl == "" {
		mdl = openai.GPT4oMini
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: mdl,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.system},
			{Role: openai.ChatMessageRoleUser, Content: paperPrompt(paper, bucketHints)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.3,
	})
	if err != nil {
		return nil, classifyAPIError(err)
	}

	// A response that arrives but does not conform is a permanent failure:
	// retrying cannot fix a contract violation, so the paper is skipped.
	if len(resp.Choices) == 0 {
		return nil, &Error{Op: "completion", Transient: false, Err: errors.New("empty response")}
	}

	var decision Decision
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &decision); err != nil {
		return nil, &Error{Op: "decode", Transient: false, Err: err}
	}

	if err := validateDecision(&decision, c.buckets); err != nil {
		return nil, &Error{Op: "validate", Transient: false, Err: err}
	}

	return &decision, nil
}

// classifyAPIError maps transport and API failures onto the retry taxonomy.
// Rate limits, upstream errors, timeouts, and network failures are
// transient; everything else, auth and request shape problems included,
// is permanent.
func classifyAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		transient := apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
		return &Error{Op: "completion", Transient: transient, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Error{Op: "completion", Transient: true, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Op: "completion", Transient: true, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	return &Error{Op: "completion", Transient: false, Err: err}
}
