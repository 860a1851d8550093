// Package llm wraps the external LLM chat-completion and embedding
// endpoints (C3): stateless clients with bounded per-call timeouts and
// exponential-backoff retry, matching spec §4.4/§5's retry and timeout
// requirements.
package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	openai "github.com/sashabaranov/go-openai"

	"github.com/smallnest/graphrag/log"
)

// Client wraps an OpenAI-compatible chat/embedding endpoint, pointed at
// either the vLLM chat-completion server or the TEI embedding server
// depending on which base URL it is constructed with.
type Client struct {
	chat      *openai.Client
	chatModel string

	embed      *openai.Client
	embedModel string

	logger log.Logger
}

// Options configures a Client.
type Options struct {
	ChatBaseURL  string
	ChatAPIKey   string
	ChatModel    string
	EmbedBaseURL string
	EmbedAPIKey  string
	EmbedModel   string
	Logger       log.Logger
}

// New constructs a Client from Options.
func New(opts Options) *Client {
	chatCfg := openai.DefaultConfig(opts.ChatAPIKey)
	chatCfg.BaseURL = opts.ChatBaseURL

	embedCfg := openai.DefaultConfig(opts.EmbedAPIKey)
	embedCfg.BaseURL = opts.EmbedBaseURL

	logger := opts.Logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}

	return &Client{
		chat:       openai.NewClientWithConfig(chatCfg),
		chatModel:  opts.ChatModel,
		embed:      openai.NewClientWithConfig(embedCfg),
		embedModel: opts.EmbedModel,
		logger:     logger,
	}
}

// callTimeouts per spec §5.
const (
	answerTimeout       = 60 * time.Second
	classifyTimeout     = 30 * time.Second
	extractionTimeout   = time.Hour
	embeddingTimeout    = 60 * time.Second
)

// retryBackoff builds the exponential-backoff policy shared by every LLM
// call: up to 3 attempts total, per spec §4.4/§7 (UpstreamTransient).
func retryBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	return backoff.WithMaxRetries(b, 2)
}

// Complete runs a chat completion with system+user messages, making up to
// 3 attempts in total with exponential backoff between them (retryBackoff).
func (c *Client) Complete(ctx context.Context, system, user string, temperature float32, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, extractionTimeout)
	defer cancel()

	var out string
	op := func() error {
		resp, err := c.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.chatModel,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: user},
			},
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})
		if err != nil {
			c.logger.Warn("llm: chat completion attempt failed: %v", err)
			return err
		}
		if len(resp.Choices) == 0 {
			return nil
		}
		out = resp.Choices[0].Message.Content
		return nil
	}

	if err := backoff.Retry(op, retryBackoff()); err != nil {
		return "", err
	}
	return out, nil
}

// CompleteBounded is Complete with a caller-supplied timeout, used for the
// shorter answer-generation (≤60s) and intent-classification (≤30s) calls
// rather than the bulk-extraction ceiling.
func (c *Client) CompleteBounded(ctx context.Context, timeout time.Duration, system, user string, temperature float32, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.completeNoOuterTimeout(ctx, system, user, temperature, maxTokens)
}

func (c *Client) completeNoOuterTimeout(ctx context.Context, system, user string, temperature float32, maxTokens int) (string, error) {
	var out string
	op := func() error {
		resp, err := c.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.chatModel,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: user},
			},
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})
		if err != nil {
			c.logger.Warn("llm: chat completion attempt failed: %v", err)
			return err
		}
		if len(resp.Choices) == 0 {
			return nil
		}
		out = resp.Choices[0].Message.Content
		return nil
	}
	if err := backoff.Retry(op, retryBackoff()); err != nil {
		return "", err
	}
	return out, nil
}

// Embed computes an embedding vector for text against the TEI-compatible
// endpoint, retried the same way as chat completions.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, embeddingTimeout)
	defer cancel()

	var out []float32
	op := func() error {
		resp, err := c.embed.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input: []string{text},
			Model: openai.EmbeddingModel(c.embedModel),
		})
		if err != nil {
			c.logger.Warn("llm: embedding attempt failed: %v", err)
			return err
		}
		if len(resp.Data) == 0 {
			return nil
		}
		out = resp.Data[0].Embedding
		return nil
	}
	if err := backoff.Retry(op, retryBackoff()); err != nil {
		return nil, err
	}
	return out, nil
}

// EmbedBatch embeds multiple texts in one request.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, embeddingTimeout)
	defer cancel()

	var out [][]float32
	op := func() error {
		resp, err := c.embed.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input: texts,
			Model: openai.EmbeddingModel(c.embedModel),
		})
		if err != nil {
			c.logger.Warn("llm: batch embedding attempt failed: %v", err)
			return err
		}
		out = make([][]float32, len(resp.Data))
		for i, d := range resp.Data {
			out[i] = d.Embedding
		}
		return nil
	}
	if err := backoff.Retry(op, retryBackoff()); err != nil {
		return nil, err
	}
	return out, nil
}

// AnswerTimeout, ClassifyTimeout are exported for callers composing their
// own context deadlines around a turn (spec §5).
func (c *Client) AnswerTimeout() time.Duration   { return answerTimeout }
func (c *Client) ClassifyTimeout() time.Duration { return classifyTimeout }
