package aiclient

import (
	"context"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kmflow/kmflow-backend/internal/platform/envutil"
	"github.com/kmflow/kmflow-backend/internal/platform/logger"
)

// Client wraps the OpenAI API for the two calls the pipeline makes:
// embeddings for entity resolution and JSON-mode chat for extraction.
type Client struct {
	api        *openai.Client
	chatModel  string
	embedModel string
	log        *logger.Logger
}

// NewFromEnv returns nil (no error) when OPENAI_API_KEY is unset; callers
// fall back to the rule-based extractor and hash embeddings.
func NewFromEnv(log *logger.Logger) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("aiclient: logger required")
	}
	key := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if key == "" {
		return nil, nil
	}
	return &Client{
		api:        openai.NewClient(key),
		chatModel:  envutil.Str("OPENAI_CHAT_MODEL", openai.GPT4oMini),
		embedModel: envutil.Str("OPENAI_EMBED_MODEL", string(openai.SmallEmbedding3)),
		log:        log.With("client", "AIClient"),
	}, nil
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.embedModel),
	})
	if err != nil {
		return nil, fmt.Errorf("aiclient: embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("aiclient: embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("aiclient: embeddings: index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// CompleteJSON runs a JSON-mode chat completion and returns the raw JSON
// document produced by the model.
func (c *Client) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("aiclient: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("aiclient: chat completion: no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
