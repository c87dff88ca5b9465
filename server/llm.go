// Package server implements the producing side of both session wire
// protocols: the chunked-body chat endpoint and the duplex analyzer channel,
// plus the small CRUD surface around them.
package server

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
)

// LLM is the minimal contract the chat handler needs from a language-model
// provider.
type LLM interface {
	// NewStreaming issues a streaming chat completion request, returning an
	// ssestream.Stream to consume the chunks.
	NewStreaming(ctx context.Context, params openai.ChatCompletionNewParams) *ssestream.Stream[openai.ChatCompletionChunk]
}

// OpenAI is the production LLM backed by the OpenAI API (or any compatible
// endpoint via base URL override).
type OpenAI struct {
	client openai.Client
}

var _ LLM = (*OpenAI)(nil)

func NewOpenAI(apiKey, baseURL string) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAI{client: openai.NewClient(opts...)}
}

func (c *OpenAI) NewStreaming(ctx context.Context, params openai.ChatCompletionNewParams) *ssestream.Stream[openai.ChatCompletionChunk] {
	return c.client.Chat.Completions.NewStreaming(ctx, params)
}
