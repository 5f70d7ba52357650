package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/amtlich/amtlich/pkg/faults"
)

// streamBuffer bounds how far the transport may run ahead of the
// consumer before blocking.
const streamBuffer = 64

// OpenAIClient talks to an OpenAI-compatible chat completion API.
// It also serves as the Embedder for vector search.
type OpenAIClient struct {
	client         *openai.Client
	embeddingModel string
}

// NewOpenAIClient builds a client from OPENAI_API_KEY and optional
// OPENAI_BASE_URL / OPENAI_EMBEDDING_MODEL environment variables.
func NewOpenAIClient() (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	cfg := openai.DefaultConfig(apiKey)
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		cfg.BaseURL = base
	}
	embeddingModel := os.Getenv("OPENAI_EMBEDDING_MODEL")
	if embeddingModel == "" {
		embeddingModel = string(openai.SmallEmbedding3)
	}
	return &OpenAIClient{
		client:         openai.NewClientWithConfig(cfg),
		embeddingModel: embeddingModel,
	}, nil
}

// Complete performs a synchronous chat completion.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    toOpenAIMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return CompletionResponse{}, classifyTransportError(err)
	}
	if len(resp.Choices) == 0 {
		return CompletionResponse{}, faults.New(faults.KindLLMBackend, "completion returned no choices")
	}
	choice := resp.Choices[0]
	return CompletionResponse{
		Content:      choice.Message.Content,
		TokensUsed:   resp.Usage.CompletionTokens,
		FinishReason: string(choice.FinishReason),
	}, nil
}

// Stream starts a streaming chat completion. Chunks are delivered on
// the returned channel; the channel closes when the stream ends.
func (c *OpenAIClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, <-chan error) {
	chunks := make(chan StreamChunk, streamBuffer)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:       req.Model,
			Messages:    toOpenAIMessages(req.Messages),
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
			Stream:      true,
		})
		if err != nil {
			errs <- classifyTransportError(err)
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					errs <- faults.Wrap(faults.KindCancelled, ctx.Err(), "stream cancelled")
					return
				}
				errs <- classifyTransportError(err)
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			choice := resp.Choices[0]
			chunk := StreamChunk{
				Content:      choice.Delta.Content,
				FinishReason: string(choice.FinishReason),
				IsFinal:      choice.FinishReason != "",
			}
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				errs <- faults.Wrap(faults.KindCancelled, ctx.Err(), "stream cancelled")
				return
			}
		}
	}()

	return chunks, errs
}

// Embed generates a dense vector for the given text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if len(resp.Data) == 0 {
		return nil, faults.New(faults.KindLLMBackend, "embedding response is empty")
	}
	return resp.Data[0].Embedding, nil
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

// classifyTransportError maps transport failures to error kinds.
// Cancellation wins over everything; everything else is a transient
// llm_backend_error (the caller decides whether to retry).
func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return faults.Wrap(faults.KindCancelled, err, "llm call cancelled")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return faults.Wrap(faults.KindLLMBackend, err, "llm call timed out")
	}
	return faults.Wrap(faults.KindLLMBackend, err, "llm backend error")
}
