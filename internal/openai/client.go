package openai

import (
	"context"
	"fmt"

	oa "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Client wraps the OpenAI SDK for the two calls the assistant makes: chat
// completions (with or without the tool list) and embeddings.
type Client struct {
	cli        oa.Client
	chatModel  string
	embedModel string
}

func NewClient(apiKey, chatModel, embedModel string) *Client {
	return &Client{
		cli:        oa.NewClient(option.WithAPIKey(apiKey)),
		chatModel:  chatModel,
		embedModel: embedModel,
	}
}

// Complete requests one chat completion. Passing an empty tool list leaves
// the model unable to emit tool calls, which is how the synthesis turn is
// kept from recursing.
func (c *Client) Complete(ctx context.Context, messages []oa.ChatCompletionMessageParamUnion, tools []oa.ChatCompletionToolParam) (*oa.ChatCompletion, error) {
	params := oa.ChatCompletionNewParams{
		Model:    oa.ChatModel(c.chatModel),
		Messages: messages,
	}
	if len(tools) > 0 {
		params.Tools = tools
	}

	resp, err := c.cli.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}
	return resp, nil
}

// Embed returns one vector per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := c.cli.Embeddings.New(ctx, oa.EmbeddingNewParams{
		Model: oa.EmbeddingModel(c.embedModel),
		Input: oa.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI embeddings error: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("embeddings: index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
