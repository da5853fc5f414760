package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/VozVule/local-knowledge/domain/chat"

	gpt "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// ProviderName is the catalog kind served by this adapter
const ProviderName = "openai"

// Adapter serves any OpenAI-compatible chat completions API
type Adapter struct {
	client         *gpt.Client
	provider       string
	chatModel      string
	embeddingModel string
	now            func() time.Time
}

// Options configures an Adapter
type Options struct {
	// Provider is the catalog key reported in errors; defaults to "openai"
	Provider string
	APIKey   string
	Timeout  time.Duration
}

// NewAdapter creates an adapter for baseURL ("" means the public OpenAI endpoint)
func NewAdapter(baseURL, chatModel, embeddingModel string, opts Options) *Adapter {
	config := gpt.DefaultConfig(opts.APIKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	config.HTTPClient = &http.Client{Timeout: timeout}

	provider := opts.Provider
	if provider == "" {
		provider = ProviderName
	}

	return &Adapter{
		client:         gpt.NewClientWithConfig(config),
		provider:       provider,
		chatModel:      chatModel,
		embeddingModel: embeddingModel,
		now:            time.Now,
	}
}

// Chat sends the history as a chat completion request and returns the first choice
func (a *Adapter) Chat(ctx context.Context, history []chat.ChatMessage) (chat.ChatMessage, error) {
	messages := make([]gpt.ChatCompletionMessage, 0, len(history))
	for _, m := range history {
		role, err := chat.RoleTag(m.Sender)
		if err != nil {
			return chat.ChatMessage{}, err
		}
		messages = append(messages, gpt.ChatCompletionMessage{Role: role, Content: m.Text})
	}

	resp, err := a.client.CreateChatCompletion(ctx, gpt.ChatCompletionRequest{
		Model:    a.chatModel,
		Messages: messages,
	})
	if err != nil {
		return chat.ChatMessage{}, chat.NewAdapterError(a.provider, "chat", describe(err))
	}
	if len(resp.Choices) == 0 {
		return chat.ChatMessage{}, chat.NewAdapterError(a.provider, "chat", errors.New("response has no choices"))
	}

	logrus.WithFields(logrus.Fields{
		"provider":      a.provider,
		"model":         resp.Model,
		"finish_reason": resp.Choices[0].FinishReason,
		"total_tokens":  resp.Usage.TotalTokens,
	}).Debug("Chat completion received")

	return chat.NewMessage(chat.SessionIDOf(history), chat.RoleAssistant, resp.Choices[0].Message.Content, a.now()), nil
}

// Embed returns one vector per text. Without an embedding model it reports ErrNotImplemented.
func (a *Adapter) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if a.embeddingModel == "" {
		return nil, fmt.Errorf("%w: no embedding model configured for %s", chat.ErrNotImplemented, a.provider)
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	resp, err := a.client.CreateEmbeddings(ctx, gpt.EmbeddingRequest{
		Input: texts,
		Model: gpt.EmbeddingModel(a.embeddingModel),
	})
	if err != nil {
		return nil, chat.NewAdapterError(a.provider, "embed", describe(err))
	}
	if len(resp.Data) != len(texts) {
		return nil, chat.NewAdapterError(a.provider, "embed",
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
	}

	// the API reports an index per vector; order by it
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, chat.NewAdapterError(a.provider, "embed", fmt.Errorf("embedding index %d out of range", d.Index))
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// Describe reports the provider and models served
func (a *Adapter) Describe() chat.Descriptor {
	return chat.Descriptor{Provider: a.provider, Model: a.chatModel, EmbeddingModel: a.embeddingModel}
}

// describe flattens SDK error types so they do not leak past the adapter
func describe(err error) error {
	var apiErr *gpt.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("api error: status %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *gpt.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("request error: status %d: %v", reqErr.HTTPStatusCode, reqErr.Err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.New(err.Error())
}
