package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/VozVule/local-knowledge/domain/chat"

	"github.com/sirupsen/logrus"
)

// ProviderName is the catalog kind served by this adapter
const ProviderName = "ollama"

// DefaultBaseURL is used when no base URL is configured
const DefaultBaseURL = "http://localhost:11434"

// Adapter talks to an Ollama server over its HTTP API
type Adapter struct {
	baseURL        string
	provider       string
	chatModel      string
	embeddingModel string
	httpClient     *http.Client
	now            func() time.Time
}

// Option customises an Adapter
type Option func(*Adapter)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) {
		a.httpClient = client
	}
}

// WithTimeout sets the overall request timeout of the default client
func WithTimeout(timeout time.Duration) Option {
	return func(a *Adapter) {
		if timeout > 0 {
			a.httpClient.Timeout = timeout
		}
	}
}

// WithProviderName overrides the provider key reported in errors and descriptors
func WithProviderName(name string) Option {
	return func(a *Adapter) {
		if name != "" {
			a.provider = name
		}
	}
}

// NewAdapter creates an adapter for the given server and models. The caller resolves the models.
func NewAdapter(baseURL, chatModel, embeddingModel string, opts ...Option) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	transport := &http.Transport{
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	a := &Adapter{
		baseURL:        strings.TrimRight(baseURL, "/"),
		provider:       ProviderName,
		chatModel:      chatModel,
		embeddingModel: embeddingModel,
		httpClient: &http.Client{
			// local models can be slow to load on first use
			Timeout:   120 * time.Second,
			Transport: transport,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiChatRequest struct {
	Model    string       `json:"model"`
	Messages []apiMessage `json:"messages"`
	Stream   bool         `json:"stream"`
}

type apiChatResponse struct {
	Model   string     `json:"model"`
	Message apiMessage `json:"message"`
	Done    bool       `json:"done"`
}

type apiEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type apiEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

type apiError struct {
	Error string `json:"error"`
}

// Chat sends the whole history to /api/chat and returns the assistant reply
func (a *Adapter) Chat(ctx context.Context, history []chat.ChatMessage) (chat.ChatMessage, error) {
	messages, err := toAPIMessages(history)
	if err != nil {
		return chat.ChatMessage{}, err
	}

	var out apiChatResponse
	if err := a.post(ctx, "/api/chat", apiChatRequest{
		Model:    a.chatModel,
		Messages: messages,
		Stream:   false,
	}, &out); err != nil {
		return chat.ChatMessage{}, chat.NewAdapterError(a.provider, "chat", err)
	}

	logrus.WithFields(logrus.Fields{
		"model":    a.chatModel,
		"messages": len(history),
	}).Debug("Ollama chat completed")

	return chat.NewMessage(chat.SessionIDOf(history), chat.RoleAssistant, out.Message.Content, a.now()), nil
}

// Embed sends texts to /api/embed and returns one vector per text
func (a *Adapter) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if a.embeddingModel == "" {
		return nil, fmt.Errorf("%w: no embedding model configured for %s", chat.ErrNotImplemented, a.provider)
	}

	var out apiEmbedResponse
	if err := a.post(ctx, "/api/embed", apiEmbedRequest{Model: a.embeddingModel, Input: texts}, &out); err != nil {
		return nil, chat.NewAdapterError(a.provider, "embed", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, chat.NewAdapterError(a.provider, "embed",
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(out.Embeddings)))
	}
	return out.Embeddings, nil
}

// Describe reports the provider and models served
func (a *Adapter) Describe() chat.Descriptor {
	return chat.Descriptor{Provider: a.provider, Model: a.chatModel, EmbeddingModel: a.embeddingModel}
}

func (a *Adapter) post(ctx context.Context, path string, payload, out any) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("ollama api error: status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("ollama api error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}

func toAPIMessages(history []chat.ChatMessage) ([]apiMessage, error) {
	out := make([]apiMessage, 0, len(history))
	for _, m := range history {
		role, err := chat.RoleTag(m.Sender)
		if err != nil {
			return nil, err
		}
		out = append(out, apiMessage{Role: role, Content: m.Text})
	}
	return out, nil
}
