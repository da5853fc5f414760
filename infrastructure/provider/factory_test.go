package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/VozVule/local-knowledge/domain/catalog"
	"github.com/VozVule/local-knowledge/domain/chat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogDoc = `{
	"providers": {
		"ollama": {"models": [{"name": "llama3.2:3b", "type": "chat"}, {"name": "qwen2.5:7b", "type": "chat"}]},
		"openrouter": {
			"kind": "openai",
			"base_url": "https://openrouter.ai/api/v1",
			"api_key_env": "OPENROUTER_API_KEY",
			"models": [{"name": "meta-llama/llama-3.2-3b-instruct:free"}]
		},
		"anthropic": {"models": [{"name": "claude"}]},
		"empty": {"models": []}
	},
	"default": {"provider": "ollama", "model": "qwen2.5:7b"}
}`

func newFactory(t *testing.T, doc string, config FactoryConfig) *Factory {
	t.Helper()
	c, err := catalog.Load(strings.NewReader(doc))
	require.NoError(t, err)

	f, err := NewFactory(c, config)
	require.NoError(t, err)
	return f
}

func TestFactory_CreateOllama(t *testing.T) {
	f := newFactory(t, catalogDoc, FactoryConfig{OllamaBaseURL: "http://ollama:11434"})

	adapter, err := f.Create("Ollama", "llama3.2:3b")
	require.NoError(t, err)

	cb, ok := adapter.(*CircuitBreakerAdapter)
	require.True(t, ok)
	assert.Equal(t, chat.Descriptor{Provider: "ollama", Model: "llama3.2:3b", EmbeddingModel: "llama3.2:3b"}, cb.Describe())
}

func TestFactory_CachesPerPair(t *testing.T) {
	f := newFactory(t, catalogDoc, FactoryConfig{})

	first, err := f.Create("ollama", "llama3.2:3b")
	require.NoError(t, err)
	second, err := f.Create("ollama", "llama3.2:3b")
	require.NoError(t, err)
	other, err := f.Create("ollama", "qwen2.5:7b")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.NotSame(t, first, other)
}

func TestFactory_EmptyModelUsesProviderDefault(t *testing.T) {
	f := newFactory(t, catalogDoc, FactoryConfig{})

	adapter, err := f.Create("ollama", "")
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5:7b", adapter.(chat.Describer).Describe().Model)

	adapter, err = f.Default()
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5:7b", adapter.(chat.Describer).Describe().Model)
}

func TestFactory_OpenAICompatibleKind(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "sk-or-test")
	f := newFactory(t, catalogDoc, FactoryConfig{})

	adapter, err := f.Create("openrouter", "meta-llama/llama-3.2-3b-instruct:free")
	require.NoError(t, err)

	desc := adapter.(chat.Describer).Describe()
	assert.Equal(t, "openrouter", desc.Provider)
	assert.Equal(t, "meta-llama/llama-3.2-3b-instruct:free", desc.Model)
}

func TestFactory_Errors(t *testing.T) {
	f := newFactory(t, catalogDoc, FactoryConfig{})

	_, err := f.Create("mistral", "x")
	assert.ErrorIs(t, err, catalog.ErrProviderNotFound)

	_, err = f.Create("anthropic", "claude")
	assert.ErrorIs(t, err, catalog.ErrConfig)

	_, err = f.Create("empty", "")
	assert.ErrorIs(t, err, catalog.ErrConfig)
}

func TestFactory_DefaultWithEmptyCatalog(t *testing.T) {
	f := newFactory(t, `{"providers": {}}`, FactoryConfig{})

	_, err := f.Default()
	assert.ErrorIs(t, err, catalog.ErrProviderNotFound)
}

func TestFactory_AdapterReachesConfiguredServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":   "llama3.2:3b",
			"message": map[string]string{"role": "assistant", "content": "pong"},
			"done":    true,
		})
	}))
	defer server.Close()

	f := newFactory(t, catalogDoc, FactoryConfig{
		OllamaBaseURL:  server.URL,
		RequestTimeout: 5 * time.Second,
		CircuitBreaker: DefaultCircuitBreakerConfig(),
	})

	adapter, err := f.Create("ollama", "llama3.2:3b")
	require.NoError(t, err)

	history := []chat.ChatMessage{chat.NewMessage("s1", chat.RoleUser, "ping", time.Now())}
	reply, err := adapter.Chat(context.Background(), history)
	require.NoError(t, err)
	assert.Equal(t, "pong", reply.Text)
	assert.Equal(t, "s1", reply.SessionID)
}
