package provider

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/VozVule/local-knowledge/domain/catalog"
	"github.com/VozVule/local-knowledge/domain/chat"
	"github.com/VozVule/local-knowledge/infrastructure/ollama"
	"github.com/VozVule/local-knowledge/infrastructure/openai"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

// FactoryConfig holds settings shared by every adapter the factory builds
type FactoryConfig struct {
	OllamaBaseURL  string
	RequestTimeout time.Duration
	CacheSize      int
	CircuitBreaker CircuitBreakerConfig
}

// Factory builds provider adapters from catalog entries and caches them per provider/model
type Factory struct {
	catalog *catalog.Catalog
	config  FactoryConfig
	cache   *lru.Cache[string, chat.ProviderAdapter]
}

// NewFactory creates an adapter factory over the catalog
func NewFactory(c *catalog.Catalog, config FactoryConfig) (*Factory, error) {
	if c == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if config.CacheSize <= 0 {
		config.CacheSize = 16
	}

	cache, err := lru.New[string, chat.ProviderAdapter](config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create adapter cache: %w", err)
	}

	return &Factory{catalog: c, config: config, cache: cache}, nil
}

// Create returns the adapter for provider/model. An empty model selects the provider default.
func (f *Factory) Create(provider, model string) (chat.ProviderAdapter, error) {
	key := strings.ToLower(strings.TrimSpace(provider))
	cfg, ok := f.catalog.Provider(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", catalog.ErrProviderNotFound, key)
	}

	chatModel := strings.TrimSpace(model)
	embedModel := chatModel
	if chatModel == "" {
		var err error
		chatModel, embedModel, err = f.catalog.ProviderDefaults(key)
		if err != nil {
			return nil, err
		}
	}
	if chatModel == "" {
		return nil, fmt.Errorf("%w: provider %q lists no models", catalog.ErrConfig, key)
	}

	cacheKey := key + "/" + chatModel
	if adapter, ok := f.cache.Get(cacheKey); ok {
		return adapter, nil
	}

	base, err := f.build(cfg, chatModel, embedModel)
	if err != nil {
		return nil, err
	}
	adapter := NewCircuitBreakerAdapter(base, cacheKey, f.config.CircuitBreaker)
	f.cache.Add(cacheKey, adapter)

	logrus.WithFields(logrus.Fields{
		"provider": key,
		"kind":     cfg.Kind,
		"model":    chatModel,
	}).Info("Created provider adapter")

	return adapter, nil
}

// Default returns the adapter for the catalog's default selection
func (f *Factory) Default() (chat.ProviderAdapter, error) {
	provider := f.catalog.DefaultProvider()
	if provider == "" {
		return nil, fmt.Errorf("%w: catalog has no providers", catalog.ErrProviderNotFound)
	}
	return f.Create(provider, f.catalog.DefaultModel())
}

func (f *Factory) build(cfg catalog.ProviderConfig, chatModel, embedModel string) (chat.ProviderAdapter, error) {
	switch cfg.Kind {
	case ollama.ProviderName:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = f.config.OllamaBaseURL
		}
		return ollama.NewAdapter(baseURL, chatModel, embedModel,
			ollama.WithProviderName(cfg.Key),
			ollama.WithTimeout(f.config.RequestTimeout),
		), nil

	case openai.ProviderName:
		envVar := cfg.APIKeyEnv
		if envVar == "" {
			envVar = "OPENAI_API_KEY"
		}
		apiKey := os.Getenv(envVar)
		if apiKey == "" {
			logrus.WithFields(logrus.Fields{"provider": cfg.Key, "env": envVar}).Warn("No API key set for provider")
		}
		return openai.NewAdapter(cfg.BaseURL, chatModel, embedModel, openai.Options{
			Provider: cfg.Key,
			APIKey:   apiKey,
			Timeout:  f.config.RequestTimeout,
		}), nil

	default:
		return nil, fmt.Errorf("%w: provider %q has unsupported kind %q", catalog.ErrConfig, cfg.Key, cfg.Kind)
	}
}
