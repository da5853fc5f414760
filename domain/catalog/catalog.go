package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrConfig marks a malformed or unreadable catalog source
	ErrConfig = errors.New("invalid model catalog")

	// ErrProviderNotFound is returned when a provider key is absent from the catalog
	ErrProviderNotFound = errors.New("provider not found")
)

// UnknownModelType is assigned to models whose type is absent or blank
const UnknownModelType = "unknown"

// ModelEntry is one selectable model under one provider
type ModelEntry struct {
	Provider  string `json:"provider"`
	Name      string `json:"model_name"`
	ModelType string `json:"model_type"`
}

// ProviderConfig is the catalog entry for a single provider
type ProviderConfig struct {
	Key       string
	Kind      string
	BaseURL   string
	APIKeyEnv string
	Models    []ModelEntry
}

// Catalog is the read-only provider/model catalog built once at startup
type Catalog struct {
	order           []string
	providers       map[string]ProviderConfig
	defaultProvider string
	defaultModel    string
}

type rawModel struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type rawProvider struct {
	BaseURL   string     `yaml:"base_url"`
	Kind      string     `yaml:"kind"`
	APIKeyEnv string     `yaml:"api_key_env"`
	Models    []rawModel `yaml:"models"`
}

type rawDefault struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type rawDocument struct {
	Providers yaml.Node  `yaml:"providers"`
	Default   rawDefault `yaml:"default"`
}

// LoadFile reads the catalog from a JSON or YAML file
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %v", ErrConfig, path, err)
	}
	defer f.Close()

	return Load(f)
}

// Load parses a catalog document. Input starting with '{' is read as JSON, anything else as YAML.
func Load(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read: %v", ErrConfig, err)
	}

	var doc rawDocument
	if trimmed := bytes.TrimLeft(data, " \t\r\n\ufeff"); len(trimmed) > 0 && trimmed[0] == '{' {
		err = decodeJSON(trimmed, &doc)
	} else {
		err = yaml.Unmarshal(data, &doc)
		if err == nil && len(bytes.TrimSpace(data)) == 0 {
			return nil, fmt.Errorf("%w: document is empty", ErrConfig)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	c := &Catalog{providers: make(map[string]ProviderConfig)}
	if err := c.parseProviders(&doc.Providers); err != nil {
		return nil, err
	}
	if err := c.resolveDefaults(doc.Default); err != nil {
		return nil, err
	}
	return c, nil
}

// decodeJSON converts a JSON document into a yaml.Node tree so that object key
// order survives. Repeated keys keep their first position and their last value.
func decodeJSON(data []byte, doc *rawDocument) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	root, err := jsonNode(dec)
	if err != nil {
		return fmt.Errorf("json: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("json: unexpected data after top-level object")
	}
	return root.Decode(doc)
}

func jsonNode(dec *json.Decoder) (*yaml.Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch v := tok.(type) {
	case json.Delim:
		if v == '[' {
			node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
			for dec.More() {
				item, err := jsonNode(dec)
				if err != nil {
					return nil, err
				}
				node.Content = append(node.Content, item)
			}
			_, err := dec.Token()
			return node, err
		}

		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		index := make(map[string]int)
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, _ := keyTok.(string)
			value, err := jsonNode(dec)
			if err != nil {
				return nil, err
			}
			if i, seen := index[key]; seen {
				node.Content[i+1] = value
				continue
			}
			index[key] = len(node.Content)
			node.Content = append(node.Content, scalar("!!str", key), value)
		}
		_, err := dec.Token()
		return node, err
	case string:
		return scalar("!!str", v), nil
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return scalar("!!int", v.String()), nil
		}
		return scalar("!!float", v.String()), nil
	case bool:
		return scalar("!!bool", strconv.FormatBool(v)), nil
	default:
		return scalar("!!null", "null"), nil
	}
}

func scalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

// parseProviders walks the providers mapping in source order
func (c *Catalog) parseProviders(node *yaml.Node) error {
	switch {
	case node.Kind == 0:
		return nil
	case node.Kind == yaml.ScalarNode && node.Tag == "!!null":
		return nil
	case node.Kind != yaml.MappingNode:
		return fmt.Errorf("%w: providers must be a mapping (line %d)", ErrConfig, node.Line)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := normalizeKey(node.Content[i].Value)
		if key == "" {
			continue
		}

		var raw rawProvider
		if err := node.Content[i+1].Decode(&raw); err != nil {
			return fmt.Errorf("%w: provider %q: %v", ErrConfig, key, err)
		}

		cfg := ProviderConfig{
			Key:       key,
			Kind:      normalizeKey(raw.Kind),
			BaseURL:   strings.TrimSpace(raw.BaseURL),
			APIKeyEnv: strings.TrimSpace(raw.APIKeyEnv),
		}
		if cfg.Kind == "" {
			cfg.Kind = key
		}
		for _, m := range raw.Models {
			name := strings.TrimSpace(m.Name)
			if name == "" {
				continue
			}
			modelType := strings.TrimSpace(m.Type)
			if modelType == "" {
				modelType = UnknownModelType
			}
			cfg.Models = append(cfg.Models, ModelEntry{Provider: key, Name: name, ModelType: modelType})
		}

		// keys that collide after normalization keep their first position, last definition wins
		if _, seen := c.providers[key]; !seen {
			c.order = append(c.order, key)
		}
		c.providers[key] = cfg
	}
	return nil
}

func (c *Catalog) resolveDefaults(def rawDefault) error {
	c.defaultProvider = normalizeKey(def.Provider)
	c.defaultModel = strings.TrimSpace(def.Model)

	if c.defaultProvider == "" && len(c.order) > 0 {
		c.defaultProvider = c.order[0]
	}
	if c.defaultProvider == "" {
		return nil
	}

	cfg, ok := c.providers[c.defaultProvider]
	if !ok {
		return fmt.Errorf("%w: default provider %q is not listed under providers", ErrConfig, c.defaultProvider)
	}
	if c.defaultModel == "" && len(cfg.Models) > 0 {
		c.defaultModel = cfg.Models[0].Name
	}
	return nil
}

// DefaultProvider returns the resolved default provider key, or ""
func (c *Catalog) DefaultProvider() string {
	return c.defaultProvider
}

// DefaultModel returns the resolved default model name, or ""
func (c *Catalog) DefaultModel() string {
	return c.defaultModel
}

// ProviderDefaults returns the chat and embedding model for a provider.
// The embedding model always equals the chat model.
func (c *Catalog) ProviderDefaults(provider string) (chatModel, embedModel string, err error) {
	key := normalizeKey(provider)
	cfg, ok := c.providers[key]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrProviderNotFound, key)
	}

	if key == c.defaultProvider {
		chatModel = c.defaultModel
	}
	if chatModel == "" && len(cfg.Models) > 0 {
		chatModel = cfg.Models[0].Name
	}
	return chatModel, chatModel, nil
}

// Provider looks up a provider by (normalized) key
func (c *Catalog) Provider(provider string) (ProviderConfig, bool) {
	cfg, ok := c.providers[normalizeKey(provider)]
	return cfg, ok
}

// Providers returns provider keys in source order
func (c *Catalog) Providers() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// HasModel reports whether the catalog lists model under provider
func (c *Catalog) HasModel(provider, model string) bool {
	cfg, ok := c.Provider(provider)
	if !ok {
		return false
	}
	for _, m := range cfg.Models {
		if m.Name == model {
			return true
		}
	}
	return false
}

// Models yields every model entry across providers in source order.
// The sequence can be ranged over any number of times.
func (c *Catalog) Models() iter.Seq[ModelEntry] {
	return func(yield func(ModelEntry) bool) {
		for _, key := range c.order {
			for _, m := range c.providers[key].Models {
				if m.Name == "" {
					continue
				}
				if !yield(m) {
					return
				}
			}
		}
	}
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
