package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

var (
	ErrUnavailable      = errors.New("ai provider unavailable")
	ErrModelUnavailable = errors.New("embedding model unavailable")
)

type GeneratorFactory func(args interface{}) (IGenerator, error)

type EmbedderFactory func(args interface{}) (IEmbedder, error)

var (
	registryMu        sync.RWMutex
	generatorRegistry = map[string]GeneratorFactory{}
	embedderRegistry  = map[string]EmbedderFactory{}
)

func Register(name string, factory GeneratorFactory) {
	key := normalizeName(name)
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	generatorRegistry[key] = factory
	registryMu.Unlock()
}

func RegisterEmbed(name string, factory EmbedderFactory) {
	key := normalizeName(name)
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	embedderRegistry[key] = factory
	registryMu.Unlock()
}

// NewGenerator builds the named language-model provider. args is decoded into
// the provider's own config struct.
func NewGenerator(name string, args interface{}) (IGenerator, error) {
	key := normalizeName(name)
	if key == "" {
		return nil, fmt.Errorf("llm provider is required")
	}
	registryMu.RLock()
	factory := generatorRegistry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported llm provider: %s", name)
	}
	return factory(args)
}

// NewEmbedder builds the named embedding provider. It is meant to be called
// once at startup; the returned embedder is shared by every request.
func NewEmbedder(name string, args interface{}) (IEmbedder, error) {
	key := normalizeName(name)
	if key == "" {
		return nil, fmt.Errorf("embedding provider is required")
	}
	registryMu.RLock()
	factory := embedderRegistry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("%w: unsupported embedding provider: %s", ErrModelUnavailable, name)
	}
	return factory(args)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("ai provider config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}

func resolveAPIKey(key, env string) string {
	key = strings.TrimSpace(key)
	if key != "" {
		return key
	}
	env = strings.TrimSpace(env)
	if env == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(env))
}
