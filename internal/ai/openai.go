package ai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultSystemPrompt    = "You are a helpful assistant."
	defaultMaxTokens       = 300
	defaultEmbedBatchSize  = 64
	defaultOpenAIEmbedding = "text-embedding-3-small"
)

type openAIConfig struct {
	APIKey    string `json:"api_key"`
	APIKeyEnv string `json:"api_key_env"`
	BaseURL   string `json:"base_url"`
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Dimension int    `json:"dimension"`
	BatchSize int    `json:"batch_size"`
}

func newOpenAIClient(cfg *openAIConfig) *openai.Client {
	apiKey := resolveAPIKey(cfg.APIKey, cfg.APIKeyEnv)
	if apiKey == "" {
		return nil
	}
	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return openai.NewClientWithConfig(clientCfg)
}

type openAIGenerator struct {
	client    *openai.Client
	model     string
	maxTokens int
}

func (p *openAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if p.client == nil {
		return "", ErrUnavailable
	}
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: defaultSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: p.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai response has no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

type openAIEmbedder struct {
	client    *openai.Client
	model     string
	dim       int
	batchSize int
}

func (p *openAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if p.client == nil {
		return nil, fmt.Errorf("%w: openai api key is not configured", ErrModelUnavailable)
	}
	out := make([][]float32, 0, len(texts))
	for _, batch := range batches(texts, p.batchSize) {
		resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:      batch,
			Model:      openai.EmbeddingModel(p.model),
			Dimensions: p.dim,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
		}
		vecs := make([][]float32, len(batch))
		for _, item := range resp.Data {
			if item.Index < 0 || item.Index >= len(batch) {
				return nil, fmt.Errorf("%w: embedding index %d out of range", ErrModelUnavailable, item.Index)
			}
			vecs[item.Index] = item.Embedding
		}
		if err := checkVectors(vecs, len(batch), p.dim); err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (p *openAIEmbedder) Dimension() int {
	return p.dim
}

func (p *openAIEmbedder) ModelName() string {
	return "openai:" + p.model
}

func createOpenAIFactory(args interface{}) (IGenerator, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("openai model is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	return &openAIGenerator{
		client:    newOpenAIClient(cfg),
		model:     strings.TrimSpace(cfg.Model),
		maxTokens: cfg.MaxTokens,
	}, nil
}

func createOpenAIEmbedFactory(args interface{}) (IEmbedder, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultOpenAIEmbedding
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultEmbedBatchSize
	}
	return &openAIEmbedder{
		client:    newOpenAIClient(cfg),
		model:     strings.TrimSpace(cfg.Model),
		dim:       cfg.Dimension,
		batchSize: cfg.BatchSize,
	}, nil
}

func init() {
	Register("openai", createOpenAIFactory)
	RegisterEmbed("openai", createOpenAIEmbedFactory)
}
