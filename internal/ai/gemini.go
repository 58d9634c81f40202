package ai

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	defaultGeminiEmbedding = "text-embedding-004"
	geminiDocumentTask     = "RETRIEVAL_DOCUMENT"
)

type geminiConfig struct {
	APIKey    string `json:"api_key"`
	APIKeyEnv string `json:"api_key_env"`
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Dimension int    `json:"dimension"`
	BatchSize int    `json:"batch_size"`
}

func newGeminiClient(cfg *geminiConfig) (*genai.Client, error) {
	apiKey := resolveAPIKey(cfg.APIKey, cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, nil
	}
	return genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
}

type geminiGenerator struct {
	client    *genai.Client
	model     string
	maxTokens int
}

func (p *geminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if p.client == nil {
		return "", ErrUnavailable
	}
	resp, err := p.client.Models.GenerateContent(
		ctx,
		p.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: defaultSystemPrompt}}},
			MaxOutputTokens:   int32(p.maxTokens),
		},
	)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

type geminiEmbedder struct {
	client    *genai.Client
	model     string
	dim       int
	batchSize int
}

func (p *geminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if p.client == nil {
		return nil, fmt.Errorf("%w: gemini api key is not configured", ErrModelUnavailable)
	}
	dim := int32(p.dim)
	out := make([][]float32, 0, len(texts))
	for _, batch := range batches(texts, p.batchSize) {
		contents := make([]*genai.Content, 0, len(batch))
		for _, text := range batch {
			contents = append(contents, &genai.Content{Parts: []*genai.Part{{Text: text}}})
		}
		resp, err := p.client.Models.EmbedContent(ctx, p.model, contents, &genai.EmbedContentConfig{
			TaskType:             geminiDocumentTask,
			OutputDimensionality: &dim,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
		}
		vecs := make([][]float32, 0, len(resp.Embeddings))
		for _, item := range resp.Embeddings {
			if item == nil {
				return nil, fmt.Errorf("%w: empty embedding returned", ErrModelUnavailable)
			}
			vecs = append(vecs, item.Values)
		}
		if err := checkVectors(vecs, len(batch), p.dim); err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (p *geminiEmbedder) Dimension() int {
	return p.dim
}

func (p *geminiEmbedder) ModelName() string {
	return "gemini:" + p.model
}

func createGeminiFactory(args interface{}) (IGenerator, error) {
	cfg := &geminiConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("gemini model is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	client, err := newGeminiClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &geminiGenerator{
		client:    client,
		model:     strings.TrimSpace(cfg.Model),
		maxTokens: cfg.MaxTokens,
	}, nil
}

func createGeminiEmbedFactory(args interface{}) (IEmbedder, error) {
	cfg := &geminiConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultGeminiEmbedding
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultEmbedBatchSize
	}
	client, err := newGeminiClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: create gemini client: %w", ErrModelUnavailable, err)
	}
	return &geminiEmbedder{
		client:    client,
		model:     strings.TrimSpace(cfg.Model),
		dim:       cfg.Dimension,
		batchSize: cfg.BatchSize,
	}, nil
}

func init() {
	Register("gemini", createGeminiFactory)
	RegisterEmbed("gemini", createGeminiEmbedFactory)
}
