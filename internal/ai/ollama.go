package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const defaultOllamaBaseURL = "http://localhost:11434"

type ollamaConfig struct {
	BaseURL string `json:"base_url"`
}

type ollamaProvider struct {
	client  *http.Client
	baseURL string
}

type ollamaOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (p *ollamaProvider) Name() string {
	return "ollama"
}

func (p *ollamaProvider) Generate(ctx context.Context, model string, prompt string, opts GenerateOptions) (string, error) {
	reqBody := ollamaGenerateRequest{
		Model:  model,
		Prompt: prompt,
		Options: ollamaOptions{
			Temperature: opts.Temperature,
			TopP:        opts.TopP,
			NumPredict:  opts.MaxTokens,
		},
	}
	var out ollamaGenerateResponse
	if err := doJSON(ctx, p.client, http.MethodPost, p.endpoint("/api/generate"), nil, reqBody, &out); err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}
	return strings.TrimSpace(out.Response), nil
}

// Embed ignores taskType; ollama embedding models take no task hint.
func (p *ollamaProvider) Embed(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error) {
	var out ollamaEmbedResponse
	if err := doJSON(ctx, p.client, http.MethodPost, p.endpoint("/api/embed"), nil, ollamaEmbedRequest{Model: model, Input: texts}, &out); err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(out.Embeddings), len(texts))
	}
	return out.Embeddings, nil
}

func (p *ollamaProvider) Ping(ctx context.Context) error {
	if err := doJSON(ctx, p.client, http.MethodGet, p.endpoint("/api/tags"), nil, nil, nil); err != nil {
		return fmt.Errorf("ollama: %w", err)
	}
	return nil
}

func (p *ollamaProvider) endpoint(path string) string {
	return strings.TrimRight(p.baseURL, "/") + path
}

func newOllamaProvider(args interface{}) (*ollamaProvider, error) {
	cfg := &ollamaConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	return &ollamaProvider{client: &http.Client{}, baseURL: baseURL}, nil
}

func init() {
	Register("ollama", func(args interface{}) (IGenerateProvider, error) {
		return newOllamaProvider(args)
	})
	RegisterEmbed("ollama", func(args interface{}) (IEmbedProvider, error) {
		return newOllamaProvider(args)
	})
}
