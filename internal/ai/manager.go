package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type ManagerConfig struct {
	Timeout     time.Duration
	PingTimeout time.Duration
}

// Manager is the single entry point the rest of the service uses for
// generation and embedding. It applies call timeouts and validates results.
type Manager struct {
	generator IGenerator
	embedder  IEmbedder
	cfg       ManagerConfig
}

func NewManager(generator IGenerator, embedder IEmbedder, cfg ManagerConfig) *Manager {
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 5 * time.Second
	}
	return &Manager{generator: generator, embedder: embedder, cfg: cfg}
}

func (m *Manager) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	if m.generator == nil {
		return "", fmt.Errorf("generator not configured")
	}
	ctx, cancel := m.withTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	resp, err := m.generator.Generate(ctx, prompt, opts)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", fmt.Errorf("empty ai response")
	}
	return text, nil
}

func (m *Manager) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if m.embedder == nil {
		return nil, fmt.Errorf("embedder not configured")
	}
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, cancel := m.withTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	res, err := m.embedder.Embed(ctx, texts, taskType)
	if err != nil {
		return nil, err
	}
	if len(res) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(res), len(texts))
	}
	return res, nil
}

func (m *Manager) ModelName() string {
	if m.embedder == nil {
		return ""
	}
	return m.embedder.ModelName()
}

// Ping reports whether the generation backend is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	if m.generator == nil {
		return fmt.Errorf("generator not configured")
	}
	ctx, cancel := m.withTimeout(ctx, m.cfg.PingTimeout)
	defer cancel()
	return Ping(ctx, m.generator)
}

func (m *Manager) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
