// Package rag answers questions with a generative model conditioned on chunks
// retrieved from the vector index.
package rag

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docsassist/internal/ai"
	"github.com/xxxsen/docsassist/internal/model"
)

const (
	defaultTopK        = 5
	defaultTemperature = 0.7
	defaultTopP        = 0.9
	defaultMaxTokens   = 1000

	unknownSource = "unknown"
)

const promptHeader = "You are a helpful code documentation assistant. Use the following documentation context to answer the user's question. If the context doesn't contain enough information to answer the question, say so clearly."

const promptFooter = "Answer: Provide a detailed and helpful answer based on the documentation context above. Include code examples when relevant."

// GenerationError wraps a failed model call.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return "generation failed: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

type IRetriever interface {
	Query(ctx context.Context, text string, topK int) ([]model.ScoredRecord, error)
}

// ISourceChecker reports which of the given document ids still exist.
type ISourceChecker interface {
	ExistingDocuments(ctx context.Context, ids []string) (map[string]bool, error)
}

type Config struct {
	TopK int
	// nil means defaultTemperature.
	Temperature *float64
	TopP        float64
	MaxTokens   int
}

type RelevantChunk struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
	Distance float64                `json:"distance"`
}

type Result struct {
	Answer         string          `json:"answer"`
	Sources        []string        `json:"sources"`
	RelevantChunks []RelevantChunk `json:"relevant_chunks"`
	// Err is a *GenerationError when Answer carries a failure message.
	Err error `json:"-"`
}

type Generator struct {
	retriever IRetriever
	generator ai.IGenerator
	checker   ISourceChecker
	cfg       Config
}

type Option func(g *Generator)

// WithSourceChecker drops retrieved chunks whose document is gone from the
// relational store.
func WithSourceChecker(checker ISourceChecker) Option {
	return func(g *Generator) {
		g.checker = checker
	}
}

func New(retriever IRetriever, generator ai.IGenerator, cfg Config, opts ...Option) *Generator {
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.Temperature == nil {
		cfg.Temperature = ai.Temperature(defaultTemperature)
	}
	if cfg.TopP <= 0 {
		cfg.TopP = defaultTopP
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	g := &Generator{retriever: retriever, generator: generator, cfg: cfg}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Answer never fails: retrieval and generation errors end up in the answer
// text with an empty source list.
func (g *Generator) Answer(ctx context.Context, query string) *Result {
	logger := logutil.GetLogger(ctx)
	chunks, err := g.retrieve(ctx, query)
	if err != nil {
		gerr := &GenerationError{Err: fmt.Errorf("retrieve chunks: %w", err)}
		logger.Error("retrieve chunks failed", zap.Error(gerr))
		return failedResult(gerr, err, nil)
	}
	answer, err := g.generator.Generate(ctx, BuildPrompt(query, chunks), ai.GenerateOptions{
		Temperature: g.cfg.Temperature,
		TopP:        g.cfg.TopP,
		MaxTokens:   g.cfg.MaxTokens,
	})
	if err != nil {
		gerr := &GenerationError{Err: err}
		logger.Error("generate answer failed", zap.Error(gerr))
		return failedResult(gerr, err, chunks)
	}
	sources := make([]string, 0, len(chunks))
	for _, c := range chunks {
		sources = append(sources, sourceOf(c.Metadata))
	}
	return &Result{Answer: answer, Sources: sources, RelevantChunks: chunks}
}

// failedResult reports cause in the answer text, the wording callers have
// always shown, and keeps the typed error on Result.Err.
func failedResult(gerr *GenerationError, cause error, chunks []RelevantChunk) *Result {
	if chunks == nil {
		chunks = []RelevantChunk{}
	}
	return &Result{
		Answer:         fmt.Sprintf("Error generating response: %v", cause),
		Sources:        []string{},
		RelevantChunks: chunks,
		Err:            gerr,
	}
}

func (g *Generator) retrieve(ctx context.Context, query string) ([]RelevantChunk, error) {
	records, err := g.retriever.Query(ctx, query, g.cfg.TopK)
	if err != nil {
		return nil, err
	}
	records = g.dropOrphans(ctx, records)
	out := make([]RelevantChunk, 0, len(records))
	for _, rec := range records {
		out = append(out, RelevantChunk{
			Content:  rec.Content,
			Metadata: rec.Metadata,
			Distance: rec.Distance,
		})
	}
	return out, nil
}

func (g *Generator) dropOrphans(ctx context.Context, records []model.ScoredRecord) []model.ScoredRecord {
	if g.checker == nil || len(records) == 0 {
		return records
	}
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, sourceOf(rec.Metadata))
	}
	existing, err := g.checker.ExistingDocuments(ctx, ids)
	if err != nil {
		logutil.GetLogger(ctx).Warn("check chunk sources failed, keep all", zap.Error(err))
		return records
	}
	kept := records[:0:0]
	for _, rec := range records {
		if existing[sourceOf(rec.Metadata)] {
			kept = append(kept, rec)
			continue
		}
		logutil.GetLogger(ctx).Warn("drop orphan chunk", zap.String("id", rec.ID))
	}
	return kept
}

func sourceOf(meta map[string]interface{}) string {
	if v, ok := meta["document_id"].(string); ok && v != "" {
		return v
	}
	return unknownSource
}

// BuildPrompt renders the retrieved chunks as numbered sources followed by the
// instruction template and the question.
func BuildPrompt(query string, chunks []RelevantChunk) string {
	sources := make([]string, 0, len(chunks))
	for i, c := range chunks {
		sources = append(sources, "Source "+strconv.Itoa(i+1)+": "+c.Content)
	}
	var sb strings.Builder
	sb.WriteString(promptHeader)
	sb.WriteString("\n\nContext:\n")
	sb.WriteString(strings.Join(sources, "\n\n"))
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(query)
	sb.WriteString("\n\n")
	sb.WriteString(promptFooter)
	return sb.String()
}
