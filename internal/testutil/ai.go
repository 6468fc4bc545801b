package testutil

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"

	"github.com/xxxsen/docsassist/internal/ai"
)

const fakeDim = 64

// FakeEmbedder hashes words into a fixed size bag-of-words vector, so texts
// sharing words end up close to each other.
type FakeEmbedder struct {
	mu        sync.Mutex
	Calls     int
	Inputs    [][]string
	TaskTypes []string
	Err       error
}

func (f *FakeEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	f.Inputs = append(f.Inputs, append([]string(nil), texts...))
	f.TaskTypes = append(f.TaskTypes, taskType)
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		out = append(out, HashEmbedding(text))
	}
	return out, nil
}

func (f *FakeEmbedder) ModelName() string {
	return "fake-embedder"
}

func (f *FakeEmbedder) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls
}

func HashEmbedding(text string) []float32 {
	vec := make([]float32, fakeDim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,:;!?\"'()")
		if word == "" {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%fakeDim]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// FakeGenerator records prompts and returns a fixed answer or error.
type FakeGenerator struct {
	mu      sync.Mutex
	Answer  string
	Err     error
	PingErr error
	Prompts []string
	Options []ai.GenerateOptions
}

func (f *FakeGenerator) Generate(ctx context.Context, prompt string, opts ai.GenerateOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Prompts = append(f.Prompts, prompt)
	f.Options = append(f.Options, opts)
	if f.Err != nil {
		return "", f.Err
	}
	return f.Answer, nil
}

func (f *FakeGenerator) Ping(ctx context.Context) error {
	return f.PingErr
}

func (f *FakeGenerator) LastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Prompts) == 0 {
		return ""
	}
	return f.Prompts[len(f.Prompts)-1]
}

var ErrFake = errors.New("fake failure")
