// Package filestore keeps the original bytes of uploaded documents.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/xxxsen/docsassist/internal/config"
)

// Store keeps uploaded source files. Missing keys yield errors.ErrNotFound
// from Open; Delete of a missing key is not an error.
type Store interface {
	Type() string
	Save(ctx context.Context, key string, r io.Reader, size int64) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

type Factory func(args interface{}) (Store, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	name = normalizeType(name)
	if name == "" || factory == nil {
		return
	}
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// Types lists the registered store types.
func Types() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func New(cfg config.FileStoreConfig) (Store, error) {
	name := normalizeType(cfg.Type)
	if name == "" {
		return nil, fmt.Errorf("file_store.type is required")
	}
	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported file store type %q, want one of %v", cfg.Type, Types())
	}
	return factory(cfg.Data)
}

// KeyFor builds the storage key of a document upload: the document id plus
// the lower cased extension of the original file name.
func KeyFor(documentID, fileName string) string {
	return documentID + strings.ToLower(filepath.Ext(filepath.Base(fileName)))
}

func normalizeType(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("file store config is required")
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode file store config: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode file store config: %w", err)
	}
	return nil
}

func validKey(key string) bool {
	return key != "" && key != "." && key != ".." && !strings.ContainsAny(key, `/\`)
}
