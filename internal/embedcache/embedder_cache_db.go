package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docsassist/internal/ai"
	"github.com/xxxsen/docsassist/internal/model"
	"github.com/xxxsen/docsassist/internal/pkg/timeutil"
	"github.com/xxxsen/docsassist/internal/repo"
)

func WrapDBCacheToEmbedder(e ai.IEmbedder, cacheRepo *repo.EmbeddingCacheRepo) ai.IEmbedder {
	if e == nil || cacheRepo == nil {
		return e
	}
	return &dbEmbedder{next: e, repo: cacheRepo}
}

type dbEmbedder struct {
	next ai.IEmbedder
	repo *repo.EmbeddingCacheRepo
}

func (d *dbEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	hashes := make([]string, len(texts))
	var (
		missing   []int
		modelName string
	)
	for i, text := range texts {
		_, hashes[i], modelName = buildCacheKey(d.next.ModelName(), taskType, text)
		values, ok, err := d.repo.Get(ctx, modelName, taskType, hashes[i])
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = values
			continue
		}
		missing = append(missing, i)
	}
	if hits := len(texts) - len(missing); hits > 0 {
		logutil.GetLogger(ctx).Debug("embedding cache hit (db)", zap.String("task_type", taskType), zap.Int("hits", hits))
	}
	if len(missing) == 0 {
		return out, nil
	}
	res, err := embedMissing(ctx, d.next, texts, missing, taskType)
	if err != nil {
		return nil, err
	}
	now := timeutil.NowUnix()
	for j, idx := range missing {
		out[idx] = res[j]
		if err := d.repo.Save(ctx, &model.EmbeddingCache{
			ModelName:   modelName,
			TaskType:    taskType,
			ContentHash: hashes[idx],
			Embedding:   res[j],
			Ctime:       now,
		}); err != nil {
			logutil.GetLogger(ctx).Warn("failed to cache embedding", zap.Error(err))
		}
	}
	return out, nil
}

func (d *dbEmbedder) ModelName() string {
	return d.next.ModelName()
}

// embedMissing embeds texts[idx] for every idx in missing, in that order.
func embedMissing(ctx context.Context, next ai.IEmbedder, texts []string, missing []int, taskType string) ([][]float32, error) {
	batch := make([]string, 0, len(missing))
	for _, idx := range missing {
		batch = append(batch, texts[idx])
	}
	res, err := next.Embed(ctx, batch, taskType)
	if err != nil {
		return nil, err
	}
	if len(res) != len(batch) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(res), len(batch))
	}
	return res, nil
}

func buildCacheKey(modelName, taskType, text string) (string, string, string) {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = "unknown"
	}
	hash := sha256.Sum256([]byte(text))
	contentHash := hex.EncodeToString(hash[:])
	return "embed:" + modelName + ":" + taskType + ":" + contentHash, contentHash, modelName
}
