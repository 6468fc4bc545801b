package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/docsassist/internal/ai"
	"github.com/xxxsen/docsassist/internal/chunker"
	"github.com/xxxsen/docsassist/internal/config"
	"github.com/xxxsen/docsassist/internal/db"
	"github.com/xxxsen/docsassist/internal/embedcache"
	"github.com/xxxsen/docsassist/internal/extractor"
	"github.com/xxxsen/docsassist/internal/filestore"
	"github.com/xxxsen/docsassist/internal/handler"
	"github.com/xxxsen/docsassist/internal/job"
	"github.com/xxxsen/docsassist/internal/middleware"
	"github.com/xxxsen/docsassist/internal/rag"
	"github.com/xxxsen/docsassist/internal/repo"
	"github.com/xxxsen/docsassist/internal/schedule"
	"github.com/xxxsen/docsassist/internal/service"
	"github.com/xxxsen/docsassist/internal/vectorindex"
	"github.com/xxxsen/docsassist/internal/vectorstore"
)

func main() {
	var (
		configPath string
		full       bool
	)

	rootCmd := &cobra.Command{
		Use:   "docsassist",
		Short: "documentation assistant server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run docsassist server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return runServer(cfg, a)
		},
	}
	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")

	reindexCmd := &cobra.Command{
		Use:   "reindex",
		Short: "rebuild the vector index from stored chunks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return schedule.RunOnce(cmd.Context(), job.NewReconcileJob(a.reconcile, full))
		},
	}
	reindexCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	reindexCmd.Flags().BoolVar(&full, "full", false, "re-embed every completed document")

	rootCmd.AddCommand(runCmd, reindexCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", path))
	return cfg, nil
}

type app struct {
	db        *sql.DB
	vectors   vectorstore.IVectorStore
	manager   *ai.Manager
	cacheRepo *repo.EmbeddingCacheRepo

	ingest    *service.IngestService
	documents *service.DocumentService
	chat      *service.ChatService
	health    *service.HealthService
	reconcile *service.ReconcileService
}

func buildApp(cfg *config.Config) (*app, error) {
	conn, err := db.OpenAndMigrate(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	a := &app{db: conn}
	if err := a.init(cfg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(cfg *config.Config) error {
	docRepo := repo.NewDocumentRepo(a.db)
	chunkRepo := repo.NewChunkRepo(a.db)
	chatRepo := repo.NewChatRepo(a.db)
	a.cacheRepo = repo.NewEmbeddingCacheRepo(a.db)

	generator, err := ai.BuildGenerator(cfg.AI.Generators)
	if err != nil {
		return fmt.Errorf("init generator: %w", err)
	}
	embedder, err := ai.BuildEmbedder(cfg.AI.Embedders)
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}
	if cfg.EmbedCache.DBEnabled {
		embedder = embedcache.WrapDBCacheToEmbedder(embedder, a.cacheRepo)
	}
	embedder = embedcache.WrapLruCacheToEmbedder(embedder, cfg.EmbedCache.LRUSize, time.Duration(cfg.EmbedCache.LRUTTL)*time.Second)
	a.manager = ai.NewManager(generator, embedder, ai.ManagerConfig{
		Timeout: time.Duration(cfg.AI.Timeout) * time.Second,
	})

	a.vectors, err = vectorstore.New(cfg.VectorStore)
	if err != nil {
		return fmt.Errorf("init vector store: %w", err)
	}
	files, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}
	ch, err := chunker.New(cfg.Chunker.ChunkSize, cfg.Chunker.Overlap)
	if err != nil {
		return fmt.Errorf("init chunker: %w", err)
	}
	ext := extractor.New(extractor.Config{
		Timeout:   time.Duration(cfg.Extractor.FetchTimeout) * time.Second,
		UserAgent: cfg.Extractor.UserAgent,
	})
	index := vectorindex.New(a.vectors, a.manager)

	a.documents = service.NewDocumentService(docRepo, chunkRepo, index, files)
	a.ingest = service.NewIngestService(docRepo, ext, ch, index, files)
	generatorRAG := rag.New(index, a.manager, rag.Config{
		TopK:        cfg.Retrieval.TopK,
		Temperature: cfg.Sampling.Temperature,
		TopP:        cfg.Sampling.TopP,
		MaxTokens:   cfg.Sampling.MaxTokens,
	}, rag.WithSourceChecker(a.documents))
	a.chat = service.NewChatService(chatRepo, generatorRAG)
	a.health = service.NewHealthService(docRepo, chunkRepo, chatRepo, index, a.manager)
	a.reconcile = service.NewReconcileService(docRepo, chunkRepo, index)
	return nil
}

func (a *app) Close() {
	if a.vectors != nil {
		_ = a.vectors.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func runServer(cfg *config.Config, a *app) error {
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("db_path", cfg.DBPath),
		zap.String("file_store", cfg.FileStore.Type),
		zap.String("vector_store", cfg.VectorStore.Type),
		zap.String("embed_model", a.manager.ModelName()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewReconcileJob(a.reconcile, false), cfg.Jobs.ReconcileCron); err != nil {
		return err
	}
	if cfg.EmbedCache.DBEnabled {
		if err := scheduler.AddJob(job.NewEmbeddingCacheCleanupJob(a.cacheRepo, cfg.EmbedCache.MaxAgeDays), cfg.Jobs.EmbeddingCacheCleanupCron); err != nil {
			return err
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	deps := handler.RouterDeps{
		Documents:     handler.NewDocumentHandler(a.ingest, a.documents, cfg.Extractor.MaxUploadSize),
		Chat:          handler.NewChatHandler(a.chat),
		Health:        handler.NewHealthHandler(a.health),
		ChatRateLimit: time.Duration(cfg.ChatRateLimitMS) * time.Millisecond,
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", addr))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
