package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"

	"knowbase/internal/api"
	chromemdb "knowbase/internal/db/chromem"
	"knowbase/internal/db/postgres"
	redisdb "knowbase/internal/db/redis"
	"knowbase/internal/domain/knowledge"
	"knowbase/internal/platform/config"
	applog "knowbase/internal/platform/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Config load failed: %v\n", err)
		os.Exit(1)
	}

	applog.Init(applog.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	svc := buildKnowledgeService(cfg)
	defer svc.Close()

	serverConfig := api.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	serverConfig.ReadTimeout = time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	serverConfig.WriteTimeout = time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second
	serverConfig.JWTSecret = cfg.Auth.JWTSecret
	serverConfig.JWTIssuer = cfg.Auth.JWTIssuer
	serverConfig.MaxFileMB = cfg.Knowledge.MaxFileSize
	server := api.NewServer(serverConfig, svc)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		applog.Info("🔄 Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Runtime.ShutdownTimeoutSeconds)*time.Second)
		defer cancel()

		if err := server.Stop(ctx); err != nil {
			applog.Errorf("❌ Server shutdown error: %v", err)
		}
	}()

	if err := server.Start(); err != nil && err.Error() != "http: Server closed" {
		applog.Fatalf("❌ Server error: %v", err)
	}

	applog.Info("👋 Server stopped")
}

// buildKnowledgeService 组装知识检索服务：嵌入 -> 向量索引 -> 可选目录持久化/入库锁
func buildKnowledgeService(cfg *config.AppConfig) *knowledge.Service {
	kbCfg := &cfg.Knowledge

	var index knowledge.VectorIndex
	if cfg.OpenAI.APIKey != "" && kbCfg.EmbeddingModel != "" {
		embedder := knowledge.NewOpenAIEmbedder(knowledge.OpenAIEmbedderConfig{
			BaseURL:        cfg.OpenAI.BaseURL,
			APIKey:         cfg.OpenAI.APIKey,
			Model:          kbCfg.EmbeddingModel,
			Dims:           kbCfg.EmbeddingDims,
			BatchSize:      kbCfg.EmbeddingBatchSize,
			TimeoutSeconds: cfg.Runtime.EmbeddingHTTPTimeoutSeconds,
		})
		applog.Infof("✅ Embedder initialized (model: %s, dims: %d)", kbCfg.EmbeddingModel, embedder.Dims())

		idx, err := chromemdb.NewIndex(chromemdb.Config{
			Path:       kbCfg.DataDir,
			Collection: kbCfg.Collection,
			Compress:   kbCfg.Compress,
		}, embedder)
		if err != nil {
			applog.Warnf("⚠️  Vector index init failed: %v (search disabled)", err)
		} else {
			index = idx
			applog.Infof("✅ Vector index ready (path: %s, collection: %s, docs: %d)", kbCfg.DataDir, kbCfg.Collection, idx.Count())
		}
	} else {
		applog.Warn("⚠️  No OPENAI_API_KEY or embedding model set, vector index disabled")
	}

	parsers := knowledge.NewParserRegistry(knowledge.ParserCapabilities{
		PDF:  knowledge.StaticCapability(true),
		DOCX: knowledge.StaticCapability(true),
	})
	applog.Infof("✅ Parser registry initialized (types: %s)", parsers.SupportedTypes())

	svc := knowledge.NewService(kbCfg, index, parsers)

	if cfg.Database.URL != "" {
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			applog.Warnf("⚠️  Failed to open database: %v (catalog persistence disabled)", err)
		} else {
			db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
			db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
			db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetimeSeconds) * time.Second)

			pingCtx, pingCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Runtime.DBPingTimeoutSeconds)*time.Second)
			err = db.PingContext(pingCtx)
			pingCancel()
			if err != nil {
				applog.Warnf("⚠️  Database ping failed: %v (catalog persistence disabled)", err)
			} else {
				applog.Info("✅ Connected to PostgreSQL")
				catalog := postgres.NewCatalog(db)
				if err := catalog.EnsureTable(context.Background()); err != nil {
					applog.Warnf("⚠️  Failed to ensure knowledge_documents table: %v", err)
				} else {
					applog.Info("✅ Document catalog table ready (knowledge_documents)")
				}
				svc.SetCatalog(catalog)
				if err := svc.LoadCatalog(context.Background()); err != nil {
					applog.Warnf("⚠️  Failed to load document catalog: %v", err)
				}
			}
		}
	} else {
		applog.Info("ℹ️  No DATABASE_URL set, catalog kept in memory only")
	}

	if cfg.Redis.URL != "" {
		opt, err := goredis.ParseURL(cfg.Redis.URL)
		if err != nil {
			applog.Warnf("⚠️  Invalid REDIS_URL: %v (ingest lock disabled)", err)
		} else {
			redisClient := goredis.NewClient(opt)
			pingCtx, pingCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Runtime.RedisPingTimeoutSeconds)*time.Second)
			err = redisClient.Ping(pingCtx).Err()
			pingCancel()
			if err != nil {
				applog.Warnf("⚠️  Redis connection failed: %v (ingest lock disabled)", err)
			} else {
				applog.Info("✅ Connected to Redis for ingest lock")
				svc.SetIngestLock(redisdb.NewIngestLock(redisClient))
			}
		}
	}

	return svc
}
