package main

import (
	"context"
	"fmt"
	"path"

	"github.com/Rrens/kb-chat/internal/config"
	"github.com/Rrens/kb-chat/internal/domain"
	"github.com/Rrens/kb-chat/internal/llm"
	"github.com/Rrens/kb-chat/internal/llm/anthropic"
	"github.com/Rrens/kb-chat/internal/llm/bedrock"
	"github.com/Rrens/kb-chat/internal/llm/deepseek"
	"github.com/Rrens/kb-chat/internal/llm/gemini"
	"github.com/Rrens/kb-chat/internal/llm/ollama"
	"github.com/Rrens/kb-chat/internal/llm/openai"
	"github.com/Rrens/kb-chat/internal/objectstore/gcs"
	"github.com/Rrens/kb-chat/internal/objectstore/local"
	"github.com/Rrens/kb-chat/internal/objectstore/s3"
	"github.com/Rrens/kb-chat/internal/repository"
	"github.com/Rrens/kb-chat/internal/repository/memory"
	"github.com/Rrens/kb-chat/internal/repository/mongo"
	"github.com/Rrens/kb-chat/internal/repository/postgres"
	"github.com/Rrens/kb-chat/internal/repository/redis"
	"github.com/Rrens/kb-chat/internal/repository/sqlite"
	"github.com/Rrens/kb-chat/internal/security"
	"github.com/rs/zerolog/log"
)

// resources collects shared clients and their cleanup in reverse order
type resources struct {
	cfg      *config.Config
	redis    *redis.Client
	closers  []func()
	purger   repository.Purger
	sessions domain.SessionStore
}

func (r *resources) onClose(fn func()) {
	r.closers = append(r.closers, fn)
}

func (r *resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func (r *resources) redisClient(ctx context.Context) (*redis.Client, error) {
	if r.redis != nil {
		return r.redis, nil
	}
	client, err := redis.NewClient(ctx, r.cfg.Redis)
	if err != nil {
		return nil, err
	}
	r.redis = client
	r.onClose(func() { _ = client.Close() })
	return client, nil
}

// openSessionStore connects the configured session backend
func (r *resources) openSessionStore(ctx context.Context) (domain.SessionStore, error) {
	ttl := r.cfg.Session.TTL

	switch r.cfg.Session.Backend {
	case "", "memory":
		store := memory.NewSessionStore(ttl)
		r.purger = store
		return store, nil

	case "redis":
		client, err := r.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return redis.NewSessionStore(client, ttl), nil

	case "sqlite":
		store, err := sqlite.Open(ctx, r.cfg.SQLite.Path, ttl)
		if err != nil {
			return nil, err
		}
		r.purger = store
		r.onClose(func() { _ = store.Close() })
		return store, nil

	case "postgres":
		if err := postgres.RunMigrations(r.cfg.Database.DSN(), r.cfg.Database.MigrationsURL); err != nil {
			return nil, err
		}
		store, err := postgres.Open(ctx, r.cfg.Database, ttl)
		if err != nil {
			return nil, err
		}
		r.onClose(store.Close)
		r.purger = store
		return store, nil

	case "mongo":
		store, err := mongo.Connect(ctx, r.cfg.Mongo, ttl)
		if err != nil {
			return nil, err
		}
		r.onClose(func() { _ = store.Close() })
		return store, nil

	default:
		return nil, fmt.Errorf("unknown session backend %q", r.cfg.Session.Backend)
	}
}

// keySetCache picks where fetched JWKS documents are shared
func (r *resources) keySetCache(ctx context.Context) (security.KeySetCache, error) {
	switch r.cfg.Auth.KeySetCache {
	case "", "memory":
		return security.NewMemoryKeySetCache(), nil
	case "redis":
		client, err := r.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return redis.NewKeySetCache(client), nil
	default:
		return nil, fmt.Errorf("unknown key set cache %q", r.cfg.Auth.KeySetCache)
	}
}

// openObjectStore connects the configured upload backend
func (r *resources) openObjectStore(ctx context.Context) (domain.ObjectStore, error) {
	switch r.cfg.Storage.Backend {
	case "", "local":
		return local.New(r.cfg.Storage.LocalDir)
	case "s3":
		return s3.New(ctx, r.cfg.Storage)
	case "gcs":
		store, err := gcs.New(ctx, r.cfg.Storage)
		if err != nil {
			return nil, err
		}
		r.onClose(func() { _ = store.Close() })
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", r.cfg.Storage.Backend)
	}
}

// newLLMRouter registers every configured generation backend
func newLLMRouter(ctx context.Context, cfg config.LLMConfig) *llm.Router {
	router := llm.NewRouter(cfg.DefaultProvider)

	log.Info().Str("default", cfg.DefaultProvider).Msg("initializing generation providers")

	if cfg.Bedrock.KnowledgeBaseID != "" {
		p, err := bedrock.NewProvider(ctx, cfg.Bedrock)
		if err != nil {
			log.Error().Err(err).Msg("failed to initialize bedrock provider")
		} else {
			log.Info().
				Str("knowledge_base_id", cfg.Bedrock.KnowledgeBaseID).
				Str("model", path.Base(cfg.Bedrock.ModelARN)).
				Msg("registering bedrock provider")
			router.RegisterProvider(p)
		}
	}
	if cfg.Ollama.Host != "" {
		log.Info().Str("host", cfg.Ollama.Host).Msg("registering ollama provider")
		router.RegisterProvider(ollama.NewProvider(cfg.Ollama.Host, cfg.Ollama.DefaultModel))
	}
	if cfg.OpenAI.APIKey != "" {
		router.RegisterProvider(openai.NewProvider(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL))
	}
	if cfg.Anthropic.APIKey != "" {
		router.RegisterProvider(anthropic.NewProvider(cfg.Anthropic.APIKey, cfg.Anthropic.Model))
	}
	if cfg.DeepSeek.APIKey != "" {
		router.RegisterProvider(deepseek.NewProvider(cfg.DeepSeek.APIKey, cfg.DeepSeek.Model))
	}
	if cfg.Gemini.APIKey != "" {
		router.RegisterProvider(gemini.NewProvider(cfg.Gemini))
	}

	if _, err := router.GetProvider(""); err != nil {
		log.Warn().Err(err).Msg("default generation provider is not registered; chat requests will fail")
	}
	return router
}
