package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"surfsense/internal/ratelimit"
	"surfsense/internal/security"
	"surfsense/internal/util"
	"surfsense/pkg/ai"
	"surfsense/pkg/storage"
	"surfsense/pkg/store"
	"surfsense/services/api/internal/app"
	"surfsense/services/api/internal/chatws"
	"surfsense/services/api/internal/config"
	"surfsense/services/api/internal/index"
	"surfsense/services/api/internal/podcast"
	"surfsense/services/api/internal/server"
)

// components holds everything serve needs to run and release.
type components struct {
	store    *store.GormStore
	redis    redis.UniversalClient
	index    *index.BleveIndex
	podcasts *podcast.Service
	server   *server.Server
}

func (c *components) close() {
	if c.index != nil {
		_ = c.index.Close()
	}
	if c.redis != nil {
		_ = c.redis.Close()
	}
	if c.store != nil {
		_ = c.store.Close()
	}
}

func build(ctx context.Context, cfg config.FileConfig) (_ *components, err error) {
	c := &components{}
	defer func() {
		if err != nil {
			c.close()
		}
	}()

	c.store, err = store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	c.redis, err = openRedis(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var revoker store.TokenRevoker = store.NewMemoryTokenRevoker()
	if c.redis != nil {
		revoker = store.NewRedisTokenRevoker(c.redis)
	}
	leeway, _ := config.ParseJWTLeeway(cfg.JWTLeeway)
	sessions, err := store.NewJWTSessionStore(cfg.SecretKey, cfg.TokenTTL(), revoker, store.JWTOptions{
		Algorithm: cfg.Algorithm,
		Leeway:    leeway,
	})
	if err != nil {
		return nil, fmt.Errorf("init sessions: %w", err)
	}

	c.index, err = index.OpenBleveIndex(cfg.IndexDir)
	if err != nil {
		return nil, err
	}
	objects, err := openObjects(cfg)
	if err != nil {
		return nil, err
	}

	model, err := ai.NewChatModel(cfg.LLM.SmartLLM, ai.ModelOptions{
		OpenAIAPIKey:  cfg.LLM.OpenAIAPIKey,
		OpenAIBaseURL: cfg.LLM.OpenAIBaseURL,
		OllamaURL:     cfg.LLM.OllamaURL,
		Temperature:   cfg.LLM.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("init chat model: %w", err)
	}
	if ai.IsLocal(cfg.LLM.SmartLLM) && strings.TrimSpace(cfg.LLM.OpenAIAPIKey) == "" {
		slog.Warn("no OpenAI key configured, podcast speech synthesis will fail")
	}
	speech := ai.NewOpenAISpeech(cfg.LLM.OpenAIBaseURL, cfg.LLM.OpenAIAPIKey, cfg.LLM.TTSModel)
	c.podcasts = podcast.NewService(c.store, objects, podcast.NewLLMSynthesizer(model, speech, objects))

	core, err := app.New(app.Config{
		Store:             c.store,
		Sessions:          sessions,
		APISecretKey:      cfg.APISecretKey,
		Index:             index.New(c.store, c.index),
		Podcasts:          c.podcasts,
		UploadConcurrency: cfg.UploadConcurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("init app: %w", err)
	}

	signup, login, err := limiters(cfg, c.redis)
	if err != nil {
		return nil, err
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	c.server, err = server.New(server.Config{
		App: core,
		Gateway: chatws.NewHandler(chatws.Config{
			Backend:         core,
			Model:           model,
			Registry:        chatws.NewRegistry(),
			AllowedOrigins:  cfg.CORSOrigins,
			MaxMessageBytes: cfg.MaxUploadBytes*4/3 + 4096,
		}),
		SignupLimiter:  signup,
		LoginLimiter:   login,
		Alerter:        security.NewAuditAlerter(c.redis, ""),
		TrustedProxies: trusted,
		CORSOrigins:    cfg.CORSOrigins,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// openRedis returns nil when no address is configured.
func openRedis(ctx context.Context, cfg config.FileConfig) (redis.UniversalClient, error) {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		slog.Info("redis not configured, using in-process rate limits and token revocation")
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func openObjects(cfg config.FileConfig) (storage.ObjectStore, error) {
	if strings.TrimSpace(cfg.Minio.Endpoint) != "" {
		return storage.NewMinioStore(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.Bucket, cfg.Minio.UseSSL)
	}
	return storage.NewFileStore(cfg.Podcast.Dir)
}

func limiters(cfg config.FileConfig, client redis.UniversalClient) (signup, login ratelimit.Limiter, err error) {
	if client == nil {
		return ratelimit.NewLocalLimiter(cfg.SignupRateLimitPerMinute, time.Minute),
			ratelimit.NewLocalLimiter(cfg.LoginRateLimitPerMinute, time.Minute), nil
	}
	signup, err = ratelimit.NewRedisFixedWindowLimiter(client, "surfsense:ratelimit:signup", cfg.SignupRateLimitPerMinute, time.Minute)
	if err != nil {
		return nil, nil, fmt.Errorf("init signup limiter: %w", err)
	}
	login, err = ratelimit.NewRedisFixedWindowLimiter(client, "surfsense:ratelimit:login", cfg.LoginRateLimitPerMinute, time.Minute)
	if err != nil {
		return nil, nil, fmt.Errorf("init login limiter: %w", err)
	}
	return signup, login, nil
}
