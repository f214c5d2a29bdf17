package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/zenexasolutions/Fight/internal/ai/gemini"
	"github.com/zenexasolutions/Fight/internal/logger"
	"github.com/zenexasolutions/Fight/internal/secrets"
	"github.com/zenexasolutions/Fight/internal/session"
)

func newLogger() (*zap.Logger, error) {
	return logger.New(logger.Options{
		JSON:  viper.GetBool("json"),
		Debug: viper.GetBool("debug"),
	})
}

func resolveAPIKey(cfg GeminiConfig) (string, error) {
	key, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.APIKey,
		File:  cfg.APIKeyFile,
	})
	if err != nil {
		return "", fmt.Errorf("%w (set ai.gemini.api-key-file, GEMINI_API_KEY_FILE or GEMINI_API_KEY)", err)
	}
	return key, nil
}

func newGateway(ctx context.Context, cfg AIConfig, log *zap.Logger) (*gemini.Gateway, error) {
	apiKey, err := resolveAPIKey(cfg.Gemini)
	if err != nil {
		return nil, err
	}

	models := gemini.Models{
		Analysis: cfg.Gemini.Models.Analysis,
		Poster:   cfg.Gemini.Models.Poster,
		Venues:   cfg.Gemini.Models.Venues,
		Speech:   cfg.Gemini.Models.Speech,
		Chat:     cfg.Gemini.Models.Chat,
	}

	genLogger := log.With(
		zap.String(logger.FieldProvider, "gemini"),
		zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries),
	)

	generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Models.Chat, cfg.Gemini.MaxRetries, genLogger)
	if err != nil {
		return nil, err
	}

	return gemini.NewGateway(generator, gemini.Options{
		Models:       models,
		Voice:        cfg.Gemini.Voice,
		MaxLogLength: cfg.Gemini.MaxLogLength,
	}, log), nil
}

// storeCloser releases whatever the store holds open.
type storeCloser func() error

func newStore(ctx context.Context, cfg SessionConfig) (session.Store, storeCloser, error) {
	switch cfg.Backend {
	case "redis":
		store, err := session.DialRedis(ctx, cfg.RedisURL, cfg.TTL)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return session.NewMemory(cfg.TTL), func() error { return nil }, nil
	}
}
