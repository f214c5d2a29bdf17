package cmd

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	appName   = "brutal-match"
	envPrefix = "BRUTAL_MATCH"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Session SessionConfig `mapstructure:"session"`
	Game    GameConfig    `mapstructure:"game"`
	AI      AIConfig      `mapstructure:"ai"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	AllowedOrigins  []string      `mapstructure:"allowed-origins"`
	AudioClips      int           `mapstructure:"audio-clips" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout" validate:"gte=0"`
}

type SessionConfig struct {
	Backend  string        `mapstructure:"backend" validate:"oneof=memory redis"`
	RedisURL string        `mapstructure:"redis-url" validate:"required_if=Backend redis"`
	TTL      time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

type GameConfig struct {
	ScanDelay time.Duration `mapstructure:"scan-delay" validate:"gte=0"`
}

type AIConfig struct {
	Provider    string        `mapstructure:"provider" validate:"omitempty,oneof=gemini"`
	CallTimeout time.Duration `mapstructure:"call-timeout" validate:"gte=0"`
	Gemini      GeminiConfig  `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey       string       `mapstructure:"api-key"`
	APIKeyFile   string       `mapstructure:"api-key-file"`
	MaxRetries   int          `mapstructure:"max-retries" validate:"gte=0,lte=10"`
	MaxLogLength int          `mapstructure:"max-log-length" validate:"gte=0"`
	Voice        string       `mapstructure:"voice"`
	Models       ModelsConfig `mapstructure:"models"`
}

type ModelsConfig struct {
	Analysis string `mapstructure:"analysis"`
	Poster   string `mapstructure:"poster"`
	Venues   string `mapstructure:"venues"`
	Speech   string `mapstructure:"speech"`
	Chat     string `mapstructure:"chat"`
}

var defaults = map[string]any{
	"server.addr":               ":8080",
	"server.allowed-origins":    []string{"*"},
	"server.audio-clips":        64,
	"server.shutdown-timeout":   "10s",
	"session.backend":           "memory",
	"session.redis-url":         "",
	"session.ttl":               "24h",
	"game.scan-delay":           "3s",
	"ai.provider":               "gemini",
	"ai.call-timeout":           "90s",
	"ai.gemini.api-key":         "",
	"ai.gemini.api-key-file":    "",
	"ai.gemini.max-retries":     3,
	"ai.gemini.max-log-length":  200,
	"ai.gemini.voice":           "Charon",
	"ai.gemini.models.analysis": "",
	"ai.gemini.models.poster":   "",
	"ai.gemini.models.venues":   "",
	"ai.gemini.models.speech":   "",
	"ai.gemini.models.chat":     "",
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   appName,
		Short: "brutal-match runs the Brutal Match fighter matchmaking backend",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is brutal-match.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	if err := setupViper(viper.GetViper()); err != nil {
		log.Fatal(err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(appName)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// Without an explicit --config, running on defaults and env is fine.
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func setupViper(v *viper.Viper) error {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("ai.gemini.api-key", envPrefix+"_AI_GEMINI_API_KEY", "GEMINI_API_KEY"); err != nil {
		return fmt.Errorf("binding GEMINI_API_KEY environment variable: %w", err)
	}
	if err := v.BindEnv("ai.gemini.api-key-file", envPrefix+"_AI_GEMINI_API_KEY_FILE", "GEMINI_API_KEY_FILE"); err != nil {
		return fmt.Errorf("binding GEMINI_API_KEY_FILE environment variable: %w", err)
	}
	if err := v.BindEnv("session.redis-url", envPrefix+"_SESSION_REDIS_URL", "REDIS_URL"); err != nil {
		return fmt.Errorf("binding REDIS_URL environment variable: %w", err)
	}

	return nil
}

func getConfig() (*Config, error) {
	return decodeConfig(viper.GetViper())
}

// decodeConfig turns the merged settings into a validated Config.
func decodeConfig(v *viper.Viper) (*Config, error) {
	var config Config

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           &config,
	})
	if err != nil {
		return nil, fmt.Errorf("create config decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}
