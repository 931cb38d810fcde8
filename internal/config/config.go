package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/cramplan/internal/genai"
)

const (
	keychainService = "cramplan"
	keychainAccount = "gemini_api_key"
)

// ErrMissingAPIKey is returned by RequireAPIKey when no key is configured.
var ErrMissingAPIKey = errors.New("missing required config: Gemini API key")

type Config struct {
	Server  ServerConfig
	GenAI   GenAIConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

type GenAIConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	MaxRetries     int
	InitialBackoff string
	Timeout        string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		GenAI: GenAIConfig{
			BaseURL:        genai.DefaultBaseURL,
			Model:          genai.DefaultModel,
			MaxRetries:     genai.DefaultMaxRetries,
			InitialBackoff: "1s",
			Timeout:        "60s",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.cramplan.app) and the API
// key falls back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/cramplan/config.json
// and the API key falls back to $XDG_DATA_HOME/cramplan/secrets.json.
//
// Environment variables (CRAMPLAN_*) override backend values on all platforms.
// A missing API key is not an error here; see RequireAPIKey.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts Keychain access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.GenAI.APIKey == "" {
		if key, err := kc.Get(keychainService, keychainAccount); err == nil && key != "" {
			cfg.GenAI.APIKey = key
		}
	}

	if _, err := cfg.GenAI.Options(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// RequireAPIKey fails with setup instructions when no API key is configured.
// Only commands that call the generation endpoint need it.
func RequireAPIKey(cfg Config) error {
	if cfg.GenAI.APIKey != "" {
		return nil
	}
	return fmt.Errorf("%w. Set it via environment variable CRAMPLAN_GEMINI_API_KEY, `cramplan config set-key`%s",
		ErrMissingAPIKey, apiKeyHint())
}

// Options converts the config into client options. A max_retries below 1
// still makes one attempt.
func (c GenAIConfig) Options() (genai.Options, error) {
	backoff, err := time.ParseDuration(c.InitialBackoff)
	if err != nil {
		return genai.Options{}, fmt.Errorf("invalid genai.initial_backoff %q: %w", c.InitialBackoff, err)
	}
	timeout, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return genai.Options{}, fmt.Errorf("invalid genai.timeout %q: %w", c.Timeout, err)
	}
	retries := c.MaxRetries
	if retries < 1 {
		retries = 1
	}
	return genai.Options{
		BaseURL:        c.BaseURL,
		Model:          c.Model,
		MaxRetries:     retries,
		InitialBackoff: backoff,
		Timeout:        timeout,
	}, nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
