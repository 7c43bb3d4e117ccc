// Load envs from .env
// Load YAML config
// Override with env vars
// Provide default values
// Validate config

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "configs/config.yaml"

const (
	TransportDiscord  = "discord"
	TransportTelegram = "telegram"

	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type Config struct {
	Transport string          `yaml:"transport"`
	Discord   DiscordConfig   `yaml:"discord"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	LLM       LLMConfig       `yaml:"llm"`
	Documents DocumentsConfig `yaml:"documents"`
	Session   SessionConfig   `yaml:"session"`
	API       APIConfig       `yaml:"api"`
	Log       LogConfig       `yaml:"log"`
}

type DiscordConfig struct {
	Token string `yaml:"token"`
}

type TelegramConfig struct {
	Token string `yaml:"token"`
}

type LLMConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	GeminiKey         string        `yaml:"gemini_key"`
	OpenAIKey         string        `yaml:"openai_key"`
	OpenAIBaseURL     string        `yaml:"openai_base_url"`
	Temperature       float32       `yaml:"temperature"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

type DocumentsConfig struct {
	AcceptDocx     bool   `yaml:"accept_docx"`
	DownloadDir    string `yaml:"download_dir"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

type SessionConfig struct {
	AskTimeout     time.Duration `yaml:"ask_timeout"`
	ChoiceAttempts int           `yaml:"choice_attempts"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	PruneInterval  time.Duration `yaml:"prune_interval"`
}

type APIConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads .env, then the YAML file at path (missing is fine), then
// environment overrides, fills defaults and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			slog.Warn("config file not found, using defaults", "path", path)
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("error parsing %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	overrides := map[string]*string{
		"TRANSPORT":          &c.Transport,
		"DISCORD_BOT_TOKEN":  &c.Discord.Token,
		"TELEGRAM_BOT_TOKEN": &c.Telegram.Token,
		"LLM_PROVIDER":       &c.LLM.Provider,
		"LLM_MODEL":          &c.LLM.Model,
		"GEMINI_KEY":         &c.LLM.GeminiKey,
		"OPENAI_API_KEY":     &c.LLM.OpenAIKey,
		"OPENAI_BASE_URL":    &c.LLM.OpenAIBaseURL,
		"LOG_LEVEL":          &c.Log.Level,
		"LOG_FORMAT":         &c.Log.Format,
	}
	for name, field := range overrides {
		if v := os.Getenv(name); v != "" {
			*field = v
		}
	}

	if portEnv := os.Getenv("PORT"); portEnv != "" {
		port, err := strconv.Atoi(portEnv)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", portEnv, err)
		}
		c.API.Port = port
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Transport == "" {
		c.Transport = TransportDiscord
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = ProviderGemini
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.7
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 60 * time.Second
	}
	if c.Documents.DownloadDir == "" {
		c.Documents.DownloadDir = "temp"
	}
	if c.Documents.MaxUploadBytes == 0 {
		c.Documents.MaxUploadBytes = 10 << 20
	}
	if c.Session.AskTimeout == 0 {
		c.Session.AskTimeout = 10 * time.Minute
	}
	if c.Session.ChoiceAttempts == 0 {
		c.Session.ChoiceAttempts = 2
	}
	if c.Session.IdleTimeout == 0 {
		c.Session.IdleTimeout = 24 * time.Hour
	}
	if c.Session.PruneInterval == 0 {
		c.Session.PruneInterval = 10 * time.Minute
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "color"
	}
}

// Validate reports every problem with c at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Transport {
	case TransportDiscord:
		if c.Discord.Token == "" {
			errs = append(errs, errors.New("DISCORD_BOT_TOKEN is required for the discord transport"))
		}
	case TransportTelegram:
		if c.Telegram.Token == "" {
			errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required for the telegram transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}

	switch c.LLM.Provider {
	case ProviderGemini:
		if c.LLM.GeminiKey == "" {
			errs = append(errs, errors.New("GEMINI_KEY is required for the gemini provider"))
		}
	case ProviderOpenAI:
		if c.LLM.OpenAIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider %q", c.LLM.Provider))
	}
	if modelMismatch(c.LLM.Provider, c.LLM.Model) {
		errs = append(errs, fmt.Errorf("llm model %q does not belong to the %s provider", c.LLM.Model, c.LLM.Provider))
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm temperature %.2f out of range [0, 2]", c.LLM.Temperature))
	}
	if c.LLM.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("llm requests_per_minute must not be negative"))
	}
	if c.Session.ChoiceAttempts < 1 {
		errs = append(errs, errors.New("session choice_attempts must be at least 1"))
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api port %d out of range", c.API.Port))
	}

	return errors.Join(errs...)
}

// modelMismatch catches a model name left over from the other provider.
func modelMismatch(provider, model string) bool {
	model = strings.ToLower(model)
	switch provider {
	case ProviderOpenAI:
		return strings.HasPrefix(model, "gemini")
	case ProviderGemini:
		return strings.HasPrefix(model, "gpt-")
	}
	return false
}
