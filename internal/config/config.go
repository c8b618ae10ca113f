package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces voxrelay's own tuning variables. Vendor
// credentials (SARVAM_API_KEY, OPENAI_API_KEY, etc.) are unprefixed,
// matching their upstream SDKs' own conventions.
const EnvPrefix = "VOXRELAY_"

// Config holds all gateway configuration. Secrets (API keys) are loaded
// exclusively from environment variables and never appear in the config
// file, whether read from YAML or not.
type Config struct {
	Port int `yaml:"port"`

	SilenceTurnEndMS int    `yaml:"silence_turn_end_ms"`
	BargeInRMS       int    `yaml:"barge_in_rms"`
	SilenceRMS       int    `yaml:"silence_rms"`
	MinVoicedFrames  int    `yaml:"min_voiced_frames"`
	SessionTimeout   string `yaml:"session_timeout"`

	LLMProvider string `yaml:"llm_provider"`
	LLMModel    string `yaml:"llm_model"`

	ElevenLabsVoiceID string `yaml:"elevenlabs_voice_id"`
	ElevenLabsModelID string `yaml:"elevenlabs_model_id"`

	// Secrets — env vars only, never serialized to/from YAML.
	SarvamAPIKey     string `yaml:"-"`
	OpenAIAPIKey     string `yaml:"-"`
	AnthropicAPIKey  string `yaml:"-"`
	GeminiAPIKey     string `yaml:"-"`
	ElevenLabsAPIKey string `yaml:"-"`
}

func defaults() Config {
	return Config{
		Port:              8000,
		SilenceTurnEndMS:  700,
		BargeInRMS:        800,
		SilenceRMS:        150,
		MinVoicedFrames:   5,
		SessionTimeout:    "60s",
		LLMProvider:       "openai",
		LLMModel:          "gpt-4o-mini",
		ElevenLabsModelID: "eleven_turbo_v2_5",
	}
}

// Load reads configuration from a YAML file (if it exists and path is
// non-empty), applies environment variable overrides, loads secrets, and
// validates the result. It returns the config, any validation warnings,
// and an error only if the file exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedSessionTimeout returns SessionTimeout as a time.Duration, falling
// back to 60s if the value is invalid.
func (c *Config) ParsedSessionTimeout() time.Duration {
	d, err := time.ParseDuration(c.SessionTimeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && port > 0 {
			cfg.Port = port
		}
	}
	if v := os.Getenv(EnvPrefix + "SILENCE_TURN_END_MS"); v != "" {
		if ms, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && ms > 0 {
			cfg.SilenceTurnEndMS = ms
		}
	}
	if v := os.Getenv(EnvPrefix + "BARGE_IN_RMS"); v != "" {
		if rms, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && rms > 0 {
			cfg.BargeInRMS = rms
		}
	}
	if v := os.Getenv(EnvPrefix + "SILENCE_RMS"); v != "" {
		if rms, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && rms > 0 {
			cfg.SilenceRMS = rms
		}
	}
	if v := os.Getenv(EnvPrefix + "MIN_VOICED_FRAMES"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			cfg.MinVoicedFrames = n
		}
	}
	if v := os.Getenv(EnvPrefix + "SESSION_TIMEOUT"); v != "" {
		cfg.SessionTimeout = v
	}
	if v := os.Getenv(EnvPrefix + "LLM_PROVIDER"); v != "" {
		cfg.LLMProvider = v
	}
	if v := os.Getenv(EnvPrefix + "LLM_MODEL"); v != "" {
		cfg.LLMModel = v
	}
	if v := os.Getenv("ELEVENLABS_VOICE_ID"); v != "" {
		cfg.ElevenLabsVoiceID = v
	}
	if v := os.Getenv("ELEVENLABS_MODEL_ID"); v != "" {
		cfg.ElevenLabsModelID = v
	}
}

func loadSecrets(cfg *Config) {
	cfg.SarvamAPIKey = os.Getenv("SARVAM_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.ElevenLabsAPIKey = os.Getenv("ELEVENLABS_API_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	if cfg.SarvamAPIKey == "" {
		warnings = append(warnings, "SARVAM_API_KEY not set — speech-to-text will fail for every turn.")
	}
	if cfg.ElevenLabsAPIKey == "" {
		warnings = append(warnings, "ELEVENLABS_API_KEY not set — text-to-speech will fail for every turn.")
	}

	switch cfg.LLMProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			warnings = append(warnings, "OPENAI_API_KEY not set but "+EnvPrefix+"LLM_PROVIDER=openai.")
		}
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			warnings = append(warnings, "ANTHROPIC_API_KEY not set but "+EnvPrefix+"LLM_PROVIDER=anthropic.")
		}
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			warnings = append(warnings, "GEMINI_API_KEY not set but "+EnvPrefix+"LLM_PROVIDER=gemini.")
		}
	default:
		warnings = append(warnings, fmt.Sprintf("Unknown "+EnvPrefix+"LLM_PROVIDER %q — falling back to openai.", cfg.LLMProvider))
		cfg.LLMProvider = "openai"
	}

	if _, err := time.ParseDuration(cfg.SessionTimeout); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid session_timeout %q — using default 60s.", cfg.SessionTimeout))
	}

	return warnings
}
