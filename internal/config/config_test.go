package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvPrefix + "SILENCE_TURN_END_MS", EnvPrefix + "BARGE_IN_RMS",
		EnvPrefix + "SILENCE_RMS", EnvPrefix + "MIN_VOICED_FRAMES",
		EnvPrefix + "SESSION_TIMEOUT", EnvPrefix + "LLM_PROVIDER", EnvPrefix + "LLM_MODEL",
		"PORT", "ELEVENLABS_VOICE_ID", "ELEVENLABS_MODEL_ID",
		"SARVAM_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "ELEVENLABS_API_KEY",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != 8000 {
		t.Fatalf("expected default port 8000, got %d", cfg.Port)
	}
	if cfg.SilenceTurnEndMS != 700 {
		t.Fatalf("expected default silence_turn_end_ms 700, got %d", cfg.SilenceTurnEndMS)
	}
	if cfg.BargeInRMS != 800 {
		t.Fatalf("expected default barge_in_rms 800, got %d", cfg.BargeInRMS)
	}
	if cfg.SilenceRMS != 150 {
		t.Fatalf("expected default silence_rms 150, got %d", cfg.SilenceRMS)
	}
	if cfg.MinVoicedFrames != 5 {
		t.Fatalf("expected default min_voiced_frames 5, got %d", cfg.MinVoicedFrames)
	}
	if cfg.LLMProvider != "openai" {
		t.Fatalf("expected default llm_provider openai, got %q", cfg.LLMProvider)
	}
	if cfg.LLMModel != "gpt-4o-mini" {
		t.Fatalf("expected default llm_model, got %q", cfg.LLMModel)
	}
	if cfg.ElevenLabsModelID != "eleven_turbo_v2_5" {
		t.Fatalf("expected default elevenlabs model id, got %q", cfg.ElevenLabsModelID)
	}
}

func TestYAMLLoading(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	yamlContent := `
port: 9000
silence_turn_end_ms: 900
barge_in_rms: 1000
silence_rms: 200
min_voiced_frames: 8
session_timeout: 90s
llm_provider: anthropic
llm_model: claude-haiku
elevenlabs_voice_id: custom-voice
elevenlabs_model_id: custom-model
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != 9000 {
		t.Fatalf("expected yaml port, got %d", cfg.Port)
	}
	if cfg.SilenceTurnEndMS != 900 {
		t.Fatalf("expected yaml silence_turn_end_ms, got %d", cfg.SilenceTurnEndMS)
	}
	if cfg.SessionTimeout != "90s" {
		t.Fatalf("expected yaml session_timeout, got %q", cfg.SessionTimeout)
	}
	if cfg.LLMProvider != "anthropic" {
		t.Fatalf("expected yaml llm_provider, got %q", cfg.LLMProvider)
	}
	if cfg.ElevenLabsVoiceID != "custom-voice" {
		t.Fatalf("expected yaml elevenlabs_voice_id, got %q", cfg.ElevenLabsVoiceID)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	yamlContent := `
port: 9000
llm_model: from-yaml
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	clearEnv(t)
	t.Setenv("PORT", "7777")
	t.Setenv(EnvPrefix+"LLM_MODEL", "from-env")

	cfg, _, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != 7777 {
		t.Fatalf("expected env override for port, got %d", cfg.Port)
	}
	if cfg.LLMModel != "from-env" {
		t.Fatalf("expected env override for llm_model, got %q", cfg.LLMModel)
	}
}

func TestSecretsFromEnvOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv("SARVAM_API_KEY", "sarvam-secret")
	t.Setenv("OPENAI_API_KEY", "oai-secret")
	t.Setenv("ELEVENLABS_API_KEY", "el-secret")

	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.SarvamAPIKey != "sarvam-secret" {
		t.Fatalf("expected sarvam key from env, got %q", cfg.SarvamAPIKey)
	}
	if cfg.OpenAIAPIKey != "oai-secret" {
		t.Fatalf("expected openai key from env, got %q", cfg.OpenAIAPIKey)
	}
	if cfg.ElevenLabsAPIKey != "el-secret" {
		t.Fatalf("expected elevenlabs key from env, got %q", cfg.ElevenLabsAPIKey)
	}
}

func TestSecretsIgnoredInYAML(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	yamlContent := `
sarvam_api_key: should-be-ignored
openai_api_key: also-ignored
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.SarvamAPIKey != "" {
		t.Fatalf("expected empty sarvam key (yaml should be ignored), got %q", cfg.SarvamAPIKey)
	}
	if cfg.OpenAIAPIKey != "" {
		t.Fatalf("expected empty openai key (yaml should be ignored), got %q", cfg.OpenAIAPIKey)
	}
}

func TestValidationWarningsWhenUnconfigured(t *testing.T) {
	clearEnv(t)

	_, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	var sarvamWarning, elevenlabsWarning, openaiWarning bool
	for _, w := range warnings {
		if strings.Contains(w, "SARVAM_API_KEY") {
			sarvamWarning = true
		}
		if strings.Contains(w, "ELEVENLABS_API_KEY") {
			elevenlabsWarning = true
		}
		if strings.Contains(w, "OPENAI_API_KEY") {
			openaiWarning = true
		}
	}

	if !sarvamWarning {
		t.Fatalf("expected SARVAM_API_KEY warning, got: %v", warnings)
	}
	if !elevenlabsWarning {
		t.Fatalf("expected ELEVENLABS_API_KEY warning, got: %v", warnings)
	}
	if !openaiWarning {
		t.Fatalf("expected OPENAI_API_KEY warning for default provider openai, got: %v", warnings)
	}
}

func TestValidationNoWarningsWhenConfigured(t *testing.T) {
	clearEnv(t)
	t.Setenv("SARVAM_API_KEY", "key")
	t.Setenv("OPENAI_API_KEY", "key")
	t.Setenv("ELEVENLABS_API_KEY", "key")

	_, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(warnings) != 0 {
		t.Fatalf("expected no warnings when fully configured, got: %v", warnings)
	}
}

func TestValidationWarnsOnUnknownProviderAndFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("SARVAM_API_KEY", "key")
	t.Setenv("ELEVENLABS_API_KEY", "key")
	t.Setenv("OPENAI_API_KEY", "key")
	t.Setenv(EnvPrefix+"LLM_PROVIDER", "carrier-pigeon")

	cfg, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LLMProvider != "openai" {
		t.Fatalf("expected fallback to openai, got %q", cfg.LLMProvider)
	}

	found := false
	for _, w := range warnings {
		if strings.Contains(w, "Unknown") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected unknown-provider warning, got: %v", warnings)
	}
}

func TestInvalidSessionTimeoutWarning(t *testing.T) {
	clearEnv(t)
	t.Setenv("SARVAM_API_KEY", "key")
	t.Setenv("ELEVENLABS_API_KEY", "key")
	t.Setenv("OPENAI_API_KEY", "key")
	t.Setenv(EnvPrefix+"SESSION_TIMEOUT", "not-a-duration")

	cfg, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	found := false
	for _, w := range warnings {
		if strings.Contains(w, "session_timeout") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected session_timeout warning, got: %v", warnings)
	}

	if cfg.ParsedSessionTimeout() != 60*time.Second {
		t.Fatalf("expected fallback to 60s, got %v", cfg.ParsedSessionTimeout())
	}
}

func TestMissingConfigFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, _, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("Load should not fail for missing config file, got: %v", err)
	}

	if cfg.Port != 8000 {
		t.Fatalf("expected defaults when config file missing, got port=%d", cfg.Port)
	}
}

func TestInvalidConfigFileReturnsError(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(configPath, []byte(":::invalid yaml"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	clearEnv(t)

	_, _, err := Load(configPath)
	if err == nil {
		t.Fatal("expected error for invalid yaml, got nil")
	}
}
