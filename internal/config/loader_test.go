package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Akinara666/PeaceMusic/internal/config"
)

const minimalYAML = `
discord:
  token: bot-token
  chat_channel_id: "123456789"
gemini:
  api_key: ai-key
`

func loadString(t *testing.T, yaml string) (*config.Config, error) {
	t.Helper()
	return config.LoadFromReader(strings.NewReader(yaml))
}

func mustLoad(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := loadString(t, yaml)
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

func TestLoad_Minimal(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, minimalYAML)

	if cfg.Discord.Token != "bot-token" {
		t.Errorf("token = %q", cfg.Discord.Token)
	}
	if cfg.Discord.ChatChannelID != "123456789" {
		t.Errorf("chat_channel_id = %q", cfg.Discord.ChatChannelID)
	}
	if cfg.Gemini.APIKey != "ai-key" {
		t.Errorf("api_key = %q", cfg.Gemini.APIKey)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, minimalYAML)

	if cfg.Chat.HistoryLimit != config.DefaultHistoryLimit {
		t.Errorf("history_limit = %d, want %d", cfg.Chat.HistoryLimit, config.DefaultHistoryLimit)
	}
	if cfg.Chat.Temperature != config.DefaultTemperature {
		t.Errorf("temperature = %v, want %v", cfg.Chat.Temperature, config.DefaultTemperature)
	}
	if cfg.Player.MusicDir != config.DefaultMusicDir {
		t.Errorf("music_dir = %q, want %q", cfg.Player.MusicDir, config.DefaultMusicDir)
	}
	if cfg.Storage.Backend != config.StorageFile {
		t.Errorf("storage backend = %q, want file", cfg.Storage.Backend)
	}
	if cfg.Storage.FilePath != config.DefaultHistoryFile {
		t.Errorf("storage file_path = %q, want %q", cfg.Storage.FilePath, config.DefaultHistoryFile)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing token",
			yaml:    "gemini:\n  api_key: k\ndiscord:\n  chat_channel_id: \"1\"\n",
			wantErr: "token",
		},
		{
			name:    "missing api key",
			yaml:    "discord:\n  token: t\n  chat_channel_id: \"1\"\n",
			wantErr: "gemini.api_key",
		},
		{
			name:    "bad log level",
			yaml:    minimalYAML + "server:\n  log_level: loud\n",
			wantErr: "log_level",
		},
		{
			name:    "temperature out of range",
			yaml:    minimalYAML + "chat:\n  temperature: 3.5\n",
			wantErr: "temperature",
		},
		{
			name:    "max below base temperature",
			yaml:    minimalYAML + "chat:\n  temperature: 1.5\n  max_temperature: 1.0\n",
			wantErr: "max_temperature",
		},
		{
			name:    "ramp without window",
			yaml:    minimalYAML + "chat:\n  max_temperature: 2.0\n",
			wantErr: "ramp_window",
		},
		{
			name:    "negative history limit",
			yaml:    minimalYAML + "chat:\n  history_limit: -1\n",
			wantErr: "history_limit",
		},
		{
			name:    "unknown backend",
			yaml:    minimalYAML + "storage:\n  backend: redis\n",
			wantErr: "storage.backend",
		},
		{
			name:    "postgres without dsn",
			yaml:    minimalYAML + "storage:\n  backend: postgres\n",
			wantErr: "postgres_dsn",
		},
		{
			name:    "unknown field rejected",
			yaml:    minimalYAML + "surprise: true\n",
			wantErr: "surprise",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := loadString(t, tc.yaml)
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoad_SystemPromptFromFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	promptPath := filepath.Join(dir, "prompt.txt")
	if err := os.WriteFile(promptPath, []byte("You are a helpful DJ."), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := mustLoad(t, minimalYAML+"chat:\n  system_prompt_file: "+promptPath+"\n")
	if cfg.Chat.SystemPrompt != "You are a helpful DJ." {
		t.Errorf("system prompt = %q", cfg.Chat.SystemPrompt)
	}

	_, err := loadString(t, minimalYAML+"chat:\n  system_prompt_file: "+filepath.Join(dir, "missing.txt")+"\n")
	if err == nil {
		t.Error("expected an error for a missing prompt file")
	}
}

func TestLoad_InlinePromptWinsOverFile(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, minimalYAML+"chat:\n  system_prompt: inline\n  system_prompt_file: /does/not/exist\n")
	if cfg.Chat.SystemPrompt != "inline" {
		t.Errorf("system prompt = %q, want the inline value", cfg.Chat.SystemPrompt)
	}
}

func TestLoad_FileMissing(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	for _, lvl := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !lvl.IsValid() {
			t.Errorf("%q should be valid", lvl)
		}
	}
	if config.LogLevel("loud").IsValid() {
		t.Error("\"loud\" should be invalid")
	}
}
