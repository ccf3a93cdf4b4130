package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [Validate] for zero-valued fields.
const (
	DefaultHistoryLimit = 300
	DefaultTemperature  = 1.0
	DefaultMusicDir     = "music_files"
	DefaultHistoryFile  = "chat_context.json"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values and fills in
// defaults for optional fields. It returns a joined error listing all
// validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if err := cfg.Discord.Validate(); err != nil {
		errs = append(errs, err)
	}
	if cfg.Gemini.APIKey == "" {
		errs = append(errs, fmt.Errorf("gemini.api_key is required"))
	}

	if cfg.Chat.SystemPrompt == "" && cfg.Chat.SystemPromptFile != "" {
		prompt, err := os.ReadFile(cfg.Chat.SystemPromptFile)
		if err != nil {
			errs = append(errs, fmt.Errorf("chat.system_prompt_file: %w", err))
		} else {
			cfg.Chat.SystemPrompt = string(prompt)
		}
	}
	if cfg.Chat.Temperature == 0 {
		cfg.Chat.Temperature = DefaultTemperature
	}
	if cfg.Chat.Temperature < 0 || cfg.Chat.Temperature > 2 {
		errs = append(errs, fmt.Errorf("chat.temperature %.2f is out of range [0, 2]", cfg.Chat.Temperature))
	}
	if cfg.Chat.MaxTemperature != 0 && (cfg.Chat.MaxTemperature < cfg.Chat.Temperature || cfg.Chat.MaxTemperature > 2) {
		errs = append(errs, fmt.Errorf("chat.max_temperature %.2f must lie in [temperature, 2]", cfg.Chat.MaxTemperature))
	}
	if cfg.Chat.MaxTemperature != 0 && cfg.Chat.RampWindow <= 0 {
		errs = append(errs, fmt.Errorf("chat.ramp_window must be positive when max_temperature is set"))
	}
	if cfg.Chat.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("chat.history_limit must not be negative"))
	}
	if cfg.Chat.HistoryLimit == 0 {
		cfg.Chat.HistoryLimit = DefaultHistoryLimit
	}

	if cfg.Player.MusicDir == "" {
		cfg.Player.MusicDir = DefaultMusicDir
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageFile
	}
	if !cfg.Storage.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: file, postgres", cfg.Storage.Backend))
	}
	if cfg.Storage.Backend == StoragePostgres && cfg.Storage.PostgresDSN == "" {
		errs = append(errs, fmt.Errorf("storage.postgres_dsn is required when storage.backend is postgres"))
	}
	if cfg.Storage.FilePath == "" {
		cfg.Storage.FilePath = DefaultHistoryFile
	}

	return errors.Join(errs...)
}
