// Package config provides the configuration schema, loader, and validation
// for the PeaceMusic bot.
package config

import "github.com/Akinara666/PeaceMusic/internal/discord"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// StorageBackend selects where chat histories are persisted.
type StorageBackend string

const (
	// StorageFile persists histories to a JSON file. The default.
	StorageFile StorageBackend = "file"

	// StoragePostgres persists histories to a Postgres table.
	StoragePostgres StorageBackend = "postgres"
)

// IsValid reports whether b is a recognised storage backend.
func (b StorageBackend) IsValid() bool {
	return b == StorageFile || b == StoragePostgres
}

// Config is the root configuration structure for PeaceMusic.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Discord discord.Config `yaml:"discord"`
	Gemini  GeminiConfig   `yaml:"gemini"`
	Chat    ChatConfig     `yaml:"chat"`
	Player  PlayerConfig   `yaml:"player"`
	Storage StorageConfig  `yaml:"storage"`
}

// ServerConfig holds logging and ops endpoint settings.
type ServerConfig struct {
	// LogLevel controls verbosity. Default: info.
	LogLevel LogLevel `yaml:"log_level"`

	// OpsListenAddr is the TCP address for the /healthz, /readyz, and
	// /metrics endpoints (e.g. ":8080"). Empty disables the ops server.
	OpsListenAddr string `yaml:"ops_listen_addr"`
}

// GeminiConfig holds model provider settings.
type GeminiConfig struct {
	// APIKey authenticates against the Gemini API.
	APIKey string `yaml:"api_key"`

	// Model overrides the default generation model.
	Model string `yaml:"model"`
}

// ChatConfig tunes the conversation engine.
type ChatConfig struct {
	// SystemPrompt is the persona instruction sent with every request.
	SystemPrompt string `yaml:"system_prompt"`

	// SystemPromptFile reads the persona instruction from a file instead.
	// Takes effect only when SystemPrompt is empty.
	SystemPromptFile string `yaml:"system_prompt_file"`

	// Styles are optional reply-style modifiers; one is appended to the
	// system prompt per request, never the same one twice in a row.
	Styles []string `yaml:"styles"`

	// Temperature is the base sampling temperature. Default: 1.0.
	Temperature float64 `yaml:"temperature"`

	// MaxTemperature, RampStart, and RampWindow escalate the temperature
	// for long conversations: past RampStart turns the effective value
	// climbs linearly to MaxTemperature over RampWindow turns.
	MaxTemperature float64 `yaml:"max_temperature"`
	RampStart      int     `yaml:"ramp_start"`
	RampWindow     int     `yaml:"ramp_window"`

	// HistoryLimit bounds the number of turns kept per channel.
	// Default: 300.
	HistoryLimit int `yaml:"history_limit"`
}

// PlayerConfig tunes media resolution and playback.
type PlayerConfig struct {
	// MusicDir is where downloaded tracks are stored. Default: music_files.
	MusicDir string `yaml:"music_dir"`

	// CookiesFile is an optional cookies.txt passed to yt-dlp.
	CookiesFile string `yaml:"cookies_file"`
}

// StorageConfig selects the history persistence backend.
type StorageConfig struct {
	// Backend is "file" (default) or "postgres".
	Backend StorageBackend `yaml:"backend"`

	// FilePath is the history JSON file for the file backend.
	// Default: chat_context.json.
	FilePath string `yaml:"file_path"`

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string `yaml:"postgres_dsn"`
}
