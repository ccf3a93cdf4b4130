package config

import "slices"

// Diff describes what changed between two loaded configs, split by how the
// change can be applied. Only the log level and the chat tuning knobs are
// hot-reloadable; everything else needs a restart.
type Diff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ChatChanged covers the system prompt, styles, and temperature
	// settings. The chat engine picks these up on its next cycle.
	ChatChanged bool

	// RestartRequired marks changes to the Discord token, model provider,
	// storage, player, or server wiring that a running process cannot
	// apply.
	RestartRequired bool
}

// Changed reports whether the diff carries any change at all.
func (d Diff) Changed() bool {
	return d.LogLevelChanged || d.ChatChanged || d.RestartRequired
}

// Compare returns the Diff between two configs.
func Compare(old, new *Config) Diff {
	d := Diff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Chat.SystemPrompt != new.Chat.SystemPrompt ||
		!slices.Equal(old.Chat.Styles, new.Chat.Styles) ||
		old.Chat.Temperature != new.Chat.Temperature ||
		old.Chat.MaxTemperature != new.Chat.MaxTemperature ||
		old.Chat.RampStart != new.Chat.RampStart ||
		old.Chat.RampWindow != new.Chat.RampWindow {
		d.ChatChanged = true
	}

	if old.Chat.HistoryLimit != new.Chat.HistoryLimit ||
		old.Server.OpsListenAddr != new.Server.OpsListenAddr ||
		old.Discord != new.Discord ||
		old.Gemini != new.Gemini ||
		old.Player != new.Player ||
		old.Storage != new.Storage {
		d.RestartRequired = true
	}

	return d
}
