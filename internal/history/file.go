package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Akinara666/PeaceMusic/pkg/provider/model"
)

// Compile-time interface check.
var _ Backend = (*FileBackend)(nil)

// FileBackend stores the chat context as a single JSON file. Writes are
// atomic (temp file + rename) so a crash mid-write leaves the previous
// snapshot intact; an empty snapshot removes the file instead of writing
// an empty object.
type FileBackend struct {
	path string
}

// NewFileBackend creates a FileBackend writing to path. The parent
// directory is created if missing.
func NewFileBackend(path string) (*FileBackend, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: create context dir: %w", err)
		}
	}
	return &FileBackend{path: path}, nil
}

// Load implements [Backend]. A missing file yields an empty map; a turn
// that fails to parse is skipped with a log line; a channel whose every
// turn failed to parse is omitted entirely.
func (b *FileBackend) Load(_ context.Context) (map[string][]*model.Turn, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string][]*model.Turn{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: read %s: %w", b.path, err)
	}

	var raw map[string][]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("history: parse %s: %w", b.path, err)
	}

	out := make(map[string][]*model.Turn, len(raw))
	for channelID, entries := range raw {
		turns := decodeConversation(entries)
		if len(turns) == 0 {
			continue
		}
		if skipped := len(entries) - len(turns); skipped > 0 {
			slog.Warn("skipped malformed history entries", "channel", channelID, "skipped", skipped)
		}
		out[channelID] = turns
	}
	return out, nil
}

// Persist implements [Backend].
func (b *FileBackend) Persist(_ context.Context, snapshot map[string][]*model.Turn) error {
	encoded := encodeSnapshot(snapshot)
	if len(encoded) == 0 {
		if err := os.Remove(b.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("history: remove %s: %w", b.path, err)
		}
		return nil
	}

	data, err := json.MarshalIndent(encoded, "", "  ")
	if err != nil {
		return fmt.Errorf("history: encode snapshot: %w", err)
	}

	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("history: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return fmt.Errorf("history: rename %s: %w", tmp, err)
	}
	return nil
}
