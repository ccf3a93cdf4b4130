package history_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Akinara666/PeaceMusic/internal/history"
	"github.com/Akinara666/PeaceMusic/pkg/provider/model"
)

func newFileBackend(t *testing.T) (*history.FileBackend, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat_context.json")
	b, err := history.NewFileBackend(path)
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	return b, path
}

func TestFileBackend_RoundTrip(t *testing.T) {
	t.Parallel()
	b, _ := newFileBackend(t)
	ctx := context.Background()

	snapshot := map[string][]*model.Turn{
		"chan-1": {
			textTurn(model.RoleUser, "alice: play something"),
			callTurn("play_music"),
			resultTurn("play_music"),
			model.NewTurn(model.RoleUser,
				model.Part{FileData: &model.FileData{URI: "https://files.test/files/abc", MIMEType: "image/png"}},
				model.TextPart("look at this"),
			),
		},
	}
	if err := b.Persist(ctx, snapshot); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	loaded, err := b.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	turns := loaded["chan-1"]
	if len(turns) != 4 {
		t.Fatalf("loaded %d turns, want 4", len(turns))
	}
	if turns[0].Role != model.RoleUser || turns[0].Parts[0].Text != "alice: play something" {
		t.Errorf("turn 0 mangled: %+v", turns[0])
	}
	if turns[1].Parts[0].FunctionCall == nil || turns[1].Parts[0].FunctionCall.Name != "play_music" {
		t.Errorf("turn 1 lost its function call: %+v", turns[1])
	}
	if turns[2].Parts[0].FunctionResponse == nil {
		t.Errorf("turn 2 lost its function response: %+v", turns[2])
	}
	fd := turns[3].Parts[0].FileData
	if fd == nil || fd.URI != "https://files.test/files/abc" || fd.MIMEType != "image/png" {
		t.Errorf("turn 3 lost its file data: %+v", turns[3])
	}
}

func TestFileBackend_MissingFileIsEmpty(t *testing.T) {
	t.Parallel()
	b, _ := newFileBackend(t)
	loaded, err := b.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("loaded %d channels from missing file, want 0", len(loaded))
	}
}

func TestFileBackend_EmptySnapshotRemovesFile(t *testing.T) {
	t.Parallel()
	b, path := newFileBackend(t)
	ctx := context.Background()

	full := map[string][]*model.Turn{"chan-1": {textTurn(model.RoleUser, "hi")}}
	if err := b.Persist(ctx, full); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("context file not written: %v", err)
	}

	if err := b.Persist(ctx, map[string][]*model.Turn{}); err != nil {
		t.Fatalf("Persist empty: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("context file still exists after persisting an empty snapshot")
	}
	// Removing again must not fail.
	if err := b.Persist(ctx, nil); err != nil {
		t.Errorf("Persist empty twice: %v", err)
	}
}

func TestFileBackend_NoTempFileLeftBehind(t *testing.T) {
	t.Parallel()
	b, path := newFileBackend(t)
	if err := b.Persist(context.Background(), map[string][]*model.Turn{
		"chan-1": {textTurn(model.RoleUser, "hi")},
	}); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after persist")
	}
}

func TestFileBackend_CrashBeforeRenameKeepsOldSnapshot(t *testing.T) {
	t.Parallel()
	b, path := newFileBackend(t)
	ctx := context.Background()

	if err := b.Persist(ctx, map[string][]*model.Turn{
		"chan-1": {textTurn(model.RoleUser, "before the crash")},
	}); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	// Simulate a process dying after the temp write but before the
	// rename: a half-written temp file is on disk, the real file is the
	// previous snapshot.
	if err := os.WriteFile(path+".tmp", []byte(`{"chan-1": [{"ro`), 0o644); err != nil {
		t.Fatal(err)
	}

	loaded, err := b.Load(ctx)
	if err != nil {
		t.Fatalf("Load after simulated crash: %v", err)
	}
	if got := loaded["chan-1"][0].Parts[0].Text; got != "before the crash" {
		t.Errorf("loaded %q, want the pre-crash snapshot", got)
	}

	// The next persist overwrites the stale temp file and completes.
	if err := b.Persist(ctx, map[string][]*model.Turn{
		"chan-1": {textTurn(model.RoleUser, "after recovery")},
	}); err != nil {
		t.Fatalf("Persist after simulated crash: %v", err)
	}
	loaded, err = b.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := loaded["chan-1"][0].Parts[0].Text; got != "after recovery" {
		t.Errorf("loaded %q, want the recovered snapshot", got)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("stale temp file still present after recovery persist")
	}
}

func TestFileBackend_SkipsMalformedTurns(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "chat_context.json")
	raw := `{
  "chan-1": [
    {"role": "user", "parts": [{"type": "text", "text": "hello"}]},
    {"role": "alien", "parts": [{"type": "text", "text": "bad role"}]},
    "not even an object"
  ],
  "chan-2": [
    {"role": "nonsense"}
  ]
}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	b, err := history.NewFileBackend(path)
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}

	loaded, err := b.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded["chan-1"]) != 1 {
		t.Errorf("chan-1 kept %d turns, want 1", len(loaded["chan-1"]))
	}
	if _, ok := loaded["chan-2"]; ok {
		t.Error("chan-2 with only malformed turns should be omitted")
	}
}
