package history_test

import (
	"context"
	"testing"

	"github.com/Akinara666/PeaceMusic/internal/history"
	"github.com/Akinara666/PeaceMusic/pkg/provider/model"
)

func textTurn(role model.Role, text string) *model.Turn {
	return model.NewTurn(role, model.TextPart(text))
}

func callTurn(name string) *model.Turn {
	return model.NewTurn(model.RoleModel, model.Part{FunctionCall: &model.FunctionCall{Name: name}})
}

func resultTurn(name string) *model.Turn {
	return model.NewTurn(model.RoleUser, model.Part{FunctionResponse: &model.FunctionResponse{
		Name:     name,
		Response: map[string]any{"result": "ok"},
	}})
}

func TestTrim(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		turns []*model.Turn
		limit int
		want  int
	}{
		{
			name: "under limit untouched",
			turns: []*model.Turn{
				textTurn(model.RoleUser, "hi"),
				textTurn(model.RoleModel, "hello"),
			},
			limit: 10,
			want:  2,
		},
		{
			name: "oldest dropped past limit",
			turns: []*model.Turn{
				textTurn(model.RoleUser, "a"),
				textTurn(model.RoleModel, "b"),
				textTurn(model.RoleUser, "c"),
			},
			limit: 2,
			want:  2,
		},
		{
			name: "trailing unanswered call dropped",
			turns: []*model.Turn{
				textTurn(model.RoleUser, "play something"),
				callTurn("play_music"),
			},
			limit: 10,
			want:  1,
		},
		{
			name: "leading call fragment dropped",
			turns: []*model.Turn{
				callTurn("play_music"),
				resultTurn("play_music"),
				textTurn(model.RoleModel, "done"),
			},
			limit: 10,
			want:  1,
		},
		{
			name: "leading result fragment dropped",
			turns: []*model.Turn{
				resultTurn("play_music"),
				textTurn(model.RoleModel, "queued it"),
			},
			limit: 10,
			want:  1,
		},
		{
			name: "limit cut exposing fragments cleans both ends",
			turns: []*model.Turn{
				textTurn(model.RoleUser, "old"),
				callTurn("play_music"),
				resultTurn("play_music"),
				textTurn(model.RoleModel, "sure"),
				callTurn("skip_music"),
			},
			limit: 4,
			want:  1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := history.Trim(tc.turns, tc.limit)
			if len(got) != tc.want {
				t.Fatalf("Trim returned %d turns, want %d", len(got), tc.want)
			}
			// Invariants must hold on the output.
			if len(got) > tc.limit {
				t.Errorf("result exceeds limit: %d > %d", len(got), tc.limit)
			}
			again := history.Trim(got, tc.limit)
			if len(again) != len(got) {
				t.Errorf("Trim is not idempotent: %d then %d", len(got), len(again))
			}
		})
	}
}

func TestTrim_PreservesRecencyOrder(t *testing.T) {
	t.Parallel()
	turns := []*model.Turn{
		textTurn(model.RoleUser, "one"),
		textTurn(model.RoleModel, "two"),
		textTurn(model.RoleUser, "three"),
		textTurn(model.RoleModel, "four"),
	}
	got := history.Trim(turns, 2)
	if len(got) != 2 {
		t.Fatalf("got %d turns, want 2", len(got))
	}
	if got[0].Parts[0].Text != "three" || got[1].Parts[0].Text != "four" {
		t.Errorf("Trim dropped the wrong end: got %q, %q", got[0].Parts[0].Text, got[1].Parts[0].Text)
	}
}

// memBackend is an in-memory Backend for store tests.
type memBackend struct {
	data     map[string][]*model.Turn
	loadErr  error
	persists int
}

func (b *memBackend) Load(context.Context) (map[string][]*model.Turn, error) {
	return b.data, b.loadErr
}

func (b *memBackend) Persist(_ context.Context, snapshot map[string][]*model.Turn) error {
	b.data = snapshot
	b.persists++
	return nil
}

func TestStore_GetCreatesOnce(t *testing.T) {
	t.Parallel()
	s := history.NewStore(10, &memBackend{})
	a := s.Get("chan-1")
	b := s.Get("chan-1")
	if a != b {
		t.Error("Get returned distinct conversations for the same channel")
	}
	if a.ChannelID != "chan-1" {
		t.Errorf("ChannelID = %q, want chan-1", a.ChannelID)
	}
}

func TestStore_LoadDegradesOnError(t *testing.T) {
	t.Parallel()
	s := history.NewStore(10, &memBackend{loadErr: context.DeadlineExceeded})
	s.Load(context.Background())
	if got := s.Get("chan-1").Len(); got != 0 {
		t.Errorf("conversation length after failed load = %d, want 0", got)
	}
}

func TestStore_LoadTrimsStoredTurns(t *testing.T) {
	t.Parallel()
	backend := &memBackend{data: map[string][]*model.Turn{
		"chan-1": {
			textTurn(model.RoleUser, "a"),
			textTurn(model.RoleModel, "b"),
			textTurn(model.RoleUser, "c"),
		},
	}}
	s := history.NewStore(2, backend)
	s.Load(context.Background())
	if got := s.Get("chan-1").Len(); got != 2 {
		t.Errorf("loaded conversation length = %d, want 2", got)
	}
}

func TestStore_SnapshotConsistentUnderConcurrentMutation(t *testing.T) {
	t.Parallel()
	s := history.NewStore(50, &memBackend{})
	conv := s.Get("chan-1")
	conv.Append(model.NewTurn(model.RoleUser,
		model.Part{FileData: &model.FileData{URI: "files/abc", MIMEType: "image/png"}}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			conv.Append(textTurn(model.RoleModel, "reply"))
			conv.Mutate(func(turns []*model.Turn) []*model.Turn {
				turns[0].Parts[0] = model.TextPart("[Expired Attachment]")
				return turns
			})
		}
	}()

	for i := 0; i < 200; i++ {
		snap := s.Snapshot()
		for _, turn := range snap["chan-1"] {
			for _, p := range turn.Parts {
				// A part must be exactly one variant; a torn read shows up
				// as a part with zero or two variants set.
				set := 0
				if p.Text != "" {
					set++
				}
				if p.FileData != nil {
					set++
				}
				if p.FunctionCall != nil {
					set++
				}
				if p.FunctionResponse != nil {
					set++
				}
				if set != 1 {
					t.Fatalf("snapshot observed torn part: %+v", p)
				}
			}
		}
	}
	<-done
}

func TestStore_SnapshotCopiesAreIsolated(t *testing.T) {
	t.Parallel()
	s := history.NewStore(10, &memBackend{})
	conv := s.Get("chan-1")
	conv.Append(textTurn(model.RoleUser, "original"))

	snap := s.Snapshot()
	conv.Mutate(func(turns []*model.Turn) []*model.Turn {
		turns[0].Parts[0] = model.TextPart("mutated")
		return turns
	})

	if got := snap["chan-1"][0].Parts[0].Text; got != "original" {
		t.Errorf("snapshot part changed after mutation: %q", got)
	}
}

func TestStore_SnapshotFiltersEmpty(t *testing.T) {
	t.Parallel()
	s := history.NewStore(10, &memBackend{})
	s.Get("empty-chan")
	conv := s.Get("chan-1")
	conv.Append(textTurn(model.RoleUser, "hello"))
	conv.Append(model.NewTurn(model.RoleModel)) // no parts

	snap := s.Snapshot()
	if _, ok := snap["empty-chan"]; ok {
		t.Error("snapshot contains conversation with no turns")
	}
	if got := len(snap["chan-1"]); got != 1 {
		t.Errorf("snapshot kept %d turns for chan-1, want 1", got)
	}
}
