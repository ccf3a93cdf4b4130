package tools_test

import (
	"testing"

	"github.com/Akinara666/PeaceMusic/internal/tools"
)

func TestParseKind(t *testing.T) {
	t.Parallel()
	known := []string{
		"play_music", "stop_music", "skip_music", "seek",
		"skip_music_by_name", "set_volume", "summon", "disconnect",
	}
	for _, name := range known {
		kind, ok := tools.ParseKind(name)
		if !ok {
			t.Errorf("ParseKind(%q) not recognised", name)
		}
		if kind.String() != name {
			t.Errorf("kind %v round-trips to %q, want %q", kind, kind.String(), name)
		}
	}
	if _, ok := tools.ParseKind("fire_missiles"); ok {
		t.Error("ParseKind accepted an undeclared tool name")
	}
}

func TestDecodeArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		kind    tools.Kind
		raw     map[string]any
		want    tools.Args
		wantErr bool
	}{
		{
			name: "play with song name",
			kind: tools.KindPlay,
			raw:  map[string]any{"song_name": "sandstorm"},
			want: tools.PlayArgs{SongName: "sandstorm"},
		},
		{
			name:    "play missing song name",
			kind:    tools.KindPlay,
			raw:     map[string]any{},
			wantErr: true,
		},
		{
			name:    "play with empty song name",
			kind:    tools.KindPlay,
			raw:     map[string]any{"song_name": ""},
			wantErr: true,
		},
		{
			name: "seek with timestamp",
			kind: tools.KindSeek,
			raw:  map[string]any{"time": "1:15"},
			want: tools.SeekArgs{Time: "1:15"},
		},
		{
			name: "volume as json number",
			kind: tools.KindSetVolume,
			raw:  map[string]any{"level": 1.5},
			want: tools.VolumeArgs{Level: 1.5},
		},
		{
			name:    "volume as string rejected",
			kind:    tools.KindSetVolume,
			raw:     map[string]any{"level": "loud"},
			wantErr: true,
		},
		{
			name: "no-parameter tool ignores extras",
			kind: tools.KindSkip,
			raw:  nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := tools.DecodeArgs(tc.kind, tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("DecodeArgs succeeded with %+v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeArgs: %v", err)
			}
			if tc.want != nil && got != tc.want {
				t.Errorf("DecodeArgs = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestDeclarations(t *testing.T) {
	t.Parallel()
	decls := tools.Declarations()
	if len(decls) != 8 {
		t.Fatalf("Declarations returned %d tools, want 8", len(decls))
	}
	for _, d := range decls {
		if _, ok := tools.ParseKind(d.Name); !ok {
			t.Errorf("declared tool %q is not parseable", d.Name)
		}
		if d.Description == "" {
			t.Errorf("tool %q has no description", d.Name)
		}
		for _, p := range d.Parameters {
			if !p.Required {
				t.Errorf("tool %q parameter %q should be required", d.Name, p.Name)
			}
		}
	}
}
