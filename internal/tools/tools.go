// Package tools defines the closed set of playback tools the model may
// call and the dispatcher that routes decoded calls to the per-guild
// player session.
package tools

import (
	"fmt"

	"github.com/Akinara666/PeaceMusic/pkg/provider/model"
)

// Kind identifies one tool in the closed set exposed to the model.
type Kind int

const (
	KindPlay Kind = iota
	KindStop
	KindSkip
	KindSeek
	KindSkipByName
	KindSetVolume
	KindSummon
	KindDisconnect
)

// Wire names, as declared to the model.
const (
	namePlay       = "play_music"
	nameStop       = "stop_music"
	nameSkip       = "skip_music"
	nameSeek       = "seek"
	nameSkipByName = "skip_music_by_name"
	nameSetVolume  = "set_volume"
	nameSummon     = "summon"
	nameDisconnect = "disconnect"
)

func (k Kind) String() string {
	switch k {
	case KindPlay:
		return namePlay
	case KindStop:
		return nameStop
	case KindSkip:
		return nameSkip
	case KindSeek:
		return nameSeek
	case KindSkipByName:
		return nameSkipByName
	case KindSetVolume:
		return nameSetVolume
	case KindSummon:
		return nameSummon
	case KindDisconnect:
		return nameDisconnect
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// kindByName maps wire names back to kinds.
var kindByName = map[string]Kind{
	namePlay:       KindPlay,
	nameStop:       KindStop,
	nameSkip:       KindSkip,
	nameSeek:       KindSeek,
	nameSkipByName: KindSkipByName,
	nameSetVolume:  KindSetVolume,
	nameSummon:     KindSummon,
	nameDisconnect: KindDisconnect,
}

// ParseKind resolves a wire-level function name to its [Kind]. The second
// return is false for names outside the declared set.
func ParseKind(name string) (Kind, bool) {
	k, ok := kindByName[name]
	return k, ok
}

// Args is the decoded, typed argument payload of one tool call. Exactly one
// concrete type corresponds to each [Kind].
type Args interface {
	kind() Kind
}

// PlayArgs carries the play_music and skip_music_by_name payload.
type PlayArgs struct {
	SongName string
}

// SeekArgs carries the seek payload.
type SeekArgs struct {
	Time string
}

// VolumeArgs carries the set_volume payload.
type VolumeArgs struct {
	Level float64
}

// NoArgs is the payload of tools that take no parameters.
type NoArgs struct{ k Kind }

func (PlayArgs) kind() Kind   { return KindPlay }
func (SeekArgs) kind() Kind   { return KindSeek }
func (VolumeArgs) kind() Kind { return KindSetVolume }
func (a NoArgs) kind() Kind   { return a.k }

// DecodeArgs validates and types the raw argument map of a function call.
func DecodeArgs(kind Kind, raw map[string]any) (Args, error) {
	switch kind {
	case KindPlay, KindSkipByName:
		s, err := stringArg(raw, "song_name")
		if err != nil {
			return nil, err
		}
		return PlayArgs{SongName: s}, nil
	case KindSeek:
		s, err := stringArg(raw, "time")
		if err != nil {
			return nil, err
		}
		return SeekArgs{Time: s}, nil
	case KindSetVolume:
		f, err := numberArg(raw, "level")
		if err != nil {
			return nil, err
		}
		return VolumeArgs{Level: f}, nil
	case KindStop, KindSkip, KindSummon, KindDisconnect:
		return NoArgs{k: kind}, nil
	default:
		return nil, fmt.Errorf("tools: unknown kind %v", kind)
	}
}

func stringArg(raw map[string]any, key string) (string, error) {
	v, ok := raw[key]
	if !ok {
		return "", fmt.Errorf("tools: missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("tools: argument %q must be a non-empty string", key)
	}
	return s, nil
}

func numberArg(raw map[string]any, key string) (float64, error) {
	v, ok := raw[key]
	if !ok {
		return 0, fmt.Errorf("tools: missing argument %q", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("tools: argument %q must be a number", key)
	}
}

// Declarations returns the tool surface advertised to the model.
func Declarations() []model.ToolDeclaration {
	return []model.ToolDeclaration{
		{
			Name:        namePlay,
			Description: "Starts playing a track or adds it to the queue by name or URL.",
			Parameters: []model.ParamDecl{{
				Name:        "song_name",
				Type:        model.ParamString,
				Description: "The name of the song to search for, or a direct link to the track.",
				Required:    true,
			}},
		},
		{
			Name:        nameStop,
			Description: "Stops playback and clears the queue. Use without parameters.",
		},
		{
			Name:        nameSkip,
			Description: "Skips the current track and plays the next one in the queue, if available.",
		},
		{
			Name:        nameSeek,
			Description: "Seeks to a specific timestamp in the currently playing track.",
			Parameters: []model.ParamDecl{{
				Name:        "time",
				Type:        model.ParamString,
				Description: "Time in 'HH:MM:SS' or 'MM:SS' format.",
				Required:    true,
			}},
		},
		{
			Name:        nameSkipByName,
			Description: "Removes the specified song from the queue by name.",
			Parameters: []model.ParamDecl{{
				Name:        "song_name",
				Type:        model.ParamString,
				Description: "The name or part of the name to remove from the queue.",
				Required:    true,
			}},
		},
		{
			Name:        nameSetVolume,
			Description: "Sets the playback volume (0.0-2.0).",
			Parameters: []model.ParamDecl{{
				Name:        "level",
				Type:        model.ParamNumber,
				Description: "A number from 0.0 (mute) to 2.0 (maximum).",
				Required:    true,
			}},
		},
		{
			Name:        nameSummon,
			Description: "Connects the bot to your voice channel or moves it there.",
		},
		{
			Name:        nameDisconnect,
			Description: "Disconnects the bot from the voice channel and clears the queue.",
		},
	}
}
