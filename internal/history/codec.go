package history

import (
	"encoding/json"
	"fmt"

	"github.com/Akinara666/PeaceMusic/pkg/provider/model"
)

// Wire format for the durable chat-context artifact: a JSON object mapping
// channel id → array of turns, each turn {role, parts}, each part tagged by
// a "type" field. Writers always emit well-formed entries; readers tolerate
// and skip anything that does not parse.

type turnJSON struct {
	Role  string     `json:"role"`
	Parts []partJSON `json:"parts"`
}

type partJSON struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitempty"`
	Name     string         `json:"name,omitempty"`
	Args     map[string]any `json:"args,omitempty"`
	Response map[string]any `json:"response,omitempty"`
	URI      string         `json:"uri,omitempty"`
	MIMEType string         `json:"mime_type,omitempty"`
}

const (
	partText             = "text"
	partFunctionCall     = "function_call"
	partFunctionResponse = "function_response"
	partFileData         = "file_data"
)

// encodeTurn serializes t. ok is false when the turn carries no
// serializable part and must be omitted from the snapshot.
func encodeTurn(t *model.Turn) (tj turnJSON, ok bool) {
	tj.Role = string(t.Role)
	for _, p := range t.Parts {
		switch {
		case p.FunctionCall != nil:
			tj.Parts = append(tj.Parts, partJSON{
				Type: partFunctionCall,
				Name: p.FunctionCall.Name,
				Args: jsonSafe(p.FunctionCall.Args),
			})
		case p.FunctionResponse != nil:
			tj.Parts = append(tj.Parts, partJSON{
				Type:     partFunctionResponse,
				Name:     p.FunctionResponse.Name,
				Response: jsonSafe(p.FunctionResponse.Response),
			})
		case p.FileData != nil:
			if p.FileData.URI == "" {
				continue
			}
			tj.Parts = append(tj.Parts, partJSON{
				Type:     partFileData,
				URI:      p.FileData.URI,
				MIMEType: p.FileData.MIMEType,
			})
		case p.Text != "":
			tj.Parts = append(tj.Parts, partJSON{Type: partText, Text: p.Text})
		}
	}
	return tj, len(tj.Parts) > 0
}

// decodeTurn deserializes a stored turn. ok is false when the entry is
// malformed or yields no valid parts; such turns are skipped, not fatal.
func decodeTurn(tj turnJSON) (*model.Turn, bool) {
	if tj.Role != string(model.RoleUser) && tj.Role != string(model.RoleModel) {
		return nil, false
	}
	t := &model.Turn{Role: model.Role(tj.Role)}
	for _, pj := range tj.Parts {
		switch pj.Type {
		case partText:
			if pj.Text != "" {
				t.Parts = append(t.Parts, model.TextPart(pj.Text))
			}
		case partFunctionCall:
			if pj.Name != "" {
				t.Parts = append(t.Parts, model.Part{FunctionCall: &model.FunctionCall{
					Name: pj.Name,
					Args: pj.Args,
				}})
			}
		case partFunctionResponse:
			if pj.Name != "" {
				t.Parts = append(t.Parts, model.Part{FunctionResponse: &model.FunctionResponse{
					Name:     pj.Name,
					Response: pj.Response,
				}})
			}
		case partFileData:
			if pj.URI != "" {
				t.Parts = append(t.Parts, model.Part{FileData: &model.FileData{
					URI:      pj.URI,
					MIMEType: pj.MIMEType,
				}})
			}
		}
	}
	if len(t.Parts) == 0 {
		return nil, false
	}
	return t, true
}

// encodeSnapshot converts a snapshot into its wire representation.
func encodeSnapshot(snapshot map[string][]*model.Turn) map[string][]turnJSON {
	out := make(map[string][]turnJSON, len(snapshot))
	for channelID, turns := range snapshot {
		encoded := make([]turnJSON, 0, len(turns))
		for _, t := range turns {
			if tj, ok := encodeTurn(t); ok {
				encoded = append(encoded, tj)
			}
		}
		if len(encoded) > 0 {
			out[channelID] = encoded
		}
	}
	return out
}

// decodeConversation parses one stored turn array, skipping entries that
// fail to parse. The raw messages are decoded one by one so a single
// malformed turn cannot poison the rest of the channel.
func decodeConversation(raws []json.RawMessage) []*model.Turn {
	turns := make([]*model.Turn, 0, len(raws))
	for _, raw := range raws {
		var tj turnJSON
		if err := json.Unmarshal(raw, &tj); err != nil {
			continue
		}
		if t, ok := decodeTurn(tj); ok {
			turns = append(turns, t)
		}
	}
	return turns
}

// jsonSafe returns m if it survives JSON encoding, or a stringified
// fallback map when it contains unencodable values.
func jsonSafe(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	if _, err := json.Marshal(m); err == nil {
		return m
	}
	safe := make(map[string]any, len(m))
	for k, v := range m {
		if _, err := json.Marshal(v); err == nil {
			safe[k] = v
		} else {
			safe[k] = fmt.Sprintf("%v", v)
		}
	}
	return safe
}
