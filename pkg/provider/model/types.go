package model

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser marks turns authored by a human (or tool results fed back
	// to the model on the user's behalf).
	RoleUser Role = "user"

	// RoleModel marks turns authored by the generative model.
	RoleModel Role = "model"
)

// Turn is one message unit exchanged with the model: a role plus an
// ordered sequence of parts.
type Turn struct {
	Role  Role
	Parts []Part
}

// Part is one semantic fragment of a turn. Exactly one of the variant
// fields is populated; [Part.IsZero] reports whether none is.
type Part struct {
	// Text is plain text content.
	Text string

	// FunctionCall is a structured action request emitted by the model.
	FunctionCall *FunctionCall

	// FunctionResponse is the result of a previously dispatched call,
	// fed back to the model in a user-role turn.
	FunctionResponse *FunctionResponse

	// FileData references a file previously uploaded to the provider.
	FileData *FileData
}

// TextPart returns a Part holding plain text.
func TextPart(s string) Part { return Part{Text: s} }

// IsZero reports whether no variant of the part is populated.
func (p Part) IsZero() bool {
	return p.Text == "" && p.FunctionCall == nil && p.FunctionResponse == nil && p.FileData == nil
}

// FunctionCall is a tool invocation requested by the model.
type FunctionCall struct {
	// Name is the declared tool name.
	Name string

	// Args holds the call arguments as decoded JSON values.
	Args map[string]any
}

// FunctionResponse carries a tool's outcome back to the model.
// By convention the Response map holds either a "result" or an "error" key.
type FunctionResponse struct {
	Name     string
	Response map[string]any
}

// FileData references an uploaded file by provider URI.
type FileData struct {
	URI      string
	MIMEType string
}

// NewTurn builds a turn from the given parts, skipping zero-valued ones.
func NewTurn(role Role, parts ...Part) *Turn {
	t := &Turn{Role: role}
	for _, p := range parts {
		if !p.IsZero() {
			t.Parts = append(t.Parts, p)
		}
	}
	return t
}

// GenerateConfig carries the per-request generation parameters built by the
// caller for each model call.
type GenerateConfig struct {
	// SystemInstruction is the composed system prompt for this request.
	SystemInstruction string

	// Temperature controls sampling randomness in [0.0, 2.0].
	Temperature float64

	// Tools is the set of tool declarations offered to the model.
	Tools []ToolDeclaration
}

// ToolDeclaration describes one tool exposed to the model. The Name must
// exactly match a dispatcher table entry on the caller's side.
type ToolDeclaration struct {
	Name        string
	Description string
	Parameters  []ParamDecl
}

// ParamType is the JSON-schema type of a declared tool parameter.
type ParamType string

const (
	ParamString ParamType = "string"
	ParamNumber ParamType = "number"
)

// ParamDecl declares a single named tool parameter.
type ParamDecl struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
}

// FileState is the provider-side processing state of an uploaded file.
type FileState string

const (
	FileProcessing FileState = "PROCESSING"
	FileActive     FileState = "ACTIVE"
	FileFailed     FileState = "FAILED"
)

// FileInfo describes a file held by the provider's attachment backend.
type FileInfo struct {
	// Name is the provider-assigned resource name (e.g. "files/abc123").
	Name string

	// URI is the reference embedded into [FileData] parts.
	URI string

	MIMEType string
	State    FileState
}
