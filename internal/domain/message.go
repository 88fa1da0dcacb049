package domain

// Role identifies the author of a prompt message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PromptMessage is the closed union of message variants that can appear in a
// conversation. Codec and estimator logic switch exhaustively over the four
// concrete types; adding a role is a compile-visible change.
type PromptMessage interface {
	Role() Role

	// promptMessage restricts implementations to this package.
	promptMessage()
}

// SystemMessage carries instructions that frame the conversation.
type SystemMessage struct {
	Content string
	Name    string
}

// UserMessage carries caller input. Content holds plain text; Parts, when
// non-nil, holds ordered multi-part content instead and Content is ignored.
// Only the user role may carry multi-part content in this protocol.
type UserMessage struct {
	Content string
	Parts   []ContentPart
	Name    string
}

// AssistantMessage carries model output, including any tool calls the model
// requested in that turn.
type AssistantMessage struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Name      string     `json:"name,omitempty"`
}

// ToolMessage carries a tool execution result, linked by ToolCallID to the
// originating call.
type ToolMessage struct {
	Content    string
	ToolCallID string
	Name       string
}

func (SystemMessage) Role() Role    { return RoleSystem }
func (UserMessage) Role() Role      { return RoleUser }
func (AssistantMessage) Role() Role { return RoleAssistant }
func (ToolMessage) Role() Role      { return RoleTool }

func (SystemMessage) promptMessage()    {}
func (UserMessage) promptMessage()      {}
func (AssistantMessage) promptMessage() {}
func (ToolMessage) promptMessage()      {}

// ImageDetail selects the resolution tier the upstream service uses when it
// processes an image part.
type ImageDetail string

const (
	ImageDetailLow  ImageDetail = "low"
	ImageDetailHigh ImageDetail = "high"
	ImageDetailAuto ImageDetail = "auto"
)

// ContentPart is one ordered element of multi-part user content.
type ContentPart interface {
	contentPart()
}

// TextPart is a plain text content part.
type TextPart struct {
	Text string
}

// ImagePart references an image by URL (or data URI) with a detail level.
type ImagePart struct {
	URL    string
	Detail ImageDetail
}

// AudioPart carries audio as a data-URI-style base64 payload plus the
// declared audio format (e.g. "wav", "mp3").
type AudioPart struct {
	Data   string
	Format string
}

func (TextPart) contentPart()  {}
func (ImagePart) contentPart() {}
func (AudioPart) contentPart() {}

// ToolCall is a structured function-invocation request emitted by the
// assistant role. Identity is ID; within one assistant turn ids are unique.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction names the function and carries its string-encoded
// (typically JSON) arguments.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool declares a function the model may call, with a JSON-schema parameter
// description.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}
