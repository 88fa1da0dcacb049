package openai

import (
	"encoding/json"
	"strings"
)

// Wire-level request and response shapes for the OpenAI-compatible
// protocol. These are the records the transport exchanges; the codec maps
// domain messages onto them and the aggregator consumes the fragment
// shapes.

type chatCompletionRequest struct {
	Model               string              `json:"model"`
	Messages            []wireMessage       `json:"messages"`
	Tools               []wireTool          `json:"tools,omitempty"`
	ToolChoice          string              `json:"tool_choice,omitempty"`
	Temperature         *float64            `json:"temperature,omitempty"`
	TopP                *float64            `json:"top_p,omitempty"`
	MaxTokens           int                 `json:"max_tokens,omitempty"`
	MaxCompletionTokens int                 `json:"max_completion_tokens,omitempty"`
	PresencePenalty     *float64            `json:"presence_penalty,omitempty"`
	FrequencyPenalty    *float64            `json:"frequency_penalty,omitempty"`
	Seed                *int                `json:"seed,omitempty"`
	ResponseFormat      *wireResponseFormat `json:"response_format,omitempty"`
	Stop                []string            `json:"stop,omitempty"`
	User                string              `json:"user,omitempty"`
	Stream              bool                `json:"stream,omitempty"`
	StreamOptions       *wireStreamOptions  `json:"stream_options,omitempty"`
}

type wireResponseFormat struct {
	Type       string          `json:"type"`
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

type wireStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// wireMessage is the structured form of one prompt message. Content is
// either a plain string or an ordered []wireContentPart.
type wireMessage struct {
	Role       string         `json:"role"`
	Content    any            `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// textContent flattens the message content to the text that contributes to
// token accounting: plain strings pass through, multi-part content keeps
// only its text parts.
func (m wireMessage) textContent() string {
	switch c := m.Content.(type) {
	case string:
		return c
	case []wireContentPart:
		var b strings.Builder
		for _, part := range c {
			if part.Type == contentPartText {
				b.WriteString(part.Text)
			}
		}
		return b.String()
	default:
		return ""
	}
}

const (
	contentPartText       = "text"
	contentPartImageURL   = "image_url"
	contentPartInputAudio = "input_audio"
)

type wireContentPart struct {
	Type       string          `json:"type"`
	Text       string          `json:"text,omitempty"`
	ImageURL   *wireImageURL   `json:"image_url,omitempty"`
	InputAudio *wireInputAudio `json:"input_audio,omitempty"`
}

type wireImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type wireInputAudio struct {
	Data   string `json:"data"`
	Format string `json:"format"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireTool struct {
	Type     string          `json:"type"`
	Function wireToolDetails `json:"function"`
}

type wireToolDetails struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// --- chat completion responses ---

type chatCompletionResponse struct {
	ID                string           `json:"id"`
	Model             string           `json:"model"`
	SystemFingerprint string           `json:"system_fingerprint"`
	Choices           []responseChoice `json:"choices"`
	Usage             *wireUsage       `json:"usage"`
}

type responseChoice struct {
	Index        int             `json:"index"`
	Message      responseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

type responseMessage struct {
	Content      string             `json:"content"`
	ToolCalls    []wireToolCall     `json:"tool_calls"`
	FunctionCall *deltaFunctionCall `json:"function_call"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// --- chat completion stream fragments ---

// chatCompletionChunk is one incremental fragment of a streamed chat
// response. A fragment with zero choices is a usage trailer.
type chatCompletionChunk struct {
	ID                string        `json:"id"`
	Model             string        `json:"model"`
	SystemFingerprint string        `json:"system_fingerprint"`
	Choices           []chunkChoice `json:"choices"`
	Usage             *wireUsage    `json:"usage"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason string     `json:"finish_reason"`
}

type chunkDelta struct {
	Content      string             `json:"content"`
	ToolCalls    []deltaToolCall    `json:"tool_calls"`
	FunctionCall *deltaFunctionCall `json:"function_call"`
}

// deltaToolCall is a partial tool call addressed by stream index. Arguments
// arrive as string fragments that concatenate across fragments.
type deltaToolCall struct {
	Index    int               `json:"index"`
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Function deltaFunctionCall `json:"function"`
}

// deltaFunctionCall doubles as the legacy single function-call payload.
type deltaFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// --- legacy text completion ---

type completionRequest struct {
	Model            string             `json:"model"`
	Prompt           string             `json:"prompt"`
	Temperature      *float64           `json:"temperature,omitempty"`
	TopP             *float64           `json:"top_p,omitempty"`
	MaxTokens        int                `json:"max_tokens,omitempty"`
	PresencePenalty  *float64           `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64           `json:"frequency_penalty,omitempty"`
	Seed             *int               `json:"seed,omitempty"`
	Stop             []string           `json:"stop,omitempty"`
	User             string             `json:"user,omitempty"`
	Stream           bool               `json:"stream,omitempty"`
	StreamOptions    *wireStreamOptions `json:"stream_options,omitempty"`
}

// completionChunk serves both block responses and stream fragments of the
// text completion endpoint; the shapes coincide.
type completionChunk struct {
	ID                string             `json:"id"`
	Model             string             `json:"model"`
	SystemFingerprint string             `json:"system_fingerprint"`
	Choices           []completionChoice `json:"choices"`
	Usage             *wireUsage         `json:"usage"`
}

type completionChoice struct {
	Index        int    `json:"index"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
}

// --- single-request/response endpoint ---

type responsesRequest struct {
	Model           string   `json:"model"`
	Input           string   `json:"input"`
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"top_p,omitempty"`
	MaxOutputTokens int      `json:"max_output_tokens,omitempty"`
	User            string   `json:"user,omitempty"`
}

type responsesResponse struct {
	ID     string            `json:"id"`
	Model  string            `json:"model"`
	Output []responsesOutput `json:"output"`
	Usage  *responsesUsage   `json:"usage"`
}

type responsesOutput struct {
	Type    string             `json:"type"`
	Content []responsesContent `json:"content"`
}

type responsesContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responsesUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// outputText joins the text content of all output items.
func (r *responsesResponse) outputText() string {
	var b strings.Builder
	for _, item := range r.Output {
		for _, content := range item.Content {
			if content.Type == "output_text" {
				b.WriteString(content.Text)
			}
		}
	}
	return b.String()
}
