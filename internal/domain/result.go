package domain

// Usage tracks token consumption for one invocation. It is computed once per
// invocation, never partially.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	Cost             float64 `json:"cost,omitempty"`
	Currency         string  `json:"currency,omitempty"`
}

// Result is the complete response for a non-streaming invocation.
type Result struct {
	Model             string           `json:"model"`
	PromptMessages    []PromptMessage  `json:"-"`
	Message           AssistantMessage `json:"message"`
	Usage             Usage            `json:"usage"`
	SystemFingerprint string           `json:"system_fingerprint,omitempty"`
}

// ChunkDelta is the incremental part of a ResultChunk. FinishReason is empty
// for all but the terminal fragments; Usage is non-nil only on the final
// chunk of an invocation.
type ChunkDelta struct {
	Index        int              `json:"index"`
	Message      AssistantMessage `json:"message"`
	FinishReason string           `json:"finish_reason,omitempty"`
	Usage        *Usage           `json:"usage,omitempty"`
}

// ResultChunk is one normalized increment of a streamed invocation. Chunks
// are strictly ordered by emission time; the usage-bearing chunk is always
// last.
type ResultChunk struct {
	Model             string          `json:"model"`
	PromptMessages    []PromptMessage `json:"-"`
	SystemFingerprint string          `json:"system_fingerprint,omitempty"`
	Delta             ChunkDelta      `json:"delta"`
}

// ChunkStream is a pull-based sequence of result chunks. Next advances to
// the next chunk; when it returns false the consumer must check Err. Close
// releases the underlying transport and may be called at any point to
// abandon the stream (no usage is reported for abandoned streams).
type ChunkStream interface {
	Next() bool
	Chunk() ResultChunk
	Err() error
	Close() error
}

// ModelParameters carries the caller-tunable generation parameters. Pointer
// fields distinguish "unset" from zero values where the wire protocol does.
type ModelParameters struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	MaxTokens        int      `json:"max_tokens,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	Seed             *int     `json:"seed,omitempty"`
	ToolChoice       string   `json:"tool_choice,omitempty"`

	// ResponseFormat is "", "text", "json_object" or "json_schema".
	// JSONSchema holds the raw schema payload when ResponseFormat is
	// "json_schema".
	ResponseFormat string `json:"response_format,omitempty"`
	JSONSchema     string `json:"json_schema,omitempty"`
}

// InvokeRequest is a unified model invocation request.
type InvokeRequest struct {
	Model      string
	Messages   []PromptMessage
	Parameters ModelParameters
	Tools      []Tool
	Stop       []string
	User       string
}
