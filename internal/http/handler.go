package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/lanternai/lantern/internal/domain"
	"github.com/lanternai/lantern/internal/observability"
	"go.uber.org/zap"
)

// Handler handles HTTP requests.
type Handler struct {
	gateway *domain.GatewayService
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(gateway *domain.GatewayService) *Handler {
	return &Handler{gateway: gateway}
}

// invokeRequestBody is the JSON surface of an invocation request. Messages
// follow the familiar role-tagged chat shape; content is a string or a part
// list.
type invokeRequestBody struct {
	Model            string          `json:"model"`
	Messages         []messageBody   `json:"messages"`
	Stream           bool            `json:"stream"`
	Temperature      *float64        `json:"temperature"`
	TopP             *float64        `json:"top_p"`
	MaxTokens        int             `json:"max_tokens"`
	PresencePenalty  *float64        `json:"presence_penalty"`
	FrequencyPenalty *float64        `json:"frequency_penalty"`
	Seed             *int            `json:"seed"`
	ToolChoice       string          `json:"tool_choice"`
	ResponseFormat   string          `json:"response_format"`
	JSONSchema       json.RawMessage `json:"json_schema"`
	Tools            []toolBody      `json:"tools"`
	Stop             []string        `json:"stop"`
	User             string          `json:"user"`
}

type messageBody struct {
	Role       string            `json:"role"`
	Content    json.RawMessage   `json:"content"`
	Name       string            `json:"name"`
	ToolCallID string            `json:"tool_call_id"`
	ToolCalls  []domain.ToolCall `json:"tool_calls"`
}

type contentPartBody struct {
	Type       string `json:"type"`
	Text       string `json:"text"`
	ImageURL   *struct {
		URL    string `json:"url"`
		Detail string `json:"detail"`
	} `json:"image_url"`
	InputAudio *struct {
		Data   string `json:"data"`
		Format string `json:"format"`
	} `json:"input_audio"`
}

type toolBody struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type countTokensBody struct {
	Model    string        `json:"model"`
	Messages []messageBody `json:"messages"`
	Tools    []toolBody    `json:"tools"`
}

// HandleInvoke processes model invocation requests, streaming or blocking.
func (h *Handler) HandleInvoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body invokeRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	req, err := toInvokeRequest(&body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx = observability.WithModel(ctx, req.Model)
	logger := observability.FromContext(ctx)
	logger.Info("invocation request received",
		zap.String("model", req.Model),
		zap.Bool("stream", body.Stream),
	)

	if body.Stream {
		h.handleStream(ctx, w, req)
		return
	}

	result, err := h.gateway.Invoke(ctx, req)
	if err != nil {
		logger.Error("invocation failed", zap.Error(err))
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	logger.Info("invocation succeeded",
		zap.Int("tokens", result.Usage.TotalTokens),
		zap.Float64("cost", result.Usage.Cost),
	)

	w.Header().Set("Content-Type", "application/json")
	if encodeErr := json.NewEncoder(w).Encode(result); encodeErr != nil {
		logger.Error("failed to encode response", zap.Error(encodeErr))
	}
}

func (h *Handler) handleStream(ctx context.Context, w http.ResponseWriter, req *domain.InvokeRequest) {
	logger := observability.FromContext(ctx)

	stream, err := h.gateway.InvokeStream(ctx, req)
	if err != nil {
		logger.Error("stream failed", zap.Error(err))
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	defer stream.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("streaming not supported")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for stream.Next() {
		data, marshalErr := json.Marshal(stream.Chunk())
		if marshalErr != nil {
			logger.Error("failed to encode chunk", zap.Error(marshalErr))
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	if streamErr := stream.Err(); streamErr != nil {
		logger.Error("stream chunk error", zap.Error(streamErr))
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", streamErr.Error())
		flusher.Flush()
		return
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
	logger.Info("stream completed")
}

// HandleCountTokens estimates prompt tokens without invoking a model.
func (h *Handler) HandleCountTokens(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body countTokensBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	messages, err := toDomainMessages(body.Messages)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tokens, err := h.gateway.CountTokens(ctx, body.Model, messages, toDomainTools(body.Tools))
	if err != nil {
		observability.FromContext(ctx).Error("token count failed", zap.Error(err))
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"tokens": tokens})
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func toInvokeRequest(body *invokeRequestBody) (*domain.InvokeRequest, error) {
	if body.Model == "" {
		return nil, errors.New("model is required")
	}
	if len(body.Messages) == 0 {
		return nil, errors.New("messages are required")
	}

	messages, err := toDomainMessages(body.Messages)
	if err != nil {
		return nil, err
	}

	return &domain.InvokeRequest{
		Model:    body.Model,
		Messages: messages,
		Parameters: domain.ModelParameters{
			Temperature:      body.Temperature,
			TopP:             body.TopP,
			MaxTokens:        body.MaxTokens,
			PresencePenalty:  body.PresencePenalty,
			FrequencyPenalty: body.FrequencyPenalty,
			Seed:             body.Seed,
			ToolChoice:       body.ToolChoice,
			ResponseFormat:   body.ResponseFormat,
			JSONSchema:       string(body.JSONSchema),
		},
		Tools: toDomainTools(body.Tools),
		Stop:  body.Stop,
		User:  body.User,
	}, nil
}

func toDomainMessages(bodies []messageBody) ([]domain.PromptMessage, error) {
	messages := make([]domain.PromptMessage, 0, len(bodies))
	for i, body := range bodies {
		message, err := toDomainMessage(body)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		messages = append(messages, message)
	}
	return messages, nil
}

func toDomainMessage(body messageBody) (domain.PromptMessage, error) {
	text, parts, err := decodeContent(body.Content)
	if err != nil {
		return nil, err
	}

	switch domain.Role(body.Role) {
	case domain.RoleSystem:
		return domain.SystemMessage{Content: text, Name: body.Name}, nil
	case domain.RoleUser:
		return domain.UserMessage{Content: text, Parts: parts, Name: body.Name}, nil
	case domain.RoleAssistant:
		return domain.AssistantMessage{Content: text, ToolCalls: body.ToolCalls, Name: body.Name}, nil
	case domain.RoleTool:
		if body.ToolCallID == "" {
			return nil, errors.New("tool message requires tool_call_id")
		}
		return domain.ToolMessage{Content: text, ToolCallID: body.ToolCallID, Name: body.Name}, nil
	default:
		return nil, fmt.Errorf("unknown role: %q", body.Role)
	}
}

func decodeContent(raw json.RawMessage) (string, []domain.ContentPart, error) {
	if len(raw) == 0 {
		return "", nil, nil
	}

	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "\"") {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return "", nil, fmt.Errorf("invalid content: %w", err)
		}
		return text, nil, nil
	}
	if trimmed == "null" {
		return "", nil, nil
	}

	var bodies []contentPartBody
	if err := json.Unmarshal(raw, &bodies); err != nil {
		return "", nil, fmt.Errorf("invalid content: %w", err)
	}

	parts := make([]domain.ContentPart, 0, len(bodies))
	for _, body := range bodies {
		switch body.Type {
		case "text":
			parts = append(parts, domain.TextPart{Text: body.Text})
		case "image_url":
			if body.ImageURL == nil {
				return "", nil, errors.New("image_url part missing payload")
			}
			parts = append(parts, domain.ImagePart{
				URL:    body.ImageURL.URL,
				Detail: domain.ImageDetail(body.ImageURL.Detail),
			})
		case "input_audio":
			if body.InputAudio == nil {
				return "", nil, errors.New("input_audio part missing payload")
			}
			parts = append(parts, domain.AudioPart{
				Data:   body.InputAudio.Data,
				Format: body.InputAudio.Format,
			})
		default:
			return "", nil, fmt.Errorf("unknown content part type: %q", body.Type)
		}
	}
	return "", parts, nil
}

func toDomainTools(bodies []toolBody) []domain.Tool {
	if len(bodies) == 0 {
		return nil
	}
	tools := make([]domain.Tool, 0, len(bodies))
	for _, body := range bodies {
		tools = append(tools, domain.Tool{
			Name:        body.Name,
			Description: body.Description,
			Parameters:  body.Parameters,
		})
	}
	return tools
}

// statusFor maps invocation errors onto HTTP status codes.
func statusFor(err error) int {
	var invalid *domain.InvalidRequestError
	var contract *domain.ContractViolationError
	var unsupported *domain.UnsupportedModelError

	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.As(err, &unsupported):
		return http.StatusNotFound
	case errors.As(err, &contract):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
