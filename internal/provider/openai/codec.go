package openai

import (
	"fmt"
	"strings"

	"github.com/lanternai/lantern/internal/domain"
)

const (
	toolCallTypeFunction = "function"
	base64Marker         = ";base64,"
)

// toWireMessage converts a domain prompt message into the structured record
// the wire protocol expects. An unknown message variant is a contract
// violation, never silently dropped.
func toWireMessage(message domain.PromptMessage) (wireMessage, error) {
	var wire wireMessage

	switch m := message.(type) {
	case domain.SystemMessage:
		wire = wireMessage{Role: string(domain.RoleSystem), Content: m.Content, Name: m.Name}

	case domain.UserMessage:
		if m.Parts == nil {
			wire = wireMessage{Role: string(domain.RoleUser), Content: m.Content, Name: m.Name}
			break
		}
		parts := make([]wireContentPart, 0, len(m.Parts))
		for _, part := range m.Parts {
			wirePart, err := toWireContentPart(part)
			if err != nil {
				return wireMessage{}, err
			}
			parts = append(parts, wirePart)
		}
		wire = wireMessage{Role: string(domain.RoleUser), Content: parts, Name: m.Name}

	case domain.AssistantMessage:
		wire = wireMessage{Role: string(domain.RoleAssistant), Content: m.Content, Name: m.Name}
		if len(m.ToolCalls) > 0 {
			calls := make([]wireToolCall, 0, len(m.ToolCalls))
			for _, call := range m.ToolCalls {
				callType := call.Type
				if callType == "" {
					callType = toolCallTypeFunction
				}
				calls = append(calls, wireToolCall{
					ID:   call.ID,
					Type: callType,
					Function: wireFunction{
						Name:      call.Function.Name,
						Arguments: call.Function.Arguments,
					},
				})
			}
			wire.ToolCalls = calls
		}

	case domain.ToolMessage:
		wire = wireMessage{
			Role:       string(domain.RoleTool),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		// The wire protocol rejects name on tool-role records, so it is
		// intentionally not attached here.

	default:
		return wireMessage{}, &domain.ContractViolationError{
			Detail: fmt.Sprintf("unknown prompt message variant %T", message),
		}
	}

	if wire.Role == string(domain.RoleTool) {
		wire.Name = ""
	}

	return wire, nil
}

func toWireContentPart(part domain.ContentPart) (wireContentPart, error) {
	switch p := part.(type) {
	case domain.TextPart:
		return wireContentPart{Type: contentPartText, Text: p.Text}, nil

	case domain.ImagePart:
		return wireContentPart{
			Type:     contentPartImageURL,
			ImageURL: &wireImageURL{URL: p.URL, Detail: string(p.Detail)},
		}, nil

	case domain.AudioPart:
		idx := strings.Index(p.Data, base64Marker)
		if idx < 0 {
			return wireContentPart{}, &domain.ContractViolationError{
				Detail: "audio part payload is not a base64 data URI",
			}
		}
		return wireContentPart{
			Type: contentPartInputAudio,
			InputAudio: &wireInputAudio{
				Data:   p.Data[idx+len(base64Marker):],
				Format: p.Format,
			},
		}, nil

	default:
		return wireContentPart{}, &domain.ContractViolationError{
			Detail: fmt.Sprintf("unknown content part variant %T", part),
		}
	}
}

// toWireMessages converts a full prompt in order.
func toWireMessages(messages []domain.PromptMessage) ([]wireMessage, error) {
	out := make([]wireMessage, 0, len(messages))
	for _, message := range messages {
		wire, err := toWireMessage(message)
		if err != nil {
			return nil, err
		}
		out = append(out, wire)
	}
	return out, nil
}

// toWireTools converts tool declarations for the request payload.
func toWireTools(tools []domain.Tool) []wireTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]wireTool, 0, len(tools))
	for _, tool := range tools {
		out = append(out, wireTool{
			Type: toolCallTypeFunction,
			Function: wireToolDetails{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	return out
}

// extractToolCalls converts completed wire tool calls into domain tool
// calls, defaulting missing call types to "function".
func extractToolCalls(calls []wireToolCall) []domain.ToolCall {
	out := make([]domain.ToolCall, 0, len(calls))
	for _, call := range calls {
		callType := call.Type
		if callType == "" {
			callType = toolCallTypeFunction
		}
		out = append(out, domain.ToolCall{
			ID:   call.ID,
			Type: callType,
			Function: domain.ToolCallFunction{
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			},
		})
	}
	return out
}

// extractFunctionCall lifts a legacy single function-call payload into a
// tool call. The legacy convention has no call id, so the function name
// stands in for it.
func extractFunctionCall(call *deltaFunctionCall) (domain.ToolCall, bool) {
	if call == nil {
		return domain.ToolCall{}, false
	}
	return domain.ToolCall{
		ID:   call.Name,
		Type: toolCallTypeFunction,
		Function: domain.ToolCallFunction{
			Name:      call.Name,
			Arguments: call.Arguments,
		},
	}, true
}
