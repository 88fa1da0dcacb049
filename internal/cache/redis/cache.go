// Package redis provides an exact-match invocation cache backed by Redis.
// Cache keys hash the full request, so only byte-identical invocations hit.
package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lanternai/lantern/internal/domain"
	"github.com/lanternai/lantern/internal/observability"
)

const keyPrefix = "lantern:invocation:"

// InvocationCache implements domain.InvocationCache over Redis.
type InvocationCache struct {
	client *redis.Client
}

// NewInvocationCache creates a Redis-backed invocation cache.
func NewInvocationCache(client *redis.Client) *InvocationCache {
	return &InvocationCache{client: client}
}

// cachedResult is the serialized form of a cache entry. Prompt messages are
// not stored; the caller echoes its own request messages back into the
// reconstructed result.
type cachedResult struct {
	Model             string            `json:"model"`
	Content           string            `json:"content"`
	ToolCalls         []domain.ToolCall `json:"tool_calls,omitempty"`
	Usage             domain.Usage      `json:"usage"`
	SystemFingerprint string            `json:"system_fingerprint,omitempty"`
}

// Get retrieves a cached result for the request, or domain.ErrCacheMiss.
func (c *InvocationCache) Get(ctx context.Context, req *domain.InvokeRequest) (*domain.Result, error) {
	key, err := cacheKey(req)
	if err != nil {
		return nil, err
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get failed: %w", err)
	}

	var entry cachedResult
	if err := json.Unmarshal(raw, &entry); err != nil {
		// A corrupt entry behaves as a miss; the next Set overwrites it.
		observability.FromContext(ctx).Warn("discarding corrupt cache entry",
			observability.String("key", key), observability.Error(err))
		return nil, domain.ErrCacheMiss
	}

	return &domain.Result{
		Model:          entry.Model,
		PromptMessages: req.Messages,
		Message: domain.AssistantMessage{
			Content:   entry.Content,
			ToolCalls: entry.ToolCalls,
		},
		Usage:             entry.Usage,
		SystemFingerprint: entry.SystemFingerprint,
	}, nil
}

// Set stores a result for the request with the given TTL.
func (c *InvocationCache) Set(
	ctx context.Context,
	req *domain.InvokeRequest,
	result *domain.Result,
	ttl time.Duration,
) error {
	key, err := cacheKey(req)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(cachedResult{
		Model:             result.Model,
		Content:           result.Message.Content,
		ToolCalls:         result.Message.ToolCalls,
		Usage:             result.Usage,
		SystemFingerprint: result.SystemFingerprint,
	})
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

// cacheKey derives a stable key from every request field that affects the
// result.
func cacheKey(req *domain.InvokeRequest) (string, error) {
	h := sha256.New()
	h.Write([]byte(req.Model))
	h.Write([]byte{0})

	for _, message := range req.Messages {
		wire, err := json.Marshal(messageFingerprint(message))
		if err != nil {
			return "", fmt.Errorf("cache key failed: %w", err)
		}
		h.Write([]byte(message.Role()))
		h.Write(wire)
		h.Write([]byte{0})
	}

	params, err := json.Marshal(req.Parameters)
	if err != nil {
		return "", fmt.Errorf("cache key failed: %w", err)
	}
	h.Write(params)

	for _, tool := range req.Tools {
		h.Write([]byte(tool.Name))
		h.Write([]byte(tool.Description))
		schema, err := json.Marshal(tool.Parameters)
		if err != nil {
			return "", fmt.Errorf("cache key failed: %w", err)
		}
		h.Write(schema)
		h.Write([]byte{0})
	}

	for _, stop := range req.Stop {
		h.Write([]byte(stop))
		h.Write([]byte{0})
	}
	h.Write([]byte(req.User))
	h.Write([]byte(strconv.Itoa(len(req.Messages))))

	return keyPrefix + hex.EncodeToString(h.Sum(nil)), nil
}

// messageFingerprint reduces a message to its cache-relevant fields.
func messageFingerprint(message domain.PromptMessage) map[string]any {
	out := map[string]any{"role": string(message.Role())}
	switch typed := message.(type) {
	case domain.SystemMessage:
		out["content"] = typed.Content
	case domain.UserMessage:
		out["content"] = typed.Content
		if len(typed.Parts) > 0 {
			var parts []map[string]string
			for _, part := range typed.Parts {
				switch p := part.(type) {
				case domain.TextPart:
					parts = append(parts, map[string]string{"text": p.Text})
				case domain.ImagePart:
					parts = append(parts, map[string]string{"image": p.URL, "detail": string(p.Detail)})
				case domain.AudioPart:
					parts = append(parts, map[string]string{"audio": p.Data, "format": p.Format})
				}
			}
			out["parts"] = parts
		}
	case domain.AssistantMessage:
		out["content"] = typed.Content
		if len(typed.ToolCalls) > 0 {
			out["tool_calls"] = typed.ToolCalls
		}
	case domain.ToolMessage:
		out["content"] = typed.Content
		out["tool_call_id"] = typed.ToolCallID
	}
	return out
}
