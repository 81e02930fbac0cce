package translator

import (
	"crypto/rand"
	"math/big"

	"github.com/llmrelay/llmrelay/pkg/dialect"
)

// UpstreamError reports an upstream reply that translated cleanly at the HTTP
// level but carries nothing usable.
type UpstreamError struct {
	Reason string
}

func (e *UpstreamError) Error() string {
	return e.Reason
}

const alnum = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomAlnum(n int) string {
	buf := make([]byte, n)
	max := big.NewInt(int64(len(alnum)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failing is unrecoverable; ids must stay unique.
			panic(err)
		}
		buf[i] = alnum[idx.Int64()]
	}
	return string(buf)
}

// NewMessageID returns a fresh client-visible message id.
func NewMessageID() string {
	return "msg_" + randomAlnum(29)
}

// NewToolUseID returns a fresh tool_use block id.
func NewToolUseID() string {
	return "toolu_" + randomAlnum(12)
}

// mapFinishReason translates the upstream finish reason into a Dialect A
// stop_reason. Unknown reasons degrade to end_turn rather than failing the
// response.
func mapFinishReason(reason string) string {
	switch reason {
	case "MAX_TOKENS":
		return "max_tokens"
	case "SAFETY", "RECITATION":
		return "stop_sequence"
	default:
		return "end_turn"
	}
}

// TranslateResponse converts an upstream reply into a Dialect A assistant
// message. The first candidate's parts become content blocks.
func TranslateResponse(resp *dialect.GenerateResponse, model string) (*dialect.MessagesResponse, error) {
	if len(resp.Candidates) == 0 {
		reason := "upstream returned no candidates"
		if resp.Error != nil && resp.Error.Message != "" {
			reason = resp.Error.Message
		}
		return nil, &UpstreamError{Reason: reason}
	}

	candidate := resp.Candidates[0]

	var blocks []dialect.ContentBlock
	for _, part := range candidate.Content.Parts {
		if text, ok := part["text"].(string); ok {
			blocks = append(blocks, dialect.ContentBlock{Type: "text", Text: text})
			continue
		}
		if fc, ok := part["functionCall"].(map[string]interface{}); ok {
			name, _ := fc["name"].(string)
			args, _ := fc["args"].(map[string]interface{})
			blocks = append(blocks, dialect.ContentBlock{
				Type:  "tool_use",
				ID:    NewToolUseID(),
				Name:  name,
				Input: args,
			})
		}
	}

	out := &dialect.MessagesResponse{
		ID:         NewMessageID(),
		Type:       "message",
		Role:       "assistant",
		Content:    blocks,
		Model:      model,
		StopReason: mapFinishReason(candidate.FinishReason),
	}
	if resp.UsageMetadata != nil {
		out.Usage = dialect.Usage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
		}
	}

	return out, nil
}
