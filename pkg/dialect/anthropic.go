// Package dialect defines the wire shapes on both sides of the gateway: the
// client-facing Messages API ("Dialect A") and the upstream Generative
// Language API ("Dialect G").
package dialect

import "encoding/json"

// ============================================================================
// DIALECT A — CLIENT-FACING MESSAGES API
// ============================================================================

// MessagesRequest is the inbound request on /v1/messages.
type MessagesRequest struct {
	Model          string          `json:"model,omitempty"`
	Messages       []Message       `json:"messages"`
	System         interface{}     `json:"system,omitempty"` // string or []text block
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	TopP           *float64        `json:"top_p,omitempty"`
	TopK           *int            `json:"top_k,omitempty"`
	StopSequences  []string        `json:"stop_sequences,omitempty"`
	Tools          []Tool          `json:"tools,omitempty"`
	ToolChoice     *ToolChoice     `json:"tool_choice,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
}

// Message is one dialogue turn. Content is either a string or a sequence of
// block objects; after JSON decoding the blocks are map[string]interface{}.
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

// Tool declares one callable function and its parameter schema.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema,omitempty"`
}

// ToolChoice selects the tool-calling policy: auto, any, tool(name) or none.
type ToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// ResponseFormat requests structured output: json_object or json_schema.
type ResponseFormat struct {
	Type   string                 `json:"type"`
	Schema map[string]interface{} `json:"schema,omitempty"`
}

// MessagesResponse is the assistant message returned to the client.
type MessagesResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Content      []ContentBlock `json:"content"`
	Model        string         `json:"model"`
	StopReason   string         `json:"stop_reason,omitempty"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        Usage          `json:"usage"`
}

// ContentBlock is a block inside an assistant message: text or tool_use.
type ContentBlock struct {
	Type  string                 `json:"type"`
	Text  string                 `json:"text,omitempty"`
	ID    string                 `json:"id,omitempty"`    // tool_use
	Name  string                 `json:"name,omitempty"`  // tool_use
	Input map[string]interface{} `json:"input,omitempty"` // tool_use
}

// MarshalJSON shapes each block per its type; text blocks carry an explicit
// null citations field as clients expect.
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	switch b.Type {
	case "text":
		return json.Marshal(struct {
			Type      string      `json:"type"`
			Text      string      `json:"text"`
			Citations interface{} `json:"citations"`
		}{Type: b.Type, Text: b.Text})
	case "tool_use":
		input := b.Input
		if input == nil {
			input = map[string]interface{}{}
		}
		return json.Marshal(struct {
			Type  string                 `json:"type"`
			ID    string                 `json:"id"`
			Name  string                 `json:"name"`
			Input map[string]interface{} `json:"input"`
		}{Type: b.Type, ID: b.ID, Name: b.Name, Input: input})
	default:
		type raw ContentBlock
		return json.Marshal(raw(b))
	}
}

// Usage reports token consumption.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ============================================================================
// DIALECT A — SSE EVENT STREAM
// ============================================================================

// Event names on the outbound stream, in emission order.
const (
	EventMessageStart      = "message_start"
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventMessageDelta      = "message_delta"
	EventMessageStop       = "message_stop"
	EventError             = "error"
)

// MessageStartEvent opens a streamed response with an empty content array.
type MessageStartEvent struct {
	Type    string           `json:"type"`
	Message MessagesResponse `json:"message"`
}

// ContentBlockStartEvent announces a new block at an index.
type ContentBlockStartEvent struct {
	Type         string       `json:"type"`
	Index        int          `json:"index"`
	ContentBlock ContentBlock `json:"content_block"`
}

// Delta is an incremental payload: text_delta or input_json_delta.
type Delta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

// ContentBlockDeltaEvent carries a delta for the block at an index.
type ContentBlockDeltaEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Delta Delta  `json:"delta"`
}

// ContentBlockStopEvent closes the block at an index.
type ContentBlockStopEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// MessageDelta is the final top-level delta carrying the stop reason.
type MessageDelta struct {
	StopReason   string  `json:"stop_reason"`
	StopSequence *string `json:"stop_sequence"`
}

// MessageDeltaEvent finalises the message before message_stop.
type MessageDeltaEvent struct {
	Type  string       `json:"type"`
	Delta MessageDelta `json:"delta"`
	Usage OutputUsage  `json:"usage"`
}

// OutputUsage carries the output token count on message_delta.
type OutputUsage struct {
	OutputTokens int `json:"output_tokens"`
}

// MessageStopEvent ends the stream.
type MessageStopEvent struct {
	Type string `json:"type"`
}

// ============================================================================
// DIALECT A — ERRORS
// ============================================================================

// APIError is the typed error payload surfaced to clients.
type APIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// ErrorEnvelope wraps an APIError for JSON responses.
type ErrorEnvelope struct {
	Type  string   `json:"type"`
	Error APIError `json:"error"`
}

// ErrorEvent is the SSE form of an error.
type ErrorEvent struct {
	Type  string   `json:"type"`
	Error APIError `json:"error"`
}
