package translator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/llmrelay/llmrelay/pkg/dialect"
)

// ErrStreamTimeout is returned when the upstream idles past the inter-chunk
// deadline mid-stream.
var ErrStreamTimeout = errors.New("upstream stream idle timeout")

// DefaultStreamIdleTimeout is the maximum inter-chunk silence tolerated
// before the stream is abandoned.
const DefaultStreamIdleTimeout = 30 * time.Second

// Emitter writes one Dialect A SSE event to the client.
type Emitter func(event string, payload interface{}) error

// StreamTranslator re-emits an upstream SSE stream as a Dialect A event
// sequence. One instance serves one response.
type StreamTranslator struct {
	model       string
	idleTimeout time.Duration

	state            streamState
	textBlockStarted bool
	nextIndex        int
	finishReason     string
	outputTokens     int
}

type streamState int

const (
	stateInit streamState = iota
	stateStreaming
	stateDone
	stateError
)

// NewStreamTranslator creates a translator for one streaming response.
func NewStreamTranslator(model string) *StreamTranslator {
	return &StreamTranslator{
		model:       model,
		idleTimeout: DefaultStreamIdleTimeout,
	}
}

// Run consumes the upstream body until end-of-stream, idle timeout, or ctx
// cancellation (client disconnect). Events reach the client in the order the
// upstream produced them.
func (t *StreamTranslator) Run(ctx context.Context, body io.Reader, emit Emitter) error {
	frames := make(chan []byte, 16)
	readErr := make(chan error, 1)

	go func() {
		defer close(frames)
		readErr <- readFrames(ctx, body, frames)
	}()

	idle := time.NewTimer(t.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			t.state = stateError
			return ctx.Err()

		case <-idle.C:
			t.state = stateError
			emitErr := emit(dialect.EventError, dialect.ErrorEvent{
				Type: "error",
				Error: dialect.APIError{
					Type:    "stream_timeout",
					Message: "upstream produced no data for 30s",
				},
			})
			if emitErr != nil {
				return emitErr
			}
			return ErrStreamTimeout

		case frame, ok := <-frames:
			if !ok {
				if err := <-readErr; err != nil && t.state != stateDone {
					t.state = stateError
					return err
				}
				return t.finish(emit)
			}

			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(t.idleTimeout)

			if err := t.handleFrame(frame, emit); err != nil {
				t.state = stateError
				return err
			}
		}
	}
}

// readFrames splits the body into `data: <json>\n\n` frames and forwards the
// JSON payloads. Returns nil at end-of-stream.
func readFrames(ctx context.Context, body io.Reader, frames chan<- []byte) error {
	scanner := bufio.NewScanner(body)
	// Upstream frames can carry whole code files in one part.
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	scanner.Split(splitSSEFrames)

	for scanner.Scan() {
		payload := framePayload(scanner.Bytes())
		if len(payload) == 0 {
			continue
		}
		select {
		case frames <- payload:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}

// splitSSEFrames tokenises on blank-line frame boundaries.
func splitSSEFrames(data []byte, atEOF bool) (int, []byte, error) {
	if i := bytes.Index(data, []byte("\n\n")); i >= 0 {
		return i + 2, data[:i], nil
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// framePayload extracts the JSON after the `data: ` prefix, or nil for
// comment/empty frames.
func framePayload(frame []byte) []byte {
	for _, line := range bytes.Split(frame, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		if rest, ok := bytes.CutPrefix(line, []byte("data: ")); ok {
			if bytes.Equal(rest, []byte("[DONE]")) {
				return nil
			}
			return rest
		}
	}
	return nil
}

func (t *StreamTranslator) handleFrame(payload []byte, emit Emitter) error {
	var chunk dialect.GenerateResponse
	if err := json.Unmarshal(payload, &chunk); err != nil {
		// Malformed frames are dropped; the upstream occasionally
		// interleaves keep-alive noise.
		slog.Debug("Dropping malformed stream frame", "error", err)
		return nil
	}

	if chunk.Error != nil {
		emitErr := emit(dialect.EventError, dialect.ErrorEvent{
			Type: "error",
			Error: dialect.APIError{
				Type:    "stream_error",
				Message: chunk.Error.Message,
			},
		})
		if emitErr != nil {
			return emitErr
		}
		return fmt.Errorf("upstream reported stream error: %s", chunk.Error.Message)
	}

	if t.state == stateInit {
		t.state = stateStreaming
		start := dialect.MessageStartEvent{
			Type: "message_start",
			Message: dialect.MessagesResponse{
				ID:      NewMessageID(),
				Type:    "message",
				Role:    "assistant",
				Content: []dialect.ContentBlock{},
				Model:   t.model,
			},
		}
		if err := emit(dialect.EventMessageStart, start); err != nil {
			return err
		}
	}

	if chunk.UsageMetadata != nil {
		t.outputTokens = chunk.UsageMetadata.CandidatesTokenCount
	}
	if len(chunk.Candidates) == 0 {
		return nil
	}

	candidate := chunk.Candidates[0]
	if candidate.FinishReason != "" {
		t.finishReason = candidate.FinishReason
	}

	for _, part := range candidate.Content.Parts {
		if text, ok := part["text"].(string); ok && text != "" {
			if err := t.emitText(text, emit); err != nil {
				return err
			}
			continue
		}
		if fc, ok := part["functionCall"].(map[string]interface{}); ok {
			if err := t.emitFunctionCall(fc, emit); err != nil {
				return err
			}
		}
	}

	return nil
}

func (t *StreamTranslator) emitText(text string, emit Emitter) error {
	// All text accumulates in one block at index 0.
	if !t.textBlockStarted {
		t.textBlockStarted = true
		t.nextIndex = 1
		start := dialect.ContentBlockStartEvent{
			Type:         "content_block_start",
			Index:        0,
			ContentBlock: dialect.ContentBlock{Type: "text"},
		}
		if err := emit(dialect.EventContentBlockStart, start); err != nil {
			return err
		}
	}

	return emit(dialect.EventContentBlockDelta, dialect.ContentBlockDeltaEvent{
		Type:  "content_block_delta",
		Index: 0,
		Delta: dialect.Delta{Type: "text_delta", Text: text},
	})
}

// emitFunctionCall emits the three-event burst for one upstream functionCall:
// the call arrives whole, so start, full input delta, and stop go out
// back to back.
func (t *StreamTranslator) emitFunctionCall(fc map[string]interface{}, emit Emitter) error {
	name, _ := fc["name"].(string)
	args := fc["args"]
	if args == nil {
		args = map[string]interface{}{}
	}

	index := t.nextIndex
	t.nextIndex++

	start := dialect.ContentBlockStartEvent{
		Type:  "content_block_start",
		Index: index,
		ContentBlock: dialect.ContentBlock{
			Type:  "tool_use",
			ID:    NewToolUseID(),
			Name:  name,
			Input: map[string]interface{}{},
		},
	}
	if err := emit(dialect.EventContentBlockStart, start); err != nil {
		return err
	}

	partial, err := json.Marshal(args)
	if err != nil {
		partial = []byte("{}")
	}
	deltaEvent := dialect.ContentBlockDeltaEvent{
		Type:  "content_block_delta",
		Index: index,
		Delta: dialect.Delta{Type: "input_json_delta", PartialJSON: string(partial)},
	}
	if err := emit(dialect.EventContentBlockDelta, deltaEvent); err != nil {
		return err
	}

	return emit(dialect.EventContentBlockStop, dialect.ContentBlockStopEvent{
		Type:  "content_block_stop",
		Index: index,
	})
}

// finish emits the closing sequence once the upstream stream ends.
func (t *StreamTranslator) finish(emit Emitter) error {
	if t.state != stateStreaming {
		// Nothing ever arrived; the client never saw message_start.
		return emit(dialect.EventError, dialect.ErrorEvent{
			Type: "error",
			Error: dialect.APIError{
				Type:    "stream_error",
				Message: "upstream closed the stream without data",
			},
		})
	}
	t.state = stateDone

	if t.textBlockStarted {
		stop := dialect.ContentBlockStopEvent{Type: "content_block_stop", Index: 0}
		if err := emit(dialect.EventContentBlockStop, stop); err != nil {
			return err
		}
	}

	deltaEvent := dialect.MessageDeltaEvent{
		Type:  "message_delta",
		Delta: dialect.MessageDelta{StopReason: mapFinishReason(t.finishReason)},
		Usage: dialect.OutputUsage{OutputTokens: t.outputTokens},
	}
	if err := emit(dialect.EventMessageDelta, deltaEvent); err != nil {
		return err
	}

	return emit(dialect.EventMessageStop, dialect.MessageStopEvent{Type: "message_stop"})
}
