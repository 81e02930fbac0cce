package translator

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmrelay/llmrelay/pkg/dialect"
)

type recordedEvent struct {
	name    string
	payload interface{}
}

func collectEvents(t *testing.T, body io.Reader, opts ...func(*StreamTranslator)) ([]recordedEvent, error) {
	t.Helper()
	tr := NewStreamTranslator("gemini-2.5-pro")
	for _, opt := range opts {
		opt(tr)
	}
	var events []recordedEvent
	err := tr.Run(context.Background(), body, func(event string, payload interface{}) error {
		events = append(events, recordedEvent{name: event, payload: payload})
		return nil
	})
	return events, err
}

func chunk(text string) string {
	return `data: {"candidates":[{"content":{"parts":[{"text":"` + text + `"}]}}]}` + "\n\n"
}

func TestStreamTextAssembly(t *testing.T) {
	upstream := chunk("Hel") + chunk("lo") +
		`data: {"candidates":[{"content":{"parts":[{"text":" world"}]},"finishReason":"STOP"}],"usageMetadata":{"candidatesTokenCount":3}}` + "\n\n"

	events, err := collectEvents(t, strings.NewReader(upstream))
	require.NoError(t, err)

	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.name
	}
	assert.Equal(t, []string{
		dialect.EventMessageStart,
		dialect.EventContentBlockStart,
		dialect.EventContentBlockDelta,
		dialect.EventContentBlockDelta,
		dialect.EventContentBlockDelta,
		dialect.EventContentBlockStop,
		dialect.EventMessageDelta,
		dialect.EventMessageStop,
	}, names)

	start := events[0].payload.(dialect.MessageStartEvent)
	assert.Regexp(t, `^msg_[A-Za-z0-9]{29}$`, start.Message.ID)
	assert.Empty(t, start.Message.Content)

	var text strings.Builder
	for _, e := range events {
		if e.name != dialect.EventContentBlockDelta {
			continue
		}
		text.WriteString(e.payload.(dialect.ContentBlockDeltaEvent).Delta.Text)
	}
	assert.Equal(t, "Hello world", text.String())

	final := events[6].payload.(dialect.MessageDeltaEvent)
	assert.Equal(t, "end_turn", final.Delta.StopReason)
	assert.Nil(t, final.Delta.StopSequence)
	assert.Equal(t, 3, final.Usage.OutputTokens)
}

func TestStreamFunctionCallBurst(t *testing.T) {
	upstream := `data: {"candidates":[{"content":{"parts":[{"functionCall":{"name":"get_weather","args":{"city":"Paris"}}}]},"finishReason":"STOP"}]}` + "\n\n"

	events, err := collectEvents(t, strings.NewReader(upstream))
	require.NoError(t, err)

	require.Len(t, events, 6)
	assert.Equal(t, dialect.EventMessageStart, events[0].name)

	start := events[1].payload.(dialect.ContentBlockStartEvent)
	assert.Equal(t, "tool_use", start.ContentBlock.Type)
	assert.Equal(t, "get_weather", start.ContentBlock.Name)
	assert.Equal(t, 0, start.Index)

	delta := events[2].payload.(dialect.ContentBlockDeltaEvent)
	assert.Equal(t, "input_json_delta", delta.Delta.Type)
	assert.JSONEq(t, `{"city":"Paris"}`, delta.Delta.PartialJSON)

	assert.Equal(t, dialect.EventContentBlockStop, events[3].name)
	assert.Equal(t, dialect.EventMessageDelta, events[4].name)
	assert.Equal(t, dialect.EventMessageStop, events[5].name)
}

func TestStreamTextThenToolIndices(t *testing.T) {
	upstream := chunk("thinking") +
		`data: {"candidates":[{"content":{"parts":[{"functionCall":{"name":"run","args":{}}}]},"finishReason":"STOP"}]}` + "\n\n"

	events, err := collectEvents(t, strings.NewReader(upstream))
	require.NoError(t, err)

	toolStart := events[3].payload.(dialect.ContentBlockStartEvent)
	assert.Equal(t, 1, toolStart.Index, "tool block follows the text block at index 0")
}

func TestStreamDropsMalformedFrames(t *testing.T) {
	upstream := "data: {not json}\n\n" + chunk("ok") +
		`data: {"candidates":[{"content":{"parts":[]},"finishReason":"STOP"}]}` + "\n\n"

	events, err := collectEvents(t, strings.NewReader(upstream))
	require.NoError(t, err)

	var text strings.Builder
	for _, e := range events {
		if e.name == dialect.EventContentBlockDelta {
			text.WriteString(e.payload.(dialect.ContentBlockDeltaEvent).Delta.Text)
		}
	}
	assert.Equal(t, "ok", text.String())
}

func TestStreamUpstreamErrorFrame(t *testing.T) {
	upstream := `data: {"error":{"code":500,"message":"internal"}}` + "\n\n"

	events, err := collectEvents(t, strings.NewReader(upstream))
	require.Error(t, err, "the stream closes after an upstream error frame")

	require.Len(t, events, 1)
	errEvent := events[0].payload.(dialect.ErrorEvent)
	assert.Equal(t, "stream_error", errEvent.Error.Type)
	assert.Equal(t, "internal", errEvent.Error.Message)
}

func TestStreamEmptyUpstream(t *testing.T) {
	events, err := collectEvents(t, strings.NewReader(""))
	require.NoError(t, err)

	require.Len(t, events, 1)
	errEvent := events[0].payload.(dialect.ErrorEvent)
	assert.Equal(t, "stream_error", errEvent.Error.Type)
}

func TestStreamIdleTimeout(t *testing.T) {
	// A pipe that never produces data simulates a stalled upstream.
	pr, pw := io.Pipe()
	defer pw.Close()

	events, err := collectEvents(t, pr, func(tr *StreamTranslator) {
		tr.idleTimeout = 20 * time.Millisecond
	})
	require.ErrorIs(t, err, ErrStreamTimeout)

	require.Len(t, events, 1)
	errEvent := events[0].payload.(dialect.ErrorEvent)
	assert.Equal(t, "stream_timeout", errEvent.Error.Type)
}

func TestStreamContextCancellation(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	tr := NewStreamTranslator("m")
	err := tr.Run(ctx, pr, func(string, interface{}) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}
