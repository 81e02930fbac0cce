package translator

import (
	"encoding/json"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmrelay/llmrelay/pkg/dialect"
)

func TestNewMessageIDFormat(t *testing.T) {
	re := regexp.MustCompile(`^msg_[A-Za-z0-9]{29}$`)
	assert.Regexp(t, re, NewMessageID())
	assert.NotEqual(t, NewMessageID(), NewMessageID())
}

func TestNewToolUseIDFormat(t *testing.T) {
	assert.Regexp(t, regexp.MustCompile(`^toolu_[A-Za-z0-9]{12}$`), NewToolUseID())
}

func TestMapFinishReason(t *testing.T) {
	cases := map[string]string{
		"STOP":       "end_turn",
		"MAX_TOKENS": "max_tokens",
		"SAFETY":     "stop_sequence",
		"RECITATION": "stop_sequence",
		"OTHER":      "end_turn",
		"":           "end_turn",
	}
	for reason, want := range cases {
		assert.Equal(t, want, mapFinishReason(reason), "reason %q", reason)
	}
}

func TestTranslateResponseText(t *testing.T) {
	reply := &dialect.GenerateResponse{
		Candidates: []dialect.GeminiCandidate{{
			Content: dialect.GeminiContent{
				Role:  "model",
				Parts: []dialect.GeminiPart{{"text": "hello"}},
			},
			FinishReason: "STOP",
		}},
		UsageMetadata: &dialect.GeminiUsageMetadata{
			PromptTokenCount:     11,
			CandidatesTokenCount: 7,
		},
	}

	out, err := TranslateResponse(reply, "gemini-2.5-pro")
	require.NoError(t, err)

	assert.Equal(t, "message", out.Type)
	assert.Equal(t, "assistant", out.Role)
	assert.Equal(t, "gemini-2.5-pro", out.Model)
	assert.Equal(t, "end_turn", out.StopReason)
	assert.Equal(t, 11, out.Usage.InputTokens)
	assert.Equal(t, 7, out.Usage.OutputTokens)
	require.Len(t, out.Content, 1)
	assert.Equal(t, "hello", out.Content[0].Text)
}

func TestTranslateResponseFunctionCall(t *testing.T) {
	reply := &dialect.GenerateResponse{
		Candidates: []dialect.GeminiCandidate{{
			Content: dialect.GeminiContent{
				Parts: []dialect.GeminiPart{{
					"functionCall": map[string]interface{}{
						"name": "get_weather",
						"args": map[string]interface{}{"city": "Paris"},
					},
				}},
			},
			FinishReason: "STOP",
		}},
	}

	out, err := TranslateResponse(reply, "m")
	require.NoError(t, err)

	require.Len(t, out.Content, 1)
	block := out.Content[0]
	assert.Equal(t, "tool_use", block.Type)
	assert.Regexp(t, `^toolu_[A-Za-z0-9]{12}$`, block.ID)
	assert.Equal(t, "get_weather", block.Name)
	assert.Equal(t, map[string]interface{}{"city": "Paris"}, block.Input)
}

func TestTranslateResponseNoCandidates(t *testing.T) {
	_, err := TranslateResponse(&dialect.GenerateResponse{}, "m")
	var uerr *UpstreamError
	require.ErrorAs(t, err, &uerr)

	withMessage := &dialect.GenerateResponse{
		Error: &dialect.GeminiError{Code: 400, Message: "blocked prompt"},
	}
	_, err = TranslateResponse(withMessage, "m")
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "blocked prompt", uerr.Reason)
}

func TestContentBlockWireShape(t *testing.T) {
	out, err := TranslateResponse(&dialect.GenerateResponse{
		Candidates: []dialect.GeminiCandidate{{
			Content: dialect.GeminiContent{Parts: []dialect.GeminiPart{{"text": "hi"}}},
		}},
	}, "m")
	require.NoError(t, err)

	encoded, err := json.Marshal(out.Content[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"text","text":"hi","citations":null}`, string(encoded))
}
