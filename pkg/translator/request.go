package translator

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/llmrelay/llmrelay/pkg/dialect"
)

// TranslationError reports an inbound request the translator cannot map.
type TranslationError struct {
	Reason string
}

func (e *TranslationError) Error() string {
	return e.Reason
}

// TranslateRequest converts a Dialect A request into a Dialect G request.
// The input is never mutated.
//
// Consecutive same-role turns merge into one upstream turn, tool_use and
// tool_result blocks become functionCall/functionResponse parts, and the tool
// catalog is dropped when any part is a functionResponse (the upstream
// forbids both together).
func TranslateRequest(req *dialect.MessagesRequest) (*dialect.GenerateRequest, error) {
	if len(req.Messages) == 0 {
		return nil, &TranslationError{Reason: "messages is required"}
	}
	hasRole := false
	for _, msg := range req.Messages {
		if msg.Role != "" {
			hasRole = true
			break
		}
	}
	if !hasRole {
		return nil, &TranslationError{Reason: "no message carries a role"}
	}

	out := &dialect.GenerateRequest{
		GenerationConfig: buildGenerationConfig(req),
		SafetySettings:   dialect.PermissiveSafetySettings(),
	}

	hasFunctionResponse := false
	for i, msg := range req.Messages {
		role := msg.Role
		if role == "assistant" {
			role = "model"
		}

		parts, sawFunctionResponse := translateContent(req.Messages, i)
		if sawFunctionResponse {
			hasFunctionResponse = true
		}
		if len(parts) == 0 {
			continue
		}

		// Merge consecutive turns of the same role, preserving part order.
		if n := len(out.Contents); n > 0 && out.Contents[n-1].Role == role {
			out.Contents[n-1].Parts = append(out.Contents[n-1].Parts, parts...)
			continue
		}
		out.Contents = append(out.Contents, dialect.GeminiContent{Role: role, Parts: parts})
	}

	if instruction := flattenSystem(req.System); instruction != "" {
		out.SystemInstruction = &dialect.GeminiContent{
			Parts: []dialect.GeminiPart{{"text": instruction}},
		}
	}

	// The upstream rejects requests carrying both a tool catalog and
	// function responses; the declarations from the original turn still
	// govern the call on the upstream side.
	if len(req.Tools) > 0 && !hasFunctionResponse {
		declarations := make([]dialect.GeminiFunctionDeclaration, 0, len(req.Tools))
		for _, tool := range req.Tools {
			var params map[string]interface{}
			if tool.InputSchema != nil {
				params, _ = SanitizeSchema(tool.InputSchema).(map[string]interface{})
			}
			declarations = append(declarations, dialect.GeminiFunctionDeclaration{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			})
		}
		out.Tools = []dialect.GeminiToolSet{{FunctionDeclarations: declarations}}

		if req.ToolChoice != nil {
			out.ToolConfig = &dialect.GeminiToolConfig{
				FunctionCallingConfig: dialect.GeminiFunctionCallingConfig{
					Mode: toolChoiceMode(req.ToolChoice.Type),
				},
			}
		}
	}

	return out, nil
}

func toolChoiceMode(choiceType string) string {
	switch choiceType {
	case "any", "tool":
		return dialect.FunctionCallingAny
	case "none":
		return dialect.FunctionCallingNone
	default:
		return dialect.FunctionCallingAuto
	}
}

func buildGenerationConfig(req *dialect.MessagesRequest) *dialect.GeminiGenerationConfig {
	cfg := &dialect.GeminiGenerationConfig{
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		TopK:          req.TopK,
		StopSequences: req.StopSequences,
	}

	// Agent clients routinely send tiny max_tokens for side requests; the
	// upstream would truncate mid-sentence, so small caps widen to 4096.
	if req.MaxTokens >= 100 {
		cfg.MaxOutputTokens = req.MaxTokens
	} else {
		cfg.MaxOutputTokens = 4096
	}

	if rf := req.ResponseFormat; rf != nil {
		switch rf.Type {
		case "json_object", "json_schema":
			cfg.ResponseMimeType = "application/json"
			if rf.Schema != nil {
				cfg.ResponseJsonSchema, _ = SanitizeSchema(rf.Schema).(map[string]interface{})
			}
		}
	}

	return cfg
}

// flattenSystem joins the system prompt into a single string: either the
// string form or the text of each block joined by blank lines.
func flattenSystem(system interface{}) string {
	switch s := system.(type) {
	case string:
		return s
	case []interface{}:
		var texts []string
		for _, block := range s {
			if b, ok := block.(map[string]interface{}); ok {
				if text, ok := b["text"].(string); ok {
					texts = append(texts, text)
				}
			}
		}
		return strings.Join(texts, "\n\n")
	default:
		return ""
	}
}

// translateContent converts the content of messages[index] into upstream
// parts. The full message slice is needed to resolve tool_result names.
func translateContent(messages []dialect.Message, index int) ([]dialect.GeminiPart, bool) {
	var parts []dialect.GeminiPart
	sawFunctionResponse := false

	switch content := messages[index].Content.(type) {
	case string:
		if content != "" {
			parts = append(parts, dialect.GeminiPart{"text": content})
		}
	case []interface{}:
		for _, raw := range content {
			block, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			blockType, _ := block["type"].(string)
			switch blockType {
			case "text":
				if text, ok := block["text"].(string); ok && text != "" {
					parts = append(parts, dialect.GeminiPart{"text": text})
				}
			case "image":
				if part := imagePart(block); part != nil {
					parts = append(parts, part)
				}
			case "tool_use":
				name, _ := block["name"].(string)
				args, _ := block["input"].(map[string]interface{})
				if args == nil {
					args = map[string]interface{}{}
				}
				parts = append(parts, dialect.GeminiPart{
					"functionCall": map[string]interface{}{
						"name": name,
						"args": args,
					},
				})
			case "tool_result":
				parts = append(parts, toolResultPart(messages, index, block))
				sawFunctionResponse = true
			}
		}
	}

	return parts, sawFunctionResponse
}

func imagePart(block map[string]interface{}) dialect.GeminiPart {
	source, ok := block["source"].(map[string]interface{})
	if !ok {
		return nil
	}
	mediaType, _ := source["media_type"].(string)
	data, _ := source["data"].(string)
	if data == "" {
		return nil
	}
	return dialect.GeminiPart{
		"inlineData": map[string]interface{}{
			"mimeType": mediaType,
			"data":     data,
		},
	}
}

// toolResultPart builds a functionResponse part. The function name comes from
// the most recent earlier tool_use block with the matching id; the upstream
// correlates responses by name, not id.
func toolResultPart(messages []dialect.Message, index int, block map[string]interface{}) dialect.GeminiPart {
	toolUseID, _ := block["tool_use_id"].(string)

	name := resolveToolName(messages, index, toolUseID)
	if name == "" {
		slog.Error("No matching tool_use for tool_result; using raw id as function name",
			"tool_use_id", toolUseID)
		name = toolUseID
	}

	response := coerceToolResult(block["content"])
	if isError, _ := block["is_error"].(bool); isError {
		response["error"] = true
		response["error_message"] = stringifyContent(block["content"])
	}

	return dialect.GeminiPart{
		"functionResponse": map[string]interface{}{
			"name":     name,
			"response": response,
		},
	}
}

// resolveToolName walks backward from the tool_result's turn for the most
// recent tool_use whose id matches.
func resolveToolName(messages []dialect.Message, index int, toolUseID string) string {
	if toolUseID == "" {
		return ""
	}
	for i := index; i >= 0; i-- {
		blocks, ok := messages[i].Content.([]interface{})
		if !ok {
			continue
		}
		for j := len(blocks) - 1; j >= 0; j-- {
			block, ok := blocks[j].(map[string]interface{})
			if !ok {
				continue
			}
			if blockType, _ := block["type"].(string); blockType != "tool_use" {
				continue
			}
			if id, _ := block["id"].(string); id == toolUseID {
				name, _ := block["name"].(string)
				return name
			}
		}
	}
	return ""
}

// coerceToolResult shapes a tool_result content value into the upstream
// response object: strings and arrays wrap under "result", objects pass
// through, anything else is stringified.
func coerceToolResult(content interface{}) map[string]interface{} {
	switch c := content.(type) {
	case string:
		return map[string]interface{}{"result": c}
	case []interface{}:
		return map[string]interface{}{"result": c}
	case map[string]interface{}:
		out := make(map[string]interface{}, len(c))
		for k, v := range c {
			out[k] = v
		}
		return out
	case nil:
		return map[string]interface{}{"result": ""}
	default:
		return map[string]interface{}{"result": fmt.Sprintf("%v", c)}
	}
}

func stringifyContent(content interface{}) string {
	switch c := content.(type) {
	case string:
		return c
	default:
		return fmt.Sprintf("%v", c)
	}
}
