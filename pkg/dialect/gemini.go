package dialect

// ============================================================================
// DIALECT G — UPSTREAM GENERATIVE LANGUAGE API
// ============================================================================

// GenerateRequest is the outbound request to :generateContent /
// :streamGenerateContent.
type GenerateRequest struct {
	Contents          []GeminiContent         `json:"contents"`
	SystemInstruction *GeminiContent          `json:"system_instruction,omitempty"`
	GenerationConfig  *GeminiGenerationConfig `json:"generationConfig,omitempty"`
	Tools             []GeminiToolSet         `json:"tools,omitempty"`
	ToolConfig        *GeminiToolConfig       `json:"tool_config,omitempty"`
	SafetySettings    []GeminiSafetySetting   `json:"safetySettings,omitempty"`
}

// GeminiGenerationConfig configures generation parameters.
type GeminiGenerationConfig struct {
	Temperature        *float64               `json:"temperature,omitempty"`
	TopP               *float64               `json:"topP,omitempty"`
	TopK               *int                   `json:"topK,omitempty"`
	MaxOutputTokens    int                    `json:"maxOutputTokens,omitempty"`
	StopSequences      []string               `json:"stopSequences,omitempty"`
	ResponseMimeType   string                 `json:"responseMimeType,omitempty"`
	ResponseJsonSchema map[string]interface{} `json:"responseJsonSchema,omitempty"`
}

// GeminiContent represents one upstream turn: role is "user" or "model".
type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

// GeminiPart is a part of content: {text}, {inlineData}, {functionCall} or
// {functionResponse}. The open shape follows the upstream wire format.
type GeminiPart map[string]interface{}

// GeminiToolSet wraps the function declarations of the tool catalog.
type GeminiToolSet struct {
	FunctionDeclarations []GeminiFunctionDeclaration `json:"functionDeclarations,omitempty"`
}

// GeminiFunctionDeclaration declares one callable function.
type GeminiFunctionDeclaration struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// Function-calling modes for GeminiToolConfig.
const (
	FunctionCallingAuto = "AUTO"
	FunctionCallingAny  = "ANY"
	FunctionCallingNone = "NONE"
)

// GeminiToolConfig controls the tool-calling policy.
type GeminiToolConfig struct {
	FunctionCallingConfig GeminiFunctionCallingConfig `json:"function_calling_config"`
}

type GeminiFunctionCallingConfig struct {
	Mode string `json:"mode"`
}

// GeminiSafetySetting sets the blocking threshold for one harm category.
type GeminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// PermissiveSafetySettings disables blocking for every harm category. The
// gateway always attaches this fixed vector; content policy belongs to the
// upstream account, not the proxy.
func PermissiveSafetySettings() []GeminiSafetySetting {
	categories := []string{
		"HARM_CATEGORY_HARASSMENT",
		"HARM_CATEGORY_HATE_SPEECH",
		"HARM_CATEGORY_SEXUALLY_EXPLICIT",
		"HARM_CATEGORY_DANGEROUS_CONTENT",
	}
	settings := make([]GeminiSafetySetting, len(categories))
	for i, c := range categories {
		settings[i] = GeminiSafetySetting{Category: c, Threshold: "BLOCK_NONE"}
	}
	return settings
}

// GenerateResponse is the upstream reply.
type GenerateResponse struct {
	Candidates    []GeminiCandidate    `json:"candidates"`
	UsageMetadata *GeminiUsageMetadata `json:"usageMetadata,omitempty"`
	Error         *GeminiError         `json:"error,omitempty"`
}

// GeminiCandidate is one candidate completion.
type GeminiCandidate struct {
	Content      GeminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

// GeminiUsageMetadata reports upstream token usage.
type GeminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// GeminiError is the upstream error payload.
type GeminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}
