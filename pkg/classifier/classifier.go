// Package classifier labels inbound requests by intent. The label decides one
// thing only: whether the tool catalog is stripped before forwarding.
package classifier

import (
	"strings"

	"github.com/llmrelay/llmrelay/pkg/dialect"
)

// Label is the classification of one request.
type Label string

const (
	// LabelTitle marks conversation-title and summary side requests.
	LabelTitle Label = "TITLE"
	// LabelTopic marks topic-change detection side requests.
	LabelTopic Label = "TOPIC"
	// LabelWarmup marks short agent self-introduction probes.
	LabelWarmup Label = "WARMUP"
	// LabelTools marks requests carrying an oversized tool catalog.
	LabelTools Label = "TOOLS"
	// LabelNormal is everything else.
	LabelNormal Label = "NORMAL"
)

// warmupMaxLen bounds how long a self-introduction probe can be before it is
// treated as a real conversation.
const warmupMaxLen = 500

// toolCatalogThreshold is the tool count past which a request is labelled
// TOOLS.
const toolCatalogThreshold = 10

var titleTriggers = []string{
	"Please write a 5-10 word title",
	"Summarize this coding conversation",
}

const topicTrigger = "Analyze if this message indicates a new conversation topic"

const warmupTrigger = "You are Claude"

// Classify labels a request from its first user text and tool count.
func Classify(req *dialect.MessagesRequest) Label {
	text := firstUserText(req.Messages)

	for _, trigger := range titleTriggers {
		if strings.Contains(text, trigger) {
			return LabelTitle
		}
	}
	if strings.Contains(text, topicTrigger) {
		return LabelTopic
	}
	if len(text) < warmupMaxLen && strings.Contains(text, warmupTrigger) {
		return LabelWarmup
	}
	if len(req.Tools) > toolCatalogThreshold {
		return LabelTools
	}
	return LabelNormal
}

// StripsTools reports whether requests with this label forward without their
// tool catalog. Side requests never need tools, and sending a large catalog
// alongside them wastes upstream tokens.
func (l Label) StripsTools() bool {
	return l == LabelTitle || l == LabelTopic || l == LabelWarmup
}

// firstUserText returns the first text block of the first user message, or ""
// when there is none.
func firstUserText(messages []dialect.Message) string {
	for _, msg := range messages {
		if msg.Role != "user" {
			continue
		}
		switch content := msg.Content.(type) {
		case string:
			return content
		case []interface{}:
			for _, raw := range content {
				block, ok := raw.(map[string]interface{})
				if !ok {
					continue
				}
				if blockType, _ := block["type"].(string); blockType != "text" {
					continue
				}
				if text, ok := block["text"].(string); ok {
					return text
				}
			}
			return ""
		}
		return ""
	}
	return ""
}
