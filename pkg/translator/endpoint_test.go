package translator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildEndpointSync(t *testing.T) {
	got := BuildEndpoint("https://upstream.example/v1beta", "gemini-2.5-pro", "fallback", "k123", false)
	assert.Equal(t, "https://upstream.example/v1beta/models/gemini-2.5-pro:generateContent?key=k123", got)
}

func TestBuildEndpointStream(t *testing.T) {
	got := BuildEndpoint("https://upstream.example/v1beta/", "gemini-2.5-pro", "fallback", "k123", true)
	assert.Equal(t, "https://upstream.example/v1beta/models/gemini-2.5-pro:streamGenerateContent?key=k123&alt=sse", got)
}

func TestBuildEndpointDefaultModel(t *testing.T) {
	got := BuildEndpoint("https://upstream.example/v1beta", "", "gemini-2.5-flash", "k", false)
	assert.Contains(t, got, "/models/gemini-2.5-flash:")
}

func TestBuildEndpointEscapesKey(t *testing.T) {
	got := BuildEndpoint("https://upstream.example/v1beta", "m", "", "a&b=c", false)
	assert.Contains(t, got, "key=a%26b%3Dc")
}
