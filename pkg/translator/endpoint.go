package translator

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildEndpoint resolves the upstream URL for one call:
//
//	<base>/models/<model>:generateContent?key=<k>
//	<base>/models/<model>:streamGenerateContent?key=<k>&alt=sse
//
// The request's model wins; the configured default fills in when absent. The
// API key travels as a query parameter, which is how the upstream
// authenticates.
func BuildEndpoint(baseURL, model, defaultModel, apiKey string, stream bool) string {
	if model == "" {
		model = defaultModel
	}

	op := "generateContent"
	if stream {
		op = "streamGenerateContent"
	}

	endpoint := fmt.Sprintf("%s/models/%s:%s?key=%s",
		strings.TrimSuffix(baseURL, "/"), url.PathEscape(model), op, url.QueryEscape(apiKey))
	if stream {
		endpoint += "&alt=sse"
	}
	return endpoint
}
