// Package proxy is the client-facing translation controller: it
// authenticates, classifies, caches, queues, translates, dispatches upstream,
// and maps failures to client-visible error kinds.
package proxy

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/llmrelay/llmrelay/pkg/cache"
	"github.com/llmrelay/llmrelay/pkg/classifier"
	"github.com/llmrelay/llmrelay/pkg/config"
	"github.com/llmrelay/llmrelay/pkg/dialect"
	"github.com/llmrelay/llmrelay/pkg/dispatch"
	"github.com/llmrelay/llmrelay/pkg/httpclient"
	"github.com/llmrelay/llmrelay/pkg/metrics"
	"github.com/llmrelay/llmrelay/pkg/translator"
)

// upstreamTimeout is the ceiling on a synchronous upstream call. Streaming
// calls are governed by the stream idle timeout instead.
const upstreamTimeout = 60 * time.Second

// errorBodyLimit caps how much of an upstream failure body is retained for
// the client-visible details field.
const errorBodyLimit = 1 << 20

// Proxy wires the translation pipeline together.
type Proxy struct {
	store *config.Store
	cache *cache.ResponseCache
	queue *dispatch.Queue
	stats *Stats

	// Separate clients: the sync path carries a hard 60s ceiling, the
	// stream path must be allowed to outlive it.
	syncClient   *httpclient.Client
	streamClient *httpclient.Client
}

// Option customises a Proxy.
type Option func(*Proxy)

// WithHTTPClient replaces the underlying transport for both the sync and
// stream paths. Used by tests to point at a fake upstream.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Proxy) {
		sync := *client
		sync.Timeout = upstreamTimeout
		p.syncClient = httpclient.New(httpclient.WithHTTPClient(&sync))
		stream := *client
		stream.Timeout = 0
		p.streamClient = httpclient.New(httpclient.WithHTTPClient(&stream))
	}
}

// New creates a proxy over the given collaborators.
func New(store *config.Store, respCache *cache.ResponseCache, queue *dispatch.Queue, stats *Stats, opts ...Option) *Proxy {
	p := &Proxy{
		store:        store,
		cache:        respCache,
		queue:        queue,
		stats:        stats,
		syncClient:   httpclient.New(httpclient.WithTimeout(upstreamTimeout)),
		streamClient: httpclient.New(httpclient.WithHTTPClient(&http.Client{})),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stats exposes the traffic counters for the admin surface.
func (p *Proxy) Stats() *Stats {
	return p.stats
}

// HandleMessages serves POST /v1/messages.
func (p *Proxy) HandleMessages(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set("X-Request-Id", requestID)
	log := slog.With("request_id", requestID)

	settings := p.store.Get()

	if !p.authenticated(r, settings.LocalAPIKey) {
		writeError(w, http.StatusUnauthorized, ErrAuthentication, "missing or invalid API key")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrValidation,
				fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, ErrInvalidRequest, "could not read request body")
		return
	}

	var req dialect.MessagesRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrInvalidRequest, "request body is not valid JSON")
		return
	}

	label := classifier.Classify(&req)
	p.stats.Record(label)
	log = log.With("classification", string(label), "stream", req.Stream)

	started := time.Now()
	defer func() {
		metrics.RequestDuration.
			WithLabelValues(string(label), strconv.FormatBool(req.Stream)).
			Observe(time.Since(started).Seconds())
	}()

	// Side requests never need tools; stripping them saves upstream tokens.
	forwarded := req
	if label.StripsTools() {
		forwarded.Tools = nil
		forwarded.ToolChoice = nil
	}

	fingerprint := cache.Fingerprint(body)
	if !req.Stream {
		if cached, ok := p.cache.Get(fingerprint); ok {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			metrics.RequestsTotal.WithLabelValues(string(label), "cached").Inc()
			p.stats.RecordCacheHit()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "HIT")
			w.Write(cached)
			return
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	release, err := p.queue.Acquire(r.Context())
	if err != nil {
		// Client disconnected while queued; nothing to reply to.
		log.Debug("Caller withdrew from dispatch queue", "error", err)
		return
	}
	defer release()
	metrics.QueueWaiting.Set(float64(p.queue.Waiting()))
	metrics.QueueInFlight.Set(float64(p.queue.InFlight()))

	upstream, err := translator.TranslateRequest(&forwarded)
	if err != nil {
		p.stats.RecordError()
		metrics.RequestsTotal.WithLabelValues(string(label), "error").Inc()
		writeError(w, http.StatusBadRequest, ErrInvalidRequest, err.Error())
		return
	}

	model := req.Model
	if model == "" {
		model = settings.DefaultModel
	}

	if req.Stream {
		p.serveStream(w, r, log, label, settings, upstream, model)
		return
	}
	p.serveSync(w, r, log, label, settings, upstream, model, fingerprint)
}

func (p *Proxy) authenticated(r *http.Request, localKey string) bool {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return false
	}
	token := header[len(prefix):]
	return subtle.ConstantTimeCompare([]byte(token), []byte(localKey)) == 1
}

func (p *Proxy) serveSync(w http.ResponseWriter, r *http.Request, log *slog.Logger,
	label classifier.Label, settings config.Settings,
	upstream *dialect.GenerateRequest, model, fingerprint string) {

	ctx, cancel := context.WithTimeout(r.Context(), upstreamTimeout)
	defer cancel()

	resp, err := p.dispatch(ctx, p.syncClient, settings, upstream, model, false)
	if err != nil {
		p.stats.RecordError()
		metrics.RequestsTotal.WithLabelValues(string(label), "error").Inc()
		p.writeUpstreamFailure(w, log, resp, err)
		return
	}
	defer resp.Body.Close()

	var reply dialect.GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		p.stats.RecordError()
		metrics.RequestsTotal.WithLabelValues(string(label), "error").Inc()
		writeError(w, http.StatusBadGateway, ErrUpstream, "upstream returned unparseable JSON")
		return
	}

	out, err := translator.TranslateResponse(&reply, model)
	if err != nil {
		p.stats.RecordError()
		metrics.RequestsTotal.WithLabelValues(string(label), "error").Inc()
		writeError(w, http.StatusBadGateway, ErrUpstream, err.Error())
		return
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		p.stats.RecordError()
		writeError(w, http.StatusInternalServerError, ErrServer, "could not encode response")
		return
	}

	metrics.RequestsTotal.WithLabelValues(string(label), "ok").Inc()
	metrics.TokensTotal.WithLabelValues("input").Add(float64(out.Usage.InputTokens))
	metrics.TokensTotal.WithLabelValues("output").Add(float64(out.Usage.OutputTokens))

	p.cache.Put(fingerprint, encoded)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "MISS")
	w.Write(encoded)
}

func (p *Proxy) serveStream(w http.ResponseWriter, r *http.Request, log *slog.Logger,
	label classifier.Label, settings config.Settings,
	upstream *dialect.GenerateRequest, model string) {

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, ErrServer, "streaming unsupported by connection")
		return
	}

	resp, err := p.dispatch(r.Context(), p.streamClient, settings, upstream, model, true)
	if err != nil {
		p.stats.RecordError()
		metrics.RequestsTotal.WithLabelValues(string(label), "error").Inc()
		p.writeUpstreamFailure(w, log, resp, err)
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	emit := func(event string, payload interface{}) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := translator.NewStreamTranslator(model).Run(r.Context(), resp.Body, emit); err != nil {
		p.stats.RecordError()
		metrics.RequestsTotal.WithLabelValues(string(label), "error").Inc()
		log.Warn("Stream ended abnormally", "error", sanitizeErr(err))
		return
	}
	metrics.RequestsTotal.WithLabelValues(string(label), "ok").Inc()
}

// dispatch marshals and POSTs the translated request.
func (p *Proxy) dispatch(ctx context.Context, client *httpclient.Client,
	settings config.Settings, upstream *dialect.GenerateRequest,
	model string, stream bool) (*http.Response, error) {

	payload, err := json.Marshal(upstream)
	if err != nil {
		return nil, fmt.Errorf("encoding upstream request: %w", err)
	}

	endpoint := translator.BuildEndpoint(
		settings.UpstreamBaseURL, model, settings.DefaultModel, settings.UpstreamAPIKey, stream)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return client.Do(req)
}

// writeUpstreamFailure maps an upstream failure onto the client reply. HTTP
// failures become a 502 carrying the mapped error kind with the upstream body
// as details; deadline expiry becomes a 504 timeout_error; anything else is a
// 502 api_error. Upstream bodies are never forwarded verbatim as the reply.
func (p *Proxy) writeUpstreamFailure(w http.ResponseWriter, log *slog.Logger, resp *http.Response, err error) {
	if resp != nil {
		defer resp.Body.Close()
		if status := httpclient.StatusCode(err); status != 0 {
			details, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
			kind := mapUpstreamStatus(status)
			metrics.UpstreamErrors.WithLabelValues(kind).Inc()
			log.Warn("Upstream request failed", "status", status, "kind", kind)
			writeErrorDetails(w, http.StatusBadGateway, kind,
				fmt.Sprintf("upstream returned HTTP %d", status), string(details), "")
			return
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		metrics.UpstreamErrors.WithLabelValues(ErrTimeout).Inc()
		log.Warn("Upstream request timed out")
		writeError(w, http.StatusGatewayTimeout, ErrTimeout, "upstream did not answer within 60s")
		return
	}

	metrics.UpstreamErrors.WithLabelValues(ErrAPI).Inc()
	log.Warn("Upstream request failed", "error", sanitizeErr(err))
	writeError(w, http.StatusBadGateway, ErrAPI, "could not reach upstream")
}

// ProbeResult reports the outcome of a connectivity probe.
type ProbeResult struct {
	Connected bool   `json:"connected"`
	Status    int    `json:"status"`
	Error     string `json:"error,omitempty"`
}

// Probe issues one minimal generation against the default model. Used by the
// admin connectivity check.
func (p *Proxy) Probe(ctx context.Context) ProbeResult {
	settings := p.store.Get()

	probe := &dialect.GenerateRequest{
		Contents: []dialect.GeminiContent{
			{Role: "user", Parts: []dialect.GeminiPart{{"text": "Hi"}}},
		},
		GenerationConfig: &dialect.GeminiGenerationConfig{MaxOutputTokens: 8},
	}

	ctx, cancel := context.WithTimeout(ctx, upstreamTimeout)
	defer cancel()

	resp, err := p.dispatch(ctx, p.syncClient, settings, probe, settings.DefaultModel, false)
	if err != nil {
		result := ProbeResult{Error: sanitizeErr(err)}
		if resp != nil {
			resp.Body.Close()
			result.Status = resp.StatusCode
		}
		return result
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, errorBodyLimit))
	return ProbeResult{Connected: true, Status: resp.StatusCode}
}

// sanitizeErr renders an error without leaking the upstream API key, which
// travels in the URL query and would otherwise appear inside *url.Error.
func sanitizeErr(err error) string {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Sprintf("%s %s: %v", uerr.Op, redactURL(uerr.URL), uerr.Err)
	}
	return err.Error()
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable url>"
	}
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
