package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/IshaanNene/ShelfStalk/internal/config"
	"github.com/IshaanNene/ShelfStalk/internal/types"
)

const (
	defaultOpenAIEndpoint = "https://api.openai.com/v1"
	maxResponseBytes      = 4 << 20
)

// Prompt is a provider-neutral chat request.
type Prompt struct {
	System string
	User   string

	// JSON asks the provider for a JSON object response when it supports
	// a structured output mode.
	JSON bool
}

// Provider sends a prompt to an LLM backend and returns the raw text reply.
// Provider-specific envelopes never leak past Complete.
type Provider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, p Prompt) (string, error)
}

// ProviderFactory builds a Provider from configuration.
type ProviderFactory func(cfg config.LLMConfig, client *http.Client, logger *slog.Logger) Provider

var (
	registryMu sync.RWMutex
	registry   = map[string]ProviderFactory{
		"openai":            newOpenAI,
		"openai-compatible": newOpenAI,
		"ollama":            newOllama,
	}
)

// RegisterProvider makes a provider available to NewProvider under name.
func RegisterProvider(name string, factory ProviderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = factory
}

// Providers lists the registered provider names.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewProvider builds the provider named by cfg.Provider. It fails with
// ErrNoProvider for an unknown name and ErrNoCredentials when the provider's
// prerequisites (API key, or endpoint and model) are missing.
func NewProvider(cfg config.LLMConfig, logger *slog.Logger) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", types.ErrNoProvider, cfg.Provider, strings.Join(Providers(), ", "))
	}
	cfg.Provider = name
	if !cfg.HasCredentials() {
		return nil, fmt.Errorf("%w for provider %q", types.ErrNoCredentials, name)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	return factory(cfg, client, logger), nil
}

// chatMessage is shared by both envelopes.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func messages(p Prompt) []chatMessage {
	var msgs []chatMessage
	if p.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: p.System})
	}
	return append(msgs, chatMessage{Role: "user", Content: p.User})
}

// --- OpenAI (and OpenAI-shaped self-hosted APIs) ---

// OpenAIProvider talks to /chat/completions with a bearer token.
type OpenAIProvider struct {
	cfg    config.LLMConfig
	client *http.Client
	logger *slog.Logger
}

func newOpenAI(cfg config.LLMConfig, client *http.Client, logger *slog.Logger) Provider {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultOpenAIEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &OpenAIProvider{cfg: cfg, client: client, logger: logger.With("component", "llm_openai")}
}

func (o *OpenAIProvider) Name() string  { return o.cfg.Provider }
func (o *OpenAIProvider) Model() string { return o.cfg.Model }

func (o *OpenAIProvider) Complete(ctx context.Context, p Prompt) (string, error) {
	payload := map[string]any{
		"model":       o.cfg.Model,
		"messages":    messages(p),
		"temperature": o.cfg.Temperature,
	}
	if o.cfg.MaxTokens > 0 {
		payload["max_tokens"] = o.cfg.MaxTokens
	}
	if p.JSON {
		payload["response_format"] = map[string]string{"type": "json_object"}
	}

	headers := map[string]string{}
	if o.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + o.cfg.APIKey
	}
	body, err := postJSON(ctx, o.client, o.Name(), o.cfg.Endpoint+"/chat/completions", headers, payload)
	if err != nil {
		return "", err
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", &types.LLMError{Provider: o.Name(), Category: types.LLMErrResponse, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(result.Choices) == 0 {
		return "", &types.LLMError{Provider: o.Name(), Category: types.LLMErrResponse, Err: errors.New("no choices in response")}
	}
	o.logger.Debug("completion received", "model", o.cfg.Model, "chars", len(result.Choices[0].Message.Content))
	return result.Choices[0].Message.Content, nil
}

// --- Ollama ---

// OllamaProvider talks to a local Ollama server's /api/chat endpoint.
type OllamaProvider struct {
	cfg    config.LLMConfig
	client *http.Client
	logger *slog.Logger
}

func newOllama(cfg config.LLMConfig, client *http.Client, logger *slog.Logger) Provider {
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &OllamaProvider{cfg: cfg, client: client, logger: logger.With("component", "llm_ollama")}
}

func (o *OllamaProvider) Name() string  { return "ollama" }
func (o *OllamaProvider) Model() string { return o.cfg.Model }

func (o *OllamaProvider) Complete(ctx context.Context, p Prompt) (string, error) {
	options := map[string]any{"temperature": o.cfg.Temperature}
	if o.cfg.MaxTokens > 0 {
		options["num_predict"] = o.cfg.MaxTokens
	}
	payload := map[string]any{
		"model":    o.cfg.Model,
		"messages": messages(p),
		"stream":   false,
		"options":  options,
	}
	if p.JSON {
		payload["format"] = "json"
	}

	body, err := postJSON(ctx, o.client, o.Name(), o.cfg.Endpoint+"/api/chat", nil, payload)
	if err != nil {
		return "", err
	}

	var result struct {
		Message chatMessage `json:"message"`
		Error   string      `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", &types.LLMError{Provider: o.Name(), Category: types.LLMErrResponse, Err: fmt.Errorf("decode response: %w", err)}
	}
	if result.Error != "" {
		return "", &types.LLMError{Provider: o.Name(), Category: types.LLMErrResponse, Err: errors.New(result.Error)}
	}
	o.logger.Debug("completion received", "model", o.cfg.Model, "chars", len(result.Message.Content))
	return result.Message.Content, nil
}

// postJSON sends payload and returns the response body of a 2xx reply.
// Every failure is an *types.LLMError.
func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, payload any) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, &types.LLMError{Provider: provider, Category: types.LLMErrBadRequest, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, &types.LLMError{Provider: provider, Category: types.LLMErrBadRequest, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyTransport(provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyTransport(provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus(provider, resp.StatusCode, body)
	}
	return body, nil
}

// classifyStatus maps a non-2xx provider reply onto an LLMError category.
func classifyStatus(provider string, status int, body []byte) *types.LLMError {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	e := &types.LLMError{Provider: provider, StatusCode: status, Err: fmt.Errorf("status %d: %s", status, msg)}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Category = types.LLMErrAuth
	case status == http.StatusTooManyRequests:
		e.Category, e.Retryable = types.LLMErrRateLimit, true
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		e.Category, e.Retryable = types.LLMErrTimeout, true
	case status >= 500:
		e.Category, e.Retryable = types.LLMErrServer, true
	default:
		e.Category = types.LLMErrBadRequest
	}
	return e
}

func classifyTransport(provider string, err error) *types.LLMError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &types.LLMError{Provider: provider, Category: types.LLMErrTimeout, Retryable: true, Err: err}
	}
	return &types.LLMError{Provider: provider, Category: types.LLMErrTransport, Retryable: !errors.Is(err, context.Canceled), Err: err}
}
