package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// APIFormat selects the request and response shape of a provider
type APIFormat string

const (
	// FormatOpenAI is the OpenAI-compatible /chat/completions API (OpenAI,
	// LocalAI, LM Studio, vLLM).
	FormatOpenAI APIFormat = "openai"

	// FormatOllama is Ollama's /api/chat API.
	FormatOllama APIFormat = "ollama"

	// FormatRaw posts {"prompt": ..., "temperature": ...} and reads text,
	// response or content from the reply.
	FormatRaw APIFormat = "raw"
)

// GenericConfig configures a GenericProvider
type GenericConfig struct {
	Name    string
	Model   string
	BaseURL string
	APIKey  string
	Format  APIFormat
	// MaxTokens caps the completion length; zero leaves the provider default.
	MaxTokens int
}

// GenericProvider is an Adapter over any HTTP completion API
type GenericProvider struct {
	client    *http.Client
	name      string
	model     string
	baseURL   string
	apiKey    string
	format    APIFormat
	maxTokens int
	logger    *zap.Logger
}

// NewGenericProvider creates a provider. Per-call timeouts come from Options,
// so the client itself carries none.
func NewGenericProvider(cfg GenericConfig, logger *zap.Logger) *GenericProvider {
	if cfg.Name == "" {
		cfg.Name = "generic"
	}
	if cfg.Format == "" {
		cfg.Format = FormatOpenAI
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &GenericProvider{
		client:    &http.Client{},
		name:      cfg.Name,
		model:     cfg.Model,
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		format:    cfg.Format,
		maxTokens: cfg.MaxTokens,
		logger:    logger.With(zap.String("provider", cfg.Name), zap.String("model", cfg.Model)),
	}
}

// Name returns the provider name used in logs and errors
func (p *GenericProvider) Name() string { return p.name }

// Invoke sends the prompt and returns the completion text
func (p *GenericProvider) Invoke(ctx context.Context, prompt string, opts Options) (string, error) {
	ctx, cancel := withTimeout(ctx, opts)
	defer cancel()

	httpReq, err := p.buildHTTPRequest(ctx, prompt, opts)
	if err != nil {
		return "", &Error{Kind: ErrProvider, Provider: p.name, Err: fmt.Errorf("failed to build request: %w", err)}
	}

	start := time.Now()
	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", &Error{Kind: ErrTimeout, Provider: p.name, Err: err}
		}
		return "", classify(p.name, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", classify(p.name, fmt.Errorf("failed to read response: %w", err))
	}

	p.logger.Debug("model invocation",
		zap.Int("status", httpResp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("prompt_bytes", len(prompt)),
		zap.Int("response_bytes", len(body)))

	if err := p.checkStatus(httpResp, body); err != nil {
		return "", err
	}

	content, err := p.parseResponse(body)
	if err != nil {
		return "", &Error{Kind: ErrProvider, Provider: p.name, StatusCode: httpResp.StatusCode, Err: err}
	}
	return content, nil
}

func (p *GenericProvider) checkStatus(resp *http.Response, body []byte) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return &Error{
			Kind:       ErrRateLimited,
			Provider:   p.name,
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusRequestTimeout:
		return &Error{Kind: ErrTimeout, Provider: p.name, StatusCode: resp.StatusCode}
	default:
		return &Error{
			Kind:       ErrProvider,
			Provider:   p.name,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", TruncateString(string(body), 300)),
		}
	}
}

// buildHTTPRequest builds the request body for the configured format
func (p *GenericProvider) buildHTTPRequest(ctx context.Context, prompt string, opts Options) (*http.Request, error) {
	var requestBody map[string]interface{}
	var endpoint string

	messages := make([]map[string]string, 0, 2)
	if opts.System != "" {
		messages = append(messages, map[string]string{"role": "system", "content": opts.System})
	}
	messages = append(messages, map[string]string{"role": "user", "content": prompt})
	wantJSON := strings.EqualFold(opts.FormatHint, "json")

	switch p.format {
	case FormatOpenAI:
		endpoint = p.baseURL + "/chat/completions"
		requestBody = map[string]interface{}{
			"model":       p.model,
			"messages":    messages,
			"temperature": opts.Temperature,
		}
		if p.maxTokens > 0 {
			requestBody["max_tokens"] = p.maxTokens
		}
		if wantJSON {
			requestBody["response_format"] = map[string]string{"type": "json_object"}
		}

	case FormatOllama:
		endpoint = p.baseURL + "/api/chat"
		requestBody = map[string]interface{}{
			"model":    p.model,
			"messages": messages,
			"stream":   false,
			"options": map[string]interface{}{
				"temperature": opts.Temperature,
			},
		}
		if wantJSON {
			requestBody["format"] = "json"
		}

	case FormatRaw:
		endpoint = p.baseURL
		requestBody = map[string]interface{}{
			"prompt":      prompt,
			"system":      opts.System,
			"temperature": opts.Temperature,
		}

	default:
		return nil, fmt.Errorf("unsupported API format: %s", p.format)
	}

	bodyBytes, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	return req, nil
}

// parseResponse extracts the completion text for the configured format
func (p *GenericProvider) parseResponse(body []byte) (string, error) {
	switch p.format {
	case FormatOpenAI:
		var resp struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to decode completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("no choices in response")
		}
		return resp.Choices[0].Message.Content, nil

	case FormatOllama:
		var resp struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			Response string `json:"response"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to decode completion: %w", err)
		}
		if resp.Message.Content != "" {
			return resp.Message.Content, nil
		}
		return resp.Response, nil

	case FormatRaw:
		var resp map[string]interface{}
		if err := json.Unmarshal(body, &resp); err != nil {
			// Not JSON: the body is the completion
			return string(body), nil
		}
		for _, key := range []string{"text", "response", "content", "output"} {
			if val, ok := resp[key].(string); ok {
				return val, nil
			}
		}
		return "", fmt.Errorf("no text field in response")

	default:
		return "", fmt.Errorf("unsupported API format: %s", p.format)
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// TruncateString shortens s to at most n bytes, marking the cut
func TruncateString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
