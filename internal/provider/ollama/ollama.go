// Package ollama implements provider.Provider against a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"finchat/internal/provider"
)

const providerName = "ollama"

// Provider talks to the Ollama /api/chat endpoint.
type Provider struct {
	endpoint   string
	model      string
	keepAlive  string
	httpClient *http.Client
	log        zerolog.Logger
}

// New creates an Ollama provider. Zero config fields take their defaults.
func New(cfg Config, log zerolog.Logger) *Provider {
	def := DefaultConfig()
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.KeepAlive == "" {
		cfg.KeepAlive = def.KeepAlive
	}

	return &Provider{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		model:      cfg.Model,
		keepAlive:  cfg.KeepAlive,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log.With().Str("provider", providerName).Logger(),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// Chat sends a non-streaming chat request.
func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	body := p.buildRequest(req)
	p.log.Debug().Str("model", body.Model).Int("messages", len(body.Messages)).Msg("chat request")

	resp, err := p.doRequest(ctx, "/api/chat", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, p.classifyError(fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		p.log.Warn().Int("status", resp.StatusCode).Str("body", string(data)).Msg("error response")
		return nil, p.handleErrorResponse(resp.StatusCode, data)
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &provider.ProviderError{
			Code:     provider.ErrCodeInvalidResponse,
			Message:  "malformed chat response",
			Provider: providerName,
			Err:      err,
		}
	}
	return convertResponse(&out), nil
}

func (p *Provider) buildRequest(req provider.ChatRequest) *chatRequest {
	model := strings.TrimPrefix(req.Model, providerName+":")
	if model == "" {
		model = p.model
	}

	out := &chatRequest{
		Model:     model,
		Messages:  make([]chatMessage, 0, len(req.Messages)),
		KeepAlive: p.keepAlive,
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	if req.Temperature > 0 || req.MaxTokens > 0 {
		out.Options = &modelOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		}
	}
	return out
}

func (p *Provider) doRequest(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, p.classifyError(err)
	}
	return resp, nil
}

func (p *Provider) handleErrorResponse(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
		msg = er.Error
	}

	pe := &provider.ProviderError{Message: msg, Provider: providerName}
	switch {
	case status == http.StatusNotFound:
		pe.Code = provider.ErrCodeModelNotFound
	case status == http.StatusTooManyRequests:
		pe.Code = provider.ErrCodeRateLimited
		pe.Retryable = true
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		pe.Code = provider.ErrCodeTimeout
		pe.Retryable = true
	case status == http.StatusBadRequest && provider.IsContextWindowExceeded(errors.New(msg)):
		pe.Code = provider.ErrCodeContextWindowExceeded
	case status == http.StatusBadRequest:
		pe.Code = provider.ErrCodeInvalidRequest
	case status >= 500:
		pe.Code = provider.ErrCodeServiceUnavailable
		pe.Retryable = true
	default:
		pe.Code = provider.ErrCodeUnknown
	}
	return pe
}

// classifyError converts a transport error to a ProviderError.
func (p *Provider) classifyError(err error) *provider.ProviderError {
	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &ne) && ne.Timeout():
		return &provider.ProviderError{
			Code:      provider.ErrCodeTimeout,
			Message:   "request timed out",
			Provider:  providerName,
			Retryable: true,
			Err:       err,
		}
	case errors.Is(err, context.Canceled):
		return &provider.ProviderError{
			Code:     provider.ErrCodeNetworkError,
			Message:  "request canceled",
			Provider: providerName,
			Err:      err,
		}
	default:
		return &provider.ProviderError{
			Code:      provider.ErrCodeServiceUnavailable,
			Message:   "cannot reach ollama server at " + p.endpoint,
			Provider:  providerName,
			Retryable: true,
			Err:       err,
		}
	}
}

func convertResponse(resp *chatResponse) *provider.ChatResponse {
	out := &provider.ChatResponse{
		Content:      resp.Message.Content,
		FinishReason: provider.FinishReasonStop,
	}
	if resp.DoneReason == "length" {
		out.FinishReason = provider.FinishReasonLength
	}
	if resp.PromptEvalCount > 0 || resp.EvalCount > 0 {
		out.Usage = &provider.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		}
	}
	return out
}
