package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// HTTPProvider is the concrete realtime-provider client (§4.6): JSON
// bodies, a hard per-call timeout, and the 3-attempt/250ms/2s retry
// schedule named in §4.4 for transport errors and 5xx responses.
type HTTPProvider struct {
	client    *http.Client
	baseURL   string
	appSecret string
	timeout   time.Duration
	logger    *zap.Logger
}

func NewHTTPProvider(baseURL, appSecret string, timeout time.Duration, logger *zap.Logger) *HTTPProvider {
	return &HTTPProvider{
		client:    &http.Client{},
		baseURL:   baseURL,
		appSecret: appSecret,
		timeout:   timeout,
		logger:    logger,
	}
}

func (p *HTTPProvider) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.Multiplier = 2
	return backoff.WithContext(backoff.WithMaxRetries(b, 2), ctx) // 3 attempts total
}

func (p *HTTPProvider) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("provider: marshal request: %w", err)
		}
		payload = b
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(callCtx, method, p.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("provider: build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+p.appSecret)

		resp, err := p.client.Do(req)
		if err != nil {
			return fmt.Errorf("provider: transport: %w", err) // retried: transport errors
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("provider: read response: %w", err)
		}

		if resp.StatusCode >= 500 {
			return fmt.Errorf("provider: status %d: %s", resp.StatusCode, respBody) // retried: 5xx
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("provider: status %d: %s", resp.StatusCode, respBody))
		}

		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return backoff.Permanent(fmt.Errorf("provider: decode response: %w", err))
			}
		}
		return nil
	}

	err := backoff.Retry(operation, p.retryPolicy(callCtx))
	if err != nil {
		p.logger.Warn("provider call failed after retries", zap.String("path", path), zap.Error(err))
		return err
	}
	return nil
}

func (p *HTTPProvider) CreateSession(ctx context.Context, appID string, offer SessionDescription) (*CreateSessionResult, error) {
	reqBody := struct {
		SessionDescription SessionDescription `json:"sessionDescription"`
	}{SessionDescription: offer}

	var resp struct {
		SessionID          string             `json:"sessionId"`
		SessionDescription SessionDescription `json:"sessionDescription"`
	}
	if err := p.doJSON(ctx, http.MethodPost, fmt.Sprintf("/apps/%s/sessions/new", appID), reqBody, &resp); err != nil {
		return nil, err
	}
	return &CreateSessionResult{SessionIDExt: resp.SessionID, Answer: resp.SessionDescription}, nil
}

func (p *HTTPProvider) AddTracks(ctx context.Context, appID, sessionIDExt string, tracks []Track) (*TracksResult, error) {
	return p.tracksCall(ctx, appID, sessionIDExt, tracks)
}

func (p *HTTPProvider) PullTracks(ctx context.Context, appID, sessionIDExt string, tracks []Track) (*TracksResult, error) {
	return p.tracksCall(ctx, appID, sessionIDExt, tracks)
}

func (p *HTTPProvider) tracksCall(ctx context.Context, appID, sessionIDExt string, tracks []Track) (*TracksResult, error) {
	reqBody := struct {
		Tracks []Track `json:"tracks"`
	}{Tracks: tracks}

	var resp struct {
		RequiresImmediateRenegotiation bool                `json:"requiresImmediateRenegotiation"`
		SessionDescription             *SessionDescription `json:"sessionDescription,omitempty"`
	}
	path := fmt.Sprintf("/apps/%s/sessions/%s/tracks/new", appID, sessionIDExt)
	if err := p.doJSON(ctx, http.MethodPost, path, reqBody, &resp); err != nil {
		return nil, err
	}
	result := &TracksResult{}
	if resp.RequiresImmediateRenegotiation {
		result.Renegotiation = resp.SessionDescription
	}
	return result, nil
}

// TerminateSession is idempotent at the provider (§4.6): a repeated
// call against an already-terminated session is not an error.
func (p *HTTPProvider) TerminateSession(ctx context.Context, appID, sessionIDExt string) error {
	path := fmt.Sprintf("/apps/%s/sessions/%s", appID, sessionIDExt)
	return p.doJSON(ctx, http.MethodDelete, path, nil, nil)
}
