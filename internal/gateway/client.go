// Package gateway forwards AI tasks to an external gateway service. Nothing
// here interprets the task; requests and answers pass through opaquely.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfsuite/internal/config"
	"github.com/local/pdfsuite/internal/metrics"
)

const maxErrorBody = 512

type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	breaker *Breaker
}

// New returns a client for cfg.URL. breaker may be nil.
func New(cfg config.GatewayConfig, breaker *Breaker) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: cfg.URL,
		apiKey:  cfg.APIKey,
		breaker: breaker,
	}
}

// Enabled reports whether a gateway URL is configured.
func (c *Client) Enabled() bool { return c != nil && c.baseURL != "" }

type gatewayReq struct {
	UserID string         `json:"user_id,omitempty"`
	Text   string         `json:"text"`
	Params map[string]any `json:"params,omitempty"`
}

type gatewayResp struct {
	Text  string `json:"text"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Do sends req to POST {base}/v1/{task}.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	if !c.Enabled() {
		return Response{}, ErrNotConfigured
	}
	if !ValidTask(req.Task) {
		return Response{}, fmt.Errorf("%w: %q", ErrInvalidTask, req.Task)
	}
	if c.breaker != nil && c.breaker.IsOpen(ctx, req.Task) {
		metrics.ObserveGateway(req.Task, "breaker_open")
		return Response{}, ErrBreakerOpen
	}

	start := time.Now()
	resp, err := c.do(ctx, req)
	switch {
	case err == nil:
		metrics.ObserveGateway(req.Task, "ok")
		if c.breaker != nil {
			c.breaker.Close(ctx, req.Task)
		}
	case IsTransient(err):
		metrics.ObserveGateway(req.Task, "transient")
		if c.breaker != nil {
			c.breaker.Open(ctx, req.Task)
		}
	default:
		metrics.ObserveGateway(req.Task, "error")
	}

	log.Debug().
		Str("task", req.Task).
		Str("user_id", req.UserID).
		Dur("elapsed", time.Since(start)).
		Err(err).
		Msg("ai gateway call")
	return resp, err
}

func (c *Client) do(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(gatewayReq{UserID: req.UserID, Text: req.Text, Params: req.Params})
	if err != nil {
		return Response{}, fmt.Errorf("encode gateway request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/"+req.Task, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read gateway response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return Response{}, ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(raw) > maxErrorBody {
			raw = raw[:maxErrorBody]
		}
		return Response{}, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var r gatewayResp
	if err := json.Unmarshal(raw, &r); err != nil {
		return Response{}, fmt.Errorf("decode gateway response: %w", err)
	}
	return Response{
		Text:      r.Text,
		TokensIn:  r.Usage.InputTokens,
		TokensOut: r.Usage.OutputTokens,
		Raw:       json.RawMessage(raw),
	}, nil
}

// Ping checks GET {base}/health.
func (c *Client) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return &HTTPError{StatusCode: resp.StatusCode}
	}
	return nil
}

// IsBreakerOpen reports whether err came from an open circuit.
func IsBreakerOpen(err error) bool { return errors.Is(err, ErrBreakerOpen) }
