// Package a2a is a minimal client for agents speaking the A2A JSON-RPC
// protocol: capability card discovery and single-message exchange.
package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	errx "github.com/Chative-triage/server/internal/core/error"
	logx "github.com/Chative-triage/server/pkg/logger"
)

const (
	PublicCardPath   = "/.well-known/agent-card.json"
	ExtendedCardPath = "/agent/authenticatedExtendedCard"
	DefaultTimeout   = 30 * time.Second

	maxBodyBytes = 1 << 20
)

// AgentCard is the subset of the capability descriptor the client uses.
type AgentCard struct {
	Name                              string `json:"name"`
	Description                       string `json:"description,omitempty"`
	URL                               string `json:"url"`
	Version                           string `json:"version,omitempty"`
	SupportsAuthenticatedExtendedCard bool   `json:"supportsAuthenticatedExtendedCard,omitempty"`
}

type Client struct {
	baseURL     string
	httpClient  *http.Client
	fallbackKey string
}

type Option func(*Client)

// WithHTTPClient replaces the default client (30s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithFallbackCredential sets the key used when the request context carries none.
func WithFallbackCredential(key string) Option {
	return func(c *Client) { c.fallbackKey = strings.TrimSpace(key) }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type credentialKey struct{}

// WithCredential attaches a request-scoped bearer credential for the remote agent.
func WithCredential(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, credentialKey{}, strings.TrimSpace(key))
}

// CredentialFrom returns the request-scoped credential, if any.
func CredentialFrom(ctx context.Context) string {
	key, _ := ctx.Value(credentialKey{}).(string)
	return key
}

// resolveCredential prefers the request-scoped key over the configured fallback.
func (c *Client) resolveCredential(ctx context.Context) (string, error) {
	if key := CredentialFrom(ctx); key != "" {
		return key, nil
	}
	if c.fallbackKey != "" {
		return c.fallbackKey, nil
	}
	return "", errx.New(errx.ErrMissingCredential, http.StatusUnauthorized, errx.ErrMissingCredential.Error())
}

// ResolveCard fetches the public card and, when advertised, upgrades to the
// authenticated extended card. Only the public fetch is fatal.
func (c *Client) ResolveCard(ctx context.Context, key string) (*AgentCard, error) {
	public, err := c.fetchCard(ctx, PublicCardPath, "")
	if err != nil {
		return nil, errx.New(fmt.Errorf("%w: %v", errx.ErrAgentDiscovery, err), http.StatusBadGateway, errx.ErrAgentDiscovery.Error())
	}
	logx.Debug().Str("agent", public.Name).Str("url", public.URL).Msg("resolved public agent card")

	if !public.SupportsAuthenticatedExtendedCard || key == "" {
		return public, nil
	}

	extended, err := c.fetchCard(ctx, ExtendedCardPath, key)
	if err != nil {
		logx.Warn().Err(err).Str("agent", public.Name).Msg("extended agent card unavailable, using public card")
		return public, nil
	}
	logx.Debug().Str("agent", extended.Name).Msg("resolved authenticated extended agent card")
	return extended, nil
}

func (c *Client) fetchCard(ctx context.Context, path, key string) (*AgentCard, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	var card AgentCard
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&card); err != nil {
		return nil, fmt.Errorf("decode agent card: %w", err)
	}
	return &card, nil
}

type textPart struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

type message struct {
	Role      string     `json:"role"`
	Parts     []textPart `json:"parts"`
	MessageID string     `json:"messageId"`
}

type sendParams struct {
	Message  message        `json:"message"`
	Metadata map[string]any `json:"metadata"`
}

type rpcRequest struct {
	JSONRPC string     `json:"jsonrpc"`
	ID      string     `json:"id"`
	Method  string     `json:"method"`
	Params  sendParams `json:"params"`
}

// SendMessage resolves the card, sends query as one user message and reduces
// whatever comes back to a single text answer.
func (c *Client) SendMessage(ctx context.Context, query string) (string, error) {
	key, err := c.resolveCredential(ctx)
	if err != nil {
		return "", err
	}

	card, err := c.ResolveCard(ctx, key)
	if err != nil {
		return "", err
	}

	endpoint := strings.TrimSpace(card.URL)
	if endpoint == "" {
		endpoint = c.baseURL + "/"
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  "message/send",
		Params: sendParams{
			Message: message{
				Role:      "user",
				Parts:     []textPart{{Kind: "text", Text: query}},
				MessageID: uuid.NewString(),
			},
			Metadata: map[string]any{},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal a2a request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build a2a request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send a2a message: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read a2a response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError && len(bytes.TrimSpace(raw)) == 0 {
		return "", fmt.Errorf("a2a agent returned status %d", resp.StatusCode)
	}

	answer := ExtractTextFromBody(raw)
	logx.Debug().Str("agent", card.Name).Int("status", resp.StatusCode).Int("answer_len", len(answer)).Msg("a2a message exchanged")
	return answer, nil
}
