// Package xao is the Go client for the performance agreement registry API.
// It wraps the HTTP surface one to one; all protocol decisions stay on the
// server.
package xao

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/btree-dev/xao-ai/pkg/agreement"
	"github.com/btree-dev/xao-ai/pkg/typeddata"
)

// Error is the decoded error envelope returned by the registry.
type Error struct {
	StatusCode int
	ErrorCode  string
	Message    string
	RequestID  string
	Details    any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("xao sdk error: status=%d code=%s message=%s", e.StatusCode, e.ErrorCode, e.Message)
}

type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	token string
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Login runs the challenge flow with the given wallet key and keeps the
// session token for subsequent calls. The domain must match the registry's
// deployment identity or the challenge signature will not verify.
func (c *Client) Login(ctx context.Context, domain typeddata.Domain, key ed25519.PrivateKey) (string, error) {
	var challenge struct {
		Nonce string `json:"nonce"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/challenge", nil, &challenge); err != nil {
		return "", err
	}

	env, err := typeddata.Sign(ctx, domain,
		typeddata.Schema{Name: "LoginChallenge", Fields: []typeddata.Field{{Name: "nonce", Type: typeddata.TypeText}}},
		typeddata.Values{"nonce": challenge.Nonce},
		typeddata.NewKeySigner(key), time.Now())
	if err != nil {
		return "", err
	}

	var login struct {
		Token  string `json:"token"`
		Wallet string `json:"wallet"`
	}
	body := map[string]any{"nonce": challenge.Nonce, "envelope": env}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &login); err != nil {
		return "", err
	}
	c.token = login.Token
	return login.Wallet, nil
}

func (c *Client) CreateAgreement(ctx context.Context, d agreement.Draft) (uint64, error) {
	var out struct {
		TokenID uint64 `json:"token_id"`
	}
	err := c.do(ctx, http.MethodPost, "/registry/agreements", map[string]any{"agreement": d}, &out)
	return out.TokenID, err
}

func (c *Client) CreateAgreementPresigned(ctx context.Context, d agreement.Draft, env typeddata.Envelope) (uint64, error) {
	var out struct {
		TokenID uint64 `json:"token_id"`
	}
	err := c.do(ctx, http.MethodPost, "/registry/agreements:presigned",
		map[string]any{"agreement": d, "envelope": env}, &out)
	return out.TokenID, err
}

func (c *Client) FinalizeAgreement(ctx context.Context, venueTokenID uint64, env typeddata.Envelope) (uint64, error) {
	var out struct {
		TokenID uint64 `json:"token_id"`
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/registry/agreements/%d:finalize", venueTokenID),
		map[string]any{"envelope": env}, &out)
	return out.TokenID, err
}

func (c *Client) GetAgreement(ctx context.Context, tokenID uint64) (agreement.Record, error) {
	var out struct {
		Agreement agreement.Record `json:"agreement"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/registry/agreements/%d", tokenID), nil, &out)
	return out.Agreement, err
}

func (c *Client) MarkCompleted(ctx context.Context, tokenID uint64) (agreement.Record, error) {
	return c.transition(ctx, tokenID, "markCompleted")
}

func (c *Client) RaiseDispute(ctx context.Context, tokenID uint64) (agreement.Record, error) {
	return c.transition(ctx, tokenID, "raiseDispute")
}

func (c *Client) ResolveDispute(ctx context.Context, tokenID uint64) (agreement.Record, error) {
	return c.transition(ctx, tokenID, "resolveDispute")
}

func (c *Client) RecordPayment(ctx context.Context, tokenID uint64) (agreement.Record, error) {
	return c.transition(ctx, tokenID, "recordPayment")
}

func (c *Client) transition(ctx context.Context, tokenID uint64, action string) (agreement.Record, error) {
	var out struct {
		Agreement agreement.Record `json:"agreement"`
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/registry/agreements/%d:%s", tokenID, action), nil, &out)
	return out.Agreement, err
}

func (c *Client) TokensOfOwner(ctx context.Context, wallet string) ([]uint64, error) {
	var out struct {
		TokenIDs []uint64 `json:"token_ids"`
	}
	err := c.do(ctx, http.MethodGet, "/registry/owners/"+wallet+"/tokens", nil, &out)
	return out.TokenIDs, err
}

func (c *Client) TokenDescriptor(ctx context.Context, tokenID uint64) (string, error) {
	var out struct {
		TokenURI string `json:"token_uri"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/registry/agreements/%d/descriptor", tokenID), nil, &out)
	return out.TokenURI, err
}

func (c *Client) Events(ctx context.Context, tokenID uint64) ([]map[string]any, error) {
	var out struct {
		Events []map[string]any `json:"events"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/registry/agreements/%d/events", tokenID), nil, &out)
	return out.Events, err
}

func (c *Client) do(ctx context.Context, method, path string, body, dst any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("xao sdk: encode request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("xao sdk: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("xao sdk: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("xao sdk: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var envelope struct {
			RequestID string `json:"request_id"`
			Error     struct {
				Code    string `json:"code"`
				Message string `json:"message"`
				Details any    `json:"details"`
			} `json:"error"`
		}
		_ = json.Unmarshal(raw, &envelope)
		return &Error{
			StatusCode: resp.StatusCode,
			ErrorCode:  envelope.Error.Code,
			Message:    envelope.Error.Message,
			RequestID:  envelope.RequestID,
			Details:    envelope.Error.Details,
		}
	}
	if dst == nil {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("xao sdk: decode response: %w", err)
	}
	return nil
}
