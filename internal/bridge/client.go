package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to a running bridge
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// NewClient creates a client for the bridge listening on the loopback port
func NewClient(token string, port int) *Client {
	return &Client{
		BaseURL: fmt.Sprintf("http://127.0.0.1:%d", port),
		Token:   token,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// DialFiles creates a client from the token and port files
func DialFiles(tokenFile, portFile string) (*Client, error) {
	token, port, err := ReadEndpoint(tokenFile, portFile)
	if err != nil {
		return nil, err
	}
	return NewClient(token, port), nil
}

// Copy binds text through the agent
func (c *Client) Copy(ctx context.Context, text string) (DecisionResponse, error) {
	var resp DecisionResponse
	err := c.do(ctx, http.MethodPost, "/copy", CopyRequest{Text: text}, &resp)
	return resp, err
}

// Paste verifies text against the live binding
func (c *Client) Paste(ctx context.Context, req PasteRequest) (DecisionResponse, error) {
	var resp DecisionResponse
	err := c.do(ctx, http.MethodPost, "/paste", req, &resp)
	return resp, err
}

// Mutated reports the new content of a field that received a verified paste
func (c *Client) Mutated(ctx context.Context, targetID, value string) (DecisionResponse, error) {
	var resp DecisionResponse
	err := c.do(ctx, http.MethodPost, "/mutated", MutatedRequest{TargetID: targetID, Value: value}, &resp)
	return resp, err
}

// Status returns the live binding
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.do(ctx, http.MethodGet, "/status", nil, &resp)
	return resp, err
}

// Unbind drops the live binding
func (c *Client) Unbind(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/unbind", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, r)
	if err != nil {
		return err
	}
	req.Header.Set(TokenHeader, c.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("bridge %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		return fmt.Errorf("bridge %s %s: %s", method, path, e.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
