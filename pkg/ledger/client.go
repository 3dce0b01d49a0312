package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// ClientConfig represents the configuration for the Odoo JSON-RPC client.
type ClientConfig struct {
	URL      string
	Database string
	Username string
	Password string        // password or API key
	Timeout  time.Duration // Default: 30 seconds
}

// Client is an Odoo JSON-RPC client implementing Gateway.
type Client struct {
	httpClient *http.Client
	endpoint   string
	database   string
	username   string
	password   string
	uid        int64
	requestID  atomic.Int64
}

// NewClient creates a new Odoo client. Authenticate must succeed before any other call.
func NewClient(config ClientConfig) *Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		endpoint: strings.TrimRight(config.URL, "/") + "/jsonrpc",
		database: config.Database,
		username: config.Username,
		password: config.Password,
	}
}

// rpcRequest is a JSON-RPC 2.0 envelope.
type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
	ID      int64     `json:"id"`
}

type rpcParams struct {
	Service string `json:"service"`
	Method  string `json:"method"`
	Args    []any  `json:"args"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"data"`
}

// Authenticate logs in and stores the user id used by subsequent calls.
func (c *Client) Authenticate(ctx context.Context) error {
	result, err := c.rpc(ctx, "common", "authenticate", []any{c.database, c.username, c.password, map[string]any{}})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	var uid int64
	if err := json.Unmarshal(result, &uid); err != nil || uid == 0 {
		// Odoo answers false for bad credentials.
		return fmt.Errorf("%w: invalid credentials for %s@%s", ErrAuthenticationFailed, c.username, c.database)
	}

	c.uid = uid
	return nil
}

// Authenticated reports whether Authenticate has succeeded.
func (c *Client) Authenticated() bool {
	return c.uid != 0
}

// Call invokes method on model through object.execute_kw.
func (c *Client) Call(ctx context.Context, model, method string, args []any, kwargs map[string]any) (json.RawMessage, error) {
	if !c.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}

	return c.rpc(ctx, "object", "execute_kw", []any{c.database, c.uid, c.password, model, method, args, kwargs})
}

// SearchRead implements Gateway.
func (c *Client) SearchRead(ctx context.Context, req SearchRead) ([]Record, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	domain := req.Domain
	if domain == nil {
		domain = Domain{}
	}
	kwargs := map[string]any{}
	if len(req.Fields) > 0 {
		kwargs["fields"] = req.Fields
	}
	if req.Order != "" {
		kwargs["order"] = req.Order
	}
	if req.Limit > 0 {
		kwargs["limit"] = req.Limit
	}

	result, err := c.Call(ctx, req.Model, "search_read", []any{domain}, kwargs)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", req.Model, err)
	}

	var records []Record
	if err := json.Unmarshal(result, &records); err != nil {
		return nil, fmt.Errorf("failed to decode %s records: %w", req.Model, err)
	}
	return records, nil
}

// Create implements Gateway.
func (c *Client) Create(ctx context.Context, req Create) (int64, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}

	result, err := c.Call(ctx, req.Model, "create", []any{req.Values}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", req.Model, err)
	}

	// Newer servers answer a list of ids even for a single record.
	var id int64
	if err := json.Unmarshal(result, &id); err == nil {
		return id, nil
	}
	var ids []int64
	if err := json.Unmarshal(result, &ids); err != nil || len(ids) == 0 {
		return 0, fmt.Errorf("failed to decode created %s id: %s", req.Model, string(result))
	}
	return ids[0], nil
}

// Write implements Gateway.
func (c *Client) Write(ctx context.Context, req Write) error {
	if err := req.Validate(); err != nil {
		return err
	}

	if _, err := c.Call(ctx, req.Model, "write", []any{req.IDs, req.Values}, nil); err != nil {
		return fmt.Errorf("failed to write %s %v: %w", req.Model, req.IDs, err)
	}
	return nil
}

// Post implements Gateway.
func (c *Client) Post(ctx context.Context, req Post) error {
	if err := req.Validate(); err != nil {
		return err
	}

	if _, err := c.Call(ctx, req.Model, req.method(), []any{req.IDs}, nil); err != nil {
		return fmt.Errorf("failed to post %s %v: %w", req.Model, req.IDs, err)
	}
	return nil
}

// rpc sends one JSON-RPC request and returns the raw result.
func (c *Client) rpc(ctx context.Context, service, method string, args []any) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  rpcParams{Service: service, Method: method, Args: args},
		ID:      c.requestID.Add(1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &RemoteError{Code: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error.toRemote()
	}

	return rpcResp.Result, nil
}

func (e *rpcError) toRemote() *RemoteError {
	msg := e.Data.Message
	if msg == "" {
		msg = e.Message
	}
	return &RemoteError{Code: e.Code, Name: e.Data.Name, Message: msg}
}
