package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/fuomag9/onlinetracker/internal/agentproto"
	"github.com/fuomag9/onlinetracker/internal/models"
)

const userAgent = "OnlineTracker-Agent/1.0"

var (
	// ErrPending is returned while the server has not approved this agent
	ErrPending = errors.New("agent registration pending approval")
	// ErrRejected is returned once an operator has rejected this agent
	ErrRejected = errors.New("agent registration rejected")
	// ErrUnauthorized is returned when the server refuses the shared secret
	ErrUnauthorized = errors.New("server refused shared secret")
)

// Client speaks the agent wire protocol
type Client struct {
	httpClient *http.Client
	baseURL    string
	uuid       string
	name       string
	secret     string
}

// NewClient creates a new uplink client
func NewClient(httpClient *http.Client, baseURL, agentUUID, name, secret string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("server URL is required")
	}
	if agentUUID == "" {
		return nil, fmt.Errorf("agent uuid is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		uuid:       agentUUID,
		name:       name,
		secret:     secret,
	}, nil
}

// Register announces the agent. It returns nil once approved, ErrPending while waiting
// for an operator and ErrRejected after a rejection.
func (c *Client) Register(ctx context.Context) error {
	req := agentproto.RegisterRequest{UUID: c.uuid, Secret: c.secret}
	if c.name != "" {
		req.Name = &c.name
	}

	var resp agentproto.RegisterResponse
	status, err := c.do(ctx, http.MethodPost, "/register", req, &resp)
	if err != nil && status != http.StatusForbidden {
		return err
	}

	switch resp.Status {
	case models.AgentApproved:
		return nil
	case models.AgentPending:
		return ErrPending
	case models.AgentRejected:
		return ErrRejected
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("unexpected registration status %q", resp.Status)
}

// Assignments fetches the agent's current work list
func (c *Client) Assignments(ctx context.Context) (*agentproto.AssignmentsResponse, error) {
	q := url.Values{"uuid": {c.uuid}}
	var resp agentproto.AssignmentsResponse
	if _, err := c.do(ctx, http.MethodGet, "/assignments?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Send uploads a batch of results
func (c *Client) Send(ctx context.Context, results []agentproto.ReportedResult) (agentproto.ReportResponse, error) {
	var resp agentproto.ReportResponse
	if len(results) == 0 {
		return resp, nil
	}
	req := agentproto.ReportRequest{UUID: c.uuid, Secret: c.secret, Results: results}
	_, err := c.do(ctx, http.MethodPost, "/report", req, &resp)
	return resp, err
}

// Heartbeat marks the agent as alive
func (c *Client) Heartbeat(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/heartbeat", agentproto.HeartbeatRequest{UUID: c.uuid, Secret: c.secret}, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(agentproto.HeaderSecret, c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))

	if out != nil && len(data) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s response: %w", path, err)
		}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return resp.StatusCode, ErrUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		return resp.StatusCode, ErrRejected
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return resp.StatusCode, fmt.Errorf("%s %s failed: status %s", method, path, resp.Status)
	}
	return resp.StatusCode, nil
}
