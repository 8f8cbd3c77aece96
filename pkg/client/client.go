// Package client is the Go client for the agent server: a thin HTTP
// transport plus the Alumni wrapper that drives a browser or device
// through it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Per-route deadlines mirror the server's timeouts so a stuck call fails
// client-side at the same horizon.
const (
	planTimeout     = 120 * time.Second
	stepTimeout     = 120 * time.Second
	retrieveTimeout = 120 * time.Second
	areaTimeout     = 60 * time.Second
	controlTimeout  = 30 * time.Second
)

// Tool is the OpenAI-style function schema sent at session creation.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// SessionOptions configures session creation.
type SessionOptions struct {
	Provider string
	Name     string
	Platform string
	Tools    []Tool
	Planner  *bool
}

// Action is one driver instruction produced by a step.
type Action struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// Element is a located element reference.
type Element struct {
	ID          int    `json:"id"`
	Explanation string `json:"explanation"`
}

// Usage mirrors the server's token counters.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Stats is a session's token tally.
type Stats struct {
	Total Usage `json:"total"`
	Cache Usage `json:"cache"`
}

// APIError is a non-2xx reply from the server.
type APIError struct {
	StatusCode int
	Message    string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (status %d)", e.Message, e.Detail, e.StatusCode)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// Client talks to one agent server.
type Client struct {
	baseURL string
	http    *http.Client
}

// ClientOption customizes the transport.
type ClientOption func(*Client)

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// NewClient builds a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, timeout time.Duration, method, path string, body, into any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var envelope struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		data, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error == "" {
			envelope.Error = strings.TrimSpace(string(data))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: envelope.Error, Detail: envelope.Detail}
	}

	if into == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(into)
}

// Health reports the server's configured model.
func (c *Client) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
		Model  string `json:"model"`
	}
	if err := c.do(ctx, controlTimeout, http.MethodGet, "/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Model, nil
}

// CreateSession opens a session and returns its ID.
func (c *Client) CreateSession(ctx context.Context, opts SessionOptions) (string, error) {
	tools := make([]map[string]any, 0, len(opts.Tools))
	for _, t := range opts.Tools {
		tools = append(tools, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}

	body := map[string]any{
		"provider": opts.Provider,
		"platform": opts.Platform,
		"tools":    tools,
	}
	if opts.Name != "" {
		body["name"] = opts.Name
	}
	if opts.Planner != nil {
		body["planner"] = *opts.Planner
	}

	var resp struct {
		SessionID string `json:"session_id"`
	}
	if err := c.do(ctx, controlTimeout, http.MethodPost, "/v1/sessions", body, &resp); err != nil {
		return "", err
	}
	return resp.SessionID, nil
}

// ListSessions returns all live session IDs.
func (c *Client) ListSessions(ctx context.Context) ([]string, error) {
	var ids []string
	if err := c.do(ctx, controlTimeout, http.MethodGet, "/v1/sessions", nil, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// DeleteSession closes a session.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, controlTimeout, http.MethodDelete, "/v1/sessions/"+id, nil, nil)
}

// Stats fetches a session's token tally.
func (c *Client) Stats(ctx context.Context, id string) (*Stats, error) {
	var resp Stats
	if err := c.do(ctx, controlTimeout, http.MethodGet, "/v1/sessions/"+id+"/stats", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Plan asks the planner for the step list achieving a goal.
func (c *Client) Plan(ctx context.Context, id, goal, tree string) (string, []string, error) {
	return c.plan(ctx, id, goal, tree, 0)
}

func (c *Client) plan(ctx context.Context, id, goal, tree string, areaID int) (string, []string, error) {
	body := map[string]any{"goal": goal, "accessibility_tree": tree}
	if areaID != 0 {
		body["area_id"] = areaID
	}
	var resp struct {
		Explanation string   `json:"explanation"`
		Steps       []string `json:"steps"`
	}
	if err := c.do(ctx, planTimeout, http.MethodPost, "/v1/sessions/"+id+"/plans", body, &resp); err != nil {
		return "", nil, err
	}
	return resp.Explanation, resp.Steps, nil
}

// Step asks the actor to translate one step into driver actions.
func (c *Client) Step(ctx context.Context, id, goal, step, tree string) (string, []Action, error) {
	return c.step(ctx, id, goal, step, tree, 0)
}

func (c *Client) step(ctx context.Context, id, goal, step, tree string, areaID int) (string, []Action, error) {
	body := map[string]any{"goal": goal, "step": step, "accessibility_tree": tree}
	if areaID != 0 {
		body["area_id"] = areaID
	}
	var resp struct {
		Explanation string   `json:"explanation"`
		Actions     []Action `json:"actions"`
	}
	if err := c.do(ctx, stepTimeout, http.MethodPost, "/v1/sessions/"+id+"/steps", body, &resp); err != nil {
		return "", nil, err
	}
	return resp.Explanation, resp.Actions, nil
}

// Statement retrieves data about the current screen. The result is either a
// string or a list of strings.
func (c *Client) Statement(ctx context.Context, id, statement, tree, url, title, screenshot string) (any, string, error) {
	return c.statement(ctx, id, statement, tree, url, title, screenshot, 0)
}

func (c *Client) statement(ctx context.Context, id, statement, tree, url, title, screenshot string, areaID int) (any, string, error) {
	body := map[string]any{"statement": statement, "accessibility_tree": tree}
	if url != "" {
		body["url"] = url
	}
	if title != "" {
		body["title"] = title
	}
	if screenshot != "" {
		body["screenshot"] = screenshot
	}
	if areaID != 0 {
		body["area_id"] = areaID
	}
	var resp struct {
		Result      any    `json:"result"`
		Explanation string `json:"explanation"`
	}
	if err := c.do(ctx, retrieveTimeout, http.MethodPost, "/v1/sessions/"+id+"/statements", body, &resp); err != nil {
		return nil, "", err
	}
	return resp.Result, resp.Explanation, nil
}

// Area locates the subtree matching a description.
func (c *Client) Area(ctx context.Context, id, description, tree string) (*Element, error) {
	body := map[string]any{"description": description, "accessibility_tree": tree}
	var resp Element
	if err := c.do(ctx, areaTimeout, http.MethodPost, "/v1/sessions/"+id+"/areas", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Elements locates elements matching a description.
func (c *Client) Elements(ctx context.Context, id, description, tree string) ([]Element, error) {
	return c.elements(ctx, id, description, tree, 0)
}

func (c *Client) elements(ctx context.Context, id, description, tree string, areaID int) ([]Element, error) {
	body := map[string]any{"description": description, "accessibility_tree": tree}
	if areaID != 0 {
		body["area_id"] = areaID
	}
	var resp struct {
		Elements []Element `json:"elements"`
	}
	if err := c.do(ctx, areaTimeout, http.MethodPost, "/v1/sessions/"+id+"/elements", body, &resp); err != nil {
		return nil, err
	}
	return resp.Elements, nil
}

// Changes summarizes what changed between two screens.
func (c *Client) Changes(ctx context.Context, id, beforeTree, beforeURL, afterTree, afterURL string) (string, error) {
	body := map[string]any{
		"before": map[string]string{"tree": beforeTree, "url": beforeURL},
		"after":  map[string]string{"tree": afterTree, "url": afterURL},
	}
	var resp struct {
		Result string `json:"result"`
	}
	if err := c.do(ctx, planTimeout, http.MethodPost, "/v1/sessions/"+id+"/changes", body, &resp); err != nil {
		return "", err
	}
	return resp.Result, nil
}

// AddExample teaches the planner a (goal, actions) pair.
func (c *Client) AddExample(ctx context.Context, id, goal string, actions []string) error {
	body := map[string]any{"goal": goal, "actions": actions}
	return c.do(ctx, controlTimeout, http.MethodPost, "/v1/sessions/"+id+"/examples", body, nil)
}

// ClearExamples drops all learned examples.
func (c *Client) ClearExamples(ctx context.Context, id string) error {
	return c.do(ctx, controlTimeout, http.MethodDelete, "/v1/sessions/"+id+"/examples", nil, nil)
}

// SaveCache persists the session's uncommitted cache entries.
func (c *Client) SaveCache(ctx context.Context, id string) error {
	return c.do(ctx, controlTimeout, http.MethodPost, "/v1/sessions/"+id+"/caches", nil, nil)
}

// DiscardCache drops the session's uncommitted cache entries.
func (c *Client) DiscardCache(ctx context.Context, id string) error {
	return c.do(ctx, controlTimeout, http.MethodDelete, "/v1/sessions/"+id+"/caches", nil, nil)
}
