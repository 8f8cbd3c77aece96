package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer replays canned responses per path and records requests.
type fakeServer struct {
	t         *testing.T
	responses map[string]any
	requests  map[string]json.RawMessage
}

func newFakeServer(t *testing.T) (*fakeServer, *Client) {
	t.Helper()

	fs := &fakeServer{
		t:         t,
		responses: make(map[string]any),
		requests:  make(map[string]json.RawMessage),
	}
	server := httptest.NewServer(fs)
	t.Cleanup(server.Close)
	return fs, NewClient(server.URL)
}

func (fs *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path
	if r.Body != nil {
		var raw json.RawMessage
		json.NewDecoder(r.Body).Decode(&raw)
		fs.requests[key] = raw
	}

	resp, ok := fs.responses[key]
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	json.NewEncoder(w).Encode(resp)
}

func TestCreateSessionWrapsTools(t *testing.T) {
	fs, c := newFakeServer(t)
	fs.responses["POST /v1/sessions"] = map[string]any{"api_version": "v1", "session_id": "abc"}

	planner := false
	id, err := c.CreateSession(t.Context(), SessionOptions{
		Provider: "openai",
		Platform: "chromium",
		Planner:  &planner,
		Tools: []Tool{{
			Name:        "ClickTool",
			Description: "Clicks an element",
			Parameters:  map[string]any{"type": "object"},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "abc", id)

	var sent struct {
		Planner bool `json:"planner"`
		Tools   []struct {
			Type     string `json:"type"`
			Function struct {
				Name string `json:"name"`
			} `json:"function"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(fs.requests["POST /v1/sessions"], &sent))
	assert.False(t, sent.Planner)
	require.Len(t, sent.Tools, 1)
	assert.Equal(t, "function", sent.Tools[0].Type)
	assert.Equal(t, "ClickTool", sent.Tools[0].Function.Name)
}

func TestAPIErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{
			"api_version": "v1",
			"error":       "Session not found",
		})
	}))
	defer server.Close()

	c := NewClient(server.URL)
	_, _, err := c.Plan(t.Context(), "missing", "goal", "<root/>")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Session not found", apiErr.Message)
}

// fakeDriver replays a fixed screen and records executed actions.
type fakeDriver struct {
	tree       string
	url        string
	title      string
	screenshot string
	executed   []Action
	treeCalls  int
}

func (d *fakeDriver) AccessibilityTree(ctx context.Context) (string, error) {
	d.treeCalls++
	return d.tree, nil
}
func (d *fakeDriver) URL(ctx context.Context) (string, error)        { return d.url, nil }
func (d *fakeDriver) Title(ctx context.Context) (string, error)      { return d.title, nil }
func (d *fakeDriver) Screenshot(ctx context.Context) (string, error) { return d.screenshot, nil }
func (d *fakeDriver) Execute(ctx context.Context, tool string, args map[string]any) error {
	d.executed = append(d.executed, Action{Tool: tool, Args: args})
	return nil
}

func newTestAlumni(t *testing.T, fs *fakeServer, c *Client, driver Driver) *Alumni {
	t.Helper()
	fs.responses["POST /v1/sessions"] = map[string]any{"session_id": "s1"}
	a, err := NewAlumni(t.Context(), c, driver, SessionOptions{Provider: "openai", Platform: "chromium"})
	require.NoError(t, err)
	return a
}

func TestAlumniDo(t *testing.T) {
	fs, c := newFakeServer(t)
	driver := &fakeDriver{tree: "<page />"}
	a := newTestAlumni(t, fs, c, driver)

	fs.responses["POST /v1/sessions/s1/plans"] = map[string]any{
		"explanation": "two steps",
		"steps":       []string{"click the field", "type hello"},
	}
	fs.responses["POST /v1/sessions/s1/steps"] = map[string]any{
		"actions": []map[string]any{
			{"tool": "ClickTool", "args": map[string]any{"id": "btn-1"}},
		},
	}

	require.NoError(t, a.Do(t.Context(), "fill the form"))

	// one fetch for the plan, one per step
	assert.Equal(t, 3, driver.treeCalls)
	require.Len(t, driver.executed, 2)
	assert.Equal(t, "ClickTool", driver.executed[0].Tool)
	assert.Equal(t, "btn-1", driver.executed[0].Args["id"])
}

func TestAlumniCheck(t *testing.T) {
	fs, c := newFakeServer(t)
	driver := &fakeDriver{tree: "<page />", url: "http://x", title: "T", screenshot: "aGk="}
	a := newTestAlumni(t, fs, c, driver)

	fs.responses["POST /v1/sessions/s1/statements"] = map[string]any{
		"result":      "true",
		"explanation": "the banner is visible",
	}
	require.NoError(t, a.Check(t.Context(), "the banner is shown"))

	var sent struct {
		Statement  string `json:"statement"`
		Screenshot string `json:"screenshot"`
	}
	require.NoError(t, json.Unmarshal(fs.requests["POST /v1/sessions/s1/statements"], &sent))
	assert.Equal(t, "Is the following true or false: the banner is shown", sent.Statement)
	// tree-only by default, no screenshot round-trip
	assert.Empty(t, sent.Screenshot)
}

func TestAlumniCheckWithVision(t *testing.T) {
	fs, c := newFakeServer(t)
	driver := &fakeDriver{tree: "<page />", screenshot: "aGk="}

	fs.responses["POST /v1/sessions"] = map[string]any{"session_id": "s1"}
	a, err := NewAlumni(t.Context(), c, driver, SessionOptions{Provider: "openai", Platform: "chromium"}, WithVision())
	require.NoError(t, err)

	fs.responses["POST /v1/sessions/s1/statements"] = map[string]any{"result": "true"}
	require.NoError(t, a.Check(t.Context(), "the banner is shown"))

	var sent struct {
		Screenshot string `json:"screenshot"`
	}
	require.NoError(t, json.Unmarshal(fs.requests["POST /v1/sessions/s1/statements"], &sent))
	assert.Equal(t, "aGk=", sent.Screenshot)
}

func TestAlumniCheckFails(t *testing.T) {
	fs, c := newFakeServer(t)
	a := newTestAlumni(t, fs, c, &fakeDriver{tree: "<page />"})

	fs.responses["POST /v1/sessions/s1/statements"] = map[string]any{
		"result":      "false",
		"explanation": "the banner is hidden",
	}

	err := a.Check(t.Context(), "the banner is shown")
	var assertErr *AssertionError
	require.ErrorAs(t, err, &assertErr)
	assert.Equal(t, "the banner is shown", assertErr.Statement)
	assert.Equal(t, "the banner is hidden", assertErr.Explanation)
}

func TestAlumniGet(t *testing.T) {
	fs, c := newFakeServer(t)
	a := newTestAlumni(t, fs, c, &fakeDriver{tree: "<page />"})

	fs.responses["POST /v1/sessions/s1/statements"] = map[string]any{
		"result": []string{"a", "b"},
	}
	value, err := a.Get(t.Context(), "the items")
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, value)

	// unanswerable statements come back as the explanation
	fs.responses["POST /v1/sessions/s1/statements"] = map[string]any{
		"result":      "NOOP",
		"explanation": "not on this screen",
	}
	value, err = a.Get(t.Context(), "the missing thing")
	require.NoError(t, err)
	assert.Equal(t, "not on this screen", value)
}

func TestAlumniAreaScopesOperations(t *testing.T) {
	fs, c := newFakeServer(t)
	driver := &fakeDriver{tree: "<page />"}
	a := newTestAlumni(t, fs, c, driver)

	fs.responses["POST /v1/sessions/s1/areas"] = map[string]any{
		"id":          4,
		"explanation": "the cart panel",
	}
	area, err := a.Area(t.Context(), "shopping cart")
	require.NoError(t, err)
	assert.Equal(t, 4, area.ID)
	assert.Equal(t, "the cart panel", area.Explanation)

	var sent struct {
		AreaID int `json:"area_id"`
	}

	fs.responses["POST /v1/sessions/s1/statements"] = map[string]any{"result": "true"}
	require.NoError(t, area.Check(t.Context(), "the cart has one item"))
	require.NoError(t, json.Unmarshal(fs.requests["POST /v1/sessions/s1/statements"], &sent))
	assert.Equal(t, 4, sent.AreaID)

	fs.responses["POST /v1/sessions/s1/plans"] = map[string]any{"steps": []string{"click remove"}}
	fs.responses["POST /v1/sessions/s1/steps"] = map[string]any{
		"actions": []map[string]any{{"tool": "ClickTool", "args": map[string]any{"id": "x"}}},
	}
	require.NoError(t, area.Do(t.Context(), "empty the cart"))
	require.NoError(t, json.Unmarshal(fs.requests["POST /v1/sessions/s1/plans"], &sent))
	assert.Equal(t, 4, sent.AreaID)
	require.NoError(t, json.Unmarshal(fs.requests["POST /v1/sessions/s1/steps"], &sent))
	assert.Equal(t, 4, sent.AreaID)

	fs.responses["POST /v1/sessions/s1/elements"] = map[string]any{
		"elements": []map[string]any{{"id": 5, "explanation": "the remove button"}},
	}
	found, err := area.Find(t.Context(), "remove button")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.NoError(t, json.Unmarshal(fs.requests["POST /v1/sessions/s1/elements"], &sent))
	assert.Equal(t, 4, sent.AreaID)

	// unscoped operations still omit the area
	require.NoError(t, a.Check(t.Context(), "the page loaded"))
	var unscoped struct {
		AreaID int `json:"area_id"`
	}
	require.NoError(t, json.Unmarshal(fs.requests["POST /v1/sessions/s1/statements"], &unscoped))
	assert.Zero(t, unscoped.AreaID)
}

func TestAlumniQuit(t *testing.T) {
	fs, c := newFakeServer(t)
	a := newTestAlumni(t, fs, c, &fakeDriver{})

	require.NoError(t, a.Quit(t.Context()))
	_, ok := fs.requests["DELETE /v1/sessions/s1"]
	assert.True(t, ok)
}
