package client

import (
	"context"
	"fmt"
)

// noop is the sentinel agents emit when a statement cannot be answered
// from the screen.
const noop = "NOOP"

// Driver abstracts the automation backend: it supplies screen state and
// executes the actions the server plans.
type Driver interface {
	// AccessibilityTree returns the current tree in the platform's raw
	// format (CDP JSON for chromium, XML for mobile).
	AccessibilityTree(ctx context.Context) (string, error)
	// URL returns the current page URL, or "" when not applicable.
	URL(ctx context.Context) (string, error)
	// Title returns the current page or screen title.
	Title(ctx context.Context) (string, error)
	// Screenshot returns a base64-encoded PNG, or "" when unsupported.
	Screenshot(ctx context.Context) (string, error)
	// Execute performs one tool call. Args carry raw driver element IDs.
	Execute(ctx context.Context, tool string, args map[string]any) error
}

// AssertionError reports a statement the agents judged false.
type AssertionError struct {
	Statement   string
	Explanation string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion %q failed: %s", e.Statement, e.Explanation)
}

// Alumni drives a session end to end: it pulls state from the Driver,
// round-trips through the server, and pushes actions back to the Driver.
type Alumni struct {
	client    *Client
	driver    Driver
	sessionID string
	vision    bool
}

// AlumniOption customizes an Alumni.
type AlumniOption func(*Alumni)

// WithVision attaches screenshots to verification statements. Off by
// default since most checks resolve from the tree alone.
func WithVision() AlumniOption {
	return func(a *Alumni) { a.vision = true }
}

// NewAlumni opens a session and binds it to a driver.
func NewAlumni(ctx context.Context, c *Client, driver Driver, opts SessionOptions, options ...AlumniOption) (*Alumni, error) {
	id, err := c.CreateSession(ctx, opts)
	if err != nil {
		return nil, err
	}
	a := &Alumni{client: c, driver: driver, sessionID: id}
	for _, opt := range options {
		opt(a)
	}
	return a, nil
}

// SessionID returns the server-side session identifier.
func (a *Alumni) SessionID() string { return a.sessionID }

// Do plans a goal and executes each planned step against the driver. The
// tree is re-fetched before every step so actions target the live screen.
func (a *Alumni) Do(ctx context.Context, goal string) error {
	return a.do(ctx, goal, 0)
}

func (a *Alumni) do(ctx context.Context, goal string, areaID int) error {
	tree, err := a.driver.AccessibilityTree(ctx)
	if err != nil {
		return err
	}

	_, steps, err := a.client.plan(ctx, a.sessionID, goal, tree, areaID)
	if err != nil {
		return err
	}

	for _, step := range steps {
		tree, err := a.driver.AccessibilityTree(ctx)
		if err != nil {
			return err
		}
		_, actions, err := a.client.step(ctx, a.sessionID, goal, step, tree, areaID)
		if err != nil {
			return err
		}
		for _, action := range actions {
			if err := a.driver.Execute(ctx, action.Tool, action.Args); err != nil {
				return fmt.Errorf("executing %s: %w", action.Tool, err)
			}
		}
	}
	return nil
}

// Check verifies a statement about the current screen. A false or
// unanswerable verdict is returned as an AssertionError carrying the
// agents' explanation.
func (a *Alumni) Check(ctx context.Context, statement string) error {
	return a.check(ctx, statement, 0)
}

func (a *Alumni) check(ctx context.Context, statement string, areaID int) error {
	value, explanation, err := a.retrieve(ctx, "Is the following true or false: "+statement, a.vision, areaID)
	if err != nil {
		return err
	}

	verdict, ok := value.(string)
	if !ok || verdict != "true" {
		return &AssertionError{Statement: statement, Explanation: explanation}
	}
	return nil
}

// Get retrieves data described by the statement. When the agents cannot
// find it on screen, the explanation string is returned instead.
func (a *Alumni) Get(ctx context.Context, statement string) (any, error) {
	return a.get(ctx, statement, 0)
}

func (a *Alumni) get(ctx context.Context, statement string, areaID int) (any, error) {
	value, explanation, err := a.retrieve(ctx, statement, false, areaID)
	if err != nil {
		return nil, err
	}
	if s, ok := value.(string); ok && s == noop {
		return explanation, nil
	}
	return value, nil
}

func (a *Alumni) retrieve(ctx context.Context, statement string, withScreenshot bool, areaID int) (any, string, error) {
	tree, err := a.driver.AccessibilityTree(ctx)
	if err != nil {
		return nil, "", err
	}
	url, err := a.driver.URL(ctx)
	if err != nil {
		return nil, "", err
	}
	title, err := a.driver.Title(ctx)
	if err != nil {
		return nil, "", err
	}

	screenshot := ""
	if withScreenshot {
		if screenshot, err = a.driver.Screenshot(ctx); err != nil {
			return nil, "", err
		}
	}

	return a.client.statement(ctx, a.sessionID, statement, tree, url, title, screenshot, areaID)
}

// Find locates elements matching a description on the current screen.
func (a *Alumni) Find(ctx context.Context, description string) ([]Element, error) {
	return a.find(ctx, description, 0)
}

func (a *Alumni) find(ctx context.Context, description string, areaID int) ([]Element, error) {
	tree, err := a.driver.AccessibilityTree(ctx)
	if err != nil {
		return nil, err
	}
	return a.client.elements(ctx, a.sessionID, description, tree, areaID)
}

// ScopedArea narrows every operation to one screen region. Element IDs
// stay valid against the full tree, so scoped actions execute unchanged.
type ScopedArea struct {
	ID          int
	Explanation string

	alumni *Alumni
}

// Area locates the screen region matching a description and returns a
// handle whose operations work within that region.
func (a *Alumni) Area(ctx context.Context, description string) (*ScopedArea, error) {
	tree, err := a.driver.AccessibilityTree(ctx)
	if err != nil {
		return nil, err
	}
	element, err := a.client.Area(ctx, a.sessionID, description, tree)
	if err != nil {
		return nil, err
	}
	return &ScopedArea{ID: element.ID, Explanation: element.Explanation, alumni: a}, nil
}

// Do plans and executes a goal using only the area's subtree.
func (s *ScopedArea) Do(ctx context.Context, goal string) error {
	return s.alumni.do(ctx, goal, s.ID)
}

// Check verifies a statement against the area's subtree.
func (s *ScopedArea) Check(ctx context.Context, statement string) error {
	return s.alumni.check(ctx, statement, s.ID)
}

// Get retrieves data from the area's subtree.
func (s *ScopedArea) Get(ctx context.Context, statement string) (any, error) {
	return s.alumni.get(ctx, statement, s.ID)
}

// Find locates elements within the area's subtree.
func (s *ScopedArea) Find(ctx context.Context, description string) ([]Element, error) {
	return s.alumni.find(ctx, description, s.ID)
}

// LearnExample teaches the planner a worked (goal, actions) pair.
func (a *Alumni) LearnExample(ctx context.Context, goal string, actions []string) error {
	return a.client.AddExample(ctx, a.sessionID, goal, actions)
}

// Stats returns the session's token tally.
func (a *Alumni) Stats(ctx context.Context) (*Stats, error) {
	return a.client.Stats(ctx, a.sessionID)
}

// Quit closes the session.
func (a *Alumni) Quit(ctx context.Context) error {
	return a.client.DeleteSession(ctx, a.sessionID)
}
