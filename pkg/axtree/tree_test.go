package axtree

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alumnium-hq/alumnium/pkg/llms"
)

const chromiumSample = `[
	{"nodeId": "1", "role": {"value": "WebArea"}, "name": {"value": "Page"},
	 "childIds": ["2", "3"], "backendDOMNodeId": 100},
	{"nodeId": "2", "role": {"value": "generic"}, "childIds": ["4"], "backendDOMNodeId": 10},
	{"nodeId": "3", "role": {"value": "StaticText"}, "name": {"value": "Hello"}, "backendDOMNodeId": 7},
	{"nodeId": "4", "role": {"value": "button"}, "name": {"value": "Submit"}, "backendDOMNodeId": 42}
]`

func TestParseChromium(t *testing.T) {
	tree, err := Parse(PlatformChromium, chromiumSample)
	require.NoError(t, err)

	want := `<WebArea id="1" name="Page">
  <button id="2" name="Submit" />
  <StaticText id="3" name="Hello" />
</WebArea>
`
	assert.Equal(t, want, tree.Render())

	// generic wrapper dissolved, its child got the wrapper's slot
	raw, err := tree.RawID(2)
	require.NoError(t, err)
	assert.Equal(t, 42, raw)

	raw, err = tree.RawID(3)
	require.NoError(t, err)
	assert.Equal(t, 7, raw)
}

func TestParseChromiumNodesWrapper(t *testing.T) {
	tree, err := Parse(PlatformChromium, `{"nodes": `+chromiumSample+`}`)
	require.NoError(t, err)
	assert.Contains(t, tree.Render(), `<button id="2" name="Submit" />`)
}

func TestParseChromiumIgnoredAndPruned(t *testing.T) {
	raw := `[
		{"nodeId": "1", "role": {"value": "WebArea"}, "name": {"value": "Page"},
		 "childIds": ["2", "3", "4"], "backendDOMNodeId": 1},
		{"nodeId": "2", "ignored": true, "role": {"value": "paragraph"},
		 "name": {"value": "skipped"}, "childIds": ["5"], "backendDOMNodeId": 2},
		{"nodeId": "3", "role": {"value": "StaticText"}, "backendDOMNodeId": 3},
		{"nodeId": "4", "role": {"value": "textbox"}, "backendDOMNodeId": 4},
		{"nodeId": "5", "role": {"value": "link"}, "name": {"value": "Docs"}, "backendDOMNodeId": 5}
	]`
	tree, err := Parse(PlatformChromium, raw)
	require.NoError(t, err)

	rendered := tree.Render()
	// ignored nodes dissolve but keep their children
	assert.Contains(t, rendered, `name="Docs"`)
	assert.NotContains(t, rendered, "paragraph")
	// attribute-less leaves are dropped unless interactive
	assert.NotContains(t, rendered, "StaticText")
	assert.Contains(t, rendered, "<textbox")
}

func TestParseChromiumPropertiesBecomeAttrs(t *testing.T) {
	raw := `[
		{"nodeId": "1", "role": {"value": "checkbox"}, "name": {"value": "Agree"},
		 "properties": [
			{"name": "checked", "value": {"value": "true"}},
			{"name": "disabled", "value": {"value": false}},
			{"name": "focusable", "value": {"value": true}}
		 ],
		 "backendDOMNodeId": 8}
	]`
	tree, err := Parse(PlatformChromium, raw)
	require.NoError(t, err)

	rendered := tree.Render()
	assert.Contains(t, rendered, `checked="true"`)
	assert.Contains(t, rendered, `focusable="true"`)
	// default-false booleans are noise
	assert.NotContains(t, rendered, "disabled")
}

func TestParseMalformed(t *testing.T) {
	for name, input := range map[string]string{
		"not json":   "hello",
		"empty list": "[]",
		"bad xml":    "<hierarchy><node></hierarchy>",
	} {
		t.Run(name, func(t *testing.T) {
			platform := PlatformChromium
			if name == "bad xml" {
				platform = PlatformUIAutomator2
			}
			_, err := Parse(platform, input)
			assert.ErrorIs(t, err, ErrMalformedTree)
		})
	}
}

const uiautomatorSample = `<hierarchy>
  <android.widget.FrameLayout bounds="[0,0][1080,1920]" package="com.app">
    <android.widget.Button resource-id="com.app:id/submit" text="Submit" x="5" y="10" width="200" height="50" />
    <android.widget.TextView text="Hello" />
  </android.widget.FrameLayout>
</hierarchy>`

func TestParseUIAutomator2(t *testing.T) {
	tree, err := Parse(PlatformUIAutomator2, uiautomatorSample)
	require.NoError(t, err)

	rendered := tree.Render()
	// geometry details are stripped
	assert.NotContains(t, rendered, "bounds")
	assert.NotContains(t, rendered, `x="5"`)
	assert.Contains(t, rendered, `text="Submit"`)

	// resource-id becomes the raw identifier
	raw, err := tree.RawID(2)
	require.NoError(t, err)
	assert.Equal(t, "com.app:id/submit", raw)

	// nodes without one fall back to their document-order path
	raw, err = tree.RawID(3)
	require.NoError(t, err)
	assert.Equal(t, "0.0.1", raw)
}

func TestParseXCUITest(t *testing.T) {
	raw := `<XCUIElementTypeApplication name="App">
  <XCUIElementTypeButton id="submit-btn" label="Submit" />
</XCUIElementTypeApplication>`
	tree, err := Parse(PlatformXCUITest, raw)
	require.NoError(t, err)

	rawID, err := tree.RawID(2)
	require.NoError(t, err)
	assert.Equal(t, "submit-btn", rawID)
}

func TestRenderIsDeterministic(t *testing.T) {
	tree, err := Parse(PlatformChromium, chromiumSample)
	require.NoError(t, err)
	assert.Equal(t, tree.Render(), tree.Render())

	again, err := Parse(PlatformChromium, chromiumSample)
	require.NoError(t, err)
	assert.Equal(t, tree.Render(), again.Render())
}

func TestRenderWithoutIDs(t *testing.T) {
	tree, err := Parse(PlatformChromium, chromiumSample)
	require.NoError(t, err)

	rendered := tree.RenderWithoutIDs()
	assert.NotContains(t, rendered, `id="`)
	assert.Contains(t, rendered, `<button name="Submit" />`)
}

func TestScopeToArea(t *testing.T) {
	raw := `<hierarchy>
  <section resource-id="top">
    <button resource-id="a" text="A" />
  </section>
  <section resource-id="bottom">
    <button resource-id="b" text="B" />
  </section>
</hierarchy>`
	tree, err := Parse(PlatformUIAutomator2, raw)
	require.NoError(t, err)

	// hierarchy has two children, so it survives: section "bottom" is id 4
	scoped, err := tree.ScopeToArea(4)
	require.NoError(t, err)

	rendered := scoped.Render()
	assert.Contains(t, rendered, `text="B"`)
	assert.NotContains(t, rendered, `text="A"`)

	// scoped trees share the full tree's ID maps
	rawID, err := scoped.RawID(5)
	require.NoError(t, err)
	assert.Equal(t, "b", rawID)

	_, err = tree.ScopeToArea(99)
	assert.ErrorIs(t, err, ErrUnknownElementID)
}

func TestMapToolCallsToRawID(t *testing.T) {
	tree, err := Parse(PlatformChromium, chromiumSample)
	require.NoError(t, err)

	calls := []llms.ToolCall{
		{Tool: "click", Args: map[string]any{"id": float64(2)}},
		{Tool: "drag", Args: map[string]any{"from_id": "2", "to_id": 3, "speed": "fast"}},
		{Tool: "type", Args: map[string]any{"text": "hello"}},
	}
	mapped, err := tree.MapToolCallsToRawID(calls)
	require.NoError(t, err)

	assert.Equal(t, 42, mapped[0].Args["id"])
	assert.Equal(t, 42, mapped[1].Args["from_id"])
	assert.Equal(t, 7, mapped[1].Args["to_id"])
	assert.Equal(t, "fast", mapped[1].Args["speed"])
	assert.Equal(t, "hello", mapped[2].Args["text"])

	// the originals are untouched
	assert.Equal(t, float64(2), calls[0].Args["id"])
}

func TestMapToolCallsUnknownID(t *testing.T) {
	tree, err := Parse(PlatformChromium, chromiumSample)
	require.NoError(t, err)

	_, err = tree.MapToolCallsToRawID([]llms.ToolCall{
		{Tool: "click", Args: map[string]any{"id": 99}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownElementID))
}

func TestParsePlatform(t *testing.T) {
	for input, want := range map[string]Platform{
		"chromium":       PlatformChromium,
		"XCUITest":       PlatformXCUITest,
		" uiautomator2 ": PlatformUIAutomator2,
	} {
		got, err := ParsePlatform(input)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParsePlatform("windows")
	assert.Error(t, err)
}
