package axtree

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	before, err := Parse(PlatformUIAutomator2, `<hierarchy>
  <section resource-id="main">
    <button resource-id="a" text="Save" />
    <label text="Draft" />
  </section>
</hierarchy>`)
	require.NoError(t, err)

	after, err := Parse(PlatformUIAutomator2, `<hierarchy>
  <section resource-id="main">
    <button resource-id="a" text="Save" />
    <label text="Saved" />
  </section>
</hierarchy>`)
	require.NoError(t, err)

	diff := Diff(before, after)
	assert.Contains(t, diff, `- `)
	assert.Contains(t, diff, `+ `)
	assert.Contains(t, diff, `text="Draft"`)
	assert.Contains(t, diff, `text="Saved"`)

	var removed, added []string
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "- "):
			removed = append(removed, line)
		case strings.HasPrefix(line, "+ "):
			added = append(added, line)
		}
	}
	require.Len(t, removed, 1)
	require.Len(t, added, 1)
	assert.Contains(t, removed[0], "Draft")
	assert.Contains(t, added[0], "Saved")
}

func TestDiffIgnoresRenumbering(t *testing.T) {
	// Same structure parsed twice numbers identically, but the diff is
	// computed over ID-stripped renders either way.
	one, err := Parse(PlatformUIAutomator2, `<hierarchy>
  <button resource-id="x" text="Go" />
  <button resource-id="y" text="Stop" />
</hierarchy>`)
	require.NoError(t, err)

	two, err := Parse(PlatformUIAutomator2, `<hierarchy>
  <button resource-id="x" text="Go" />
  <button resource-id="y" text="Stop" />
</hierarchy>`)
	require.NoError(t, err)

	diff := Diff(one, two)
	assert.NotContains(t, diff, "- ")
	assert.NotContains(t, diff, "+ ")
}
