package axtree

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Diff produces a line-oriented structural diff between two trees. Both
// sides are rendered without IDs so renumbering between snapshots does not
// register as a change. Removed lines are prefixed "-", added lines "+",
// unchanged lines are indented for context.
func Diff(before, after *Tree) string {
	return diffText(before.RenderWithoutIDs(), after.RenderWithoutIDs())
}

func diffText(before, after string) string {
	dmp := diffmatchpatch.New()
	beforeChars, afterChars, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(beforeChars, afterChars, false), lines)

	var sb strings.Builder
	for _, diff := range diffs {
		prefix := "  "
		switch diff.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		}
		for _, line := range strings.Split(strings.TrimSuffix(diff.Text, "\n"), "\n") {
			sb.WriteString(prefix)
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
