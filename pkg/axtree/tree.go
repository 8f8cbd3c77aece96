// Package axtree normalizes platform accessibility trees into a canonical
// XML rendering for model consumption. Every element gets a dense opaque ID
// assigned in document order; a bidirectional map ties opaque IDs back to
// the driver-native identifiers referenced by tool calls.
package axtree

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/alumnium-hq/alumnium/pkg/llms"
)

// Platform tags the shape of a raw accessibility tree string.
type Platform string

const (
	PlatformChromium     Platform = "chromium"
	PlatformXCUITest     Platform = "xcuitest"
	PlatformUIAutomator2 Platform = "uiautomator2"
)

// ErrMalformedTree reports unparseable tree input.
var ErrMalformedTree = errors.New("malformed accessibility tree")

// ErrUnknownElementID reports an opaque ID with no mapping. Reaching it is
// a programming error on the caller's side (the model can only ever see IDs
// present in the rendering).
var ErrUnknownElementID = errors.New("unknown element id")

// ParsePlatform validates a platform tag.
func ParsePlatform(s string) (Platform, error) {
	switch Platform(strings.ToLower(strings.TrimSpace(s))) {
	case PlatformChromium:
		return PlatformChromium, nil
	case PlatformXCUITest:
		return PlatformXCUITest, nil
	case PlatformUIAutomator2:
		return PlatformUIAutomator2, nil
	default:
		return "", fmt.Errorf("unknown platform %q (supported: chromium, xcuitest, uiautomator2)", s)
	}
}

// Node is one element of the normalized tree.
type Node struct {
	Role     string
	Attrs    map[string]string
	RawID    any // driver-native identifier: string or int
	Opaque   int
	Children []*Node
}

// Tree is a processed accessibility tree. It is request-scoped: one
// instance per inbound request, never cached.
type Tree struct {
	root        *Node
	opaqueToRaw map[int]any
	rawToOpaque map[string]int
}

// Parse processes a raw platform tree string into a Tree.
func Parse(platform Platform, raw string) (*Tree, error) {
	var root *Node
	var err error

	switch platform {
	case PlatformChromium:
		root, err = parseChromium(raw)
	case PlatformXCUITest:
		root, err = parseXML(raw, "id")
	case PlatformUIAutomator2:
		root, err = parseXML(raw, "resource-id")
	default:
		return nil, fmt.Errorf("%w: unknown platform %q", ErrMalformedTree, platform)
	}
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, fmt.Errorf("%w: empty tree", ErrMalformedTree)
	}

	tree := &Tree{
		root:        root,
		opaqueToRaw: make(map[int]any),
		rawToOpaque: make(map[string]int),
	}
	tree.assignIDs(root, new(int))
	return tree, nil
}

// assignIDs numbers nodes 1..N in document order and records both mappings.
func (t *Tree) assignIDs(node *Node, next *int) {
	*next++
	node.Opaque = *next
	t.opaqueToRaw[node.Opaque] = node.RawID
	t.rawToOpaque[rawKey(node.RawID)] = node.Opaque
	for _, child := range node.Children {
		t.assignIDs(child, next)
	}
}

func rawKey(raw any) string {
	return fmt.Sprint(raw)
}

// RawID resolves an opaque ID back to the driver-native identifier.
func (t *Tree) RawID(opaque int) (any, error) {
	raw, ok := t.opaqueToRaw[opaque]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownElementID, opaque)
	}
	return raw, nil
}

// Render produces the canonical XML with opaque id attributes. Two renders
// of the same tree are byte-identical.
func (t *Tree) Render() string {
	var sb strings.Builder
	renderNode(&sb, t.root, 0, true)
	return sb.String()
}

// RenderWithoutIDs renders the canonical XML with id attributes omitted,
// so structurally equal trees compare equal regardless of numbering.
func (t *Tree) RenderWithoutIDs() string {
	var sb strings.Builder
	renderNode(&sb, t.root, 0, false)
	return sb.String()
}

func renderNode(sb *strings.Builder, node *Node, depth int, withIDs bool) {
	indent := strings.Repeat("  ", depth)
	sb.WriteString(indent)
	sb.WriteString("<")
	sb.WriteString(sanitizeName(node.Role))

	if withIDs {
		sb.WriteString(` id="`)
		sb.WriteString(strconv.Itoa(node.Opaque))
		sb.WriteString(`"`)
	}

	keys := make([]string, 0, len(node.Attrs))
	for key := range node.Attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		sb.WriteString(" ")
		sb.WriteString(sanitizeName(key))
		sb.WriteString(`="`)
		sb.WriteString(escapeAttr(node.Attrs[key]))
		sb.WriteString(`"`)
	}

	if len(node.Children) == 0 {
		sb.WriteString(" />\n")
		return
	}

	sb.WriteString(">\n")
	for _, child := range node.Children {
		renderNode(sb, child, depth+1, withIDs)
	}
	sb.WriteString(indent)
	sb.WriteString("</")
	sb.WriteString(sanitizeName(node.Role))
	sb.WriteString(">\n")
}

// sanitizeName keeps element and attribute names valid XML.
func sanitizeName(name string) string {
	if name == "" {
		return "node"
	}
	var sb strings.Builder
	for i, r := range name {
		valid := r == '_' || r == '-' || r == '.' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(i > 0 && r >= '0' && r <= '9')
		if valid {
			sb.WriteRune(r)
		} else {
			sb.WriteRune('_')
		}
	}
	out := sb.String()
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}

func escapeAttr(value string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"\n", " ",
		"\t", " ",
	)
	return replacer.Replace(value)
}

// ScopeToArea returns a tree rooted at the subtree containing the given
// opaque ID. The scoped tree shares the full tree's ID maps so tool calls
// against it still resolve to the right raw identifiers.
func (t *Tree) ScopeToArea(opaque int) (*Tree, error) {
	node := findByOpaque(t.root, opaque)
	if node == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownElementID, opaque)
	}
	return &Tree{
		root:        node,
		opaqueToRaw: t.opaqueToRaw,
		rawToOpaque: t.rawToOpaque,
	}, nil
}

func findByOpaque(node *Node, opaque int) *Node {
	if node.Opaque == opaque {
		return node
	}
	for _, child := range node.Children {
		if found := findByOpaque(child, opaque); found != nil {
			return found
		}
	}
	return nil
}

// idArgFields lists tool-call argument names that carry element IDs.
var idArgFields = map[string]bool{
	"id":      true,
	"from_id": true,
	"to_id":   true,
}

// MapToolCallsToRawID rewrites opaque element IDs in tool-call arguments
// back to driver-native IDs. Non-ID fields pass through untouched; an ID
// field referencing an unknown opaque ID is an error.
func (t *Tree) MapToolCallsToRawID(calls []llms.ToolCall) ([]llms.ToolCall, error) {
	out := make([]llms.ToolCall, 0, len(calls))
	for _, call := range calls {
		mapped := llms.ToolCall{Tool: call.Tool, Args: make(map[string]any, len(call.Args))}
		for key, value := range call.Args {
			if !idArgFields[key] {
				mapped.Args[key] = value
				continue
			}
			opaque, ok := toOpaqueID(value)
			if !ok {
				mapped.Args[key] = value
				continue
			}
			raw, err := t.RawID(opaque)
			if err != nil {
				return nil, fmt.Errorf("tool %s argument %s: %w", call.Tool, key, err)
			}
			mapped.Args[key] = raw
		}
		out = append(out, mapped)
	}
	return out, nil
}

func toOpaqueID(value any) (int, bool) {
	switch typed := value.(type) {
	case int:
		return typed, true
	case int64:
		return int(typed), true
	case float64:
		return int(typed), true
	case string:
		n, err := strconv.Atoi(typed)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
