package axtree

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// chromiumNode mirrors the CDP Accessibility.AXNode shape.
type chromiumNode struct {
	NodeID           string             `json:"nodeId"`
	Ignored          bool               `json:"ignored"`
	Role             *chromiumValue     `json:"role"`
	Name             *chromiumValue     `json:"name"`
	Value            *chromiumValue     `json:"value"`
	Description      *chromiumValue     `json:"description"`
	Properties       []chromiumProperty `json:"properties"`
	ChildIDs         []string           `json:"childIds"`
	ParentID         string             `json:"parentId"`
	BackendDOMNodeID *int64             `json:"backendDOMNodeId"`
}

type chromiumValue struct {
	Value any `json:"value"`
}

type chromiumProperty struct {
	Name  string         `json:"name"`
	Value *chromiumValue `json:"value"`
}

// chromiumWrapperRoles carry no information of their own; they are
// collapsed into their children when nothing else distinguishes them.
var chromiumWrapperRoles = map[string]bool{
	"none":          true,
	"generic":       true,
	"InlineTextBox": true,
	"LineBreak":     true,
	"IframePresentational": true,
}

// parseChromium parses a CDP full accessibility tree: either a JSON array
// of AXNodes or an object with a "nodes" field.
func parseChromium(raw string) (*Node, error) {
	var nodes []chromiumNode

	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		var wrapper struct {
			Nodes []chromiumNode `json:"nodes"`
		}
		if err := json.Unmarshal([]byte(trimmed), &wrapper); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedTree, err)
		}
		nodes = wrapper.Nodes
	} else {
		if err := json.Unmarshal([]byte(trimmed), &nodes); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedTree, err)
		}
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: no nodes", ErrMalformedTree)
	}

	byID := make(map[string]*chromiumNode, len(nodes))
	referenced := make(map[string]bool)
	for i := range nodes {
		byID[nodes[i].NodeID] = &nodes[i]
		for _, child := range nodes[i].ChildIDs {
			referenced[child] = true
		}
	}

	var rootID string
	for i := range nodes {
		if !referenced[nodes[i].NodeID] {
			rootID = nodes[i].NodeID
			break
		}
	}
	if rootID == "" {
		rootID = nodes[0].NodeID
	}

	children := buildChromium(rootID, byID, make(map[string]bool))
	switch len(children) {
	case 0:
		return nil, fmt.Errorf("%w: no semantic nodes", ErrMalformedTree)
	case 1:
		return children[0], nil
	default:
		// Multiple top-level survivors get a synthetic root so the
		// rendering stays a single document.
		root := &Node{Role: "WebArea", Attrs: map[string]string{}, RawID: rawIDOf(byID[rootID]), Children: children}
		return root, nil
	}
}

// buildChromium converts a CDP node to zero or more normalized nodes:
// ignored and wrapper nodes dissolve into their children, and leaves with
// no semantics are dropped.
func buildChromium(id string, byID map[string]*chromiumNode, visited map[string]bool) []*Node {
	if visited[id] {
		return nil
	}
	visited[id] = true

	raw, ok := byID[id]
	if !ok {
		return nil
	}

	var children []*Node
	for _, childID := range raw.ChildIDs {
		children = append(children, buildChromium(childID, byID, visited)...)
	}

	role := stringValue(raw.Role)
	attrs := chromiumAttrs(raw)

	if raw.Ignored || (chromiumWrapperRoles[role] && len(attrs) == 0) {
		return children
	}
	if len(attrs) == 0 && len(children) == 0 && !interactiveRoles[role] {
		return nil
	}

	return []*Node{{
		Role:     role,
		Attrs:    attrs,
		RawID:    rawIDOf(raw),
		Children: children,
	}}
}

// interactiveRoles survive pruning even without a name or value.
var interactiveRoles = map[string]bool{
	"button": true, "link": true, "textbox": true, "checkbox": true,
	"radio": true, "combobox": true, "listbox": true, "menuitem": true,
	"option": true, "searchbox": true, "slider": true, "spinbutton": true,
	"switch": true, "tab": true, "textfield": true,
}

func chromiumAttrs(raw *chromiumNode) map[string]string {
	attrs := map[string]string{}
	if name := stringValue(raw.Name); name != "" {
		attrs["name"] = name
	}
	if value := stringValue(raw.Value); value != "" {
		attrs["value"] = value
	}
	if desc := stringValue(raw.Description); desc != "" {
		attrs["description"] = desc
	}
	for _, prop := range raw.Properties {
		if prop.Value == nil || prop.Value.Value == nil {
			continue
		}
		value := fmt.Sprint(prop.Value.Value)
		// Default-false booleans are noise.
		if value == "" || value == "false" {
			continue
		}
		attrs[prop.Name] = value
	}
	return attrs
}

func stringValue(v *chromiumValue) string {
	if v == nil || v.Value == nil {
		return ""
	}
	return fmt.Sprint(v.Value)
}

func rawIDOf(raw *chromiumNode) any {
	if raw == nil {
		return ""
	}
	if raw.BackendDOMNodeID != nil {
		return int(*raw.BackendDOMNodeID)
	}
	if n, err := strconv.Atoi(raw.NodeID); err == nil {
		return n
	}
	return raw.NodeID
}
