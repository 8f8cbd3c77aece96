package axtree

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// geometryAttrs are driver layout details that add tokens without helping
// the model target elements.
var geometryAttrs = map[string]bool{
	"x": true, "y": true, "width": true, "height": true,
	"bounds": true, "index": true, "instance": true, "package": true,
}

type xmlNode struct {
	tag      string
	attrs    map[string]string
	rawID    string
	children []*xmlNode
}

// parseXML parses an XCUITest or UIAutomator2 page-source document. The
// driver-native identifier is taken from idAttr when present, otherwise
// the node's document-order path serves as a stable raw ID.
func parseXML(raw string, idAttr string) (*Node, error) {
	decoder := xml.NewDecoder(strings.NewReader(raw))

	var stack []*xmlNode
	var root *xmlNode

	for {
		token, err := decoder.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: %v", ErrMalformedTree, err)
		}

		switch typed := token.(type) {
		case xml.StartElement:
			node := &xmlNode{tag: typed.Name.Local, attrs: map[string]string{}}
			for _, attr := range typed.Attr {
				if attr.Name.Local == idAttr {
					node.rawID = attr.Value
					continue
				}
				if attr.Value == "" || geometryAttrs[attr.Name.Local] {
					continue
				}
				node.attrs[attr.Name.Local] = attr.Value
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("%w: multiple root elements", ErrMalformedTree)
				}
				root = node
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, node)
			}
			stack = append(stack, node)
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("%w: unbalanced elements", ErrMalformedTree)
			}
			stack = stack[:len(stack)-1]
		}
	}

	if len(stack) != 0 {
		return nil, fmt.Errorf("%w: unclosed elements", ErrMalformedTree)
	}
	if root == nil {
		return nil, fmt.Errorf("%w: no root element", ErrMalformedTree)
	}

	converted := convertXML(root, "0")
	if converted == nil {
		return nil, fmt.Errorf("%w: no semantic nodes", ErrMalformedTree)
	}
	return converted, nil
}

// convertXML normalizes a parsed element, pruning empty leaves and
// collapsing attribute-less single-child wrappers. path is the node's
// document-order position, used as the raw ID fallback.
func convertXML(node *xmlNode, path string) *Node {
	var children []*Node
	for i, child := range node.children {
		childPath := path + "." + strconv.Itoa(i)
		if converted := convertXML(child, childPath); converted != nil {
			children = append(children, converted)
		}
	}

	if len(node.attrs) == 0 && node.rawID == "" {
		switch len(children) {
		case 0:
			return nil
		case 1:
			return children[0]
		}
	}

	rawID := any(node.rawID)
	if node.rawID == "" {
		rawID = path
	}

	return &Node{
		Role:     node.tag,
		Attrs:    node.attrs,
		RawID:    rawID,
		Children: children,
	}
}
