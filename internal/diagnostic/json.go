package diagnostic

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// ParseJSON decodes the machine-readable diagnostic tree emitted alongside a
// compiler failure.
func ParseJSON(data []byte) (*Node, error) {
	var root Node
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to decode diagnostic tree: %w", err)
	}
	if err := root.validate(); err != nil {
		return nil, err
	}
	return &root, nil
}

// EncodeJSON encodes the tree in the same shape ParseJSON accepts.
func EncodeJSON(root *Node) ([]byte, error) {
	return json.Marshal(root)
}

// EncodeJSONIndent is EncodeJSON with indentation, for reports meant for people.
func EncodeJSONIndent(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

func (n *Node) validate() error {
	if n.Causes == nil {
		n.Causes = []string{}
	}
	if len(n.Labels) == 0 {
		n.Labels = nil
	}
	if len(n.Related) == 0 {
		n.Related = nil
	}
	for i, l := range n.Labels {
		if l.Span.Offset < 0 || l.Span.Length < 0 {
			return fmt.Errorf("diagnostic %q: label %d has a negative span (%d+%d)",
				n.Message, i, l.Span.Offset, l.Span.Length)
		}
	}
	for _, r := range n.Related {
		if r == nil {
			return fmt.Errorf("diagnostic %q: null related entry", n.Message)
		}
		if err := r.validate(); err != nil {
			return err
		}
	}
	return nil
}
