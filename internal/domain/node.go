package domain

import "strings"

// Node is a named state a user can occupy.
type Node struct {
	ID   int64
	Name string
}

// NewNode validates a node name. The ID stays zero until storage assigns one.
func NewNode(name string) (Node, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Node{}, ErrInvalidName
	}
	return Node{Name: name}, nil
}

// Rename changes the display name; identity is unaffected.
func (n *Node) Rename(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	n.Name = name
	return nil
}

// NormalizeNodeName trims a name for lookups.
func NormalizeNodeName(name string) string {
	return strings.TrimSpace(name)
}
