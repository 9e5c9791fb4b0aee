package threatmodel

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// NodeType classifies an attack tree node
type NodeType string

// Attack tree node types.
const (
	NodeGoal NodeType = "goal"
	NodeAnd  NodeType = "and"
	NodeOr   NodeType = "or"
	NodeLeaf NodeType = "leaf"
)

// ParseNodeType normalizes a node type, defaulting to leaf
func ParseNodeType(s string) NodeType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "goal", "root":
		return NodeGoal
	case "and":
		return NodeAnd
	case "or":
		return NodeOr
	default:
		return NodeLeaf
	}
}

// AttackTreeNode is one node of an attack tree. The root has an empty ParentID.
type AttackTreeNode struct {
	ID              string   `json:"id"`
	ParentID        string   `json:"parent_id,omitempty"`
	Description     string   `json:"description"`
	NodeType        NodeType `json:"node_type"`
	RelatedThreatID string   `json:"related_threat_id,omitempty"`
}

// AttackTree is a single-rooted acyclic decomposition of an attack goal
type AttackTree struct {
	Nodes    []AttackTreeNode `json:"nodes"`
	Fallback bool             `json:"fallback,omitempty"`
}

// Tree validation errors.
var (
	ErrEmptyTree     = errors.New("attack tree has no nodes")
	ErrNoRoot        = errors.New("attack tree has no root")
	ErrMultipleRoots = errors.New("attack tree has more than one root")
)

// Validate checks the tree invariant: exactly one root, unique ids, every
// parent exists, and no node is its own ancestor.
func (t AttackTree) Validate() error {
	if len(t.Nodes) == 0 {
		return ErrEmptyTree
	}

	parents := make(map[string]string, len(t.Nodes))
	roots := 0
	for _, n := range t.Nodes {
		if n.ID == "" {
			return fmt.Errorf("attack tree node with empty id: %q", n.Description)
		}
		if _, dup := parents[n.ID]; dup {
			return fmt.Errorf("duplicate attack tree node id: %s", n.ID)
		}
		parents[n.ID] = n.ParentID
		if n.ParentID == "" {
			roots++
		}
	}

	switch {
	case roots == 0:
		return ErrNoRoot
	case roots > 1:
		return ErrMultipleRoots
	}

	for _, n := range t.Nodes {
		if n.ParentID == "" {
			continue
		}
		if _, ok := parents[n.ParentID]; !ok {
			return fmt.Errorf("attack tree node %s references missing parent %s", n.ID, n.ParentID)
		}
	}

	// Walk each node to the root; a walk longer than the node count is a cycle.
	for _, n := range t.Nodes {
		cur := n.ID
		for steps := 0; cur != ""; steps++ {
			if steps > len(t.Nodes) {
				return fmt.Errorf("attack tree cycle through node %s", n.ID)
			}
			cur = parents[cur]
			if cur == n.ID {
				return fmt.Errorf("attack tree node %s is its own ancestor", n.ID)
			}
		}
	}

	return nil
}

// Root returns the root node
func (t AttackTree) Root() (AttackTreeNode, bool) {
	for _, n := range t.Nodes {
		if n.ParentID == "" {
			return n, true
		}
	}
	return AttackTreeNode{}, false
}

// Children returns the direct children of the node with the given id, in
// declaration order.
func (t AttackTree) Children(id string) []AttackTreeNode {
	var out []AttackTreeNode
	for _, n := range t.Nodes {
		if n.ParentID == id && n.ID != id {
			out = append(out, n)
		}
	}
	return out
}

// FallbackTree builds the single-level tree used when the model cannot produce
// a valid one: a goal root with one leaf per threat.
func FallbackTree(application string, threats []Threat) AttackTree {
	if application == "" {
		application = "the application"
	}
	tree := AttackTree{
		Fallback: true,
		Nodes: []AttackTreeNode{{
			ID:          "root",
			Description: "Compromise " + application,
			NodeType:    NodeGoal,
		}},
	}
	for i, th := range threats {
		tree.Nodes = append(tree.Nodes, AttackTreeNode{
			ID:              "leaf-" + strconv.Itoa(i+1),
			ParentID:        "root",
			Description:     th.Title,
			NodeType:        NodeLeaf,
			RelatedThreatID: th.ID,
		})
	}
	return tree
}
