package agents

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/mark-chris/threatc/internal/threatmodel"
)

// TreeResult is the attack-tree agent's output. The tree is not validated
// here; the compiler decides what to do with an invalid one.
type TreeResult struct {
	Tree     threatmodel.AttackTree
	Warnings []string
}

// BuildAttackTree asks for an attack tree over ac.Threats. strict selects the
// prompt that spells out the tree rules. Nested {"children": [...]} replies
// are flattened into parent references.
func (r *Runner) BuildAttackTree(ctx context.Context, ac Context, strict bool) (TreeResult, error) {
	var res TreeResult
	name := AttackTree
	if strict {
		name = StrictAttackTree
	}

	known := make(map[string]bool, len(ac.Threats))
	for _, t := range ac.Threats {
		known[t.ID] = true
	}

	err := r.run(ctx, name, r.attackTreePrompt(ac, strict), func(v any) error {
		res = TreeResult{}

		var nodes []threatmodel.AttackTreeNode
		switch {
		case hasList(v, "nodes", "attack_tree"):
			for i, item := range items(v, []string{"nodes", "attack_tree"}) {
				nodes = append(nodes, parseNode(item, "", i+1))
			}
		default:
			root := nestedRoot(v)
			if root == nil {
				return errors.New("response has no nodes list or nested root")
			}
			counter := 0
			flatten(root, "", &counter, &nodes)
		}

		if len(nodes) == 0 {
			return errors.New("attack tree has no nodes")
		}

		for i := range nodes {
			if id := nodes[i].RelatedThreatID; id != "" && !known[id] {
				res.Warnings = append(res.Warnings, fmt.Sprintf("node %s: unknown threat %s cleared", nodes[i].ID, id))
				nodes[i].RelatedThreatID = ""
			}
		}
		res.Tree = threatmodel.AttackTree{Nodes: nodes}
		return nil
	})

	return res, err
}

func parseNode(item object, parent string, ordinal int) threatmodel.AttackTreeNode {
	id := getString(item, "id", "node_id")
	if id == "" {
		id = "n" + strconv.Itoa(ordinal)
	}
	if p := getString(item, "parent_id", "parent"); p != "" {
		parent = p
	}
	return threatmodel.AttackTreeNode{
		ID:              id,
		ParentID:        parent,
		Description:     getString(item, "description", "label", "name", "goal"),
		NodeType:        threatmodel.ParseNodeType(getString(item, "node_type", "type")),
		RelatedThreatID: getString(item, "threat_id", "related_threat_id"),
	}
}

func nestedRoot(v any) object {
	o, ok := v.(object)
	if !ok {
		return nil
	}
	if root := getObject(o, "root", "attack_tree", "tree"); root != nil {
		return root
	}
	if _, ok := lookup(o, "children"); ok {
		return o
	}
	return nil
}

func flatten(item object, parent string, counter *int, out *[]threatmodel.AttackTreeNode) {
	*counter++
	n := parseNode(item, parent, *counter)
	if parent == "" {
		n.ParentID = ""
	}
	*out = append(*out, n)
	for _, child := range items(item, []string{"children"}) {
		flatten(child, n.ID, counter, out)
	}
}
