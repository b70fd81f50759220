package tree

import "github.com/safetydesk/causemap/pkg/errors"

// AssignDepths annotates every node with its zero-based distance from the
// root along parent links: the root gets depth 0, each child one more than
// its parent. The input is not mutated; the returned list is a copy in
// depth-first pre-order (output ordering is not guaranteed to match input
// ordering).
//
// The list must be structurally valid. Nodes unreachable from the root are
// a hard error (DATA_INTEGRITY_UNREACHABLE), never silently defaulted to
// depth 0.
func AssignDepths(nodes []Node) ([]Node, error) {
	if err := Validate(nodes); err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}

	idx := NewIndex(nodes)
	out := make([]Node, 0, len(nodes))

	var visit func(key, depth int)
	visit = func(key, depth int) {
		n := *idx.Node(key)
		n.Depth = depth
		out = append(out, n)
		for _, c := range idx.Children(key) {
			visit(c, depth+1)
		}
	}
	visit(idx.Root(), 0)

	// Validate rejects cycles, so this only trips on adjacency bugs.
	if len(out) != len(nodes) {
		return nil, errors.New(errors.ErrCodeUnreachable, "%d of %d nodes unreachable from root", len(nodes)-len(out), len(nodes))
	}
	return out, nil
}

// MaxDepth returns the largest Depth value present in a depth-annotated
// list, or 0 for an empty list.
func MaxDepth(nodes []Node) int {
	max := 0
	for _, n := range nodes {
		if n.Depth > max {
			max = n.Depth
		}
	}
	return max
}

// GroupByDepth buckets a node list by assigned depth.
// Depths are computed fresh; the input is not required to carry them.
func GroupByDepth(nodes []Node) (map[int][]Node, error) {
	annotated, err := AssignDepths(nodes)
	if err != nil {
		return nil, err
	}
	out := make(map[int][]Node)
	for _, n := range annotated {
		out[n.Depth] = append(out[n.Depth], n)
	}
	return out, nil
}
