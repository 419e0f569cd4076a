package timeline

import "laborline/internal/model"

// Nest arranges intervals into a forest by ParentID, keeping input order
// among siblings. An interval is a root when it has no parent or its parent
// is not in the list. Synthetic rows are left out.
// Members of a ParentID cycle are kept: the first one in input order
// becomes a root.
func Nest(intervals []model.Interval) []model.Node {
	present := make(map[string]bool, len(intervals))
	for _, iv := range intervals {
		if !iv.Synthetic {
			present[iv.ID] = true
		}
	}

	children := make(map[string][]int)
	roots := make([]int, 0)
	for i, iv := range intervals {
		if iv.Synthetic {
			continue
		}
		if iv.ParentID == "" || iv.ParentID == iv.ID || !present[iv.ParentID] {
			roots = append(roots, i)
			continue
		}
		children[iv.ParentID] = append(children[iv.ParentID], i)
	}

	placed := make([]bool, len(intervals))
	var build func(i int) model.Node
	build = func(i int) model.Node {
		placed[i] = true
		n := model.Node{Interval: intervals[i]}
		for _, c := range children[intervals[i].ID] {
			if !placed[c] {
				n.Children = append(n.Children, build(c))
			}
		}
		return n
	}

	out := make([]model.Node, 0, len(roots))
	for _, i := range roots {
		if !placed[i] {
			out = append(out, build(i))
		}
	}
	// Whatever is still unplaced sits on a parent cycle.
	for i, iv := range intervals {
		if !iv.Synthetic && !placed[i] {
			out = append(out, build(i))
		}
	}
	return out
}
