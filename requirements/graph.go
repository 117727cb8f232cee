package requirements

import "sort"

// buildOrder computes the evaluation order for a requirement set whose
// conditions have already been parsed. conds is index-aligned with reqs;
// a nil entry means the requirement has no conditional logic.
//
// The graph has one node per field and an edge from each referenced field
// to the requirement that reads it: a gate cannot be evaluated until every
// field it reads has been resolved. Fields touching no conditional edge at
// all come first, in declaration order, so independent requirements keep a
// stable, predictable position. The remaining nodes are ordered with
// Kahn's algorithm, breaking ties by declaration order.
func buildOrder(reqs []*Requirement, conds []Condition) ([]int, error) {
	n := len(reqs)
	index := make(map[string]int, n)
	for i, r := range reqs {
		index[r.FieldName] = i
	}

	// adjacency: edges[ref] lists the requirements whose conditions read ref
	edges := make([][]int, n)
	indegree := make([]int, n)
	touched := make([]bool, n)

	for i, cond := range conds {
		if cond == nil {
			continue
		}
		seen := map[int]bool{}
		var badRef error
		cond.walk(func(c *Comparison) {
			j, ok := index[c.FieldRef]
			if !ok {
				if badRef == nil {
					badRef = &UnknownFieldReferenceError{FieldName: reqs[i].FieldName, Reference: c.FieldRef}
				}
				return
			}
			if j == i || seen[j] {
				return
			}
			seen[j] = true
			edges[j] = append(edges[j], i)
			indegree[i]++
			touched[i] = true
			touched[j] = true
		})
		if badRef != nil {
			return nil, badRef
		}
	}

	order := make([]int, 0, n)
	for i := range reqs {
		if !touched[i] {
			order = append(order, i)
		}
	}

	// Kahn over the connected remainder, smallest declaration index first.
	ready := make([]int, 0, n)
	for i := range reqs {
		if touched[i] && indegree[i] == 0 {
			ready = append(ready, i)
		}
	}
	sort.Ints(ready)

	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]
		order = append(order, i)

		for _, j := range edges[i] {
			indegree[j]--
			if indegree[j] == 0 {
				// insert keeping the ready list sorted by declaration index
				k := sort.SearchInts(ready, j)
				ready = append(ready, 0)
				copy(ready[k+1:], ready[k:])
				ready[k] = j
			}
		}
	}

	if len(order) < n {
		var cycle []string
		for i := range reqs {
			if touched[i] && indegree[i] > 0 {
				cycle = append(cycle, reqs[i].FieldName)
			}
		}
		return nil, &CyclicDependencyError{Fields: cycle}
	}

	return order, nil
}
