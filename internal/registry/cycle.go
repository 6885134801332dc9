package registry

// findCycle returns one cycle path (first node repeated at the end) or nil
// when the dependency graph is acyclic.
//
// Strongly connected components are found with Tarjan's algorithm. Nodes are
// visited in declaration order so the reported path is stable.
func (r *Registry) findCycle() []EntityType {
	var (
		index   = 0
		stack   []EntityType
		indices = make(map[EntityType]int)
		lowlink = make(map[EntityType]int)
		onStack = make(map[EntityType]bool)
		sccs    [][]EntityType
	)

	var strongConnect func(EntityType)
	strongConnect = func(v EntityType) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range r.byType[v].Dependencies {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []EntityType
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, t := range r.order {
		if _, visited := indices[t]; !visited {
			strongConnect(t)
		}
	}

	for _, scc := range sccs {
		if len(scc) > 1 {
			return r.cyclePath(scc)
		}
	}
	return nil
}

// cyclePath walks the component from its earliest declared member back to
// itself.
func (r *Registry) cyclePath(scc []EntityType) []EntityType {
	members := make(map[EntityType]bool, len(scc))
	for _, t := range scc {
		members[t] = true
	}

	var start EntityType
	for _, t := range r.order {
		if members[t] {
			start = t
			break
		}
	}

	seen := map[EntityType]bool{start: true}
	path := []EntityType{start}

	var walk func(EntityType) bool
	walk = func(v EntityType) bool {
		for _, w := range r.byType[v].Dependencies {
			if !members[w] {
				continue
			}
			if w == start {
				path = append(path, start)
				return true
			}
			if seen[w] {
				continue
			}
			seen[w] = true
			path = append(path, w)
			if walk(w) {
				return true
			}
			path = path[:len(path)-1]
		}
		return false
	}

	walk(start)
	return path
}
