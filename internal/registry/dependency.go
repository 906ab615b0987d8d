package registry

import "sort"

// Calls returns the names of the registered templates that t's program
// calls, in sorted order.
func (s *Snapshot) Calls(t *Template) []string {
	var calls []string
	for _, name := range t.consulted {
		if _, ok := s.templates[name]; ok {
			calls = append(calls, name)
		}
	}
	return calls
}

// DependencyGraph maps every template to the templates it calls.
func (s *Snapshot) DependencyGraph() map[string][]string {
	graph := make(map[string][]string, len(s.templates))
	for name, t := range s.templates {
		graph[name] = s.Calls(t)
	}
	return graph
}

// Dependents returns the templates that call name, in sorted order.
func (s *Snapshot) Dependents(name string) []string {
	var dependents []string
	for caller, t := range s.templates {
		for _, dep := range s.Calls(t) {
			if dep == name {
				dependents = append(dependents, caller)
				break
			}
		}
	}
	sort.Strings(dependents)
	return dependents
}

// Cycles reports recursive call chains. Recursion is legal at render time
// but only terminates through a condition, so callers surface it as a
// diagnostic. Each cycle lists its templates and repeats the first one at
// the end.
func (s *Snapshot) Cycles() [][]string {
	graph := s.DependencyGraph()

	names := make([]string, 0, len(graph))
	for name := range graph {
		names = append(names, name)
	}
	sort.Strings(names)

	var cycles [][]string
	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	for _, name := range names {
		if !visited[name] {
			cycles = append(cycles, detectCycles(name, graph, visited, onStack, nil)...)
		}
	}
	return cycles
}

func detectCycles(name string, graph map[string][]string, visited, onStack map[string]bool, path []string) [][]string {
	visited[name] = true
	onStack[name] = true
	path = append(path, name)

	var cycles [][]string
	for _, dep := range graph[name] {
		switch {
		case !visited[dep]:
			cycles = append(cycles, detectCycles(dep, graph, visited, onStack, path)...)
		case onStack[dep]:
			for i, p := range path {
				if p == dep {
					cycle := make([]string, len(path)-i, len(path)-i+1)
					copy(cycle, path[i:])
					cycles = append(cycles, append(cycle, dep))
					break
				}
			}
		}
	}

	onStack[name] = false
	return cycles
}
