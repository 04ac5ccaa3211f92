package validate

import (
	"fmt"
	"strings"
)

// validateDAG runs Kahn's algorithm over the prerequisite graph. On cycle
// detection a DFS reconstructs one concrete cycle path for the error message.
func validateDAG(nodeNames []string, edges map[string][]string) ([]string, error) {
	if len(nodeNames) == 0 {
		return nil, nil
	}

	nodeSet := make(map[string]bool, len(nodeNames))
	for _, n := range nodeNames {
		nodeSet[n] = true
	}

	inDegree := make(map[string]int, len(nodeNames))
	forward := make(map[string][]string)
	for _, n := range nodeNames {
		inDegree[n] = 0
	}

	for node, deps := range edges {
		for _, dep := range deps {
			if !nodeSet[dep] {
				continue // unknown refs are caught by the referential pass
			}
			inDegree[node]++
			forward[dep] = append(forward[dep], node)
		}
	}

	var queue []string
	for _, n := range nodeNames {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	var sorted []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		sorted = append(sorted, node)

		for _, dependent := range forward[node] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(sorted) == len(nodeNames) {
		return sorted, nil
	}

	cyclePath := findCyclePath(nodeNames, edges, inDegree)
	return nil, fmt.Errorf("circular prerequisite chain: %s", strings.Join(cyclePath, " -> "))
}

func findCyclePath(nodeNames []string, edges map[string][]string, inDegree map[string]int) []string {
	const (
		white = 0 // unvisited
		gray  = 1 // in current path
		black = 2 // finished
	)

	color := make(map[string]int)
	parent := make(map[string]string)

	var cyclePath []string

	var dfs func(node string) bool
	dfs = func(node string) bool {
		color[node] = gray
		for _, dep := range edges[node] {
			if color[dep] == gray {
				cyclePath = []string{dep}
				current := node
				for current != dep {
					cyclePath = append(cyclePath, current)
					current = parent[current]
				}
				cyclePath = append(cyclePath, dep)
				for i, j := 0, len(cyclePath)-1; i < j; i, j = i+1, j-1 {
					cyclePath[i], cyclePath[j] = cyclePath[j], cyclePath[i]
				}
				return true
			}
			if color[dep] == white {
				parent[dep] = node
				if dfs(dep) {
					return true
				}
			}
		}
		color[node] = black
		return false
	}

	for _, n := range nodeNames {
		if inDegree[n] > 0 && color[n] == white {
			if dfs(n) {
				return cyclePath
			}
		}
	}

	return []string{"(cycle detected)"}
}
