package projects

import "strings"

// DAG is the parsed step graph of a flow.
type DAG struct {
	// Steps lists step ids in order of first appearance.
	Steps []string `json:"steps"`
	// Edges lists (from, to) pairs in declaration order, without duplicates.
	Edges [][2]string `json:"edges"`
}

// ParseDAG parses flow branches written "a > b > c". Blank segments are
// ignored.
func ParseDAG(branches []string) DAG {
	var dag DAG
	seen := make(map[string]bool)
	edges := make(map[[2]string]bool)

	for _, branch := range branches {
		prev := ""
		for _, part := range strings.Split(branch, ">") {
			step := strings.TrimSpace(part)
			if step == "" {
				continue
			}
			if !seen[step] {
				seen[step] = true
				dag.Steps = append(dag.Steps, step)
			}
			if prev != "" {
				e := [2]string{prev, step}
				if !edges[e] {
					edges[e] = true
					dag.Edges = append(dag.Edges, e)
				}
			}
			prev = step
		}
	}
	return dag
}
