package automation

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrNodeNotFound = errors.New("node not found")
	ErrFlowCycle    = errors.New("flow graph cycle")
	ErrInvalidGraph = errors.New("invalid flow graph")
)

// FlowGraph maps node ids to nodes.
type FlowGraph map[string]Node

// ParseGraph decodes a serialized flow graph. Node ids default to their map key.
func ParseGraph(data string) (FlowGraph, error) {
	if data == "" {
		return nil, fmt.Errorf("%w: empty definition", ErrInvalidGraph)
	}
	var graph FlowGraph
	if err := json.Unmarshal([]byte(data), &graph); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGraph, err)
	}
	if len(graph) == 0 {
		return nil, fmt.Errorf("%w: no nodes", ErrInvalidGraph)
	}
	for id, node := range graph {
		if !node.Type.valid() {
			return nil, fmt.Errorf("%w: node %q has unknown type %q", ErrInvalidGraph, id, node.Type)
		}
		if node.ID != id {
			node.ID = id
			graph[id] = node
		}
	}
	return graph, nil
}

func (g FlowGraph) Node(id string) (Node, bool) {
	n, ok := g[id]
	return n, ok
}

// Walk collects nodes from startID along Next links until a node needs a response
// or has no successor. A dangling Next ends the walk. Revisiting a node returns the
// nodes collected so far together with ErrFlowCycle.
func (g FlowGraph) Walk(startID string) ([]Node, error) {
	node, ok := g[startID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, startID)
	}

	visited := map[string]bool{}
	var walked []Node
	for {
		visited[node.ID] = true
		walked = append(walked, node)
		if node.NeedResponse || node.Next == "" {
			return walked, nil
		}
		if visited[node.Next] {
			return walked, fmt.Errorf("%w: %s -> %s", ErrFlowCycle, node.ID, node.Next)
		}
		next, ok := g[node.Next]
		if !ok {
			return walked, nil
		}
		node = next
	}
}

// ContentNodes drops structural nodes, keeping the ones that become outbound messages.
func ContentNodes(nodes []Node) []Node {
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if !n.Type.Structural() {
			out = append(out, n)
		}
	}
	return out
}

// Validate reports authoring problems: a missing start node, dangling links and
// Next cycles that never stop for a response.
func (g FlowGraph) Validate() []error {
	var problems []error
	if _, ok := g[StartNodeID]; !ok {
		problems = append(problems, fmt.Errorf("%w: %s", ErrNodeNotFound, StartNodeID))
	}

	ids := make([]string, 0, len(g))
	for id := range g {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		node := g[id]
		if node.Next != "" {
			if _, ok := g[node.Next]; !ok {
				problems = append(problems, fmt.Errorf("%w: %s.next -> %s", ErrNodeNotFound, id, node.Next))
			}
		}
		for _, child := range node.Children {
			if _, ok := g[child]; !ok {
				problems = append(problems, fmt.Errorf("%w: %s.children -> %s", ErrNodeNotFound, id, child))
			}
		}
	}

	// Each Next chain is followed the way Walk follows it: a node waiting for a
	// response ends the chain, so loops back to a prompt are allowed.
	reported := map[string]bool{}
	for _, id := range ids {
		seen := map[string]bool{}
		cur := id
		for cur != "" {
			if seen[cur] {
				if !reported[cur] {
					problems = append(problems, fmt.Errorf("%w: at %s", ErrFlowCycle, cur))
					reported[cur] = true
				}
				break
			}
			seen[cur] = true
			n, ok := g[cur]
			if !ok || n.NeedResponse {
				break
			}
			cur = n.Next
		}
	}
	return problems
}
