package graph

import (
	"fmt"
	"sort"

	"github.com/specialistvlad/taskgrid/internal/task"
)

type node struct {
	id         string
	task       *task.Task
	deps       map[string]*node
	dependents map[string]*node
}

// Graph is a DAG of tasks keyed by task ID.
type Graph struct {
	nodes map[string]*node
}

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*node),
	}
}

// AddNode adds a task to the graph. If a node with the same ID already
// exists, the function does nothing.
func (g *Graph) AddNode(t *task.Task) {
	if _, ok := g.nodes[t.ID]; ok {
		return
	}
	g.nodes[t.ID] = &node{
		id:         t.ID,
		task:       t,
		deps:       make(map[string]*node),
		dependents: make(map[string]*node),
	}
}

// AddEdge creates a directed edge from the `fromID` node to the `toID` node.
// This signifies that `toID` has a dependency on `fromID`. An error is returned
// if either node does not exist or if the edge would create a self-reference.
func (g *Graph) AddEdge(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %s -> %s", fromID, fromID)
	}

	fromNode, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}
	toNode, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}

	toNode.deps[fromID] = fromNode
	fromNode.dependents[toID] = toNode
	return nil
}

// Task returns the task stored under id.
func (g *Graph) Task(id string) (*task.Task, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, false
	}
	return n.task, true
}

// Len returns the number of tasks in the graph.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// IDs returns every task ID in sorted order.
func (g *Graph) IDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Dependencies returns the sorted IDs of the tasks id depends on.
func (g *Graph) Dependencies(id string) ([]string, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, &UnknownTaskError{ID: id}
	}
	return sortedKeys(n.deps), nil
}

// Dependents returns the sorted IDs of the tasks that depend on id.
func (g *Graph) Dependents(id string) ([]string, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, &UnknownTaskError{ID: id}
	}
	return sortedKeys(n.dependents), nil
}

func sortedKeys(m map[string]*node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// color is the DFS visit state of a node.
type color int

const (
	white color = iota // unvisited
	gray               // on the current DFS path
	black              // fully explored
)

// DetectCycles walks the graph depth-first along dependency edges and returns
// a *CyclicDependencyError when it reaches a node that is still gray.
// Nodes are visited in sorted order so the reported cycle is deterministic.
func (g *Graph) DetectCycles() error {
	colors := make(map[string]color, len(g.nodes))
	var path []string

	var visit func(n *node) error
	visit = func(n *node) error {
		colors[n.id] = gray
		path = append(path, n.id)

		for _, depID := range sortedKeys(n.deps) {
			switch colors[depID] {
			case gray:
				return &CyclicDependencyError{Cycle: cycleFrom(path, depID)}
			case white:
				if err := visit(n.deps[depID]); err != nil {
					return err
				}
			}
		}

		path = path[:len(path)-1]
		colors[n.id] = black
		return nil
	}

	for _, id := range g.IDs() {
		if colors[id] == white {
			if err := visit(g.nodes[id]); err != nil {
				return err
			}
		}
	}
	return nil
}

// cycleFrom extracts the cycle closing at start from a DFS path that follows
// dependency edges and returns it in the producer-to-consumer direction.
func cycleFrom(path []string, start string) []string {
	idx := 0
	for i, id := range path {
		if id == start {
			idx = i
			break
		}
	}
	cycle := append(append([]string(nil), path[idx:]...), start)
	for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
		cycle[i], cycle[j] = cycle[j], cycle[i]
	}
	return cycle
}

// TopologicalOrder returns task IDs such that every task comes after all of
// its dependencies. Ties are broken by ID. The graph must be acyclic.
func (g *Graph) TopologicalOrder() []string {
	remaining := make(map[string]int, len(g.nodes))
	var ready []string
	for id, n := range g.nodes {
		remaining[id] = len(n.deps)
		if len(n.deps) == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		var unlocked []string
		for depID := range g.nodes[id].dependents {
			remaining[depID]--
			if remaining[depID] == 0 {
				unlocked = append(unlocked, depID)
			}
		}
		if len(unlocked) > 0 {
			ready = append(ready, unlocked...)
			sort.Strings(ready)
		}
	}
	return order
}

// Subgraph returns a new graph with the selected tasks and everything they
// transitively depend on.
func (g *Graph) Subgraph(ids ...string) (*Graph, error) {
	keep := make(map[string]struct{})
	var collect func(n *node)
	collect = func(n *node) {
		if _, seen := keep[n.id]; seen {
			return
		}
		keep[n.id] = struct{}{}
		for _, dep := range n.deps {
			collect(dep)
		}
	}
	for _, id := range ids {
		n, ok := g.nodes[id]
		if !ok {
			return nil, &UnknownTaskError{ID: id}
		}
		collect(n)
	}

	sub := New()
	for id := range keep {
		sub.AddNode(g.nodes[id].task)
	}
	for id := range keep {
		for depID := range g.nodes[id].deps {
			if err := sub.AddEdge(depID, id); err != nil {
				return nil, err
			}
		}
	}
	return sub, nil
}
