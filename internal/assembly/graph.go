package assembly

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ironsheep/scene-tools-mcp/internal/logging"
)

// ErrCycle is returned when the steps of a graph depend on each other in a
// loop.
var ErrCycle = errors.New("dependency cycle")

// Step is one unit of assembly work.
type Step func(ctx context.Context, st *State) error

type node struct {
	name string
	deps []string
	step Step
}

// Graph holds named steps and their dependencies.
type Graph struct {
	nodes map[string]*node
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]*node)}
}

// Add registers step under name, to run after every step in deps.
func (g *Graph) Add(name string, step Step, deps ...string) error {
	if name == "" {
		return fmt.Errorf("step name is empty")
	}
	if _, ok := g.nodes[name]; ok {
		return fmt.Errorf("duplicate step %q", name)
	}
	g.nodes[name] = &node{name: name, deps: append([]string(nil), deps...), step: step}
	return nil
}

// Order returns the step names in execution order: every step after its
// dependencies, ties broken by name.
func (g *Graph) Order() ([]string, error) {
	indegree := make(map[string]int, len(g.nodes))
	dependents := make(map[string][]string, len(g.nodes))
	for name, n := range g.nodes {
		indegree[name] += 0
		for _, d := range n.deps {
			if _, ok := g.nodes[d]; !ok {
				return nil, fmt.Errorf("step %q depends on unknown step %q", name, d)
			}
			indegree[name]++
			dependents[d] = append(dependents[d], name)
		}
	}

	var ready []string
	for name, deg := range indegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		sort.Strings(ready)
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)

		for _, dep := range dependents[name] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(order) != len(g.nodes) {
		var stuck []string
		for name, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("%w among steps %s", ErrCycle, strings.Join(stuck, ", "))
	}
	return order, nil
}

// Run executes every step in Order. The first failing step stops the run.
func (g *Graph) Run(ctx context.Context, st *State) error {
	order, err := g.Order()
	if err != nil {
		return err
	}
	log := logging.Logger()
	for _, name := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Debug("running step", "step", name)
		if err := g.nodes[name].step(ctx, st); err != nil {
			return fmt.Errorf("step %s: %w", name, err)
		}
	}
	return nil
}
