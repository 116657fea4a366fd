package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/loopsched/internal/ir"
)

// CycleWarning names a dependency cycle between instructions.
//
// The scheduler never detects cycles itself: a kernel with one simply has
// no schedule. Validate reports them up front so the user sees the culprits.
type CycleWarning struct {
	Path    []string `json:"path"` // first id repeated at the end
	Message string   `json:"message"`
	Level   string   `json:"level"`
}

// AnalyzeDependencyCycles returns one warning per strongly connected
// component of the dependency graph that contains a cycle. Components are
// discovered in declaration order, so output is stable. A DAG yields an
// empty slice.
func AnalyzeDependencyCycles(k *ir.Kernel) []CycleWarning {
	warnings := []CycleWarning{}
	if len(k.Instructions) == 0 {
		return warnings
	}

	g := newDepGraph(k)
	for _, comp := range g.components() {
		if len(comp) == 1 && !slices.Contains(g.edges[comp[0]], comp[0]) {
			continue
		}
		warnings = append(warnings, g.warning(comp))
	}
	return warnings
}

// depGraph holds insn id -> ids it depends on, plus declaration order.
type depGraph struct {
	edges map[string][]string
	ids   []string
}

// newDepGraph drops edges to unknown ids; Validate reports those.
func newDepGraph(k *ir.Kernel) *depGraph {
	g := &depGraph{edges: make(map[string][]string, len(k.Instructions))}
	for _, insn := range k.Instructions {
		if _, dup := g.edges[insn.ID]; !dup {
			g.ids = append(g.ids, insn.ID)
		}
		g.edges[insn.ID] = nil
	}
	for _, insn := range k.Instructions {
		for _, dep := range insn.Deps {
			if _, known := g.edges[dep]; known {
				g.edges[insn.ID] = append(g.edges[insn.ID], dep)
			}
		}
	}
	return g
}

// sccWalk is the bookkeeping for one run of Tarjan's algorithm.
type sccWalk struct {
	g       *depGraph
	next    int
	order   map[string]int
	low     map[string]int
	pending []string
	active  map[string]bool
	out     [][]string
}

// components returns the strongly connected components, each listed in
// discovery order.
func (g *depGraph) components() [][]string {
	w := &sccWalk{
		g:      g,
		order:  make(map[string]int, len(g.ids)),
		low:    make(map[string]int, len(g.ids)),
		active: make(map[string]bool, len(g.ids)),
	}
	for _, id := range g.ids {
		if _, seen := w.order[id]; !seen {
			w.visit(id)
		}
	}
	return w.out
}

func (w *sccWalk) visit(v string) {
	w.order[v], w.low[v] = w.next, w.next
	w.next++
	w.pending = append(w.pending, v)
	w.active[v] = true

	for _, u := range w.g.edges[v] {
		switch _, seen := w.order[u]; {
		case !seen:
			w.visit(u)
			w.low[v] = min(w.low[v], w.low[u])
		case w.active[u]:
			w.low[v] = min(w.low[v], w.order[u])
		}
	}
	if w.low[v] != w.order[v] {
		return
	}

	// v roots a component: everything above it on the stack belongs to it.
	at := slices.Index(w.pending, v)
	comp := slices.Clone(w.pending[at:])
	for _, id := range comp {
		w.active[id] = false
	}
	w.pending = w.pending[:at]
	w.out = append(w.out, comp)
}

func (g *depGraph) warning(comp []string) CycleWarning {
	if len(comp) == 1 {
		id := comp[0]
		return CycleWarning{
			Path:    []string{id, id},
			Message: fmt.Sprintf("instruction depends on itself: %s → %s", id, id),
			Level:   "warning",
		}
	}
	path := g.cyclePath(comp)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("dependency cycle, no schedule exists: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}

// cyclePath walks edges inside comp from its first member, never revisiting
// a node, until it gets back to the start or runs out of moves.
func (g *depGraph) cyclePath(comp []string) []string {
	start := comp[0]
	path := []string{start}
	seen := map[string]bool{start: true}
	for cur := start; ; {
		step := ""
		for _, dep := range g.edges[cur] {
			if dep == start || (!seen[dep] && slices.Contains(comp, dep)) {
				step = dep
				break
			}
		}
		if step == "" {
			return path
		}
		path = append(path, step)
		if step == start {
			return path
		}
		seen[step] = true
		cur = step
	}
}
