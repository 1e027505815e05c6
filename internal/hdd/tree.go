package hdd

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/vk/hddreduce/internal/grammar"
	"github.com/vk/hddreduce/internal/islands"
)

// Node is one element of a parse tree. Nodes reference each other by index
// into Tree.Nodes.
type Node struct {
	Rule     string
	Parent   int
	Children []int
	// Text is only set on leaves.
	Text string
	// Replacement is rendered instead of the subtree once the node is removed.
	Replacement string
	Removed     bool
}

// Leaf reports whether the node has no children.
func (n *Node) Leaf() bool {
	return len(n.Children) == 0
}

// Tree is a parse tree stored as an arena. Every traversal is iterative, so
// deep inputs cannot exhaust the goroutine stack.
type Tree struct {
	Nodes []Node
	Root  int
}

// GrammarLoader loads the grammar files of an island.
type GrammarLoader func(ctx context.Context, paths []string) (*grammar.Grammar, error)

// BuildOptions controls how a tree is built.
type BuildOptions struct {
	// Replacements override rule replacements by rule name.
	Replacements map[string]string
	Islands      []islands.Island
	// LoadGrammar defaults to grammar.Load.
	LoadGrammar GrammarLoader
}

type scope struct {
	g            *grammar.Grammar
	replacements map[string]string
	islands      []islands.Island
}

func (s *scope) replacement(r *grammar.Rule) string {
	if repl, ok := s.replacements[r.Name]; ok {
		return repl
	}
	return r.Replacement
}

func (s *scope) island(rule string) *islands.Island {
	for i := range s.islands {
		if s.islands[i].Rule == rule {
			return &s.islands[i]
		}
	}
	return nil
}

// Build parses text with g starting from the start rule. Nodes whose rule
// names an island are parsed again with the island's grammar, and the islands
// nested in it apply inside the grafted subtree only.
func Build(ctx context.Context, g *grammar.Grammar, start string, text string, o BuildOptions) (*Tree, error) {
	startRule, ok := g.Rule(start)
	if !ok {
		return nil, fmt.Errorf("start rule %q is not defined", start)
	}
	load := o.LoadGrammar
	if load == nil {
		load = grammar.Load
	}
	grammars := make(map[string]*grammar.Grammar)

	type item struct {
		node  int
		rule  *grammar.Rule
		text  string
		scope *scope
		// same lists the ancestors that were handed exactly this text.
		same []*grammar.Rule
	}

	t := &Tree{}
	root := &scope{g: g, replacements: o.Replacements, islands: o.Islands}
	t.Nodes = append(t.Nodes, Node{Rule: start, Parent: -1, Replacement: root.replacement(startRule)})
	stack := []item{{node: 0, rule: startRule, text: text, scope: root}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if isl := it.scope.island(it.rule.Name); isl != nil {
			key := strings.Join(isl.Grammar, "\x00")
			ig, ok := grammars[key]
			if !ok {
				var err error
				if ig, err = load(ctx, isl.Grammar); err != nil {
					return nil, fmt.Errorf("loading grammar of island %q: %w", isl.Rule, err)
				}
				grammars[key] = ig
			}
			islandRule, ok := ig.Rule(isl.StartRule)
			if !ok {
				return nil, fmt.Errorf("island %q: start rule %q is not defined", isl.Rule, isl.StartRule)
			}
			inner := &scope{g: ig, replacements: isl.Replacements, islands: isl.Islands}
			child := t.add(it.node, Node{Rule: isl.StartRule, Replacement: inner.replacement(islandRule)})
			stack = append(stack, item{node: child, rule: islandRule, text: it.text, scope: inner, same: append(it.same[:len(it.same):len(it.same)], it.rule)})
			continue
		}

		pieces := it.rule.Pieces(it.text)
		if pieces == nil {
			t.Nodes[it.node].Text = it.text
			continue
		}
		for _, p := range pieces {
			switch {
			case !p.Child:
				t.add(it.node, Node{Rule: grammar.TokenRule, Text: p.Text, Replacement: p.Text})
			case it.rule.Child == "":
				t.add(it.node, Node{Rule: grammar.TokenRule, Text: p.Text})
			default:
				childRule, _ := it.scope.g.Rule(it.rule.Child)
				var same []*grammar.Rule
				if p.Text == it.text {
					same = append(it.same[:len(it.same):len(it.same)], it.rule)
				}
				if slices.Contains(same, childRule) {
					// A rule cycle that consumes nothing: stop descending.
					t.add(it.node, Node{Rule: childRule.Name, Text: p.Text, Replacement: it.scope.replacement(childRule)})
					continue
				}
				child := t.add(it.node, Node{Rule: childRule.Name, Replacement: it.scope.replacement(childRule)})
				stack = append(stack, item{node: child, rule: childRule, text: p.Text, scope: it.scope, same: same})
			}
		}
	}
	return t, nil
}

func (t *Tree) add(parent int, n Node) int {
	n.Parent = parent
	t.Nodes = append(t.Nodes, n)
	idx := len(t.Nodes) - 1
	t.Nodes[parent].Children = append(t.Nodes[parent].Children, idx)
	return idx
}

// Render returns the text the tree currently stands for.
func (t *Tree) Render() string {
	return t.render(func(i int) bool { return t.Nodes[i].Removed })
}

// render writes removed nodes as their replacement. It only reads the tree,
// so concurrent renders with different predicates are safe.
func (t *Tree) render(removed func(i int) bool) string {
	var b strings.Builder
	stack := []int{t.Root}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &t.Nodes[i]
		switch {
		case removed(i):
			b.WriteString(n.Replacement)
		case n.Leaf():
			b.WriteString(n.Text)
		default:
			for k := len(n.Children) - 1; k >= 0; k-- {
				stack = append(stack, n.Children[k])
			}
		}
	}
	return b.String()
}

// Level returns the nodes at the given depth that are still part of the
// tree, left to right.
func (t *Tree) Level(depth int) []int {
	if t.Nodes[t.Root].Removed {
		return nil
	}
	current := []int{t.Root}
	for d := 0; d < depth && len(current) > 0; d++ {
		var next []int
		for _, i := range current {
			for _, c := range t.Nodes[i].Children {
				if !t.Nodes[c].Removed {
					next = append(next, c)
				}
			}
		}
		current = next
	}
	return current
}

// Squeeze collapses chains of single-child nodes. The outermost node of a
// chain stays in place, keeping its rule and replacement, and takes over the
// content of the innermost one.
func (t *Tree) Squeeze() {
	for i := range t.Nodes {
		n := &t.Nodes[i]
		if n.Parent < 0 && i != t.Root {
			continue
		}
		for len(n.Children) == 1 {
			c := n.Children[0]
			child := &t.Nodes[c]
			n.Children = child.Children
			n.Text = child.Text
			for _, gc := range n.Children {
				t.Nodes[gc].Parent = i
			}
			child.Children = nil
			child.Parent = -1
		}
	}
}

// Size counts the nodes reachable from the root that are not removed.
func (t *Tree) Size() int {
	count := 0
	for d := 0; ; d++ {
		level := t.Level(d)
		if len(level) == 0 {
			return count
		}
		count += len(level)
	}
}
