// Package grammar loads the lightweight hierarchical grammars used by the
// built-in engine.
//
// A grammar file is HCL made of rule blocks:
//
//	rule "file" {
//	  split = "\n"        // children are the text between separators
//	  child = "line"
//	}
//
//	rule "line" {
//	  match = "\\w+"      // children are the matches
//	  child = "word"
//	  replacement = ""    // text that stands in for a removed line
//	}
//
//	rule "word" {}        // terminal
//
// Text a rule does not hand to a child (separators of split rules, gaps
// between matches) becomes unremovable tokens. A split or match rule with no
// child yields terminal token nodes.
package grammar

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/hddreduce/internal/ctxlog"
	"github.com/vk/hddreduce/internal/fsutil"
)

// TokenRule names the terminal nodes created for uncovered text and for
// childless split or match rules.
const TokenRule = "<token>"

// Rule is one production of a grammar.
type Rule struct {
	Name string
	// Split and Match are mutually exclusive. Neither set means terminal.
	Split *regexp.Regexp
	Match *regexp.Regexp
	// Child is the rule of the produced pieces; empty means token nodes.
	Child string
	// Replacement is what a removed node of this rule renders as.
	Replacement string
}

// Terminal reports whether the rule produces no children.
func (r *Rule) Terminal() bool {
	return r.Split == nil && r.Match == nil
}

// Grammar is a set of rules loaded from one or more files.
type Grammar struct {
	Files []string
	rules map[string]*Rule
}

// Rule returns the named rule.
func (g *Grammar) Rule(name string) (*Rule, bool) {
	r, ok := g.rules[name]
	return r, ok
}

// RuleNames returns every rule name in sorted order.
func (g *Grammar) RuleNames() []string {
	names := make([]string, 0, len(g.rules))
	for name := range g.rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type grammarRoot struct {
	Rules []*ruleBlock `hcl:"rule,block"`
}

type ruleBlock struct {
	Name        string  `hcl:"name,label"`
	Split       *string `hcl:"split,optional"`
	Match       *string `hcl:"match,optional"`
	Child       *string `hcl:"child,optional"`
	Replacement *string `hcl:"replacement,optional"`
}

// Load parses every grammar file in paths. Directories contribute all of
// their .hcl files. The result is checked for duplicate rules, invalid
// expressions and references to undefined rules.
func Load(ctx context.Context, paths []string) (*Grammar, error) {
	logger := ctxlog.FromContext(ctx)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no grammar files given")
	}

	files, err := fsutil.ExpandPaths(paths, ".hcl")
	if err != nil {
		return nil, fmt.Errorf("failed to find grammar files: %w", err)
	}

	g := &Grammar{Files: files, rules: make(map[string]*Rule)}
	parser := hclparse.NewParser()
	for _, path := range files {
		logger.Debug("Parsing grammar file.", "path", path)
		file, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse grammar file %s: %w", path, diags)
		}
		if err := g.addFile(file, path); err != nil {
			return nil, err
		}
	}

	if err := g.check(); err != nil {
		return nil, err
	}
	logger.Debug("Grammar loaded.", "files", len(files), "rules", len(g.rules))
	return g, nil
}

// Parse builds a grammar from in-memory HCL source.
func Parse(src []byte, filename string) (*Grammar, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse grammar %s: %w", filename, diags)
	}
	g := &Grammar{Files: []string{filename}, rules: make(map[string]*Rule)}
	if err := g.addFile(file, filename); err != nil {
		return nil, err
	}
	if err := g.check(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Grammar) addFile(file *hcl.File, path string) error {
	var root grammarRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return fmt.Errorf("failed to decode grammar file %s: %w", path, diags)
	}

	for _, b := range root.Rules {
		if _, dup := g.rules[b.Name]; dup {
			return fmt.Errorf("%s: rule %q defined more than once", path, b.Name)
		}
		r, err := compile(b)
		if err != nil {
			return fmt.Errorf("%s: rule %q: %w", path, b.Name, err)
		}
		g.rules[b.Name] = r
	}
	return nil
}

func compile(b *ruleBlock) (*Rule, error) {
	if b.Name == TokenRule {
		return nil, fmt.Errorf("rule name %q is reserved", TokenRule)
	}
	if b.Split != nil && b.Match != nil {
		return nil, fmt.Errorf("split and match are mutually exclusive")
	}

	r := &Rule{Name: b.Name}
	var err error
	if b.Split != nil {
		if r.Split, err = compileNonEmpty(*b.Split); err != nil {
			return nil, fmt.Errorf("split: %w", err)
		}
	}
	if b.Match != nil {
		if r.Match, err = compileNonEmpty(*b.Match); err != nil {
			return nil, fmt.Errorf("match: %w", err)
		}
	}
	if b.Child != nil {
		if r.Terminal() {
			return nil, fmt.Errorf("child requires split or match")
		}
		r.Child = *b.Child
	}
	if b.Replacement != nil {
		r.Replacement = *b.Replacement
	}
	return r, nil
}

// compileNonEmpty rejects expressions that can match the empty string, since
// they would never make progress.
func compileNonEmpty(expr string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	if re.MatchString("") {
		return nil, fmt.Errorf("expression %q matches the empty string", expr)
	}
	return re, nil
}

func (g *Grammar) check() error {
	var errs []string
	for _, name := range g.RuleNames() {
		r := g.rules[name]
		if r.Child == "" {
			continue
		}
		if _, ok := g.rules[r.Child]; !ok {
			errs = append(errs, fmt.Sprintf("rule %q references undefined child rule %q", name, r.Child))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("grammar validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}
