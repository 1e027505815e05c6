package config

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/hddreduce/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// File is the decoded content of an HCL job file. SUTs holds the fixed call
// arguments of each named system under test; Reducers holds the reduction
// options of each named job.
type File struct {
	SUTs     map[string]map[string]string
	Reducers map[string]*Options
}

// fileRoot is a struct used to decode all possible top-level blocks from a file.
type fileRoot struct {
	SUTs     []*namedBlock `hcl:"sut,block"`
	Reducers []*namedBlock `hcl:"reduce,block"`
}

type namedBlock struct {
	Name string   `hcl:"name,label"`
	Body hcl.Body `hcl:",remain"`
}

// LoadFile parses the HCL job file at path.
func LoadFile(ctx context.Context, path string) (*File, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}
	return decodeFile(ctx, hclFile, path)
}

// ParseHCL parses an HCL job file held in memory.
func ParseHCL(ctx context.Context, src []byte, filename string) (*File, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	return decodeFile(ctx, hclFile, filename)
}

func decodeFile(ctx context.Context, hclFile *hcl.File, filename string) (*File, error) {
	logger := ctxlog.FromContext(ctx).With("file", filename)

	var root fileRoot
	if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	out := &File{
		SUTs:     make(map[string]map[string]string),
		Reducers: make(map[string]*Options),
	}

	for _, b := range root.SUTs {
		if _, dup := out.SUTs[b.Name]; dup {
			return nil, fmt.Errorf("%s: sut %q defined more than once", filename, b.Name)
		}
		raw, err := blockValues(b.Body)
		if err != nil {
			return nil, fmt.Errorf("%s: sut %q: %w", filename, b.Name, err)
		}
		args := make(map[string]string, len(raw))
		for name, val := range raw {
			str, err := convert.Convert(val, cty.String)
			if err != nil || str.IsNull() {
				return nil, fmt.Errorf("%s: sut %q: argument %q must be a string, number or bool", filename, b.Name, name)
			}
			args[name] = str.AsString()
		}
		out.SUTs[b.Name] = args
		logger.Debug("SUT block decoded.", "sut", b.Name, "args", sortedKeys(args))
	}

	for _, b := range root.Reducers {
		if _, dup := out.Reducers[b.Name]; dup {
			return nil, fmt.Errorf("%s: reduce %q defined more than once", filename, b.Name)
		}
		raw, err := blockValues(b.Body)
		if err != nil {
			return nil, fmt.Errorf("%s: reduce %q: %w", filename, b.Name, err)
		}
		opts, err := Decode(ctx, raw)
		if err != nil {
			return nil, fmt.Errorf("%s: reduce %q: %w", filename, b.Name, err)
		}
		out.Reducers[b.Name] = opts
		logger.Debug("Reduce block decoded.", "job", b.Name, "options", opts.String())
	}

	logger.Debug("HCL loading complete.", "suts", len(out.SUTs), "reducers", len(out.Reducers))
	return out, nil
}

// blockValues evaluates every attribute of body without variables or
// functions, so only literal values are accepted.
func blockValues(body hcl.Body) (map[string]cty.Value, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}
	raw := make(map[string]cty.Value, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, diags
		}
		raw[name] = val
	}
	return raw, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
