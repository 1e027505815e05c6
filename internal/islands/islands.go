// Package islands loads island descriptors: embedded-language regions of a
// test case that are parsed with their own grammar.
//
// A descriptor is a JSON (or JSONC) document:
//
//	{
//	  "islands": [
//	    {
//	      "rule": "string_literal",       // host rule whose text is an island
//	      "grammar": ["sql.hcl"],         // relative to the descriptor
//	      "start_rule": "query",
//	      "replacements": {"clause": ""},
//	      "islands": []                   // islands inside this island
//	    }
//	  ]
//	}
package islands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
	"github.com/vk/hddreduce/internal/ctxlog"
	"github.com/vk/hddreduce/internal/listener"
	"github.com/vk/hddreduce/internal/textenc"
)

// MaxDepth bounds how deeply islands may nest.
const MaxDepth = 32

// Island describes one embedded-language region.
type Island struct {
	Rule         string            `json:"rule"`
	Grammar      []string          `json:"grammar"`
	StartRule    string            `json:"start_rule"`
	Replacements map[string]string `json:"replacements,omitempty"`
	Islands      []Island          `json:"islands,omitempty"`
}

// Descriptor is a loaded island description. It is never modified after
// Load returns and may be shared by concurrent workers.
type Descriptor struct {
	Path    string   `json:"-"`
	Islands []Island `json:"islands"`
}

// Load reads the descriptor at path. An empty path means no islands.
// encoding is the encoding of the descriptor file itself, not of the test
// being reduced; empty means detect it from the file. Any failure is reported
// as exactly one warning on l and yields nil, so the reduction goes on
// without islands.
func Load(ctx context.Context, path string, encoding string, l listener.Listener, ident string) *Descriptor {
	if path == "" {
		return nil
	}
	logger := ctxlog.FromContext(ctx).With("islands", path)

	d, err := parse(path, encoding)
	if err != nil {
		logger.Warn("Ignoring invalid islands descriptor.", "error", err)
		l.Warning(ident, fmt.Sprintf("Invalid islands descriptor %s: %v", path, err))
		return nil
	}
	logger.Debug("Islands descriptor loaded.", "islands", len(d.Islands))
	return d
}

func parse(path, encoding string) (*Descriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text, err := textenc.Decode(raw, encoding)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(text)))
	dec.DisallowUnknownFields()
	d := &Descriptor{Path: path}
	if err := dec.Decode(d); err != nil {
		return nil, fmt.Errorf("decoding JSON: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after the descriptor object")
	}

	if err := validate(d, filepath.Dir(path)); err != nil {
		return nil, err
	}
	return d, nil
}

// validate walks the island tree without recursion, checks every entry and
// resolves grammar paths against dir.
func validate(d *Descriptor, dir string) error {
	type item struct {
		island *Island
		depth  int
		where  string
	}

	stack := make([]item, 0, len(d.Islands))
	for i := range d.Islands {
		stack = append(stack, item{&d.Islands[i], 1, fmt.Sprintf("islands[%d]", i)})
	}

	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if it.depth > MaxDepth {
			return fmt.Errorf("%s: islands nested deeper than %d levels", it.where, MaxDepth)
		}
		isl := it.island
		switch {
		case isl.Rule == "":
			return fmt.Errorf("%s: missing rule", it.where)
		case len(isl.Grammar) == 0:
			return fmt.Errorf("%s: missing grammar", it.where)
		case isl.StartRule == "":
			return fmt.Errorf("%s: missing start_rule", it.where)
		}
		for g, p := range isl.Grammar {
			if p == "" {
				return fmt.Errorf("%s: grammar[%d] is empty", it.where, g)
			}
			if !filepath.IsAbs(p) {
				isl.Grammar[g] = filepath.Join(dir, p)
			}
		}
		if isl.Replacements == nil {
			isl.Replacements = map[string]string{}
		}
		for i := range isl.Islands {
			stack = append(stack, item{&isl.Islands[i], it.depth + 1, fmt.Sprintf("%s.islands[%d]", it.where, i)})
		}
	}
	return nil
}
