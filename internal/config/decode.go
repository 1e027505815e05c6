package config

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/vk/hddreduce/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// option is one entry of the schema: a name, its declared type and the
// Options field the decoded value lands in.
type option struct {
	name     string
	typ      cty.Type
	required bool
	field    func(o *Options) any
	// unsetIfEmpty keeps the default when the value is an empty string.
	unsetIfEmpty bool
}

var schema = []option{
	{name: OptGrammar, typ: cty.List(cty.String), required: true, field: func(o *Options) any { return &o.Grammar }},
	{name: OptStartRule, typ: cty.String, required: true, field: func(o *Options) any { return &o.StartRule }},
	{name: OptHDDMin, typ: cty.String, unsetIfEmpty: true, field: func(o *Options) any { return &o.HDDMin }},
	{name: OptParallel, typ: cty.Bool, field: func(o *Options) any { return &o.Parallel }},
	{name: OptCombineLoops, typ: cty.Bool, field: func(o *Options) any { return &o.CombineLoops }},
	{name: OptSplitMethod, typ: cty.String, field: func(o *Options) any { return &o.SplitMethod }},
	{name: OptSubsetFirst, typ: cty.Bool, field: func(o *Options) any { return &o.SubsetFirst }},
	{name: OptSubsetIterator, typ: cty.String, field: func(o *Options) any { return &o.SubsetIterator }},
	{name: OptComplementIterator, typ: cty.String, field: func(o *Options) any { return &o.ComplementIterator }},
	{name: OptJobs, typ: cty.Number, field: func(o *Options) any { return &o.Jobs }},
	{name: OptMaxUtilization, typ: cty.Number, field: func(o *Options) any { return &o.MaxUtilization }},
	{name: OptEncoding, typ: cty.String, field: func(o *Options) any { return &o.Encoding }},
	{name: OptANTLR, typ: cty.String, unsetIfEmpty: true, field: func(o *Options) any { return &o.ANTLR }},
	{name: OptReplacements, typ: cty.Map(cty.String), field: func(o *Options) any { return &o.Replacements }},
	{name: OptIslands, typ: cty.String, field: func(o *Options) any { return &o.Islands }},
	{name: OptLang, typ: cty.String, field: func(o *Options) any { return &o.Lang }},
	{name: OptHDDStar, typ: cty.Bool, field: func(o *Options) any { return &o.HDDStar }},
	{name: OptSqueezeTree, typ: cty.Bool, field: func(o *Options) any { return &o.SqueezeTree }},
	{name: OptSkipUnremovableTokens, typ: cty.Bool, field: func(o *Options) any { return &o.SkipUnremovableTokens }},
	{name: OptCacheClass, typ: cty.String, field: func(o *Options) any { return &o.CacheClass }},
	{name: OptCleanup, typ: cty.Bool, field: func(o *Options) any { return &o.Cleanup }},
}

// Names returns every recognised option name in schema order.
func Names() []string {
	names := make([]string, len(schema))
	for i, opt := range schema {
		names[i] = opt.name
	}
	return names
}

// Decode turns raw option values into typed Options on top of Defaults. All
// problems found are returned together, each as an *Error.
func Decode(ctx context.Context, raw map[string]cty.Value) (*Options, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Decoding reduction options.", "option_count", len(raw))

	known := make(map[string]option, len(schema))
	for _, opt := range schema {
		known[opt.name] = opt
	}

	var errs []error
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := known[name]; !ok {
			errs = append(errs, optionError(name, ErrUnknownOption, "recognised options are %s", strings.Join(Names(), ", ")))
		}
	}

	opts := Defaults()
	for _, opt := range schema {
		val, present := raw[opt.name]
		if !present || val.IsNull() {
			if opt.required {
				errs = append(errs, optionError(opt.name, ErrMissingOption, "no value given"))
			}
			continue
		}

		converted, err := coerce(opt, val)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if converted.IsNull() {
			if opt.required {
				errs = append(errs, optionError(opt.name, ErrMissingOption, "value is null"))
			}
			continue
		}
		if opt.unsetIfEmpty && converted.AsString() == "" {
			logger.Debug("Empty option left at its default.", "option", opt.name)
			continue
		}
		if err := gocty.FromCtyValue(converted, opt.field(opts)); err != nil {
			errs = append(errs, optionError(opt.name, ErrMalformedValue, "%v", err))
			continue
		}
		logger.Debug("Option decoded.", "option", opt.name)
	}

	errs = append(errs, validate(opts, raw)...)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if opts.Replacements == nil {
		opts.Replacements = map[string]string{}
	}
	return opts, nil
}

// coerce converts val to the declared type of opt. Strings carrying lists or
// maps are read as JSON; strings carrying booleans accept either case.
func coerce(opt option, val cty.Value) (cty.Value, error) {
	if !val.IsWhollyKnown() {
		return cty.NilVal, optionError(opt.name, ErrMalformedValue, "value is not known")
	}

	if val.Type().Equals(cty.String) {
		s := val.AsString()
		switch {
		case opt.typ.IsListType() || opt.typ.IsMapType():
			parsed, err := ctyjson.Unmarshal([]byte(s), opt.typ)
			if err != nil {
				return cty.NilVal, optionError(opt.name, ErrMalformedValue, "expected a JSON-encoded %s: %v", opt.typ.FriendlyName(), err)
			}
			return parsed, nil
		case opt.typ.Equals(cty.Bool):
			switch strings.ToLower(strings.TrimSpace(s)) {
			case "true":
				return cty.True, nil
			case "false":
				return cty.False, nil
			default:
				return cty.NilVal, optionError(opt.name, ErrMalformedValue, "expected a boolean, got %q", s)
			}
		}
	}

	if opt.typ.Equals(cty.Bool) && !val.Type().Equals(cty.Bool) {
		return cty.NilVal, optionError(opt.name, ErrMalformedValue, "expected a boolean, got %s", val.Type().FriendlyName())
	}

	converted, err := convert.Convert(val, opt.typ)
	if err != nil {
		return cty.NilVal, optionError(opt.name, ErrMalformedValue, "expected %s: %v", opt.typ.FriendlyName(), err)
	}
	return converted, nil
}

func validate(opts *Options, raw map[string]cty.Value) []error {
	var errs []error
	if _, ok := raw[OptGrammar]; ok && opts.Grammar != nil && len(opts.Grammar) == 0 {
		errs = append(errs, optionError(OptGrammar, ErrMissingOption, "grammar list is empty"))
	}
	if _, ok := raw[OptStartRule]; ok && opts.StartRule == "" {
		errs = append(errs, optionError(OptStartRule, ErrMissingOption, "start rule is empty"))
	}
	if opts.Jobs < 1 {
		errs = append(errs, optionError(OptJobs, ErrOutOfRange, "must be at least 1, got %d", opts.Jobs))
	}
	if opts.MaxUtilization < 1 || opts.MaxUtilization > 100 {
		errs = append(errs, optionError(OptMaxUtilization, ErrOutOfRange, "must be between 1 and 100, got %d", opts.MaxUtilization))
	}
	langOK := false
	for _, lang := range Langs {
		if opts.Lang == lang {
			langOK = true
			break
		}
	}
	if !langOK {
		errs = append(errs, optionError(OptLang, ErrOutOfRange, "must be one of %s, got %q", strings.Join(Langs, ", "), opts.Lang))
	}
	return errs
}

// FromStrings decodes a text-only configuration, as found in INI-like files.
func FromStrings(ctx context.Context, values map[string]string) (*Options, error) {
	raw := make(map[string]cty.Value, len(values))
	for name, v := range values {
		raw[name] = cty.StringVal(v)
	}
	return Decode(ctx, raw)
}

// FromValues decodes a configuration of native Go values (strings, bools,
// numbers, string slices and string maps).
func FromValues(ctx context.Context, values map[string]any) (*Options, error) {
	raw := make(map[string]cty.Value, len(values))
	var errs []error
	for name, v := range values {
		if v == nil {
			raw[name] = cty.NullVal(cty.DynamicPseudoType)
			continue
		}
		ty, err := gocty.ImpliedType(v)
		if err != nil {
			errs = append(errs, optionError(name, ErrMalformedValue, "unsupported Go type %T", v))
			continue
		}
		val, err := gocty.ToCtyValue(v, ty)
		if err != nil {
			errs = append(errs, optionError(name, ErrMalformedValue, "%v", err))
			continue
		}
		raw[name] = val
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return Decode(ctx, raw)
}

// String renders the options for logs.
func (o *Options) String() string {
	return fmt.Sprintf("grammar=%v start_rule=%s hddmin=%s parallel=%t jobs=%d cache=%s",
		o.Grammar, o.StartRule, o.HDDMin, o.Parallel, o.Jobs, o.CacheClass)
}
