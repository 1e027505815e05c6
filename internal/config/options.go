package config

import "runtime"

// Option names, as they appear in configuration files.
const (
	OptGrammar               = "grammar"
	OptStartRule             = "start_rule"
	OptHDDMin                = "hddmin"
	OptParallel              = "parallel"
	OptCombineLoops          = "combine_loops"
	OptSplitMethod           = "split_method"
	OptSubsetFirst           = "subset_first"
	OptSubsetIterator        = "subset_iterator"
	OptComplementIterator    = "complement_iterator"
	OptJobs                  = "jobs"
	OptMaxUtilization        = "max_utilization"
	OptEncoding              = "encoding"
	OptANTLR                 = "antlr"
	OptReplacements          = "replacements"
	OptIslands               = "islands"
	OptLang                  = "lang"
	OptHDDStar               = "hdd_star"
	OptSqueezeTree           = "squeeze_tree"
	OptSkipUnremovableTokens = "skip_unremovable_tokens"
	OptCacheClass            = "cache_class"
	OptCleanup               = "cleanup"
)

// DefaultANTLR names the parser-generator artifact bundled with the engine.
const DefaultANTLR = "antlr-4.13.1-complete.jar"

// Langs lists the accepted grammar target languages.
var Langs = []string{"python", "java"}

// Options is the fully typed configuration of one reduction job.
type Options struct {
	// Grammar lists the grammar files (or directories of them). Mandatory.
	Grammar []string
	// StartRule is the grammar entry point. Mandatory.
	StartRule string

	HDDMin       string
	Parallel     bool
	CombineLoops bool

	SplitMethod        string
	SubsetFirst        bool
	SubsetIterator     string
	ComplementIterator string

	// Jobs is the requested worker count; it only matters in parallel mode.
	Jobs int
	// MaxUtilization caps concurrently running workers, in percent of Jobs.
	MaxUtilization int

	// Encoding of the test artifact; empty means detect.
	Encoding     string
	ANTLR        string
	Replacements map[string]string
	// Islands is the path of an optional island descriptor file.
	Islands string
	Lang    string

	HDDStar               bool
	SqueezeTree           bool
	SkipUnremovableTokens bool

	CacheClass string
	Cleanup    bool
}

// Defaults returns the options used for every value the configuration leaves unset.
func Defaults() *Options {
	return &Options{
		HDDMin:                "full",
		SplitMethod:           "zeller",
		SubsetFirst:           true,
		SubsetIterator:        "forward",
		ComplementIterator:    "forward",
		Jobs:                  runtime.NumCPU(),
		MaxUtilization:        100,
		ANTLR:                 DefaultANTLR,
		Replacements:          map[string]string{},
		Lang:                  "python",
		HDDStar:               true,
		SqueezeTree:           true,
		SkipUnremovableTokens: true,
		CacheClass:            "ContentCache",
		Cleanup:               true,
	}
}
