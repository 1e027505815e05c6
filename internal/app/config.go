package app

import (
	"errors"
	"os"
	"path/filepath"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ConfigPath string // hcl file with sut and reduce blocks
	Job        string // reduce block; may be empty when the file has exactly one
	SUT        string // sut block; may be empty when the file has exactly one
	TestPath   string // the failing test to reduce

	// IssueID is the failure to preserve. Empty means run the SUT once to find it.
	IssueID string
	WorkDir string
	OutPath string

	LogFormat   string
	LogLevel    string
	ListenerURL string
}

// NewConfig validates cfg and fills in derived defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ConfigPath == "" {
		return nil, errors.New("ConfigPath is a required configuration field and cannot be empty")
	}
	if cfg.TestPath == "" {
		return nil, errors.New("TestPath is a required configuration field and cannot be empty")
	}
	if cfg.OutPath == "" {
		cfg.OutPath = cfg.TestPath + ".reduced"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = filepath.Join(os.TempDir(), "hddreduce")
	}
	return &cfg, nil
}
