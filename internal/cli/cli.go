package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/hddreduce/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("hddreduce", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
hddreduce - grammar-aware test case reduction.

Usage:
  hddreduce -config FILE [options] TEST

Arguments:
  TEST
    The failing test case to reduce.

Options:
`)
		flagSet.PrintDefaults()
	}

	configFlag := flagSet.String("config", "", "Path to the HCL file with sut and reduce blocks.")
	cFlag := flagSet.String("c", "", "Path to the HCL file (shorthand).")
	jobFlag := flagSet.String("job", "", "Name of the reduce block to use. Optional when the file has exactly one.")
	sutFlag := flagSet.String("sut", "", "Name of the sut block to use. Optional when the file has exactly one.")
	idFlag := flagSet.String("id", "", "ID of the issue to preserve. When empty the SUT is run once to find it.")
	workDirFlag := flagSet.String("workdir", "", "Directory for scratch files and discovered issues.")
	outFlag := flagSet.String("out", "", "Where to write the reduced test. Defaults to TEST.reduced.")
	listenerFlag := flagSet.String("listener-url", "", "socket.io endpoint that receives warnings and new issues.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	if flagSet.NArg() == 0 {
		slog.Debug("No test provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}
	if flagSet.NArg() > 1 {
		return nil, false, &ExitError{Code: 2, Message: "exactly one TEST argument is expected"}
	}

	configPath := *configFlag
	if configPath == "" {
		configPath = *cFlag
	}
	if configPath == "" {
		return nil, false, &ExitError{Code: 2, Message: "missing -config: a job file is required"}
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if !app.ValidLogFormat(logFormat) {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("invalid log-format: must be one of %s", strings.Join(app.LogFormats, ", "))}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	if _, err := app.ParseLogLevel(logLevel); err != nil {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		ConfigPath:  configPath,
		Job:         *jobFlag,
		SUT:         *sutFlag,
		TestPath:    flagSet.Arg(0),
		IssueID:     *idFlag,
		WorkDir:     *workDirFlag,
		OutPath:     *outFlag,
		LogFormat:   logFormat,
		LogLevel:    logLevel,
		ListenerURL: *listenerFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
