package sut

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/vk/hddreduce/internal/ctxlog"
	"github.com/vk/hddreduce/internal/issue"
)

// Argument names understood by Subprocess.
const (
	ArgCommand    = "command"
	ArgCwd        = "cwd"
	ArgTimeout    = "timeout"
	ArgIDPattern  = "id_pattern"
	ArgNoExitCode = "no_exit_code"
	ArgFilename   = "filename"
)

// TestPlaceholder is replaced in the command by the path of the test file.
const TestPlaceholder = "{test}"

// TimeoutID is the issue ID reported when the command runs out of time.
const TimeoutID = "timeout"

// Subprocess runs a shell command on a temporary copy of the test.
//
// The command is failing when it exits with a non-zero code. With
// no_exit_code=true the exit code is ignored and the command fails when
// id_pattern matches its output. The issue ID is the first capture group of
// id_pattern (the whole match without groups) or "exit code N".
type Subprocess struct{}

type subprocessArgs struct {
	command    string
	cwd        string
	timeout    time.Duration
	idPattern  *regexp.Regexp
	noExitCode bool
	filename   string
}

func parseArgs(args Args) (*subprocessArgs, error) {
	a := &subprocessArgs{
		command:  args[ArgCommand],
		cwd:      args[ArgCwd],
		filename: args[ArgFilename],
	}
	if a.command == "" {
		return nil, fmt.Errorf("sut: %s is required", ArgCommand)
	}
	if a.filename == "" {
		a.filename = issue.DefaultFilename
	}
	if a.filename != filepath.Base(a.filename) {
		return nil, fmt.Errorf("sut: %s must be a plain file name, got %q", ArgFilename, a.filename)
	}
	if raw := args[ArgTimeout]; raw != "" {
		d, err := parseTimeout(raw)
		if err != nil {
			return nil, fmt.Errorf("sut: invalid %s %q: %w", ArgTimeout, raw, err)
		}
		a.timeout = d
	}
	if raw := args[ArgIDPattern]; raw != "" {
		re, err := regexp.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("sut: invalid %s: %w", ArgIDPattern, err)
		}
		a.idPattern = re
	}
	if raw := args[ArgNoExitCode]; raw != "" {
		b, err := strconv.ParseBool(strings.ToLower(raw))
		if err != nil {
			return nil, fmt.Errorf("sut: invalid %s %q", ArgNoExitCode, raw)
		}
		a.noExitCode = b
	}
	if a.noExitCode && a.idPattern == nil {
		return nil, fmt.Errorf("sut: %s requires %s", ArgNoExitCode, ArgIDPattern)
	}
	return a, nil
}

// parseTimeout accepts Go durations and plain seconds.
func parseTimeout(raw string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		if secs <= 0 {
			return 0, errors.New("must be positive")
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("must be positive")
	}
	return d, nil
}

// Call writes test to a fresh temporary directory and runs the command on it.
func (Subprocess) Call(ctx context.Context, test []byte, args Args) (*issue.Issue, error) {
	a, err := parseArgs(args)
	if err != nil {
		return nil, err
	}
	logger := ctxlog.FromContext(ctx)

	dir, err := os.MkdirTemp("", "hddreduce-sut-")
	if err != nil {
		return nil, fmt.Errorf("sut: creating test directory: %w", err)
	}
	defer os.RemoveAll(dir)
	testPath := filepath.Join(dir, a.filename)
	if err := os.WriteFile(testPath, test, 0o644); err != nil {
		return nil, fmt.Errorf("sut: writing test file: %w", err)
	}

	runCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	command := strings.ReplaceAll(a.command, TestPlaceholder, testPath)
	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = a.cwd
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	fields := map[string]string{
		"command": command,
		"stdout":  stdout.String(),
		"stderr":  stderr.String(),
	}

	if a.timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		logger.Debug("SUT timed out.", "command", command, "timeout", a.timeout)
		fields["timeout"] = a.timeout.String()
		return &issue.Issue{ID: TimeoutID, Test: test, Filename: a.filename, Fields: fields}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("sut: running %q: %w", command, runErr)
		}
		exitCode = exitErr.ExitCode()
	}
	fields["exit_code"] = strconv.Itoa(exitCode)

	id, matched := a.match(stdout.Bytes(), stderr.Bytes())
	failed := exitCode != 0
	if a.noExitCode {
		failed = matched
	}
	logger.Debug("SUT finished.", "command", command, "exit_code", exitCode, "failed", failed)
	if !failed {
		return nil, nil
	}
	if !matched {
		id = fmt.Sprintf("exit code %d", exitCode)
	}
	return &issue.Issue{ID: id, Test: test, Filename: a.filename, Fields: fields}, nil
}

// match looks for the ID pattern in stderr, then stdout.
func (a *subprocessArgs) match(stdout, stderr []byte) (string, bool) {
	if a.idPattern == nil {
		return "", false
	}
	for _, out := range [][]byte{stderr, stdout} {
		m := a.idPattern.FindSubmatch(out)
		if m == nil {
			continue
		}
		if len(m) > 1 {
			return string(m[1]), true
		}
		return string(m[0]), true
	}
	return "", false
}
