// Package action runs a checklist item's associated command or file
// inspection and classifies the outcome.
package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/hanyki111/workflow-tool/types"
	"github.com/hanyki111/workflow-tool/vars"
)

// ErrNoPlatformEntry indicates a per-platform action map has neither an
// "all" entry nor one matching the current platform. This is a
// configuration error, not an execution failure.
var ErrNoPlatformEntry = errors.New("no action entry for platform")

// DefaultTimeout terminates runaway commands; a timeout classifies as a
// failure.
const DefaultTimeout = 120 * time.Second

// Result is the classified outcome of one action or file check.
type Result struct {
	Success  bool
	ExitCode int
	Output   string
	Detail   string
}

// Executor resolves and runs actions. Platform is overridable for
// tests; it defaults to runtime.GOOS.
type Executor struct {
	Platform string
	Timeout  time.Duration
	Logger   *slog.Logger
}

// NewExecutor creates an Executor with defaults.
func NewExecutor() *Executor {
	return &Executor{
		Platform: runtime.GOOS,
		Timeout:  DefaultTimeout,
		Logger:   slog.Default(),
	}
}

// RunItem executes the item's Action or FileCheck. The returned error
// covers configuration problems only; execution failures are expressed
// in the Result.
func (x *Executor) RunItem(ctx context.Context, item types.ChecklistItemSpec, resolver *vars.Resolver) (Result, error) {
	var success, fail []string
	if item.Retry != nil {
		success = item.Retry.SuccessContains
		fail = item.Retry.FailContains
	}

	switch {
	case item.FileCheck != nil:
		return x.runFileCheck(item.FileCheck, resolver), nil
	case item.Action != nil:
		return x.runAction(ctx, item.Action, resolver, item.AllowedExitCodes, success, fail, item.TimeoutSec)
	default:
		return Result{Success: true}, nil
	}
}

// RunSpec executes a bare action spec (the on-enter path) with default
// exit-code classification.
func (x *Executor) RunSpec(ctx context.Context, spec types.ActionSpec, resolver *vars.Resolver) (Result, error) {
	return x.runAction(ctx, &spec, resolver, nil, nil, nil, 0)
}

// ResolveCommand picks the command for the current platform. An "all"
// entry takes priority over platform-specific entries.
func (x *Executor) ResolveCommand(spec *types.ActionSpec) (string, error) {
	if spec.Command != "" {
		return spec.Command, nil
	}
	if cmd, ok := spec.Platforms["all"]; ok {
		return cmd, nil
	}
	if cmd, ok := spec.Platforms[x.Platform]; ok {
		return cmd, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNoPlatformEntry, x.Platform)
}

func (x *Executor) runAction(ctx context.Context, spec *types.ActionSpec, resolver *vars.Resolver, allowed []int, success, fail []string, timeoutSec int) (Result, error) {
	raw, err := x.ResolveCommand(spec)
	if err != nil {
		return Result{}, err
	}
	cmdStr := resolver.Resolve(raw)

	timeout := x.Timeout
	if timeoutSec > 0 {
		timeout = time.Duration(timeoutSec) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var cmd *exec.Cmd
	if x.Platform == "windows" {
		cmd = exec.CommandContext(runCtx, "cmd", "/C", cmdStr)
	} else {
		cmd = exec.CommandContext(runCtx, "sh", "-c", cmdStr)
	}
	cmd.Env = os.Environ()

	x.Logger.Debug("running action", slog.String("cmd", cmdStr))
	outBytes, runErr := cmd.CombinedOutput()
	output := string(outBytes)

	if runCtx.Err() == context.DeadlineExceeded {
		return Result{
			ExitCode: -1,
			Output:   output,
			Detail:   fmt.Sprintf("command timed out after %s: %s", timeout, cmdStr),
		}, nil
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return Result{
				ExitCode: -1,
				Output:   output,
				Detail:   fmt.Sprintf("command could not run: %v", runErr),
			}, nil
		}
	}

	res := classify(output, exitCode, allowed, success, fail)
	res.Output = output
	res.ExitCode = exitCode
	return res, nil
}

func (x *Executor) runFileCheck(fc *types.FileCheck, resolver *vars.Resolver) Result {
	path := resolver.Resolve(fc.Path)
	if !filepath.IsAbs(path) {
		if root := resolver.Resolve("${project_root}"); root != "" && !strings.HasPrefix(root, "${") {
			path = filepath.Join(root, path)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Result{Detail: fmt.Sprintf("cannot read %s: %v", path, err)}
		}
		if fc.FailIfMissing {
			return Result{Detail: fmt.Sprintf("required file missing: %s", path)}
		}
		// Missing without fail_if_missing: classify empty content.
	}

	content := string(data)
	res := classifyContent(content, fc.SuccessContains, fc.FailContains)
	res.Output = content
	return res
}

// classify applies the success policy for command output: fail-pattern
// matches take precedence, then explicit success patterns, then the
// exit code against the allowed set (default {0}).
func classify(output string, exitCode int, allowed []int, success, fail []string) Result {
	for _, p := range fail {
		if strings.Contains(output, p) {
			return Result{Detail: fmt.Sprintf("output matched fail pattern %q", p)}
		}
	}
	if len(success) > 0 {
		for _, p := range success {
			if strings.Contains(output, p) {
				return Result{Success: true}
			}
		}
		return Result{Detail: "output matched no success pattern"}
	}

	if len(allowed) == 0 {
		allowed = []int{0}
	}
	for _, code := range allowed {
		if exitCode == code {
			return Result{Success: true}
		}
	}
	return Result{Detail: fmt.Sprintf("exit code %d not in allowed set %v", exitCode, allowed)}
}

// classifyContent applies the same pattern-precedence rule to file
// content, where there is no exit code to fall back on.
func classifyContent(content string, success, fail []string) Result {
	for _, p := range fail {
		if strings.Contains(content, p) {
			return Result{Detail: fmt.Sprintf("content matched fail pattern %q", p)}
		}
	}
	if len(success) > 0 {
		for _, p := range success {
			if strings.Contains(content, p) {
				return Result{Success: true}
			}
		}
		return Result{Detail: "content matched no success pattern"}
	}
	return Result{Success: true}
}
