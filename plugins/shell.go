package plugins

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"
)

// commandTimeout bounds a validator command so a hung child process
// cannot stall the invoking command forever.
const commandTimeout = 60 * time.Second

// CommandValidator passes when the shell command in args["cmd"] exits
// with args["expect_code"] (default 0). Output is discarded; the
// command inherits the current environment.
type CommandValidator struct{}

// Validate implements Validator.
func (v *CommandValidator) Validate(args map[string]interface{}, _ map[string]interface{}) (bool, error) {
	cmdStr, _ := args["cmd"].(string)
	if cmdStr == "" {
		return false, fmt.Errorf("command: missing required arg %q", "cmd")
	}

	expectCode := 0
	if c, ok := args["expect_code"].(int); ok {
		expectCode = c
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", cmdStr)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", cmdStr)
	}
	cmd.Env = os.Environ()
	cmd.Stdout = nil
	cmd.Stderr = nil

	err := cmd.Run()
	if err == nil {
		return expectCode == 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode() == expectCode, nil
	}
	// Command could not start or was killed by the timeout.
	return false, nil
}
