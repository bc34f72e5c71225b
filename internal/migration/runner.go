package migration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Runner executes external commands.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (*Output, error)
}

type Output struct {
	Stdout string
	Stderr string
}

// CommandError reports a command that could not start or exited non-zero.
type CommandError struct {
	Name     string
	Args     []string
	Dir      string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q failed with exit code %d: %v", e.Command(), e.ExitCode, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Command is the command line as a single string.
func (e *CommandError) Command() string {
	return strings.Join(append([]string{e.Name}, e.Args...), " ")
}

// ExecRunner runs commands with os/exec, capturing stdout and stderr.
type ExecRunner struct {
	// Env, when set, is appended to the inherited environment.
	Env []string
}

func (r ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (out *Output, err error) {
	logger := zerolog.Ctx(ctx)

	defer func(begin time.Time) {
		logger.Debug().
			Interface("error", err).
			Str("dir", dir).
			Str("command", name).
			Strs("args", args).
			Dur("duration", time.Since(begin)).
			Msg("Ran command")
	}(time.Now())

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}

	runErr := cmd.Run()
	out = &Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if runErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return out, &CommandError{
			Name:     name,
			Args:     args,
			Dir:      dir,
			ExitCode: exitCode,
			Stdout:   out.Stdout,
			Stderr:   out.Stderr,
			Err:      runErr,
		}
	}
	return out, nil
}

func logOutput(ctx context.Context, step string, out *Output) {
	if out == nil {
		return
	}
	zerolog.Ctx(ctx).Info().
		Str("step", step).
		Str("stdout", out.Stdout).
		Str("stderr", out.Stderr).
		Msg("Command output")
}
