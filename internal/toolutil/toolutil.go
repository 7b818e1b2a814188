// Package toolutil runs and probes the external programs oenv drives
// (pyenv, bash, pip, docker compose).
// It uses os/exec directly; each helper reports a missing binary as
// ErrNotInstalled and a non-zero exit as *ExitError.
package toolutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/Quidge/oenv/internal/pathutil"
)

// ErrNotInstalled is returned when a program cannot be found.
var ErrNotInstalled = errors.New("not installed")

// stderrTail bounds how much stderr an ExitError keeps.
const stderrTail = 2048

// ExitError is returned when a program ran but exited non-zero.
type ExitError struct {
	Args   []string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", strings.Join(e.Args, " "), e.Code)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Command describes one program invocation.
type Command struct {
	Args   []string
	Dir    string
	Env    []string // appended to the current environment
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Run executes c and waits for it to finish.
func Run(ctx context.Context, c Command) error {
	if len(c.Args) == 0 {
		return fmt.Errorf("no command given")
	}

	cmd := exec.CommandContext(ctx, c.Args[0], c.Args[1:]...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Stdin = c.Stdin
	cmd.Stdout = c.Stdout

	var stderr bytes.Buffer
	if c.Stderr != nil {
		cmd.Stderr = io.MultiWriter(c.Stderr, &stderr)
	} else {
		cmd.Stderr = &stderr
	}

	if err := cmd.Run(); err != nil {
		return wrapExecError(c.Args, err, stderr.String())
	}
	return nil
}

// Find returns the path of the named program, looking in PATH first and then
// in the given candidate locations (~ is expanded).
// Returns ErrNotInstalled if none exists.
func Find(name string, candidates ...string) (string, error) {
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}
	for _, candidate := range candidates {
		expanded, err := pathutil.ExpandTilde(candidate)
		if err != nil {
			continue
		}
		if pathutil.ExistsAndIsFile(expanded) {
			return expanded, nil
		}
	}
	return "", fmt.Errorf("%s: %w", name, ErrNotInstalled)
}

func wrapExecError(args []string, err error, stderr string) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		stderr = strings.TrimSpace(stderr)
		if len(stderr) > stderrTail {
			stderr = stderr[len(stderr)-stderrTail:]
		}
		return &ExitError{Args: args, Code: exitErr.ExitCode(), Stderr: stderr}
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", args[0], ErrNotInstalled)
	}
	return fmt.Errorf("failed to run %s: %w", args[0], err)
}
