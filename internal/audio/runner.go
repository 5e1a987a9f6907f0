package audio

import (
	"context"
	"fmt"
	"io"
	"os/exec"
)

// Process is a running external sound tool and its byte-stream channels.
type Process struct {
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser

	wait func() error
}

// Wait blocks until the process exits.
func (p *Process) Wait() error {
	if p.wait == nil {
		return nil
	}
	return p.wait()
}

// Runner launches the external sound tool with the given arguments.
type Runner interface {
	Start(ctx context.Context, args ...string) (*Process, error)
}

// SoxRunner runs the sox binary found at Path.
type SoxRunner struct {
	Path string
}

// NewSoxRunner returns a runner for the sox binary at path ("sox" when empty).
func NewSoxRunner(path string) *SoxRunner {
	if path == "" {
		path = "sox"
	}
	return &SoxRunner{Path: path}
}

// Start spawns sox with stdin, stdout and stderr piped.
func (r *SoxRunner) Start(ctx context.Context, args ...string) (*Process, error) {
	cmd := exec.CommandContext(ctx, r.Path, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("sox stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("sox stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("sox stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", r.Path, err)
	}

	return &Process{
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
		wait:   cmd.Wait,
	}, nil
}
