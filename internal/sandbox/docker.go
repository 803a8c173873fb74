package sandbox

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// Docker is the thin seam over the docker CLI. Production uses ExecDocker;
// tests substitute a fake so no daemon is needed.
type Docker interface {
	// Run executes docker with the given arguments and returns the
	// combined output.
	Run(ctx context.Context, args ...string) (string, error)
	// Stream executes docker and forwards output line by line as it
	// arrives. Used for interactive command execution.
	Stream(ctx context.Context, sink func(line string), args ...string) error
}

// ExecDocker shells out to the docker binary.
type ExecDocker struct {
	Binary string
}

func (d ExecDocker) Run(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, d.Binary, args...).CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

func (d ExecDocker) Stream(ctx context.Context, sink func(string), args ...string) error {
	cmd := exec.CommandContext(ctx, d.Binary, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	forward := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			mu.Lock()
			sink(scanner.Text())
			mu.Unlock()
		}
	}
	wg.Add(2)
	go forward(stdout)
	go forward(stderr)
	wg.Wait()

	return cmd.Wait()
}
