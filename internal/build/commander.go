package build

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"sync"
)

// Commander runs one external command in a directory, streaming its output
// to the sink. Implemented by ExecCommander in production and by fakes in
// tests.
type Commander interface {
	Run(ctx context.Context, dir string, sink Sink, name string, args ...string) error
}

// ExecCommander shells out via os/exec and forwards stdout and stderr line
// by line.
type ExecCommander struct{}

func (ExecCommander) Run(ctx context.Context, dir string, sink Sink, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

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
