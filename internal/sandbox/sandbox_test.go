package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeDocker struct {
	mu         sync.Mutex
	calls      [][]string
	inspectErr error
	dirs       map[string]bool
	findOutput string
	psOutput   string
}

func (f *fakeDocker) record(args []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), args...))
}

func (f *fakeDocker) Run(_ context.Context, args ...string) (string, error) {
	f.record(args)
	switch args[0] {
	case "image":
		return "", f.inspectErr
	case "run":
		return "deadbeef", nil
	case "ps":
		return f.psOutput, nil
	case "exec":
		if len(args) >= 2 && args[2] == "test" {
			if f.dirs[args[len(args)-1]] {
				return "", nil
			}
			return "", errors.New("exit status 1")
		}
		if len(args) >= 4 && strings.Contains(args[len(args)-1], "find ") {
			return f.findOutput, nil
		}
		return "", nil
	}
	return "", nil
}

func (f *fakeDocker) Stream(_ context.Context, sink func(string), args ...string) error {
	f.record(args)
	sink("output line")
	return nil
}

func (f *fakeDocker) recorded() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeDocker) countRemovals(name string) int {
	n := 0
	for _, call := range f.recorded() {
		if len(call) == 3 && call[0] == "rm" && call[1] == "-f" && call[2] == name {
			n++
		}
	}
	return n
}

func testConfig() Config {
	return Config{
		ContainerPrefix: "qubic-cli-container-",
		MountPath:       "/app/project",
		SrcDirName:      "cli-commands",
		BuildDir:        "build_docker",
		Entrypoint:      "qubic-cli",
		Lifetime:        20 * time.Minute,
	}
}

func TestStartReplacesExistingContainer(t *testing.T) {
	docker := &fakeDocker{}
	c := NewController(testConfig(), docker)

	if err := c.Start(context.Background(), "alice", "default", "qubic-cli-alice-default", "/projects/alice/default", nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Start(context.Background(), "alice", "default", "qubic-cli-alice-default", "/projects/alice/default", nil); err != nil {
		t.Fatalf("restart: %v", err)
	}

	// Every start force-removes the previous container first.
	if got := docker.countRemovals("qubic-cli-container-alice-default"); got != 2 {
		t.Fatalf("expected 2 rm -f calls, got %d", got)
	}
	if !c.Running("alice", "default") {
		t.Fatalf("expected sandbox running after restart")
	}
}

func TestStartFailsWithoutImage(t *testing.T) {
	docker := &fakeDocker{inspectErr: errors.New("No such image")}
	c := NewController(testConfig(), docker)

	err := c.Start(context.Background(), "alice", "default", "qubic-cli-alice-default", "/projects/alice/default", nil)
	if !errors.Is(err, ErrImageNotFound) {
		t.Fatalf("expected ErrImageNotFound, got %v", err)
	}
	for _, call := range docker.recorded() {
		if call[0] == "run" {
			t.Fatalf("container must not start without an image")
		}
	}
}

func TestWorkdirProbePrefersFixedCandidates(t *testing.T) {
	tests := []struct {
		name string
		dirs map[string]bool
		find string
		want string
	}{
		{
			name: "source tree build dir wins",
			dirs: map[string]bool{
				"/app/project/cli-commands/build_docker": true,
				"/app/project/contracts/build_docker":    true,
			},
			want: "/app/project/cli-commands/build_docker",
		},
		{
			name: "contracts build dir second",
			dirs: map[string]bool{"/app/project/contracts/build_docker": true},
			want: "/app/project/contracts/build_docker",
		},
		{
			name: "root build dir third",
			dirs: map[string]bool{"/app/project/build_docker": true},
			want: "/app/project/build_docker",
		},
		{
			name: "find fallback",
			dirs: map[string]bool{},
			find: "/app/project/nested/deep/build_docker",
			want: "/app/project/nested/deep/build_docker",
		},
		{
			name: "mount root as last resort",
			dirs: map[string]bool{},
			want: "/app/project",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docker := &fakeDocker{dirs: tt.dirs, findOutput: tt.find}
			c := NewController(testConfig(), docker)
			if got := c.probeWorkdir(context.Background(), "box"); got != tt.want {
				t.Fatalf("workdir %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExecRunsBinaryCommandsFromWorkdir(t *testing.T) {
	docker := &fakeDocker{dirs: map[string]bool{"/app/project/cli-commands/build_docker": true}}
	c := NewController(testConfig(), docker)
	if err := c.Start(context.Background(), "alice", "default", "img", "/ws", nil); err != nil {
		t.Fatalf("start: %v", err)
	}

	var lines []string
	err := c.Exec(context.Background(), "alice", "default", "./qubic-cli -help", func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		t.Fatalf("exec: %v", err)
	}

	calls := docker.recorded()
	script := calls[len(calls)-1][len(calls[len(calls)-1])-1]
	if script != "cd /app/project/cli-commands/build_docker && ./qubic-cli -help" {
		t.Fatalf("unexpected script: %q", script)
	}
	if len(lines) == 0 {
		t.Fatalf("expected streamed output")
	}
}

func TestExecRunsOtherCommandsFromMountRoot(t *testing.T) {
	docker := &fakeDocker{}
	c := NewController(testConfig(), docker)
	if err := c.Start(context.Background(), "alice", "default", "img", "/ws", nil); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := c.Exec(context.Background(), "alice", "default", "ls -la", func(string) {}); err != nil {
		t.Fatalf("exec: %v", err)
	}

	calls := docker.recorded()
	script := calls[len(calls)-1][len(calls[len(calls)-1])-1]
	if script != "cd /app/project && ls -la" {
		t.Fatalf("unexpected script: %q", script)
	}
}

func TestExecWithoutSandbox(t *testing.T) {
	c := NewController(testConfig(), &fakeDocker{})
	err := c.Exec(context.Background(), "alice", "default", "ls", func(string) {})
	if !errors.Is(err, ErrNoSandbox) {
		t.Fatalf("expected ErrNoSandbox, got %v", err)
	}
}

func TestLifetimeTimerStopsSandbox(t *testing.T) {
	cfg := testConfig()
	cfg.Lifetime = 30 * time.Millisecond
	docker := &fakeDocker{}
	c := NewController(cfg, docker)

	if err := c.Start(context.Background(), "alice", "default", "img", "/ws", nil); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for c.Running("alice", "default") {
		select {
		case <-deadline:
			t.Fatalf("sandbox still running past its lifetime")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if got := docker.countRemovals("qubic-cli-container-alice-default"); got < 2 {
		t.Fatalf("expected expiry removal, got %d rm calls", got)
	}
}

func TestLifetimeExpiryNotifiesSink(t *testing.T) {
	cfg := testConfig()
	cfg.Lifetime = 30 * time.Millisecond
	c := NewController(cfg, &fakeDocker{})

	var mu sync.Mutex
	var lines []string
	notify := func(line string) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, line)
	}

	if err := c.Start(context.Background(), "alice", "default", "img", "/ws", notify); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(lines)
		mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expiry never notified")
		case <-time.After(5 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if !strings.Contains(lines[0], "expired") {
		t.Fatalf("first line must announce the expiry: %q", lines[0])
	}
	if !strings.Contains(lines[1], "compile again") {
		t.Fatalf("second line must ask for a rebuild: %q", lines[1])
	}
}

func TestStopUserTearsDownAllProjects(t *testing.T) {
	docker := &fakeDocker{}
	c := NewController(testConfig(), docker)
	for _, project := range []string{"default", "other"} {
		if err := c.Start(context.Background(), "alice", project, "img", "/ws", nil); err != nil {
			t.Fatalf("start %s: %v", project, err)
		}
	}
	if err := c.Start(context.Background(), "bob", "default", "img", "/ws", nil); err != nil {
		t.Fatalf("start bob: %v", err)
	}

	c.StopUser(context.Background(), "alice")

	if c.Running("alice", "default") || c.Running("alice", "other") {
		t.Fatalf("alice's sandboxes must be gone")
	}
	if !c.Running("bob", "default") {
		t.Fatalf("bob's sandbox must survive")
	}
}

func TestSweepRemovesOnlyExpiredManagedContainers(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	old := now.Add(-25 * time.Minute).Format(dockerCreatedAtLayout)
	fresh := now.Add(-5 * time.Minute).Format(dockerCreatedAtLayout)

	docker := &fakeDocker{psOutput: strings.Join([]string{
		fmt.Sprintf("qubic-cli-container-alice-default,%s", old),
		fmt.Sprintf("qubic-cli-container-bob-default,%s", fresh),
		fmt.Sprintf("unrelated-service,%s", old),
	}, "\n")}

	c := NewController(testConfig(), docker)
	c.now = func() time.Time { return now }

	removed, err := c.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if docker.countRemovals("qubic-cli-container-alice-default") != 1 {
		t.Fatalf("expired container not removed")
	}
	if docker.countRemovals("qubic-cli-container-bob-default") != 0 {
		t.Fatalf("fresh container must not be removed")
	}
	if docker.countRemovals("unrelated-service") != 0 {
		t.Fatalf("unmanaged container must not be touched")
	}
}
