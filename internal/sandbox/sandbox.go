// Package sandbox manages the per-project execution containers: starting
// them from a built image, locating the directory the compiled binary lives
// in, executing user commands inside them, and tearing them down when their
// lifetime runs out.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

var (
	// ErrImageNotFound means the project was never compiled (or the image
	// was removed); the caller should tell the user to compile first.
	ErrImageNotFound = errors.New("container image not found")
	// ErrNoSandbox means no container is running for the project.
	ErrNoSandbox = errors.New("no sandbox running")
)

var logTag = color.New(color.FgMagenta).Sprint("[SANDBOX]")

type Config struct {
	ContainerPrefix string
	MountPath       string
	SrcDirName      string
	BuildDir        string
	Entrypoint      string
	Lifetime        time.Duration
}

type handle struct {
	container string
	workdir   string
	notify    func(line string)
}

// Controller owns every running sandbox. All state lives behind one mutex;
// the only goroutines it spawns are expiry timers.
type Controller struct {
	docker Docker
	cfg    Config

	mu      sync.Mutex
	handles map[string]*handle
	timers  map[string]*time.Timer

	now func() time.Time
}

func NewController(cfg Config, docker Docker) *Controller {
	return &Controller{
		docker:  docker,
		cfg:     cfg,
		handles: make(map[string]*handle),
		timers:  make(map[string]*time.Timer),
		now:     time.Now,
	}
}

func (c *Controller) key(user, project string) string {
	return user + "|" + project
}

// ContainerName returns the docker container name for a project. Docker
// container names must be lowercase.
func (c *Controller) ContainerName(user, project string) string {
	return strings.ToLower(c.cfg.ContainerPrefix + user + "-" + project)
}

// Start launches a fresh sandbox for the project, replacing any existing
// one, and arms its lifetime timer. workspaceDir is bind-mounted at the
// configured mount path. notify, when non-nil, receives user-facing lines
// about the sandbox after Start returns, such as the lifetime expiring.
func (c *Controller) Start(ctx context.Context, user, project, image, workspaceDir string, notify func(line string)) error {
	name := c.ContainerName(user, project)

	// A leftover container from a previous run is always replaced.
	c.docker.Run(ctx, "rm", "-f", name)

	if _, err := c.docker.Run(ctx, "image", "inspect", image); err != nil {
		return ErrImageNotFound
	}

	if _, err := c.docker.Run(ctx,
		"run", "-d",
		"--name", name,
		"-v", workspaceDir+":"+c.cfg.MountPath,
		"-w", c.cfg.MountPath,
		image,
		"bash", "-c", "tail -f /dev/null",
	); err != nil {
		return fmt.Errorf("start container %s: %w", name, err)
	}

	workdir := c.probeWorkdir(ctx, name)
	log.Printf("%s started %s, workdir %s", logTag, name, workdir)

	c.mu.Lock()
	defer c.mu.Unlock()

	key := c.key(user, project)
	c.handles[key] = &handle{container: name, workdir: workdir, notify: notify}

	if old, ok := c.timers[key]; ok {
		old.Stop()
	}
	c.timers[key] = time.AfterFunc(c.cfg.Lifetime, func() {
		c.expire(user, project)
	})
	return nil
}

// probeWorkdir finds the directory holding the compiled binary. Fixed
// candidates are checked first, then a filesystem search, then the mount
// root as a last resort.
func (c *Controller) probeWorkdir(ctx context.Context, container string) string {
	candidates := []string{
		c.cfg.MountPath + "/" + c.cfg.SrcDirName + "/" + c.cfg.BuildDir,
		c.cfg.MountPath + "/contracts/" + c.cfg.BuildDir,
		c.cfg.MountPath + "/" + c.cfg.BuildDir,
	}
	for _, dir := range candidates {
		if _, err := c.docker.Run(ctx, "exec", container, "test", "-d", dir); err == nil {
			return dir
		}
	}

	find := fmt.Sprintf("find %s -type d -name %s | head -n 1", c.cfg.MountPath, c.cfg.BuildDir)
	if out, err := c.docker.Run(ctx, "exec", container, "bash", "-c", find); err == nil {
		if dir := strings.TrimSpace(out); dir != "" {
			return dir
		}
	}
	return c.cfg.MountPath
}

// Exec runs a shell command inside the project's sandbox, streaming output
// to the sink. Commands that invoke the project binary run from the probed
// workdir so relative paths like ./qubic-cli resolve.
func (c *Controller) Exec(ctx context.Context, user, project, command string, sink func(line string)) error {
	c.mu.Lock()
	h, ok := c.handles[c.key(user, project)]
	c.mu.Unlock()
	if !ok {
		return ErrNoSandbox
	}

	dir := c.cfg.MountPath
	if strings.Contains(command, c.cfg.Entrypoint) {
		dir = h.workdir
	}
	script := fmt.Sprintf("cd %s && %s", dir, command)
	return c.docker.Stream(ctx, sink, "exec", h.container, "bash", "-c", script)
}

// Running reports whether the project currently has a sandbox.
func (c *Controller) Running(user, project string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handles[c.key(user, project)]
	return ok
}

// Stop tears down the project's sandbox. Removal is best-effort; the sweep
// catches anything docker refused to delete.
func (c *Controller) Stop(ctx context.Context, user, project string) {
	c.mu.Lock()
	key := c.key(user, project)
	h, ok := c.handles[key]
	if ok {
		delete(c.handles, key)
	}
	if timer, exists := c.timers[key]; exists {
		timer.Stop()
		delete(c.timers, key)
	}
	c.mu.Unlock()

	if ok {
		c.docker.Run(ctx, "rm", "-f", h.container)
		log.Printf("%s stopped %s", logTag, h.container)
	}
}

// StopUser tears down every sandbox belonging to the user. Called when the
// user's connection goes away.
func (c *Controller) StopUser(ctx context.Context, user string) {
	c.mu.Lock()
	var projects []string
	prefix := user + "|"
	for key := range c.handles {
		if strings.HasPrefix(key, prefix) {
			projects = append(projects, strings.TrimPrefix(key, prefix))
		}
	}
	c.mu.Unlock()

	for _, project := range projects {
		c.Stop(ctx, user, project)
	}
}

func (c *Controller) expire(user, project string) {
	c.mu.Lock()
	h, ok := c.handles[c.key(user, project)]
	c.mu.Unlock()

	log.Printf("%s lifetime reached for %s/%s", logTag, user, project)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	c.Stop(ctx, user, project)

	if ok && h.notify != nil {
		h.notify(fmt.Sprintf("Sandbox session expired after %s.", c.cfg.Lifetime))
		h.notify("Please compile again to start a new session.")
	}
}
