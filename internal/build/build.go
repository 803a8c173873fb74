// Package build runs the compile pipeline for a user's project: clean,
// cmake configure, make, binary verification, then a docker image build.
// One build per (user, project) at a time; the latest outcome is kept in a
// RecordStore so later commands can tell a failed build from no build at all.
package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var ErrBuildInProgress = errors.New("build already in progress")

// Sink receives pipeline output line by line, in order.
type Sink func(line string)

// Result is the terminal outcome of one pipeline run.
type Result struct {
	User     string    `json:"user"`
	Project  string    `json:"project"`
	Success  bool      `json:"success"`
	Message  string    `json:"message"`
	Finished time.Time `json:"finished"`
}

type Config struct {
	ProjectsRoot string
	SrcDirName   string
	BuildDir     string
	ImagePrefix  string
	Entrypoint   string
	Parallelism  int
	DockerBinary string
}

type Orchestrator struct {
	cfg     Config
	runner  Commander
	records RecordStore
	metrics *Metrics

	mu   sync.Mutex
	jobs map[string]time.Time
}

func NewOrchestrator(cfg Config, runner Commander, records RecordStore, metrics *Metrics) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		runner:  runner,
		records: records,
		metrics: metrics,
		jobs:    make(map[string]time.Time),
	}
}

func jobKey(user, project string) string {
	return user + "|" + project
}

// ImageName returns the docker image tag for a project. Docker requires
// lowercase repository names.
func (o *Orchestrator) ImageName(user, project string) string {
	return strings.ToLower(fmt.Sprintf("%s-%s-%s", o.cfg.ImagePrefix, user, project))
}

// InProgress reports whether a build is currently running for the project.
func (o *Orchestrator) InProgress(user, project string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, running := o.jobs[jobKey(user, project)]
	return running
}

// Elapsed returns how long the current build has been running, false when
// none is.
func (o *Orchestrator) Elapsed(user, project string) (time.Duration, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	started, running := o.jobs[jobKey(user, project)]
	if !running {
		return 0, false
	}
	return time.Since(started), true
}

// LastResult returns the most recent terminal outcome, if any.
func (o *Orchestrator) LastResult(ctx context.Context, user, project string) (Result, bool, error) {
	return o.records.Load(ctx, user, project)
}

// Start runs the full pipeline synchronously and returns its terminal
// Result. ErrBuildInProgress is returned immediately when a build for the
// same (user, project) is already running; in that case no Result is
// produced and the running build is untouched.
func (o *Orchestrator) Start(ctx context.Context, user, project string, sink Sink) (Result, error) {
	key := jobKey(user, project)

	o.mu.Lock()
	if _, running := o.jobs[key]; running {
		o.mu.Unlock()
		return Result{}, ErrBuildInProgress
	}
	o.jobs[key] = time.Now()
	o.mu.Unlock()

	o.metrics.BuildStarted()

	defer func() {
		o.mu.Lock()
		delete(o.jobs, key)
		o.mu.Unlock()
	}()

	res := o.runPipeline(ctx, user, project, sink)
	res.User = user
	res.Project = project
	res.Finished = time.Now().UTC()

	if res.Success {
		o.metrics.BuildSucceeded()
	} else {
		o.metrics.BuildFailed()
	}

	if err := o.records.Save(ctx, res); err != nil {
		sink(fmt.Sprintf("warning: could not record build outcome: %v", err))
	}
	return res, nil
}

func (o *Orchestrator) runPipeline(ctx context.Context, user, project string, sink Sink) Result {
	// The workspace is per user; the project name only scopes images and
	// containers.
	projectDir := filepath.Join(o.cfg.ProjectsRoot, user)

	sink("Cleaning previous build artifacts...")
	if err := o.runner.Run(ctx, projectDir, sink, "rm", "-rf", o.cfg.BuildDir); err != nil {
		return Result{Message: fmt.Sprintf("Clean step failed: %v", err)}
	}

	sink("Configuring build...")
	if err := o.runner.Run(ctx, projectDir, sink,
		"cmake", "-S", o.cfg.SrcDirName, "-B", o.cfg.BuildDir, "-DCMAKE_BUILD_TYPE=Release",
	); err != nil {
		return Result{Message: fmt.Sprintf("CMake configuration failed: %v", err)}
	}

	sink("Compiling...")
	if err := o.runner.Run(ctx, projectDir, sink,
		"make", "-C", o.cfg.BuildDir, fmt.Sprintf("-j%d", o.cfg.Parallelism),
	); err != nil {
		return Result{Message: fmt.Sprintf("Compilation failed: %v", err)}
	}

	// The binary check is advisory: some projects produce differently named
	// artifacts and the docker build is the real gate.
	binary := filepath.Join(projectDir, o.cfg.BuildDir, o.cfg.Entrypoint)
	if _, err := os.Stat(binary); err != nil {
		sink(fmt.Sprintf("Warning: %s not found after compilation, continuing anyway", o.cfg.Entrypoint))
	}

	// The Dockerfile ships with the source template, so it lives in the
	// source subtree rather than the workspace root.
	dockerfileRel := filepath.Join(o.cfg.SrcDirName, "Dockerfile")
	if _, err := os.Stat(filepath.Join(projectDir, dockerfileRel)); err != nil {
		return Result{Message: "Dockerfile not found in project, cannot build container image"}
	}

	sink("Building container image...")
	image := o.ImageName(user, project)
	if err := o.runner.Run(ctx, projectDir, sink,
		o.cfg.DockerBinary, "build", "-t", image, "-f", dockerfileRel, ".",
	); err != nil {
		return Result{Message: fmt.Sprintf("Docker image build failed: %v", err)}
	}

	return Result{Success: true, Message: "Build completed successfully"}
}
