package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/lattiodev/Qubic-Web-IDE-Multi-User-CLI-Environment/internal/api"
	"github.com/lattiodev/Qubic-Web-IDE-Multi-User-CLI-Environment/internal/assistant"
	"github.com/lattiodev/Qubic-Web-IDE-Multi-User-CLI-Environment/internal/auth"
	"github.com/lattiodev/Qubic-Web-IDE-Multi-User-CLI-Environment/internal/build"
	"github.com/lattiodev/Qubic-Web-IDE-Multi-User-CLI-Environment/internal/config"
	"github.com/lattiodev/Qubic-Web-IDE-Multi-User-CLI-Environment/internal/contracts"
	"github.com/lattiodev/Qubic-Web-IDE-Multi-User-CLI-Environment/internal/gateway"
	"github.com/lattiodev/Qubic-Web-IDE-Multi-User-CLI-Environment/internal/sandbox"
	"github.com/lattiodev/Qubic-Web-IDE-Multi-User-CLI-Environment/internal/server"
	"github.com/lattiodev/Qubic-Web-IDE-Multi-User-CLI-Environment/internal/session"
	"github.com/lattiodev/Qubic-Web-IDE-Multi-User-CLI-Environment/internal/workspace"
)

var (
	tagBoot = color.New(color.FgGreen).Sprint("[BOOT]")
	tagErr  = color.New(color.FgRed).Sprint("[ERROR]")
)

// rebindDelay is how long to wait before trying to bind the listener again
// after a serve error, typically an address still held by a dying process.
const rebindDelay = 5 * time.Second

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("%s config: %v", tagErr, err)
	}

	credStore, err := newCredentialStore(cfg)
	if err != nil {
		log.Fatalf("%s credential store: %v", tagErr, err)
	}

	records, err := newRecordStore(cfg)
	if err != nil {
		log.Fatalf("%s build record store: %v", tagErr, err)
	}

	registry := prometheus.NewRegistry()

	workspaces := workspace.NewManager(workspace.Config{
		ProjectsRoot: cfg.Paths.ProjectsDir,
		TemplateDir:  cfg.Paths.TemplateDir,
		SrcDirName:   cfg.Build.SrcDirName,
	})

	builds := build.NewOrchestrator(build.Config{
		ProjectsRoot: cfg.Paths.ProjectsDir,
		SrcDirName:   cfg.Build.SrcDirName,
		BuildDir:     cfg.Build.BuildDir,
		ImagePrefix:  cfg.Build.ImagePrefix,
		Entrypoint:   cfg.Build.Entrypoint,
		Parallelism:  cfg.Build.Parallelism,
		DockerBinary: cfg.Sandbox.DockerBinary,
	}, build.ExecCommander{}, records, build.NewMetrics(registry))

	sandboxes := sandbox.NewController(sandbox.Config{
		ContainerPrefix: cfg.Sandbox.ContainerPrefix,
		MountPath:       cfg.Sandbox.MountPath,
		SrcDirName:      cfg.Build.SrcDirName,
		BuildDir:        cfg.Build.BuildDir,
		Entrypoint:      cfg.Build.Entrypoint,
		Lifetime:        cfg.Sandbox.Lifetime,
	}, sandbox.ExecDocker{Binary: cfg.Sandbox.DockerBinary})

	chat := assistant.NewClient(cfg.Assistant.APIKey, cfg.Assistant.Model)
	if !chat.Enabled() {
		log.Printf("%s no API key configured, AI assistant disabled", tagBoot)
	}
	analyzer := assistant.NewAnalyzer(chat, cfg.Assistant.SilentWindow, cfg.Assistant.StaleAfter)

	gw := gateway.New(gateway.Config{
		Project:       "default",
		MessageWindow: cfg.Dedup.MessageWindow,
		CommandWindow: cfg.Dedup.CommandWindow,
	}, gateway.Deps{
		Auth:       credStore,
		Workspaces: workspaces,
		Sessions:   session.NewRegistry(),
		Dedup:      session.NewDeduper(cfg.Dedup.MaxEntries, cfg.Dedup.EvictAfter),
		Builds:     builds,
		Sandboxes:  sandboxes,
		Chat:       chat,
		Analyzer:   analyzer,
		Contracts: contracts.NewManager(contracts.Config{
			UserRoot:    cfg.Paths.ContractsDir,
			ExamplesDir: cfg.Paths.ExamplesDir,
		}),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := cron.New()
	sweepSpec := fmt.Sprintf("@every %s", cfg.Sandbox.SweepInterval)
	if _, err := scheduler.AddFunc(sweepSpec, func() {
		if _, err := sandboxes.Sweep(context.Background()); err != nil {
			log.Printf("%s sweep: %v", tagErr, err)
		}
	}); err != nil {
		log.Fatalf("%s schedule sweep: %v", tagErr, err)
	}
	if _, err := scheduler.AddFunc("@every 1m", func() {
		analyzer.Reap()
	}); err != nil {
		log.Fatalf("%s schedule reaper: %v", tagErr, err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Clear out containers orphaned by a previous run before serving.
	go func() {
		if _, err := sandboxes.Sweep(ctx); err != nil {
			log.Printf("%s startup sweep: %v", tagErr, err)
		}
	}()

	router := api.NewRouter(api.Config{PublicDir: cfg.Paths.PublicDir}, gw, registry)

	for {
		srv, err := server.New(cfg.HTTP, router)
		if err != nil {
			log.Printf("%s bind %s:%d: %v, retrying in %s", tagErr, cfg.HTTP.Host, cfg.HTTP.Port, err, rebindDelay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(rebindDelay):
			}
			continue
		}

		log.Printf("%s listening on %s", tagBoot, srv.Addr())
		err = srv.Run(ctx)
		if errors.Is(err, server.ErrServerClosed) {
			log.Printf("%s server stopped", tagBoot)
			return
		}
		log.Printf("%s serve: %v, retrying in %s", tagErr, err, rebindDelay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(rebindDelay):
		}
	}
}

func newCredentialStore(cfg config.Config) (auth.Store, error) {
	if cfg.Postgres.DSN == "" {
		return auth.NewFileStore(cfg.Paths.UsersFile), nil
	}
	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	log.Printf("%s using postgres credential store", tagBoot)
	return auth.NewPostgresStore(db)
}

func newRecordStore(cfg config.Config) (build.RecordStore, error) {
	if cfg.Redis.Addr == "" {
		return build.NewMemoryRecordStore(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Printf("%s using redis build record store", tagBoot)
	return build.NewRedisRecordStore(client), nil
}
