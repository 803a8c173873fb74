package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type HTTP struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Paths struct {
	ProjectsDir  string
	TemplateDir  string
	UsersFile    string
	PublicDir    string
	ContractsDir string
	ExamplesDir  string
}

type Build struct {
	Parallelism int
	SrcDirName  string
	BuildDir    string
	ImagePrefix string
	Entrypoint  string
}

type Sandbox struct {
	DockerBinary    string
	ContainerPrefix string
	MountPath       string
	Lifetime        time.Duration
	SweepInterval   time.Duration
}

type Dedup struct {
	MessageWindow time.Duration
	CommandWindow time.Duration
	EvictAfter    time.Duration
	MaxEntries    int
}

type Assistant struct {
	APIKey       string
	Model        string
	SilentWindow time.Duration
	StaleAfter   time.Duration
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type Postgres struct {
	DSN string
}

type Config struct {
	HTTP      HTTP
	Paths     Paths
	Build     Build
	Sandbox   Sandbox
	Dedup     Dedup
	Assistant Assistant
	Redis     Redis
	Postgres  Postgres
}

func FromEnv() (Config, error) {
	_ = godotenv.Load()

	http := HTTP{
		Host:            getEnv("HTTP_HOST", "0.0.0.0"),
		Port:            getInt("HTTP_PORT", 3000),
		// Zero timeouts: the websocket channel and build streams are
		// long-lived, so per-request deadlines would sever them.
		ReadTimeout:     getDuration("HTTP_READ_TIMEOUT", 0),
		WriteTimeout:    getDuration("HTTP_WRITE_TIMEOUT", 0),
		ShutdownTimeout: getDuration("HTTP_SHUTDOWN_TIMEOUT", 15*time.Second),
	}

	paths := Paths{
		ProjectsDir:  getEnv("IDE_PROJECTS_DIR", "projects"),
		TemplateDir:  getEnv("IDE_TEMPLATE_DIR", "cli-commands"),
		UsersFile:    getEnv("IDE_USERS_FILE", "users.json"),
		PublicDir:    getEnv("IDE_PUBLIC_DIR", "public"),
		ContractsDir: getEnv("IDE_CONTRACTS_DIR", "user-contracts"),
		ExamplesDir:  getEnv("IDE_EXAMPLES_DIR", "all-contracts"),
	}

	build := Build{
		Parallelism: getInt("BUILD_PARALLELISM", 4),
		SrcDirName:  getEnv("BUILD_SRC_DIR", "cli-commands"),
		BuildDir:    getEnv("BUILD_OUTPUT_DIR", "build_docker"),
		ImagePrefix: getEnv("BUILD_IMAGE_PREFIX", "qubic-cli"),
		Entrypoint:  getEnv("BUILD_ENTRYPOINT", "qubic-cli"),
	}

	sandbox := Sandbox{
		DockerBinary:    getEnv("SANDBOX_DOCKER_BIN", "docker"),
		ContainerPrefix: getEnv("SANDBOX_CONTAINER_PREFIX", "qubic-cli-container-"),
		MountPath:       getEnv("SANDBOX_MOUNT_PATH", "/app/project"),
		Lifetime:        getDuration("SANDBOX_LIFETIME", 20*time.Minute),
		SweepInterval:   getDuration("SANDBOX_SWEEP_INTERVAL", 5*time.Minute),
	}

	dedup := Dedup{
		MessageWindow: getDuration("DEDUP_MESSAGE_WINDOW", 3*time.Second),
		CommandWindow: getDuration("DEDUP_COMMAND_WINDOW", time.Second),
		EvictAfter:    getDuration("DEDUP_EVICT_AFTER", 10*time.Second),
		MaxEntries:    getInt("DEDUP_MAX_ENTRIES", 100),
	}

	assistant := Assistant{
		APIKey:       getEnv("ANTHROPIC_API_KEY", ""),
		Model:        getEnv("ASSISTANT_MODEL", "claude-sonnet-4-20250514"),
		SilentWindow: getDuration("ASSISTANT_SILENT_WINDOW", 10*time.Second),
		StaleAfter:   getDuration("ASSISTANT_STALE_AFTER", 3*time.Minute),
	}

	redis := Redis{
		Addr:     getEnv("REDIS_ADDR", ""),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getInt("REDIS_DB", 0),
	}

	postgres := Postgres{
		DSN: getEnv("POSTGRES_DSN", ""),
	}

	if http.Port <= 0 || http.Port > 65535 {
		return Config{}, fmt.Errorf("invalid port: %d", http.Port)
	}
	if sandbox.Lifetime <= 0 {
		sandbox.Lifetime = 20 * time.Minute
	}
	if sandbox.SweepInterval <= 0 {
		sandbox.SweepInterval = 5 * time.Minute
	}
	if build.Parallelism <= 0 {
		build.Parallelism = 4
	}
	if dedup.MaxEntries <= 0 {
		dedup.MaxEntries = 100
	}

	return Config{
		HTTP:      http,
		Paths:     paths,
		Build:     build,
		Sandbox:   sandbox,
		Dedup:     dedup,
		Assistant: assistant,
		Redis:     redis,
		Postgres:  postgres,
	}, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
