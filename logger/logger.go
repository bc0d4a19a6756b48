// Package logger installs the process-wide slog logger. Development gets
// readable text; stage and prod get JSON lines through zap.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

type Backend string

const (
	BackendStd Backend = "std"
	BackendZap Backend = "zap"
)

type Env string

const (
	EnvDev   Env = "dev"
	EnvStage Env = "stage"
	EnvProd  Env = "prod"
)

type Config struct {
	Service string
	Version string
	Env     Env
	// Backend defaults to std in dev and zap elsewhere.
	Backend Backend
	Debug   bool
	// AddSource annotates text output with file:line.
	AddSource bool
	// Output defaults to os.Stdout.
	Output io.Writer
}

// Init builds the logger described by cfg and makes it the slog default.
// Every record carries service, env, version and a per-process instance id.
func Init(cfg Config) *slog.Logger {
	if cfg.Env == "" {
		cfg.Env = DetectEnv()
	}
	if cfg.Service == "" {
		cfg.Service = "whatsapp-relay"
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Backend == "" && cfg.Env != EnvDev {
		cfg.Backend = BackendZap
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	var h slog.Handler
	if cfg.Backend == BackendZap {
		h = newZapHandler(cfg.Output, level)
	} else {
		h = slog.NewTextHandler(cfg.Output, &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource})
	}

	l := slog.New(h).With(
		slog.String("service", cfg.Service),
		slog.String("env", string(cfg.Env)),
		slog.String("version", cfg.Version),
		slog.String("instance_id", instanceID()),
	)
	slog.SetDefault(l)
	return l
}

// DetectEnv reads APP_ENV.
func DetectEnv() Env {
	return ParseEnv(os.Getenv("APP_ENV"))
}

// ParseEnv accepts the usual spellings; anything unknown is dev.
func ParseEnv(raw string) Env {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "prod", "production":
		return EnvProd
	case "stage", "staging", "preprod":
		return EnvStage
	default:
		return EnvDev
	}
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "relay"
	}
	return host + "-" + uuid.NewString()[:8]
}
