package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAddr     = "127.0.0.1:8090"
	defaultWorkflow = "default"
)

type Config struct {
	DBPath       string
	Addr         string
	Workflow     string
	WorkflowFile string
	RedisAddr    string
	LogLevel     slog.Level
	Autosave     bool
	Retention    time.Duration
	ArchiveDir   string
}

func LoadConfig(args []string) (Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("failed to get cwd: %w", err)
	}

	dbPath := envOrDefault("SIGNALFLOW_DB_PATH", filepath.Join(cwd, "signalflow.db"))
	addr := addrFromEnv(defaultAddr)
	name := envOrDefault("SIGNALFLOW_WORKFLOW", defaultWorkflow)
	file := os.Getenv("SIGNALFLOW_WORKFLOW_FILE")
	redisAddr := os.Getenv("SIGNALFLOW_REDIS_ADDR")
	logLevel := envOrDefault("SIGNALFLOW_LOG_LEVEL", "info")
	retention := time.Duration(0)
	if v := os.Getenv("SIGNALFLOW_RETENTION"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SIGNALFLOW_RETENTION: %w", err)
		}
		retention = parsed
	}
	archiveDir := os.Getenv("SIGNALFLOW_ARCHIVE_DIR")
	autosave := true
	if v := os.Getenv("SIGNALFLOW_AUTOSAVE"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SIGNALFLOW_AUTOSAVE: %w", err)
		}
		autosave = parsed
	}

	flagSet := flag.NewFlagSet("signalflow-d", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagDB := flagSet.String("db", dbPath, "path to SQLite database")
	flagAddr := flagSet.String("addr", addr, "HTTP listen address")
	flagName := flagSet.String("workflow", name, "workflow name used for events and autosave")
	flagFile := flagSet.String("workflow-file", file, "YAML workflow to build on start instead of the stored one")
	flagRedis := flagSet.String("redis", redisAddr, "redis address for per-kind default settings (optional)")
	flagLevel := flagSet.String("log-level", logLevel, "log level: debug|info|warn|error")
	flagAutosave := flagSet.Bool("autosave", autosave, "save the graph to the store on shutdown")
	flagRetention := flagSet.Duration("retention", retention, "archive events older than this (0 keeps everything)")
	flagArchiveDir := flagSet.String("archive-dir", archiveDir, "directory for archived events (default: next to the database)")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			flagSet.SetOutput(os.Stdout)
			flagSet.PrintDefaults()
		}
		return Config{}, err
	}

	config := Config{
		DBPath:    resolvePath(*flagDB, cwd),
		Addr:      strings.TrimSpace(*flagAddr),
		Workflow:  strings.TrimSpace(*flagName),
		RedisAddr: strings.TrimSpace(*flagRedis),
		Autosave:  *flagAutosave,
		Retention: *flagRetention,
	}
	if *flagFile != "" {
		config.WorkflowFile = resolvePath(*flagFile, cwd)
	}

	if config.Retention < 0 {
		return Config{}, errors.New("retention must not be negative")
	}
	if config.Retention > 0 {
		config.ArchiveDir = resolvePath(*flagArchiveDir, cwd)
		if config.ArchiveDir == "" {
			config.ArchiveDir = filepath.Join(filepath.Dir(config.DBPath), "archive")
		}
	}

	if config.Addr == "" {
		return Config{}, errors.New("addr cannot be empty")
	}
	if config.Workflow == "" {
		return Config{}, errors.New("workflow name cannot be empty")
	}
	if err := config.LogLevel.UnmarshalText([]byte(*flagLevel)); err != nil {
		return Config{}, fmt.Errorf("invalid log level %q", *flagLevel)
	}

	return config, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func addrFromEnv(fallback string) string {
	if value := os.Getenv("SIGNALFLOW_ADDR"); value != "" {
		return value
	}
	if port := os.Getenv("SIGNALFLOW_PORT"); port != "" {
		return fmt.Sprintf("127.0.0.1:%s", port)
	}
	return fallback
}

func resolvePath(path string, cwd string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return trimmed
	}
	if filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(cwd, trimmed)
}
