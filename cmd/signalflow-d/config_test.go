package main

import (
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig([]string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != defaultAddr {
		t.Errorf("expected addr %s, got %s", defaultAddr, cfg.Addr)
	}
	if cfg.Workflow != defaultWorkflow {
		t.Errorf("expected workflow %s, got %s", defaultWorkflow, cfg.Workflow)
	}
	if filepath.Base(cfg.DBPath) != "signalflow.db" || !filepath.IsAbs(cfg.DBPath) {
		t.Errorf("unexpected db path %s", cfg.DBPath)
	}
	if cfg.LogLevel != slog.LevelInfo || !cfg.Autosave || cfg.RedisAddr != "" || cfg.WorkflowFile != "" || cfg.Retention != 0 || cfg.ArchiveDir != "" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		envVars     map[string]string
		expectError bool
		errorSubstr string
		check       func(t *testing.T, cfg Config)
	}{
		{
			name: "flags override env",
			args: []string{"-addr", "0.0.0.0:9000", "-workflow", "iris"},
			envVars: map[string]string{
				"SIGNALFLOW_ADDR":     "127.0.0.1:7000",
				"SIGNALFLOW_WORKFLOW": "other",
			},
			check: func(t *testing.T, cfg Config) {
				if cfg.Addr != "0.0.0.0:9000" || cfg.Workflow != "iris" {
					t.Errorf("flags not applied: %+v", cfg)
				}
			},
		},
		{
			name:    "port env",
			envVars: map[string]string{"SIGNALFLOW_PORT": "9100"},
			check: func(t *testing.T, cfg Config) {
				if cfg.Addr != "127.0.0.1:9100" {
					t.Errorf("expected port addr, got %s", cfg.Addr)
				}
			},
		},
		{
			name: "relative paths resolve against cwd",
			args: []string{"-db", "data/sf.db", "-workflow-file", "iris.yaml"},
			check: func(t *testing.T, cfg Config) {
				if !filepath.IsAbs(cfg.DBPath) || !filepath.IsAbs(cfg.WorkflowFile) {
					t.Errorf("paths not absolute: %s %s", cfg.DBPath, cfg.WorkflowFile)
				}
			},
		},
		{
			name:    "redis and level from env",
			envVars: map[string]string{"SIGNALFLOW_REDIS_ADDR": "localhost:6379", "SIGNALFLOW_LOG_LEVEL": "debug"},
			check: func(t *testing.T, cfg Config) {
				if cfg.RedisAddr != "localhost:6379" || cfg.LogLevel != slog.LevelDebug {
					t.Errorf("env not applied: %+v", cfg)
				}
			},
		},
		{
			name: "autosave off",
			args: []string{"-autosave=false"},
			check: func(t *testing.T, cfg Config) {
				if cfg.Autosave {
					t.Error("expected autosave disabled")
				}
			},
		},
		{
			name: "retention defaults archive dir next to db",
			args: []string{"-db", "/tmp/sf/signalflow.db", "-retention", "72h"},
			check: func(t *testing.T, cfg Config) {
				if cfg.Retention != 72*time.Hour || cfg.ArchiveDir != filepath.Join("/tmp/sf", "archive") {
					t.Errorf("unexpected archive config: %v %s", cfg.Retention, cfg.ArchiveDir)
				}
			},
		},
		{
			name:    "archive dir from env",
			envVars: map[string]string{"SIGNALFLOW_RETENTION": "1h", "SIGNALFLOW_ARCHIVE_DIR": "/var/sf"},
			check: func(t *testing.T, cfg Config) {
				if cfg.Retention != time.Hour || cfg.ArchiveDir != "/var/sf" {
					t.Errorf("unexpected archive config: %v %s", cfg.Retention, cfg.ArchiveDir)
				}
			},
		},
		{
			name:        "negative retention",
			args:        []string{"-retention", "-1h"},
			expectError: true,
			errorSubstr: "retention must not be negative",
		},
		{
			name:        "invalid retention env",
			envVars:     map[string]string{"SIGNALFLOW_RETENTION": "soon"},
			expectError: true,
			errorSubstr: "invalid SIGNALFLOW_RETENTION",
		},
		{
			name:        "invalid autosave env",
			envVars:     map[string]string{"SIGNALFLOW_AUTOSAVE": "sometimes"},
			expectError: true,
			errorSubstr: "invalid SIGNALFLOW_AUTOSAVE",
		},
		{
			name:        "invalid log level",
			args:        []string{"-log-level", "loud"},
			expectError: true,
			errorSubstr: "invalid log level",
		},
		{
			name:        "empty addr",
			args:        []string{"-addr", " "},
			expectError: true,
			errorSubstr: "addr cannot be empty",
		},
		{
			name:        "empty workflow",
			args:        []string{"-workflow", ""},
			expectError: true,
			errorSubstr: "workflow name cannot be empty",
		},
		{
			name:        "unknown flag",
			args:        []string{"-policy", "x"},
			expectError: true,
			errorSubstr: "flag provided but not defined",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := LoadConfig(tt.args)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error containing %q, got nil", tt.errorSubstr)
				} else if !strings.Contains(err.Error(), tt.errorSubstr) {
					t.Errorf("expected error containing %q, got %q", tt.errorSubstr, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}
