package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "empty file uses defaults",
			yaml: "",
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Interpreter != "python3" {
					t.Errorf("interpreter = %q, want python3", cfg.Interpreter)
				}
				if !strings.HasSuffix(cfg.Script, "playpen.py") || strings.HasPrefix(cfg.Script, "~") {
					t.Errorf("script not defaulted and expanded: %q", cfg.Script)
				}
				if cfg.Launch.Mode != ModeSubprocess {
					t.Errorf("launch.mode = %q", cfg.Launch.Mode)
				}
				if cfg.API.Listen != "127.0.0.1:8765" {
					t.Errorf("api.listen = %q", cfg.API.Listen)
				}
			},
		},
		{
			name: "full config",
			yaml: `
service:
  log_level: debug
  log_format: text
interpreter: python3 -u
script: /opt/playpen/playpen.py
launch:
  mode: terminal
  terminal: gnome-terminal --
output:
  log_path: /tmp/playpen.log
state:
  path: /tmp/playpen.db
actions:
  my-render:
    subcommand: csd-render
    aliases: [mr]
  csound-reference:
    url: https://example.com/manual
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Interpreter != "python3 -u" {
					t.Errorf("interpreter = %q", cfg.Interpreter)
				}
				if cfg.Script != "/opt/playpen/playpen.py" {
					t.Errorf("script = %q", cfg.Script)
				}
				if cfg.Launch.Mode != ModeTerminal || cfg.Launch.Terminal != "gnome-terminal --" {
					t.Errorf("launch = %+v", cfg.Launch)
				}
				if cfg.Service.LogFormat != "text" {
					t.Errorf("log_format = %q", cfg.Service.LogFormat)
				}
				if got := cfg.Actions["my-render"].Aliases; len(got) != 1 || got[0] != "mr" {
					t.Errorf("aliases = %v", got)
				}
			},
		},
		{
			name: "env var interpolation",
			yaml: `
script: ${PLAYPEN_TEST_SCRIPT}
api:
  auth:
    api_key: ${PLAYPEN_TEST_KEY}
`,
			env: map[string]string{
				"PLAYPEN_TEST_SCRIPT": "/srv/playpen.py",
				"PLAYPEN_TEST_KEY":    "secret123",
			},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Script != "/srv/playpen.py" {
					t.Errorf("script not interpolated: %q", cfg.Script)
				}
				if cfg.API.Auth.APIKey != "secret123" {
					t.Errorf("api_key not interpolated: %q", cfg.API.Auth.APIKey)
				}
			},
		},
		{
			name: "missing env var in api key",
			yaml: `
api:
  auth:
    api_key: ${PLAYPEN_TEST_MISSING_KEY}
`,
			wantErr: "PLAYPEN_TEST_MISSING_KEY",
		},
		{
			name:    "invalid log level",
			yaml:    "service:\n  log_level: loud\n",
			wantErr: "service.log_level",
		},
		{
			name:    "invalid launch mode",
			yaml:    "launch:\n  mode: popup\n",
			wantErr: "launch.mode",
		},
		{
			name: "token without scopes",
			yaml: `
api:
  auth:
    tokens:
      - token: abc
`,
			wantErr: "scopes must be non-empty",
		},
		{
			name: "action with both subcommand and url",
			yaml: `
actions:
  bad:
    subcommand: x
    url: https://example.com
`,
			wantErr: "mutually exclusive",
		},
		{
			name: "disabled action skips validation",
			yaml: `
actions:
  play:
    disabled: true
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if !cfg.Actions["play"].Disabled {
					t.Error("play should be disabled")
				}
			},
		},
		{
			name:    "malformed yaml",
			yaml:    "service: [\n",
			wantErr: "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			configPath := writeConfig(t, t.TempDir(), tt.yaml)
			cfg, err := Load(configPath)

			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Load() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() failed: %v", err)
			}
			if cfg.SourcePath != configPath {
				t.Errorf("SourcePath = %q, want %q", cfg.SourcePath, configPath)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, cfg)
			}
		})
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "interpreter: python3.12\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load(dir) failed: %v", err)
	}
	if cfg.Interpreter != "python3.12" {
		t.Errorf("interpreter = %q", cfg.Interpreter)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestLoadVerifiesChecksums(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "interpreter: python3\n")

	if _, err := Lock([]string{path}, false); err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("Load() after lock failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("interpreter: evil\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "config verification failed") {
		t.Fatalf("Load() after tamper error = %v", err)
	}
}

func TestLoadOrDefault(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(EnvConfigPath, "")
	t.Chdir(t.TempDir())

	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault() failed: %v", err)
	}
	if cfg.SourcePath != "" {
		t.Errorf("SourcePath = %q, want empty for defaults", cfg.SourcePath)
	}
	if cfg.Interpreter != "python3" {
		t.Errorf("interpreter = %q", cfg.Interpreter)
	}
}

func TestDiscover(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())

	t.Run("env var wins", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "")
		t.Setenv(EnvConfigPath, path)
		got, err := Discover()
		if err != nil || got != path {
			t.Fatalf("Discover() = %q, %v; want %q", got, err, path)
		}
	})

	t.Run("env var pointing nowhere", func(t *testing.T) {
		t.Setenv(EnvConfigPath, filepath.Join(home, "missing.yaml"))
		if _, err := Discover(); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("user config dir", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "")
		dir := filepath.Join(home, ".config", "playpen")
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		want := writeConfig(t, dir, "")
		got, err := Discover()
		if err != nil || got != want {
			t.Fatalf("Discover() = %q, %v; want %q", got, err, want)
		}
	})
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/mkg")
	tests := map[string]string{
		"~":              "/home/mkg",
		"~/playpen.py":   "/home/mkg/playpen.py",
		"/abs/path":      "/abs/path",
		"relative/path":  "relative/path",
		"~other/file.py": "~other/file.py",
	}
	for in, want := range tests {
		if got := ExpandHome(in); got != want {
			t.Errorf("ExpandHome(%q) = %q, want %q", in, got, want)
		}
	}
}
