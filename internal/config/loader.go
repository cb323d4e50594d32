package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable that points at a config file.
const EnvConfigPath = "PLAYPEN_CONFIG"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ErrNoConfig is returned by Discover when no candidate file exists.
var ErrNoConfig = errors.New("no config found")

// Load reads and parses configuration from a file.
// The file is verified against a sibling .checksums manifest when one exists.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}
	cfg.SourcePath = absPath

	return finish(cfg)
}

// LoadOrDefault loads the config at path, or the discovered one when path is
// empty. With nothing to discover it returns Defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		found, err := Discover()
		if errors.Is(err, ErrNoConfig) {
			return finish(Defaults())
		}
		if err != nil {
			return nil, err
		}
		path = found
	}
	return Load(path)
}

// Discover finds the config file by checking standard locations.
// Priority order: $PLAYPEN_CONFIG, ~/.config/playpen/config.yaml, ./playpen.yaml
func Discover() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("$%s points at %s: %w", EnvConfigPath, p, err)
		}
		return p, nil
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(homeDir, ".config", "playpen", "config.yaml")
		if _, err := os.Stat(userConfig); err == nil {
			return userConfig, nil
		}
	}

	if _, err := os.Stat("playpen.yaml"); err == nil {
		return "playpen.yaml", nil
	}

	return "", fmt.Errorf("%w (checked: $%s, ~/.config/playpen/config.yaml, ./playpen.yaml)", ErrNoConfig, EnvConfigPath)
}

func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

func finish(cfg *Config) (*Config, error) {
	cfg = applyConfigDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.Script = ExpandHome(cfg.Script)
	cfg.Output.LogPath = ExpandHome(cfg.Output.LogPath)
	cfg.State.Path = ExpandHome(cfg.State.Path)
	return cfg, nil
}

// applyConfigDefaults merges default values into config where not explicitly set.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if strings.TrimSpace(cfg.Interpreter) == "" {
		cfg.Interpreter = defaults.Interpreter
	}
	if cfg.Script == "" {
		cfg.Script = defaults.Script
	}
	if cfg.Launch.Mode == "" {
		cfg.Launch.Mode = defaults.Launch.Mode
	}
	if cfg.Launch.Terminal == "" {
		cfg.Launch.Terminal = defaults.Launch.Terminal
	}
	if cfg.Output.LogPath == "" {
		cfg.Output.LogPath = defaults.Output.LogPath
	}
	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}
	if cfg.Actions == nil {
		cfg.Actions = defaults.Actions
	}
	return cfg
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Left in place; validate reports it for secrets.
		return match
	})
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	switch cfg.Service.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	switch cfg.Launch.Mode {
	case ModeSubprocess, ModeTerminal:
	default:
		return fmt.Errorf("launch.mode must be %s or %s (got %q)", ModeSubprocess, ModeTerminal, cfg.Launch.Mode)
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}
	if cfg.Output.LogPath == "" {
		return fmt.Errorf("output.log_path is required")
	}

	if err := checkUnresolved("api.auth.api_key", cfg.API.Auth.APIKey); err != nil {
		return err
	}
	for i, tok := range cfg.API.Auth.Tokens {
		field := fmt.Sprintf("api.auth.tokens[%d].token", i)
		if tok.Token == "" {
			return fmt.Errorf("%s is required", field)
		}
		if err := checkUnresolved(field, tok.Token); err != nil {
			return err
		}
		if len(tok.Scopes) == 0 {
			return fmt.Errorf("api.auth.tokens[%d].scopes must be non-empty", i)
		}
	}

	for name, a := range cfg.Actions {
		if a.Disabled {
			continue
		}
		if a.Subcommand != "" && a.URL != "" {
			return fmt.Errorf("actions.%s: subcommand and url are mutually exclusive", name)
		}
		if a.Subcommand == "" && a.URL == "" {
			return fmt.Errorf("actions.%s: one of subcommand or url is required", name)
		}
	}
	return nil
}

func checkUnresolved(field, value string) error {
	if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}

func verifyConfigHash(path string) error {
	dir := filepath.Dir(path)
	checksums, err := LoadChecksums(dir)
	if err != nil {
		if errors.Is(err, ErrNoChecksums) {
			return nil
		}
		return err
	}

	basename := filepath.Base(path)
	expectedHash, ok := checksums.Hashes[basename]
	if !ok {
		return fmt.Errorf("config file %s has no hash in checksums at %s\n"+
			"Run: playpen config lock --config %s", basename, dir, path)
	}
	if err := VerifyFileHash(path, expectedHash); err != nil {
		return fmt.Errorf("config verification failed for %s: %w\n"+
			"If you edited this file intentionally, run: playpen config lock --config %s", path, err, path)
	}
	return nil
}
