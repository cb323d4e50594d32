package config

// Config represents the complete playpen configuration.
type Config struct {
	Service     ServiceConfig         `yaml:"service"`
	Interpreter string                `yaml:"interpreter"`
	Script      string                `yaml:"script"`
	Launch      LaunchConfig          `yaml:"launch"`
	Output      OutputConfig          `yaml:"output"`
	State       StateConfig           `yaml:"state"`
	API         APIConfig             `yaml:"api,omitempty"`
	Actions     map[string]ActionConf `yaml:"actions,omitempty"`

	// SourcePath is the file the config was loaded from; empty when running on defaults.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// LaunchConfig controls how shell actions are started.
type LaunchConfig struct {
	Mode     string `yaml:"mode"`     // subprocess | terminal
	Terminal string `yaml:"terminal"` // terminal emulator command, e.g. "x-terminal-emulator -e"
}

// OutputConfig defines where subprocess output is appended.
type OutputConfig struct {
	LogPath string `yaml:"log_path"`
}

// StateConfig defines state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines HTTP bridge settings.
type APIConfig struct {
	Listen string        `yaml:"listen"`
	Auth   APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is a single bearer token with full access.
	// Prefer Tokens for scoped access.
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// ActionConf adds an action or overrides a built-in one.
// Exactly one of Subcommand or URL must be set unless Disabled.
type ActionConf struct {
	Subcommand  string   `yaml:"subcommand,omitempty"`
	URL         string   `yaml:"url,omitempty"`
	Aliases     []string `yaml:"aliases,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Disabled    bool     `yaml:"disabled,omitempty"`
}

const (
	ModeSubprocess = "subprocess"
	ModeTerminal   = "terminal"
)

// Defaults returns a Config that works without any file on disk.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
		Interpreter: "python3",
		Script:      "~/playpen.py",
		Launch: LaunchConfig{
			Mode:     ModeSubprocess,
			Terminal: "x-terminal-emulator -e",
		},
		Output: OutputConfig{
			LogPath: "~/.local/state/playpen/output.log",
		},
		State: StateConfig{
			Path: "~/.local/state/playpen/playpen.db",
		},
		API: APIConfig{
			Listen: "127.0.0.1:8765",
		},
		Actions: make(map[string]ActionConf),
	}
}
