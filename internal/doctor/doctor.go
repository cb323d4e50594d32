// Package doctor checks a playpen configuration against the machine it runs on.
package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gogins/csound-ac/internal/action"
	"github.com/gogins/csound-ac/internal/auth"
	"github.com/gogins/csound-ac/internal/browser"
	"github.com/gogins/csound-ac/internal/config"
	"github.com/gogins/csound-ac/internal/launch"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

var knownScopes = map[string]bool{
	auth.ScopeAll:        true,
	auth.ScopeActionsRO:  true,
	auth.ScopeActionsRW:  true,
	auth.ScopeLaunchesRO: true,
	auth.ScopeLaunchesRW: true,
	auth.ScopeEventsRO:   true,
	auth.ScopeHistoryRO:  true,
}

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg      *config.Config
	lookPath func(string) (string, error)
	opener   *browser.System
}

// New creates a Doctor for cfg.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, lookPath: exec.LookPath, opener: browser.NewSystem()}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateInterpreter(r)
	d.validateScript(r)
	d.validateLaunch(r)
	d.validateOutput(r)
	d.validateActions(r)
	d.validateAPIConfig(r)
	d.validateTokenScopes(r)
	d.warnBrowser(r)
	d.warnMissingEnvVars(r)
	d.warnDeprecatedSyntax(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateInterpreter checks that the interpreter parses and is on PATH.
func (d *Doctor) validateInterpreter(r *Result) {
	argv, err := launch.ParseCommand(d.cfg.Interpreter)
	if err != nil {
		d.addError(r, "interpreter", "interpreter", err.Error())
		return
	}
	if len(argv) == 0 {
		d.addError(r, "interpreter", "interpreter", "interpreter is required")
		return
	}
	if _, err := d.lookPath(argv[0]); err != nil {
		d.addError(r, "interpreter", "interpreter",
			fmt.Sprintf("interpreter %q not found: %v", argv[0], err))
	}
}

// validateScript warns when the playpen script is missing. Launches still
// start; the interpreter reports the error in the output log.
func (d *Doctor) validateScript(r *Result) {
	if d.cfg.Script == "" {
		d.addError(r, "script", "script", "script is required")
		return
	}
	info, err := os.Stat(d.cfg.Script)
	switch {
	case err != nil:
		d.addWarning(r, "script", "script",
			fmt.Sprintf("script %s not found; shell actions will fail after launch", d.cfg.Script))
	case info.IsDir():
		d.addError(r, "script", "script", fmt.Sprintf("script %s is a directory", d.cfg.Script))
	}
}

// validateLaunch checks the terminal command. A missing emulator is an error
// only when terminal is the default mode.
func (d *Doctor) validateLaunch(r *Result) {
	argv, err := launch.ParseCommand(d.cfg.Launch.Terminal)
	if err != nil {
		d.addError(r, "launch", "launch.terminal", err.Error())
		return
	}
	if len(argv) == 0 {
		if d.cfg.Launch.Mode == config.ModeTerminal {
			d.addError(r, "launch", "launch.terminal", "launch.terminal is required in terminal mode")
		}
		return
	}
	if _, err := d.lookPath(argv[0]); err != nil {
		msg := fmt.Sprintf("terminal emulator %q not found", argv[0])
		if d.cfg.Launch.Mode == config.ModeTerminal {
			d.addError(r, "launch", "launch.terminal", msg)
		} else {
			d.addWarning(r, "launch", "launch.terminal", msg+"; --mode terminal will fail")
		}
	}
}

// validateOutput warns when the output log directory does not exist yet.
func (d *Doctor) validateOutput(r *Result) {
	if d.cfg.Output.LogPath == "" {
		d.addError(r, "output", "output.log_path", "output.log_path is required")
		return
	}
	dir := filepath.Dir(d.cfg.Output.LogPath)
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		d.addWarning(r, "output", "output.log_path",
			fmt.Sprintf("directory %s does not exist; it will be created on first launch", dir))
	case err != nil:
		d.addError(r, "output", "output.log_path", err.Error())
	case !info.IsDir():
		d.addError(r, "output", "output.log_path", fmt.Sprintf("%s is not a directory", dir))
	}
}

// validateActions builds the catalog with overrides applied.
func (d *Doctor) validateActions(r *Result) {
	catalog, err := action.Load(d.cfg.Actions)
	if err != nil {
		d.addError(r, "actions", "actions", err.Error())
		return
	}
	for _, a := range catalog.All() {
		if a.Kind != action.KindURL {
			continue
		}
		if err := browser.Validate(a.ResolvedURL()); err != nil {
			d.addError(r, "actions", "actions."+a.ID+".url", err.Error())
		}
	}
}

// validateAPIConfig checks bridge settings.
func (d *Doctor) validateAPIConfig(r *Result) {
	if d.cfg.API.Listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required")
	}
	if d.cfg.API.Auth.APIKey == "" && len(d.cfg.API.Auth.Tokens) == 0 {
		d.addWarning(r, "api", "api.auth", "no authentication configured; the bridge will reject every request")
	}
}

func (d *Doctor) validateTokenScopes(r *Result) {
	for i, token := range d.cfg.API.Auth.Tokens {
		for j, scope := range token.Scopes {
			if !knownScopes[strings.TrimSpace(scope)] {
				d.addError(r, "token_scopes", fmt.Sprintf("api.auth.tokens[%d].scopes[%d]", i, j),
					fmt.Sprintf("unknown scope %q", scope))
			}
		}
	}
}

// warnBrowser warns when no URL handler is available for documentation actions.
func (d *Doctor) warnBrowser(r *Result) {
	if d.opener == nil {
		return
	}
	argv, err := d.opener.Command("https://example.com/")
	if err != nil {
		d.addWarning(r, "browser", "BROWSER", err.Error())
		return
	}
	if _, err := d.lookPath(argv[0]); err != nil {
		d.addWarning(r, "browser", "",
			fmt.Sprintf("url handler %q not found; reference actions will fail", argv[0]))
	}
}

// warnMissingEnvVars warns about ${VAR} references that did not resolve.
func (d *Doctor) warnMissingEnvVars(r *Result) {
	for i, token := range d.cfg.API.Auth.Tokens {
		if token.Token == "" {
			d.addWarning(r, "env_vars", fmt.Sprintf("api.auth.tokens[%d].token", i),
				"token value is empty (possibly unresolved environment variable)")
		}
	}
	for id, conf := range d.cfg.Actions {
		for _, m := range envVarRe.FindAllStringSubmatch(conf.URL, -1) {
			if os.Getenv(m[1]) == "" {
				d.addWarning(r, "env_vars", fmt.Sprintf("actions.%s.url", id),
					fmt.Sprintf("environment variable ${%s} not set", m[1]))
			}
		}
	}
}

// warnDeprecatedSyntax warns about legacy config patterns.
func (d *Doctor) warnDeprecatedSyntax(r *Result) {
	if d.cfg.API.Auth.APIKey != "" && len(d.cfg.API.Auth.Tokens) > 0 {
		d.addWarning(r, "deprecated", "api.auth",
			"both api_key and tokens configured; prefer tokens array only")
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid {
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	} else {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		b.WriteString("  " + e.Line("ERROR") + "\n")
	}
	for _, w := range r.Warnings {
		b.WriteString("  " + w.Line("WARN ") + "\n")
	}

	return b.String()
}

// Line renders one issue the way FormatHuman does.
func (i Issue) Line(label string) string {
	if i.Field != "" {
		return fmt.Sprintf("%s [%s] %s: %s", label, i.Category, i.Field, i.Message)
	}
	return fmt.Sprintf("%s [%s] %s", label, i.Category, i.Message)
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
