package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/gogins/csound-ac/internal/config"
	"github.com/gogins/csound-ac/internal/doctor"
)

const redacted = "<redacted>"

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		if *jsonOut {
			data, _ := json.MarshalIndent(doctor.Result{
				Valid:  false,
				Errors: []doctor.Issue{{Category: "config", Message: err.Error()}},
			}, "", "  ")
			fmt.Println(string(data))
		} else {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		}
		return 1
	}

	result := doctor.New(cfg).Validate()

	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		if cfg.SourcePath != "" {
			fmt.Printf("Config: %s\n", cfg.SourcePath)
		} else {
			fmt.Println("Config: built-in defaults")
		}
		printValidationSummary(result)
	}

	switch {
	case !result.Valid:
		return 1
	case len(result.Warnings) > 0:
		return 2
	default:
		return 0
	}
}

func printValidationSummary(result *doctor.Result) {
	if result == nil {
		return
	}
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	green := color.New(color.FgGreen)

	switch {
	case !result.Valid:
		red.Printf("Validation: failed (%d error(s), %d warning(s))\n", len(result.Errors), len(result.Warnings))
	case len(result.Warnings) == 0:
		green.Println("Validation: ✓ All checks passed")
		return
	default:
		green.Printf("Validation: ✓ passed with %d warning(s)\n", len(result.Warnings))
	}

	for _, issue := range result.Errors {
		red.Println("  " + issue.Line("ERROR"))
	}
	for _, issue := range result.Warnings {
		yellow.Println("  " + issue.Line("WARN "))
	}
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	showSecrets := fs.Bool("show-secrets", false, "Print API keys and tokens in clear")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}
	if !*showSecrets {
		cfg = redactSecrets(cfg)
	}

	if *jsonOut {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render YAML: %v\n", err)
		return 1
	}
	if cfg.SourcePath != "" {
		fmt.Printf("# %s\n", cfg.SourcePath)
	}
	fmt.Print(string(data))
	return 0
}

// redactSecrets returns a copy of cfg with bearer tokens masked.
func redactSecrets(cfg *config.Config) *config.Config {
	out := *cfg
	if out.API.Auth.APIKey != "" {
		out.API.Auth.APIKey = redacted
	}
	if len(cfg.API.Auth.Tokens) > 0 {
		out.API.Auth.Tokens = make([]config.APIToken, len(cfg.API.Auth.Tokens))
		for i, t := range cfg.API.Auth.Tokens {
			out.API.Auth.Tokens[i] = config.APIToken{Token: redacted, Scopes: t.Scopes}
		}
	}
	return &out
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	verbose := fs.Bool("verbose", false, "Print each hashed file")
	fs.BoolVar(verbose, "v", false, "Print each hashed file")
	dryRun := fs.Bool("dry-run", false, "Compute hashes without writing .checksums")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	path, err := resolveConfigFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve config: %v\n", err)
		return 1
	}

	report, err := config.Lock([]string{path}, *dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}

	if *verbose {
		for _, f := range report.Files {
			fmt.Printf("  %s  %s\n", f.Hash, f.Filename)
		}
	}
	if *dryRun {
		fmt.Printf("Dry run: would write %s (%d file(s))\n", report.ChecksumPath, len(report.Files))
		return 0
	}
	fmt.Printf("Locked %d file(s) in %s\n", len(report.Files), report.ChecksumPath)
	return 0
}

// resolveConfigFile finds the config file without loading it, so a file
// whose hash no longer matches can still be locked.
func resolveConfigFile(configPath string) (string, error) {
	if configPath == "" {
		found, err := config.Discover()
		if err != nil {
			return "", err
		}
		configPath = found
	}
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		abs = filepath.Join(abs, "config.yaml")
		if _, err := os.Stat(abs); err != nil {
			return "", fmt.Errorf("directory provided but config.yaml not found: %s", abs)
		}
	}
	return abs, nil
}
