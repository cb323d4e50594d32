package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gogins/csound-ac/internal/config"
	"github.com/gogins/csound-ac/internal/log"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	if cmd == "--version" {
		return runVersion(args)
	}

	switch cmd {
	// --- NOUNS ---
	case "action":
		return runActionNoun(args)
	case "config":
		return runConfigNoun(args)
	case "system":
		return runSystemNoun(args)

	// --- VERBS ---
	case "run":
		if hasHelpFlag(args) {
			printRunHelp()
			return 0
		}
		return runRun(args)
	case "open":
		if hasHelpFlag(args) {
			printOpenHelp()
			return 0
		}
		return runOpen(args)
	case "history":
		if hasHelpFlag(args) {
			printHistoryHelp()
			return 0
		}
		return runHistory(args)
	case "logs":
		if hasHelpFlag(args) {
			printLogsHelp()
			return 0
		}
		return runLogs(args)

	// --- ROOT ALIASES ---
	case "serve":
		return runSystemServe(args)
	case "doctor":
		return runConfigCheck(args)
	case "version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: playpen version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("playpen %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}

	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	resolvedCommit := strings.TrimSpace(gitCommit)
	if resolvedCommit == "" || resolvedCommit == "unknown" {
		resolvedCommit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if resolvedCommit != "" {
		info.Commit = shortenCommit(resolvedCommit)
	}

	resolvedBuildTime := strings.TrimSpace(buildDate)
	if resolvedBuildTime == "" || resolvedBuildTime == "unknown" {
		resolvedBuildTime = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalizedBuildTime, ok := normalizeBuildTimeUTC(resolvedBuildTime); ok {
		info.BuildTime = normalizedBuildTime
	}

	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}

	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

// loadConfig resolves --config (or discovery) and sets up logging from it.
func loadConfig(configPath string) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}
	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	return cfg, nil
}

func printUsage() {
	fmt.Print(`playpen - run the playpen script on the document you are editing

Usage:
  playpen <command> [flags]
  playpen <noun> <action> [flags]

Invoking Actions:
  run <action> <document>   Run a playpen subcommand on a document
  open <action>             Open a documentation action in the browser

Resources (Nouns):
  action    The catalog of named actions
  config    Configuration and integrity
  system    HTTP bridge and live monitoring

Action Commands:
  action list       Show every action, its aliases and what it does

Config Commands:
  config check      Validate the configuration against this machine
  config show       Print the effective configuration
  config lock       Write integrity hashes for the config file

System Commands:
  system serve      Start the HTTP bridge in the foreground
  system watch      Real-time TUI over a running bridge

Inspection:
  history           Show recent invocations
  logs              Print (or follow) the output log

General:
  --version         Show version information
  version           Show version information
  help              Show this help message

Use 'playpen <noun> help' for resource-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

func runActionNoun(args []string) int {
	if len(args) < 1 {
		printActionNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printActionNounHelp(os.Stdout)
		return 0
	}

	verb := args[0]
	verbArgs := args[1:]

	switch verb {
	case "list":
		if hasHelpFlag(verbArgs) {
			printActionListHelp()
			return 0
		}
		return runActionList(verbArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown action command: %s\n", verb)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	verb := args[0]
	verbArgs := args[1:]

	switch verb {
	case "check":
		if hasHelpFlag(verbArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(verbArgs)
	case "show":
		if hasHelpFlag(verbArgs) {
			printConfigShowHelp()
			return 0
		}
		return runConfigShow(verbArgs)
	case "lock":
		if hasHelpFlag(verbArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(verbArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", verb)
		return 1
	}
}

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	verb := args[0]
	verbArgs := args[1:]

	switch verb {
	case "serve":
		if hasHelpFlag(verbArgs) {
			printSystemServeHelp()
			return 0
		}
		return runSystemServe(verbArgs)
	case "watch":
		if hasHelpFlag(verbArgs) {
			printSystemWatchHelp()
			return 0
		}
		return runWatch(verbArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", verb)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printActionNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: playpen action <command>")
	fmt.Fprintln(w, "Commands: list")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: playpen config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, show, lock")
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: playpen system <action>")
	fmt.Fprintln(w, "Actions: serve, watch")
}

func printRunHelp() {
	fmt.Println("Usage: playpen run <action> <document> [--mode subprocess|terminal] [--wait] [--dry-run] [--config PATH]")
	fmt.Println("Run '<interpreter> <script> <subcommand> <document>' in the document's directory.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --mode MODE      subprocess (output appended to the log) or terminal")
	fmt.Println("  --wait           Stay attached, stream output and exit with the script's code")
	fmt.Println("  --dry-run        Print the command line and launch nothing")
	fmt.Println()
	fmt.Println("URL actions are opened in the browser; the document is ignored.")
}

func printOpenHelp() {
	fmt.Println("Usage: playpen open <action> [--config PATH]")
	fmt.Println("Open the documentation page of a URL action.")
}

func printActionListHelp() {
	fmt.Println("Usage: playpen action list [--config PATH] [--json]")
	fmt.Println("List the action catalog, including configured overrides.")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: playpen config check [--config PATH] [--json]")
	fmt.Println("Validate the configuration: interpreter, script, terminal, output log, actions and API tokens.")
	fmt.Println()
	fmt.Println("Exit codes:")
	fmt.Println("  0  All checks passed")
	fmt.Println("  1  One or more errors")
	fmt.Println("  2  Valid with warnings")
}

func printConfigShowHelp() {
	fmt.Println("Usage: playpen config show [--config PATH] [--json]")
	fmt.Println("Print the effective configuration after defaults and expansion.")
}

func printConfigLockHelp() {
	fmt.Println("Usage: playpen config lock [--config PATH] [-v|--verbose] [--dry-run]")
	fmt.Println("Write BLAKE3 hashes of the config file to .checksums in its directory.")
}

func printSystemServeHelp() {
	fmt.Println("Usage: playpen system serve [--config PATH] [--listen ADDR]")
	fmt.Println("Start the HTTP bridge in the foreground. Stops running launches on exit.")
}

func printSystemWatchHelp() {
	fmt.Println("Usage: playpen system watch [flags]")
	fmt.Println()
	fmt.Println("Real-time TUI over a running bridge.")
	fmt.Println("Shows bridge health, running launches, their output and the event stream.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Printf("  --api-url URL    Bridge URL (default: %s)\n", defaultAPIURL)
	fmt.Println("  --api-key KEY    API Bearer Token (or PLAYPEN_API_KEY env var)")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  ↑/↓, k/j         Select launch")
	fmt.Println("  x                Stop selected launch")
	fmt.Println("  c                Clear finished launches")
	fmt.Println("  PgUp/PgDn        Scroll output")
}

func printHistoryHelp() {
	fmt.Println("Usage: playpen history [--config PATH] [--limit N] [--action NAME] [--json]")
	fmt.Println("Show recent invocations from the launch journal, newest first.")
}

func printLogsHelp() {
	fmt.Println("Usage: playpen logs [--config PATH] [-f|--follow] [-n LINES]")
	fmt.Println("Print the output log. With --follow, keep printing as launches write to it.")
}
