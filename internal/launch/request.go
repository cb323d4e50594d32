package launch

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"al.essio.dev/pkg/shellescape"
	"github.com/mattn/go-shellwords"
)

// Mode selects how a shell action is started.
type Mode string

const (
	ModeSubprocess Mode = "subprocess"
	ModeTerminal   Mode = "terminal"
)

// ParseMode validates a mode name. An empty name yields def.
func ParseMode(s string, def Mode) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return def, nil
	case ModeSubprocess:
		return ModeSubprocess, nil
	case ModeTerminal:
		return ModeTerminal, nil
	default:
		return "", fmt.Errorf("unknown launch mode %q (want %s or %s)", s, ModeSubprocess, ModeTerminal)
	}
}

// ErrNoActiveDocument is returned when a shell action has no document to work on.
var ErrNoActiveDocument = errors.New("no active document")

// Request is everything a launcher needs to start one shell action.
// It is built per invocation and discarded once the process has started.
type Request struct {
	ActionID     string
	Subcommand   string
	DocumentPath string
	WorkingDir   string
	Interpreter  []string
	Script       string
	Mode         Mode
}

// NewRequest builds a request for documentPath. A relative path is resolved
// against the current directory; an absolute one is kept exactly as given.
// The working directory is the document's parent.
func NewRequest(actionID, subcommand, documentPath string, interpreter []string, script string, mode Mode) (*Request, error) {
	if strings.TrimSpace(documentPath) == "" {
		return nil, ErrNoActiveDocument
	}
	if len(interpreter) == 0 {
		return nil, fmt.Errorf("interpreter is empty")
	}
	if subcommand == "" {
		return nil, fmt.Errorf("action %q has no subcommand", actionID)
	}

	if !filepath.IsAbs(documentPath) {
		abs, err := filepath.Abs(documentPath)
		if err != nil {
			return nil, fmt.Errorf("resolve document path %q: %w", documentPath, err)
		}
		documentPath = abs
	}

	return &Request{
		ActionID:     actionID,
		Subcommand:   subcommand,
		DocumentPath: documentPath,
		WorkingDir:   filepath.Dir(documentPath),
		Interpreter:  append([]string(nil), interpreter...),
		Script:       script,
		Mode:         mode,
	}, nil
}

// Argv returns: interpreter... script subcommand documentPath
func (r *Request) Argv() []string {
	argv := make([]string, 0, len(r.Interpreter)+3)
	argv = append(argv, r.Interpreter...)
	return append(argv, r.Script, r.Subcommand, r.DocumentPath)
}

// String renders the command line with shell quoting, for display only.
func (r *Request) String() string {
	return shellescape.QuoteCommand(r.Argv())
}

// ParseCommand splits a configured command line such as "python3 -u" into argv.
func ParseCommand(s string) ([]string, error) {
	args, err := shellwords.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", s, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return args, nil
}
