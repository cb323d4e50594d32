package action

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"unicode"
)

// Kind distinguishes actions that launch the playpen script from actions
// that only open a URL.
type Kind string

const (
	KindShell Kind = "shell"
	KindURL   Kind = "url"
)

// ErrUnknownAction is returned when a name resolves to no catalog entry.
var ErrUnknownAction = errors.New("unknown action")

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Action is a named, user-invokable operation bound either to a playpen
// subcommand or to a documentation URL.
type Action struct {
	ID          string   `json:"id"`
	Kind        Kind     `json:"kind"`
	Subcommand  string   `json:"subcommand,omitempty"`
	URL         string   `json:"url,omitempty"`
	Aliases     []string `json:"aliases,omitempty"`
	Description string   `json:"description,omitempty"`
}

// NeedsDocument reports whether invoking the action requires an active document.
func (a *Action) NeedsDocument() bool {
	return a.Kind == KindShell
}

// ResolvedURL returns the URL with ${VAR} references expanded from the
// environment. Undefined variables are left as-is.
func (a *Action) ResolvedURL() string {
	return envVarPattern.ReplaceAllStringFunc(a.URL, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return match
	})
}

// Validate checks that the action is well formed.
func (a *Action) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("action id is empty")
	}
	if Normalize(a.ID) != a.ID {
		return fmt.Errorf("action %q: id must be in normalized form %q", a.ID, Normalize(a.ID))
	}

	switch a.Kind {
	case KindShell:
		if strings.TrimSpace(a.Subcommand) == "" {
			return fmt.Errorf("action %q: subcommand is required", a.ID)
		}
		if a.URL != "" {
			return fmt.Errorf("action %q: subcommand and url are mutually exclusive", a.ID)
		}
	case KindURL:
		if a.Subcommand != "" {
			return fmt.Errorf("action %q: subcommand and url are mutually exclusive", a.ID)
		}
		u, err := url.Parse(a.URL)
		if err != nil {
			return fmt.Errorf("action %q: invalid url: %w", a.ID, err)
		}
		switch u.Scheme {
		case "http", "https", "file":
		default:
			return fmt.Errorf("action %q: url scheme must be http, https or file (got %q)", a.ID, u.Scheme)
		}
	default:
		return fmt.Errorf("action %q: unknown kind %q", a.ID, a.Kind)
	}
	return nil
}

// Normalize maps the many spellings an action name has accumulated onto
// one canonical kebab-case form: a leading "playpen." namespace is dropped,
// camelCase is split, underscores become hyphens, and everything is lower-cased.
//
//	playpen.csd_audio   -> csd-audio
//	csoundAcReference   -> csound-ac-reference
//	html5Reference      -> html5-reference
func Normalize(name string) string {
	s := strings.TrimSpace(name)
	if strings.HasPrefix(strings.ToLower(s), "playpen.") {
		s = s[len("playpen."):]
	}

	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range runes {
		switch {
		case r == '_' || unicode.IsSpace(r):
			b.WriteRune('-')
		case unicode.IsUpper(r):
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])) {
				b.WriteRune('-')
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
