// Package browser opens documentation URLs with the desktop's default handler.
package browser

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/mattn/go-shellwords"

	"github.com/gogins/csound-ac/internal/log"
)

//go:generate mockgen -destination=../dispatch/mocks/mock_opener.go -package=mocks github.com/gogins/csound-ac/internal/browser Opener

// Opener hands a URL to something that can display it.
type Opener interface {
	Open(ctx context.Context, rawURL string) error
}

// System opens URLs with $BROWSER, falling back to the platform handler.
// The handler process is reaped in the background; Open does not wait for it.
type System struct {
	goos   string
	getenv func(string) string
	start  func(argv []string) error
}

// NewSystem returns an opener for the running platform.
func NewSystem() *System {
	return &System{
		goos:   runtime.GOOS,
		getenv: os.Getenv,
		start:  startDetached,
	}
}

func (s *System) Open(ctx context.Context, rawURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := Validate(rawURL); err != nil {
		return err
	}
	argv, err := s.Command(rawURL)
	if err != nil {
		return err
	}

	log.WithComponent("browser").Debug("opening url", "url", rawURL, "argv", argv)
	if err := s.start(argv); err != nil {
		return fmt.Errorf("open %s: %w", rawURL, err)
	}
	return nil
}

// Command returns the argv used to open rawURL.
// $BROWSER may contain "%s" to place the URL; otherwise it is appended.
func (s *System) Command(rawURL string) ([]string, error) {
	if browser := strings.TrimSpace(s.getenv("BROWSER")); browser != "" {
		// Like Python's webbrowser, $BROWSER may list several commands.
		first, _, _ := strings.Cut(browser, string(os.PathListSeparator))
		parts, err := shellwords.Parse(first)
		if err != nil {
			return nil, fmt.Errorf("parse $BROWSER: %w", err)
		}
		if len(parts) > 0 {
			placed := false
			for i, p := range parts {
				if strings.Contains(p, "%s") {
					parts[i] = strings.ReplaceAll(p, "%s", rawURL)
					placed = true
				}
			}
			if !placed {
				parts = append(parts, rawURL)
			}
			return parts, nil
		}
	}

	switch s.goos {
	case "darwin":
		return []string{"open", rawURL}, nil
	case "windows":
		return []string{"rundll32", "url.dll,FileProtocolHandler", rawURL}, nil
	default:
		return []string{"xdg-open", rawURL}, nil
	}
}

// Validate rejects URLs that are not absolute.
func Validate(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if !u.IsAbs() {
		return fmt.Errorf("invalid url %q: not absolute", rawURL)
	}
	return nil
}

func startDetached(argv []string) error {
	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
