package journal

import "time"

// Entry is one invocation as recorded in launch_log.
type Entry struct {
	ID           string     `json:"id"`
	ActionID     string     `json:"action"`
	Kind         string     `json:"kind"`
	DocumentPath string     `json:"document,omitempty"`
	WorkingDir   string     `json:"working_dir,omitempty"`
	Command      []string   `json:"command,omitempty"`
	URL          string     `json:"url,omitempty"`
	Mode         string     `json:"mode,omitempty"`
	PID          int        `json:"pid,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	ExitedAt     *time.Time `json:"exited_at,omitempty"`
	ExitCode     *int       `json:"exit_code,omitempty"`
	Error        *string    `json:"error,omitempty"`
}

// Running reports whether the entry is a launch with no recorded exit.
func (e Entry) Running() bool {
	return e.PID != 0 && e.ExitedAt == nil && e.Error == nil
}
