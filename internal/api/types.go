package api

import (
	"github.com/gogins/csound-ac/internal/action"
	"github.com/gogins/csound-ac/internal/journal"
	"github.com/gogins/csound-ac/internal/launch"
)

// InvokeRequest is the JSON body for POST /actions/{action}.
type InvokeRequest struct {
	Document string `json:"document"`
	Mode     string `json:"mode,omitempty"`
}

// InvokeResponse is returned by POST /actions/{action}. Launch is set for
// shell actions, URL for documentation actions.
type InvokeResponse struct {
	Action  string       `json:"action"`
	Status  string       `json:"status"`
	Command string       `json:"command,omitempty"`
	Launch  *launch.Info `json:"launch,omitempty"`
	URL     string       `json:"url,omitempty"`
}

// ActionListResponse is returned by GET /actions.
type ActionListResponse struct {
	Actions []*action.Action `json:"actions"`
}

// LaunchListResponse is returned by GET /launches.
type LaunchListResponse struct {
	Launches []launch.Info `json:"launches"`
}

// StopResponse is returned by DELETE /launches/{pid}.
type StopResponse struct {
	PID    int    `json:"pid"`
	Status string `json:"status"`
}

// HistoryResponse is returned by GET /history.
type HistoryResponse struct {
	Entries []journal.Entry `json:"entries"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Running       int    `json:"running"`
	Actions       int    `json:"actions"`
}
