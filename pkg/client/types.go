package client

import "time"

// UploadResponse is returned by POST /upload.
type UploadResponse struct {
	Message   string `json:"message"`
	Filename  string `json:"filename"`
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	Timestamp string `json:"timestamp"`
}

// StartResponse is returned by POST /start/{name}.
type StartResponse struct {
	Message    string    `json:"message"`
	ScriptName string    `json:"script_name"`
	PID        int       `json:"pid"`
	StartTime  time.Time `json:"start_time"`
	Timestamp  string    `json:"timestamp"`
}

// StopResponse is returned by POST /stop/{name}.
type StopResponse struct {
	Message    string `json:"message"`
	ScriptName string `json:"script_name"`
	Timestamp  string `json:"timestamp"`
}

// StatusResponse is returned by GET /status/{name}.
type StatusResponse struct {
	ScriptName string    `json:"script_name"`
	Status     string    `json:"status"`
	PID        int       `json:"pid,omitempty"`
	StartTime  time.Time `json:"start_time,omitempty"`
	CPUPercent float64   `json:"cpu_percent,omitempty"`
	MemoryMB   float64   `json:"memory_mb,omitempty"`
	Message    string    `json:"message,omitempty"`
	Timestamp  string    `json:"timestamp"`
}

// ScriptInfo is one entry of GET /scripts.
type ScriptInfo struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	Created   time.Time `json:"created"`
	IsRunning bool      `json:"is_running"`
}

// ScriptsResponse is returned by GET /scripts.
type ScriptsResponse struct {
	Total     int          `json:"total"`
	Scripts   []ScriptInfo `json:"scripts"`
	Timestamp string       `json:"timestamp"`
}

// LogsResponse is returned by GET /logs/{name}.
type LogsResponse struct {
	ScriptName string `json:"script_name"`
	Logs       string `json:"logs"`
	TotalLines int    `json:"total_lines"`
	Timestamp  string `json:"timestamp"`
}

// RestartFailure describes one script that failed to restart.
type RestartFailure struct {
	ScriptName string `json:"script_name"`
	Error      string `json:"error"`
}

// RestartAllResponse is returned by POST /restart-all.
type RestartAllResponse struct {
	Message   string           `json:"message"`
	Restarted []string         `json:"restarted"`
	Failed    []RestartFailure `json:"failed,omitempty"`
	Timestamp string           `json:"timestamp"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status           string `json:"status"`
	RunningProcesses int    `json:"running_processes"`
	Timestamp        string `json:"timestamp"`
}

// ErrorResponse is the failure envelope for every endpoint.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Timestamp string `json:"timestamp"`
}
