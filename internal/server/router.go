package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mdry44280-bot/code-runner-dashboard/internal/history"
	"github.com/mdry44280-bot/code-runner-dashboard/internal/logsink"
	"github.com/mdry44280-bot/code-runner-dashboard/internal/store"
	"github.com/mdry44280-bot/code-runner-dashboard/internal/supervisor"
)

const (
	defaultTailLines = 50
	maxUploadBytes   = 8 << 20

	tailTimeout   = 5 * time.Second
	statusTimeout = 3 * time.Second
)

// Error codes carried in failure responses alongside the message.
const (
	codeNotFound    = "not_found"
	codeNotRunning  = "not_running"
	codeSpawnFailed = "spawn_failed"
	codeStopFailed  = "stop_failed"
	codeIOError     = "io_error"
	codeInvalidName = "invalid_name"
	codeBadRequest  = "bad_request"
)

// HistoryReader is the optional read side of a lifecycle event sink.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Event, error)
}

// Router exposes the script-runner control surface over HTTP.
type Router struct {
	sup  *supervisor.Supervisor
	st   *store.Store
	logs *logsink.Sink
	hist HistoryReader
}

func NewRouter(sup *supervisor.Supervisor, st *store.Store, logs *logsink.Sink) *Router {
	return &Router{sup: sup, st: st, logs: logs}
}

// SetHistoryReader enables the /history endpoint.
func (r *Router) SetHistoryReader(h HistoryReader) { r.hist = h }

// Handler returns an http.Handler powered by gin that can be mounted in
// any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery(), corsAllowAll())

	g.GET("/", r.handleRoot)
	g.GET("/health", r.handleHealth)
	g.POST("/upload", r.handleUpload)
	g.POST("/start/:name", r.handleStart)
	g.POST("/stop/:name", r.handleStop)
	g.GET("/scripts", r.handleScripts)
	g.GET("/status/:name", r.handleStatus)
	g.GET("/logs/:name", r.handleLogs)
	g.GET("/dashboard", r.handleDashboard)
	g.POST("/restart-all", r.handleRestartAll)
	g.GET("/history", r.handleHistory)
	g.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, r *Router) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

// --- Handlers ---

func (r *Router) handleRoot(c *gin.Context) {
	writeJSON(c, http.StatusOK, stamped(gin.H{
		"name":        "Code Runner Dashboard",
		"version":     "1.0.0",
		"description": "control plane for running uploaded scripts as supervised processes",
		"endpoints": gin.H{
			"upload_script": "POST /upload",
			"start_script":  "POST /start/{script_name}",
			"stop_script":   "POST /stop/{script_name}",
			"list_scripts":  "GET /scripts",
			"get_status":    "GET /status/{script_name}",
			"get_logs":      "GET /logs/{script_name}",
			"dashboard":     "GET /dashboard",
			"restart_all":   "POST /restart-all",
			"health":        "GET /health",
		},
	}))
}

func (r *Router) handleHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, stamped(gin.H{
		"status":            "healthy",
		"running_processes": r.sup.Count(),
	}))
}

func (r *Router) handleUpload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		failJSON(c, http.StatusBadRequest, codeBadRequest, "multipart field 'file' required: "+err.Error())
		return
	}
	if !isSafeName(fh.Filename) {
		failJSON(c, http.StatusBadRequest, codeInvalidName, "invalid filename: allowed [A-Za-z0-9._-], no path separators")
		return
	}
	if fh.Size > maxUploadBytes {
		failJSON(c, http.StatusBadRequest, codeBadRequest, "file too large")
		return
	}
	src, err := fh.Open()
	if err != nil {
		failJSON(c, http.StatusInternalServerError, codeIOError, "read upload: "+err.Error())
		return
	}
	defer func() { _ = src.Close() }()
	content, err := io.ReadAll(io.LimitReader(src, maxUploadBytes+1))
	if err != nil {
		failJSON(c, http.StatusInternalServerError, codeIOError, "read upload: "+err.Error())
		return
	}
	if len(content) > maxUploadBytes {
		failJSON(c, http.StatusBadRequest, codeBadRequest, "file too large")
		return
	}
	art, err := r.st.Save(fh.Filename, content)
	if err != nil {
		failJSON(c, http.StatusInternalServerError, codeIOError, "save script: "+err.Error())
		return
	}
	writeJSON(c, http.StatusOK, stamped(gin.H{
		"message":  "script uploaded",
		"filename": art.Name,
		"path":     art.Path,
		"size":     art.SizeBytes,
	}))
}

func (r *Router) handleStart(c *gin.Context) {
	name := c.Param("name")
	if !isSafeName(name) {
		failJSON(c, http.StatusBadRequest, codeInvalidName, "invalid script name")
		return
	}
	inst, err := r.sup.Start(name)
	if err != nil {
		switch {
		case errors.Is(err, supervisor.ErrNotFound):
			failJSON(c, http.StatusNotFound, codeNotFound, err.Error())
		default:
			failJSON(c, http.StatusInternalServerError, codeSpawnFailed, err.Error())
		}
		return
	}
	writeJSON(c, http.StatusOK, stamped(gin.H{
		"message":     "script started",
		"script_name": inst.ScriptName,
		"pid":         inst.PID,
		"start_time":  inst.StartedAt,
	}))
}

func (r *Router) handleStop(c *gin.Context) {
	name := c.Param("name")
	if !isSafeName(name) {
		failJSON(c, http.StatusBadRequest, codeInvalidName, "invalid script name")
		return
	}
	if err := r.sup.Stop(name); err != nil {
		switch {
		case errors.Is(err, supervisor.ErrNotRunning):
			failJSON(c, http.StatusNotFound, codeNotRunning, err.Error())
		default:
			failJSON(c, http.StatusInternalServerError, codeStopFailed, err.Error())
		}
		return
	}
	writeJSON(c, http.StatusOK, stamped(gin.H{
		"message":     "script stopped",
		"script_name": name,
	}))
}

func (r *Router) handleScripts(c *gin.Context) {
	arts, err := r.st.List()
	if err != nil {
		failJSON(c, http.StatusInternalServerError, codeIOError, err.Error())
		return
	}
	scripts := make([]gin.H, 0, len(arts))
	for _, a := range arts {
		scripts = append(scripts, gin.H{
			"name":       a.Name,
			"size":       a.SizeBytes,
			"created":    a.CreatedAt,
			"is_running": r.sup.Running(a.Name),
		})
	}
	writeJSON(c, http.StatusOK, stamped(gin.H{
		"total":   len(scripts),
		"scripts": scripts,
	}))
}

func (r *Router) handleStatus(c *gin.Context) {
	name := c.Param("name")
	if !isSafeName(name) {
		failJSON(c, http.StatusBadRequest, codeInvalidName, "invalid script name")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), statusTimeout)
	defer cancel()
	st := r.sup.Status(ctx, name)

	resp := gin.H{
		"script_name": st.ScriptName,
		"status":      st.State,
	}
	switch st.State {
	case supervisor.StateRunning:
		resp["pid"] = st.PID
		resp["start_time"] = st.StartedAt
		resp["cpu_percent"] = st.CPUPercent
		resp["memory_mb"] = st.MemoryMB
	case supervisor.StateError:
		resp["pid"] = st.PID
		resp["message"] = st.Message
	}
	writeJSON(c, http.StatusOK, stamped(resp))
}

func (r *Router) handleLogs(c *gin.Context) {
	name := c.Param("name")
	if !isSafeName(name) {
		failJSON(c, http.StatusBadRequest, codeInvalidName, "invalid script name")
		return
	}
	lines := defaultTailLines
	if raw := c.Query("lines"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			failJSON(c, http.StatusBadRequest, codeBadRequest, "lines must be a non-negative integer")
			return
		}
		lines = n
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), tailTimeout)
	defer cancel()
	tail, err := r.logs.TailFile(ctx, r.sup.LogPath(name), lines)
	if err != nil {
		failJSON(c, http.StatusInternalServerError, codeIOError, err.Error())
		return
	}
	if !tail.Exists {
		writeJSON(c, http.StatusOK, stamped(gin.H{
			"script_name": name,
			"logs":        "no logs yet",
		}))
		return
	}
	writeJSON(c, http.StatusOK, stamped(gin.H{
		"script_name": name,
		"logs":        tail.Text,
		"total_lines": tail.TotalLines,
	}))
}

func (r *Router) handleDashboard(c *gin.Context) {
	arts, err := r.st.List()
	if err != nil {
		failJSON(c, http.StatusInternalServerError, codeIOError, err.Error())
		return
	}
	scripts := make([]gin.H, 0, len(arts))
	for _, a := range arts {
		state := supervisor.StateStopped
		if r.sup.Running(a.Name) {
			state = supervisor.StateRunning
		}
		scripts = append(scripts, gin.H{"name": a.Name, "status": state})
	}
	writeJSON(c, http.StatusOK, stamped(gin.H{
		"total_scripts":   len(scripts),
		"running_scripts": r.sup.Count(),
		"scripts":         scripts,
	}))
}

func (r *Router) handleRestartAll(c *gin.Context) {
	res := r.sup.RestartAll(c.Request.Context())
	writeJSON(c, http.StatusOK, stamped(gin.H{
		"message":   "restart complete",
		"restarted": res.Restarted,
		"failed":    res.Failed,
	}))
}

func (r *Router) handleHistory(c *gin.Context) {
	if r.hist == nil {
		failJSON(c, http.StatusNotFound, codeNotFound, "history is not enabled")
		return
	}
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	events, err := r.hist.Recent(c.Request.Context(), limit)
	if err != nil {
		failJSON(c, http.StatusInternalServerError, codeIOError, err.Error())
		return
	}
	writeJSON(c, http.StatusOK, stamped(gin.H{
		"total":  len(events),
		"events": events,
	}))
}
