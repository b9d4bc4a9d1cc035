package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/go-chi/chi/v5"

	"github.com/embedops/mediacore/internal/service/logs"
)

// LogsHandler serves the in-memory log ring buffer and its live-tail stream.
type LogsHandler struct {
	app               *App
	heartbeatInterval time.Duration
}

// NewLogsHandler creates a new logs handler.
func NewLogsHandler(app *App) *LogsHandler {
	return &LogsHandler{app: app, heartbeatInterval: logs.HeartbeatInterval}
}

// LogEntryResponse is a log entry as returned over the API.
type LogEntryResponse struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Module    string         `json:"module,omitempty"`
	File      string         `json:"file,omitempty"`
	Line      int            `json:"line,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// LogStatsResponse summarizes the ring buffer's contents.
type LogStatsResponse struct {
	TotalLogs        int64            `json:"total_logs"`
	LogsByLevel      map[string]int64 `json:"logs_by_level"`
	LogsByModule     map[string]int64 `json:"logs_by_module"`
	RecentErrors     []LogEntryResponse `json:"recent_errors"`
	LogRatePerMinute float64          `json:"log_rate_per_minute"`
}

// LogLogEvent wraps LogEntryResponse so huma's SSE schema generator has a
// named type for the "log" event.
type LogLogEvent LogEntryResponse

// SSELogsStreamInput are the query parameters for the live-tail stream.
type SSELogsStreamInput struct {
	Level   string `query:"level" doc:"Filter by exact log level (debug, info, warn, error)"`
	Module  string `query:"module" doc:"Filter by module name"`
	Initial int    `query:"initial" default:"50" minimum:"0" maximum:"500" doc:"Recent entries to replay on connect"`
}

func logEntryFromService(entry logs.LogEntry) LogEntryResponse {
	return LogEntryResponse{
		ID:        entry.ID,
		Timestamp: entry.Timestamp,
		Level:     entry.Level,
		Message:   entry.Message,
		Module:    entry.Module,
		File:      entry.File,
		Line:      entry.Line,
		Fields:    entry.Fields,
	}
}

func logStatsFromService(stats logs.LogStats) LogStatsResponse {
	resp := LogStatsResponse{
		TotalLogs:        stats.TotalLogs,
		LogsByLevel:      stats.LogsByLevel,
		LogsByModule:     stats.LogsByModule,
		RecentErrors:     make([]LogEntryResponse, len(stats.RecentErrors)),
		LogRatePerMinute: stats.LogRatePerMinute,
	}
	for i, entry := range stats.RecentErrors {
		resp.RecentErrors[i] = logEntryFromService(entry)
	}
	return resp
}

// GetLogStatsInput is the input for the log-stats endpoint.
type GetLogStatsInput struct{}

// GetLogStatsOutput is the output for the log-stats endpoint.
type GetLogStatsOutput struct {
	Body LogStatsResponse
}

// GetRecentLogsInput is the input for the recent-logs endpoint.
type GetRecentLogsInput struct {
	Limit int `query:"limit" default:"100" doc:"Maximum number of entries to return (1-1000)"`
}

// GetRecentLogsOutput is the output for the recent-logs endpoint.
type GetRecentLogsOutput struct {
	Body struct {
		Logs []LogEntryResponse `json:"logs"`
	}
}

// Register registers the stats and recent-logs operations, plus a
// placeholder SSE operation so the stream appears in the OpenAPI doc (the
// live handler is mounted separately via Mount, since huma doesn't stream
// chunked SSE responses the way a raw http.ResponseWriter does).
func (h *LogsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getLogStats",
		Method:      "GET",
		Path:        "/api/v1/logs/stats",
		Summary:     "Log ring-buffer statistics",
		Tags:        []string{"Logs"},
	}, h.GetStats)

	huma.Register(api, huma.Operation{
		OperationID: "getRecentLogs",
		Method:      "GET",
		Path:        "/api/v1/logs/recent",
		Summary:     "Most recent log entries",
		Tags:        []string{"Logs"},
	}, h.GetRecentLogs)

	sse.Register(api, huma.Operation{
		OperationID: "logsStream",
		Method:      "GET",
		Path:        "/api/v1/logs/stream",
		Summary:     "Live-tail log stream",
		Description: "Server-Sent Events stream of log entries as they are emitted.",
		Tags:        []string{"Logs"},
	}, map[string]any{
		"log": LogLogEvent{},
	}, func(ctx context.Context, input *SSELogsStreamInput, send sse.Sender) {
		<-ctx.Done()
	})
}

// Mount registers the real SSE stream handler on router.
func (h *LogsHandler) Mount(router chi.Router) {
	router.Get("/api/v1/logs/stream", h.handleSSEStream)
}

// GetStats returns current log statistics.
func (h *LogsHandler) GetStats(ctx context.Context, input *GetLogStatsInput) (*GetLogStatsOutput, error) {
	return &GetLogStatsOutput{Body: logStatsFromService(h.app.Logs.GetStats())}, nil
}

// GetRecentLogs returns the most recent log entries.
func (h *LogsHandler) GetRecentLogs(ctx context.Context, input *GetRecentLogsInput) (*GetRecentLogsOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	entries := h.app.Logs.GetRecentLogs(limit)
	out := &GetRecentLogsOutput{}
	out.Body.Logs = make([]LogEntryResponse, len(entries))
	for i, entry := range entries {
		out.Body.Logs[i] = logEntryFromService(entry)
	}
	return out, nil
}

func (h *LogsHandler) handleSSEStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	levelFilter := r.URL.Query().Get("level")
	moduleFilter := r.URL.Query().Get("module")

	initialCount := 50
	if countStr := r.URL.Query().Get("initial"); countStr != "" {
		if count, err := strconv.Atoi(countStr); err == nil && count >= 0 && count <= 500 {
			initialCount = count
		}
	}

	sub := h.app.Logs.Subscribe(r.Context())
	rc := http.NewResponseController(w)
	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()

	fmt.Fprintf(w, ":connected\n\n")
	if err := rc.Flush(); err != nil {
		return
	}

	if initialCount > 0 {
		for _, entry := range h.app.Logs.GetRecentLogs(initialCount) {
			if !matchesLogFilter(entry, levelFilter, moduleFilter) {
				continue
			}
			if err := writeSSELogEvent(w, entry); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ":heartbeat %d\n\n", time.Now().Unix())
			if err := rc.Flush(); err != nil {
				return
			}
		case entry, ok := <-sub.Events:
			if !ok {
				return
			}
			if !matchesLogFilter(*entry, levelFilter, moduleFilter) {
				continue
			}
			if err := writeSSELogEvent(w, *entry); err != nil {
				h.app.Logger.Debug("log SSE write failed, client likely disconnected", slog.String("error", err.Error()))
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func matchesLogFilter(entry logs.LogEntry, level, module string) bool {
	if level != "" && entry.Level != level {
		return false
	}
	if module != "" && entry.Module != module {
		return false
	}
	return true
}

func writeSSELogEvent(w http.ResponseWriter, entry logs.LogEntry) error {
	data, err := json.Marshal(logEntryFromService(entry))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: log\ndata: %s\n\n", data)
	return err
}
