package server

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/applications-dashboard/internal/dashboard"
	"github.com/jonathan/applications-dashboard/internal/db"
	"github.com/jonathan/applications-dashboard/internal/parsing"
	"github.com/jonathan/applications-dashboard/internal/rendering"
)

// maxCheckBody caps the size of text accepted by /api/check.
const maxCheckBody = 4 << 20

// keepAliveInterval is how often an idle event stream gets a comment line.
const keepAliveInterval = 25 * time.Second

// Status messages for the delete and clear controls, which do not mutate anything.
const (
	MessageDeleteNotImplemented = "Delete last application is not implemented"
	MessageClearNotImplemented  = "Clear all applications is not implemented"
)

// CheckResponse is the response for /api/check
type CheckResponse struct {
	Valid   bool   `json:"valid"`
	Records int    `json:"records"`
	Error   string `json:"error,omitempty"`
}

// HistoryResponse is the response for /api/history
type HistoryResponse struct {
	Enabled   bool          `json:"enabled"`
	Snapshots []db.Snapshot `json:"snapshots"`
}

func (s *Server) currentView() rendering.View {
	return rendering.BuildView(s.dashboard.Snapshot(), s.render)
}

// handleIndex loads the source and renders the dashboard page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	// A failed load is shown in the page status; the page itself still renders.
	if err := s.dashboard.Refresh(r.Context()); err != nil {
		s.logger.Debug("page load refresh failed", zap.Error(err))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := rendering.WriteHTML(w, s.currentView()); err != nil {
		s.logger.Error("failed to render dashboard", zap.Error(err))
		http.Error(w, "failed to render dashboard", http.StatusInternalServerError)
	}
}

// handleSourceFile serves the raw applications file when the source is local.
func (s *Server) handleSourceFile(w http.ResponseWriter, r *http.Request) {
	if s.sourcePath == "" {
		s.errorResponse(w, http.StatusNotFound, "source is not a local file")
		return
	}
	info, err := os.Stat(s.sourcePath)
	if err != nil || info.IsDir() {
		s.errorResponse(w, http.StatusNotFound, "applications file not found")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, s.sourcePath)
}

// handleDashboard returns the current view without reloading.
func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.currentView())
}

// handleRefresh reloads the source. The body is the resulting view in both outcomes.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	err := s.dashboard.Refresh(r.Context())
	s.jsonResponse(w, HTTPStatus(err), s.currentView())
}

// handleCheck parses the request body with the configured options without touching the dashboard.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCheckBody))
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), "Invalid request body: "+err.Error())
		return
	}

	records, err := parsing.Parse(string(body), s.parse)
	if err != nil {
		s.jsonResponse(w, HTTPStatus(err), CheckResponse{Error: err.Error()})
		return
	}
	s.jsonResponse(w, http.StatusOK, CheckResponse{Valid: true, Records: len(records)})
}

// handleEvents streams a dashboard event for the current state and then for every change.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	updates, cancel := s.dashboard.Subscribe()
	defer cancel()

	w.WriteHeader(http.StatusOK)
	if err := sse.WriteEvent("dashboard", s.currentView()); err != nil {
		return
	}

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.closing:
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := sse.WriteEvent("dashboard", rendering.BuildView(snap, s.render)); err != nil {
				s.logger.Debug("event stream closed", zap.Error(err))
				return
			}
		case <-keepAlive.C:
			if err := sse.WriteComment("keepalive"); err != nil {
				return
			}
		}
	}
}

// handleHistory lists stored snapshots, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, db.DefaultListLimit)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	if s.history == nil {
		s.jsonResponse(w, http.StatusOK, HistoryResponse{Enabled: false, Snapshots: []db.Snapshot{}})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	snapshots, err := s.history.ListSnapshots(ctx, limit)
	if err != nil {
		s.logger.Error("failed to list snapshots", zap.Error(err))
		s.errorResponse(w, HTTPStatus(err), "failed to list snapshots")
		return
	}
	if snapshots == nil {
		snapshots = []db.Snapshot{}
	}
	s.jsonResponse(w, http.StatusOK, HistoryResponse{Enabled: true, Snapshots: snapshots})
}

func (s *Server) handleDeleteLast(w http.ResponseWriter, _ *http.Request) {
	s.notImplemented(w, MessageDeleteNotImplemented)
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	s.notImplemented(w, MessageClearNotImplemented)
}

// NotImplementedResponse is the body of a 501 from the delete and clear endpoints.
// Status carries the info message the page shows.
type NotImplementedResponse struct {
	Error  string               `json:"error"`
	Status rendering.StatusView `json:"status"`
}

// notImplemented shows message as an info status and answers 501. The source is never modified.
func (s *Server) notImplemented(w http.ResponseWriter, message string) {
	s.dashboard.SetStatus(message, dashboard.SeverityInfo)
	s.jsonResponse(w, HTTPStatus(ErrNotImplemented), NotImplementedResponse{
		Error: message,
		Status: rendering.StatusView{
			Message:  message,
			Severity: string(dashboard.SeverityInfo),
		},
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}
