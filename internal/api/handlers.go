package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/labelspool/internal/history"
	"github.com/mattjoyce/labelspool/internal/printer"
	"github.com/mattjoyce/labelspool/internal/submit"
)

const (
	maxBodyBytes      = 1 << 20
	maxFilesPerPrint  = 500
	defaultHistoryLen = 50
	maxHistoryLen     = 1000
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		StartedAt:     s.startedAt.UTC(),
		Subscribers:   s.deps.Events.Subscribers(),
		DroppedEvents: s.deps.Events.Dropped(),
		Version:       s.config.Version,
	}
	if s.deps.Selection != nil {
		sel, err := s.deps.Selection.Load()
		if err != nil {
			s.logger.Warn("failed to load selection for healthz", "error", err)
			resp.Status = "degraded"
		}
		resp.Printer = sel.Printer
		resp.Folder = sel.Folder
	}
	if s.deps.Monitor != nil {
		resp.InFlight = len(s.deps.Monitor.InFlight())
	}
	respondJSON(w, http.StatusOK, resp)
}

// handlePrint handles POST /print. It blocks until every file has been
// dispatched and reports each one.
func (s *Server) handlePrint(w http.ResponseWriter, r *http.Request) {
	var req PrintRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	files := make([]string, 0, len(req.Files))
	for _, f := range req.Files {
		if f = strings.TrimSpace(f); f != "" {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		s.writeError(w, http.StatusBadRequest, "files must list at least one path")
		return
	}
	if len(files) > maxFilesPerPrint {
		s.writeError(w, http.StatusBadRequest, "too many files in one request")
		return
	}

	target := strings.TrimSpace(req.Printer)
	if target == "" && s.deps.Selection != nil {
		sel, err := s.deps.Selection.Load()
		if err != nil {
			s.logger.Warn("failed to load selection", "error", err)
		}
		target = sel.Printer
	}
	if target == "" {
		s.writeError(w, http.StatusConflict, "no printer selected")
		return
	}

	results := s.deps.Submitter.Submit(r.Context(), submit.Abs(files), printer.Target(target))

	resp := PrintResponse{
		Results:    make([]FileResult, 0, len(results)),
		AllPrinted: submit.AllPrinted(results),
	}
	for _, res := range results {
		resp.Results = append(resp.Results, FileResultFrom(res))
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleHistory handles GET /history?limit=N.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLen
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n > maxHistoryLen {
			n = maxHistoryLen
		}
		limit = n
	}

	entries, err := s.deps.History.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	respondJSON(w, http.StatusOK, HistoryResponse{Entries: entries})
}

// handlePrinters handles GET /printers.
func (s *Server) handlePrinters(w http.ResponseWriter, r *http.Request) {
	names, err := s.deps.Printers.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list printers", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list printers")
		return
	}
	if names == nil {
		names = []string{}
	}
	resp := PrintersResponse{Printers: names}
	if s.deps.Selection != nil {
		if sel, err := s.deps.Selection.Load(); err == nil {
			resp.Selected = sel.Printer
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleGetSelection handles GET /selection.
func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	sel, err := s.deps.Selection.Load()
	if err != nil {
		s.logger.Error("failed to load selection", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load selection")
		return
	}
	respondJSON(w, http.StatusOK, sel)
}

// handlePutSelection handles PUT /selection.
func (s *Server) handlePutSelection(w http.ResponseWriter, r *http.Request) {
	var req SelectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sel, err := s.deps.Selection.Load()
	if err != nil {
		s.logger.Warn("replacing unreadable selection", "error", err)
	}
	if req.Printer != nil {
		sel.Printer = strings.TrimSpace(*req.Printer)
	}
	if req.Folder != nil {
		folder := strings.TrimSpace(*req.Folder)
		if folder != "" {
			info, err := os.Stat(folder)
			if err != nil || !info.IsDir() {
				s.writeError(w, http.StatusBadRequest, "folder is not a readable directory")
				return
			}
		}
		sel.Folder = folder
	}

	if err := s.deps.Selection.Save(sel); err != nil {
		s.logger.Error("failed to save selection", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to save selection")
		return
	}
	s.logger.Info("selection updated", "printer", sel.Printer, "folder", sel.Folder)

	// Read back so the response reflects config fallbacks.
	saved, err := s.deps.Selection.Load()
	if err != nil {
		saved = sel
	}
	respondJSON(w, http.StatusOK, saved)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	return nil
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
