package web

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/rosterimport/internal/core"
	"github.com/JonMunkholm/rosterimport/internal/logging"
	"github.com/go-chi/chi/v5"
)

// importResponse wraps a result with the message of a run-level failure.
type importResponse struct {
	*core.ImportResult
	Error *ErrorResponse `json:"error,omitempty"`
}

// handleImport accepts a CSV as a multipart "file" field or as the raw body.
//
// Query parameters:
//   - classId: class to attach imported subjects to
//   - wait: block until account provisioning finishes
//   - dryRun: validate without writing
//   - async: start a background run and return its id
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	kind, err := core.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	fileName, data, err := s.readUpload(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	q := r.URL.Query()
	opts := core.Options{
		ClassID:        strings.TrimSpace(q.Get("classId")),
		WaitForEffects: queryBool(q.Get("wait")),
		DryRun:         queryBool(q.Get("dryRun")),
	}

	log := logging.WithFields(r.Context(), "kind", kind, "file", fileName, "bytes", len(data))

	if queryBool(q.Get("async")) {
		runID, err := s.service.StartImport(r.Context(), kind, fileName, data, opts)
		if err != nil {
			respondError(w, r, err)
			return
		}
		log.Info("import started", "run_id", runID)
		w.Header().Set("Location", "/api/runs/"+runID)
		writeJSON(w, http.StatusAccepted, map[string]string{
			"runId":    runID,
			"progress": "/api/runs/" + runID + "/progress",
		})
		return
	}

	result, err := s.service.Import(r.Context(), kind, bytes.NewReader(data), opts, nil)
	if result == nil {
		respondError(w, r, err)
		return
	}
	log.Info("import finished",
		"run_id", result.RunID,
		"state", result.State,
		"succeeded", result.Succeeded,
		"failed", result.Failed(),
	)
	s.writeResult(w, r, result, err)
}

// handleImportStatus reports how many import slots are in use.
func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.LimiterStatus())
}

// handleImportResult returns a background run's result, or its progress
// with 202 while it is still running.
func (s *Server) handleImportResult(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	progress, err := s.service.Progress(runID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !progress.State.Terminal() && !queryBool(r.URL.Query().Get("wait")) {
		writeJSON(w, http.StatusAccepted, progress)
		return
	}

	result, err := s.service.Result(r.Context(), runID)
	if result == nil {
		if err == nil {
			err = fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
		}
		respondError(w, r, err)
		return
	}
	s.writeResult(w, r, result, err)
}

// handleCancelImport cancels a background run.
func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if err := s.service.Cancel(runID); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// handleImportProgress streams a background run's progress via Server-Sent
// Events. Supports resumption via the lastEventId query parameter.
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	lastEventIDStr := r.URL.Query().Get("lastEventId")
	if lastEventIDStr == "" {
		lastEventIDStr = r.Header.Get("Last-Event-ID")
	}
	lastEventID := -1
	if lastEventIDStr != "" {
		if n, err := strconv.Atoi(lastEventIDStr); err == nil {
			lastEventID = n
		}
	}

	progressCh, err := s.service.SubscribeProgress(runID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				final, err := s.service.Progress(runID)
				if err != nil {
					fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				} else {
					data, _ := json.Marshal(final)
					fmt.Fprintf(w, "event: complete\ndata: %s\n\n", data)
				}
				rc.Flush()
				return
			}

			// Processed rows only grow, so they double as the event id.
			if progress.Processed <= lastEventID && !progress.State.Terminal() {
				continue
			}
			lastEventID = progress.Processed

			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", progress.Processed, data)
			if err := rc.Flush(); err != nil {
				logging.FromContext(r.Context()).Warn("progress stream flush failed", "run_id", runID, "error", err)
				return
			}

		case <-r.Context().Done():
			return
		}
	}
}

// handleExportRowErrors exports a run's rejected rows as CSV.
func (s *Server) handleExportRowErrors(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	progress, err := s.service.Progress(runID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !progress.State.Terminal() {
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "import still running",
			Message: "Import is still running",
			Action:  "Wait for the import to finish, then download the errors",
			Code:    "IMP008",
		})
		return
	}

	result, err := s.service.Result(r.Context(), runID)
	if result == nil {
		if err == nil {
			err = fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
		}
		respondError(w, r, err)
		return
	}

	filename := fmt.Sprintf("%s_errors_%s.csv", result.Kind, result.StartedAt.Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	csvWriter := csv.NewWriter(w)
	csvWriter.Write([]string{"row", "reason"})
	for _, re := range result.RowErrors {
		for _, reason := range re.Reasons {
			csvWriter.Write([]string{strconv.Itoa(re.Row), reason})
		}
	}
	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		logging.FromContext(r.Context()).Error("export row errors", "run_id", runID, "error", err)
	}
}

// writeResult renders result as HTML for browsers and JSON otherwise. A
// run-level error that still produced a result is reported alongside it.
func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, result *core.ImportResult, runErr error) {
	status := http.StatusOK
	if runErr != nil && result.Succeeded == 0 {
		status = statusFor(runErr)
	}

	if wantsHTML(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		if runErr != nil {
			_ = errorAlert(core.MapError(runErr)).Render(r.Context(), w)
		}
		if err := importResultView(result).Render(r.Context(), w); err != nil {
			logging.FromContext(r.Context()).Error("render import result", "error", err)
		}
		return
	}

	resp := importResponse{ImportResult: result}
	if runErr != nil {
		msg := core.MapError(runErr)
		resp.Error = &ErrorResponse{
			Error:   runErr.Error(),
			Message: msg.Message,
			Action:  msg.Action,
			Code:    msg.Code,
		}
	}
	writeJSON(w, status, resp)
}

// readUpload loads the request's CSV into memory, bounded by the
// configured maximum size.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	maxSize := s.cfg.Import.MaxFileSize
	if maxSize > 0 {
		// Multipart framing needs a little headroom above the file itself.
		r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return "", nil, uploadError(err, maxSize)
		}
		if maxSize > 0 && int64(len(data)) > maxSize {
			return "", nil, fmt.Errorf("%w: %d bytes exceeds %d", core.ErrFileTooLarge, len(data), maxSize)
		}
		if len(data) == 0 {
			return "", nil, errNoFile
		}
		return r.URL.Query().Get("fileName"), data, nil
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return "", nil, uploadError(err, maxSize)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, errNoFile
	}
	defer file.Close()

	if maxSize > 0 && header.Size > maxSize {
		return "", nil, fmt.Errorf("%w: %d bytes exceeds %d", core.ErrFileTooLarge, header.Size, maxSize)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, fmt.Errorf("read upload: %w", err)
	}

	// Form fields fill in options missing from the query string.
	q := r.URL.Query()
	for _, key := range []string{"classId", "wait", "dryRun", "async"} {
		if v := r.FormValue(key); v != "" && q.Get(key) == "" {
			q.Set(key, v)
		}
	}
	r.URL.RawQuery = q.Encode()

	return header.Filename, data, nil
}

const (
	multipartOverhead = 64 << 10
	multipartMemory   = 32 << 20
)

func uploadError(err error, maxSize int64) error {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return fmt.Errorf("%w: exceeds %d bytes", core.ErrFileTooLarge, maxSize)
	}
	return fmt.Errorf("%w: %v", errNoFile, err)
}

func queryBool(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}
