package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/pdftables/constants"
	"github.com/joseph-ayodele/pdftables/internal/common"
	"github.com/joseph-ayodele/pdftables/internal/pipeline"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	defaultRunLimit = 20
	maxRunLimit     = 200
)

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "PDF Table Extractor API is running"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "healthy",
		"api_key_configured": s.deps.Credentials(),
	})
}

// handleExtract handles POST /extract: multipart upload in, workbook out.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "Uploaded file is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if !constants.IsPDF(name) {
		writeError(w, http.StatusBadRequest, "Only PDF files are supported")
		return
	}

	columns, msg := parseColumns(r.FormValue("columns"))
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	sample := 0
	if raw := strings.TrimSpace(r.FormValue("sample_pages")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "sample_pages must be an integer")
			return
		}
		if n > 0 {
			sample = n
		}
	}

	if !s.deps.Credentials() {
		writeError(w, http.StatusInternalServerError, "Server configuration error: Missing API key")
		return
	}

	tmp, err := s.saveUpload(file, name)
	if tmp != "" {
		defer s.removeUpload(tmp)
	}
	if err != nil {
		s.logger.Error("http.extract.save_failed", append(common.LogAttrs(ctx), "file", name, "error", err)...)
		writeError(w, http.StatusInternalServerError, "Server error: "+err.Error())
		return
	}

	if s.deps.Validate != nil {
		if err := s.deps.Validate(tmp); err != nil {
			s.logger.Warn("http.extract.invalid_pdf", append(common.LogAttrs(ctx), "file", name, "error", err)...)
			writeError(w, http.StatusBadRequest, "Uploaded file is not a readable PDF")
			return
		}
	}

	s.logger.Info("http.extract.accepted", append(common.LogAttrs(ctx),
		"file", name,
		"columns", len(columns),
		"sample_pages", sample,
	)...)

	job := pipeline.Job{
		PDFPath:      tmp,
		Columns:      columns,
		Instructions: r.FormValue("extra_instructions"),
		SamplePages:  sample,
		Ephemeral:    true,
	}
	ch, err := s.deps.Queue.Submit(ctx, job)
	if err != nil {
		if errors.Is(err, common.ErrQueueClosed) {
			writeError(w, http.StatusServiceUnavailable, "Server is shutting down")
			return
		}
		writeError(w, http.StatusInternalServerError, "Server error: "+err.Error())
		return
	}

	// Wait for the run even if the client is gone; the upload must outlive it.
	out := <-ch
	if out.Err != nil {
		status := http.StatusInternalServerError
		msg := "Server error: " + out.Err.Error()
		if common.IsValidationError(out.Err) || errors.Is(out.Err, common.ErrInvalidInput) {
			status = http.StatusBadRequest
			msg = out.Err.Error()
		}
		writeError(w, status, msg)
		return
	}
	if out.Result.OutputPath == "" {
		writeError(w, http.StatusInternalServerError, "Extraction failed. No data could be extracted from the PDF.")
		return
	}

	s.logger.Info("http.extract.ok", append(common.LogAttrs(ctx),
		"file", name,
		"rows", out.Result.Rows,
		"queued_ms", out.Queued.Milliseconds(),
		"elapsed_ms", out.Duration.Milliseconds(),
	)...)
	s.sendWorkbook(w, out.Result.OutputPath, downloadName(name))
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		writeError(w, http.StatusNotFound, "Run history is not enabled")
		return
	}
	limit := defaultRunLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunLimit)
	}
	runs, err := s.deps.Runs.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("http.runs.list_failed", append(common.LogAttrs(r.Context()), "error", err)...)
		writeError(w, http.StatusInternalServerError, "Server error: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

// parseColumns returns the normalized column list or the client message for
// a bad value.
func parseColumns(raw string) ([]string, string) {
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, "Invalid columns format. Must be valid JSON array."
	}
	list, ok := decoded.([]any)
	if !ok || len(list) == 0 {
		return nil, "Columns must be a non-empty list"
	}
	cols := make([]string, 0, len(list))
	for _, v := range list {
		switch t := v.(type) {
		case string:
			cols = append(cols, t)
		case nil:
		default:
			cols = append(cols, fmt.Sprint(t))
		}
	}
	cols = common.NormalizeColumns(cols)
	if len(cols) == 0 {
		return nil, "Columns must be a non-empty list"
	}
	return cols, ""
}

func (s *Server) saveUpload(src io.Reader, name string) (string, error) {
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(s.cfg.UploadDir, uuid.NewString()+"_"+name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		return path, fmt.Errorf("write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		return path, fmt.Errorf("close upload: %w", err)
	}
	return path, nil
}

func (s *Server) removeUpload(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("http.upload.cleanup_failed", "path", path, "error", err)
		return
	}
	s.logger.Debug("http.upload.removed", "path", path)
}

func (s *Server) sendWorkbook(w http.ResponseWriter, path, filename string) {
	f, err := os.Open(path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Extraction failed. No data could be extracted from the PDF.")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", contentDisposition(filename))
	if st, err := f.Stat(); err == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(st.Size(), 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		s.logger.Warn("http.extract.send_failed", "path", path, "error", err)
	}
}

// contentDisposition quotes or encodes filename as needed.
func contentDisposition(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}

// downloadName maps report.pdf to extracted_report.xlsx.
func downloadName(name string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	return "extracted_" + stem + ".xlsx"
}
