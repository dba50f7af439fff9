package web

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bookwise/catalog-import/internal/catalog"
)

// multipartOverhead covers boundary markers and part headers so a file at
// exactly the size limit still makes it through MaxBytesReader.
const multipartOverhead = 1 << 20

// handleImport accepts a multipart upload in the "file" field and either
// previews it (dryRun=true) or commits it. A dry run never mutates anything.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			s.respondError(w, r, catalog.ErrFileTooLarge)
			return
		}
		s.respondBadRequest(w, r, "multipart form must include a \"file\" field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			s.respondError(w, r, catalog.ErrFileTooLarge)
			return
		}
		s.respondError(w, r, err)
		return
	}

	req := catalog.ImportRequest{
		Filename: header.Filename,
		Data:     data,
		DryRun:   parseBoolParam(r, "dryRun"),
	}

	if req.DryRun {
		result, err := s.service.Preview(r.Context(), req)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	result, err := s.service.Import(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleListRuns returns recent import runs, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.respondBadRequest(w, r, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := s.service.ListRuns(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if runs == nil {
		runs = []catalog.ImportRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleGetRun returns one import run by ID.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		s.respondBadRequest(w, r, "runID must be a valid UUID")
		return
	}

	run, err := s.service.GetRun(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// respondBadRequest reports a malformed request without going through
// MapError; the message is already client-facing.
func (s *Server) respondBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   message,
		Message: message,
		Action:  "Correct the request and try again",
		Code:    "REQ001",
	})
}

// parseBoolParam reads a boolean from the query string first, then the form.
// Unset or unparsable means false.
func parseBoolParam(r *http.Request, name string) bool {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		raw = r.FormValue(name)
	}
	if raw == "" {
		return false
	}
	v, err := strconv.ParseBool(raw)
	return err == nil && v
}
