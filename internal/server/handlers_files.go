package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"
)

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	fileID := strings.TrimSpace(r.PathValue("fileID"))
	file, err := s.boards.PutFile(r.Context(), principal.User, id, fileID, r.Header.Get("Content-Type"), r.Body)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, file)
}

func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	fileID := strings.TrimSpace(r.PathValue("fileID"))
	file, rc, err := s.boards.OpenFile(r.Context(), principal.User, id, fileID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer rc.Close()

	etag := `"` + file.SHA256 + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")
	if match := r.Header.Get("If-None-Match"); match != "" && strings.Contains(match, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", file.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(file.SizeBytes, 10))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if file.MimeType == "image/svg+xml" {
		w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; sandbox")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.log().Debug("file download interrupted", "board_id", id, "file_id", fileID, "error", err)
	}
}
