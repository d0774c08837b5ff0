package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"inkboard/internal/format"
)

func (s *Server) handleExportBoard(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	kind, err := format.ParseKind(r.URL.Query().Get("format"))
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(err, ErrCodeInvalidQuery))
		return
	}

	s.withLimiter(w, r, s.exportLimiter, "export", func() {
		doc, err := s.boards.Export(r.Context(), principal.User, id)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", kind.ContentType())
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.%s"`, id, kind))
		w.WriteHeader(http.StatusOK)
		if err := format.EncodeBoard(w, doc, kind); err != nil {
			s.log().Error("export encode", "method", r.Method, "path", r.URL.Path, "board_id", id, "error", err)
		}
	})
}

func (s *Server) handleImportBoard(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	kind := format.KindFromContentType(r.Header.Get("Content-Type"))
	if raw := strings.TrimSpace(r.URL.Query().Get("format")); raw != "" {
		parsed, err := format.ParseKind(raw)
		if err != nil {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(err, ErrCodeInvalidQuery))
			return
		}
		kind = parsed
	}

	s.withLimiter(w, r, s.importLimiter, "import", func() {
		r.Body = http.MaxBytesReader(w, r.Body, importJSONMaxBody)
		doc, err := format.DecodeBoard(r.Body, kind)
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			s.writeErrorReq(w, r, http.StatusBadRequest, classifyDecodeJSONError(err))
			return
		}
		if err != nil {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(err, ErrCodeInvalidDocument))
			return
		}
		created, err := s.boards.Import(r.Context(), principal.User, doc)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, created)
	})
}
