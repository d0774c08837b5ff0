package server

import (
	"net/http"
	"strings"

	"inkboard/internal/models"
	"inkboard/internal/store"
)

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	filter := store.LogFilter{}
	if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
		logType, err := models.ParseLogType(raw)
		if err != nil {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(err, ErrCodeInvalidQuery))
			return
		}
		filter.Type = logType
	}
	limit, err := queryIntDefault(r, "limit", defaultLogsLimit)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	filter.Limit = min(limit, maxLogsLimit)

	records, err := s.logs.List(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}
