package server

import (
	"fmt"
	"net/http"

	"inkboard/internal/api"
)

const confirmHeader = "X-Confirm"

func (s *Server) handleAdminGCBlobs(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	var req api.BlobGCRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	if !req.DryRun && r.Header.Get(confirmHeader) != "true" {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("non-dry-run requires %s: true header", confirmHeader), ErrCodeMissingRequired))
		return
	}

	result, err := s.boards.CollectBlobs(r.Context(), !req.DryRun)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, api.BlobGCResponse{
		CandidateCount: result.CandidateCount,
		DeletedCount:   result.DeletedCount,
		FailedCount:    result.FailedCount,
		ReclaimedBytes: result.ReclaimedBytes,
		DryRun:         result.DryRun,
	})
}
