package server

import (
	"net/http"
)

// handleSync upgrades to the collaboration socket after the board check.
// Errors after the upgrade are reported on the socket itself.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	if err := s.boards.Authorize(r.Context(), principal.User, id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.hub.Upgrade(w, r, id, principal.User); err != nil {
		s.log().Debug("sync session ended", "board_id", id, "user", principal.User.Username, "error", err)
	}
}
