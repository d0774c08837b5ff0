package server

import (
	"net/http"

	"inkboard/internal/api"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	resp := api.InfoResponse{
		DBPath:   s.dbPath,
		Services: s.manager.Names(),
	}
	if s.store != nil {
		info, err := s.store.StoreInfo(r.Context())
		if err != nil {
			s.writeErrorReq(w, r, http.StatusInternalServerError, storeFailure(err))
			return
		}
		resp.SchemaVersion = info.SchemaVersion
		resp.Users = info.Users
		resp.Boards = info.Boards
		resp.Logs = info.Logs
	}
	signupOpen, err := s.accounts.SignupOpen(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	resp.SignupOpen = signupOpen

	s.writeJSON(w, http.StatusOK, resp)
}
