package server

import (
	"errors"
	"fmt"
	"net/http"

	"inkboard/internal/api"
	"inkboard/internal/services/board"
	"inkboard/internal/store"
)

func (s *Server) handleListBoards(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	boards, err := s.boards.List(r.Context(), principal.User)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, boards)
}

func (s *Server) handleCreateBoard(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req api.BoardCreateRequest
	if r.ContentLength != 0 && !s.decodeJSONReq(w, r, &req) {
		return
	}
	created, err := s.boards.Create(r.Context(), principal.User, req.Title)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	found, err := s.boards.Get(r.Context(), principal.User, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleRenameBoard(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	var req api.BoardRenameRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	renamed, err := s.boards.Rename(r.Context(), principal.User, id, req.Title)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, renamed)
}

func (s *Server) handleDeleteBoard(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	if err := s.boards.Delete(r.Context(), principal.User, id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetScene(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	found, err := s.boards.Get(r.Context(), principal.User, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.SceneResponse{ID: found.ID, Version: found.Version, Scene: found.Scene})
}

func (s *Server) handleSaveScene(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	var req api.SceneSaveRequest
	if !s.decodeJSONReqLimit(w, r, &req, s.maxSceneBytes) {
		return
	}
	expected := store.AnyVersion
	if req.ExpectedVersion != nil {
		expected = *req.ExpectedVersion
	}
	version, err := s.boards.SaveScene(r.Context(), principal.User, id, req.Scene, expected)
	if errors.Is(err, board.ErrVersionConflict) {
		err = conflictCode(fmt.Errorf("%w: current version is %d", err, version), ErrCodeConflict)
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.SceneSaveResponse{ID: id, Version: version})
}
