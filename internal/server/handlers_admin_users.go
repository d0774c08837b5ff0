package server

import (
	"fmt"
	"net/http"
	"strings"

	"inkboard/internal/api"
	"inkboard/internal/services/account"
)

func (s *Server) handleAdminCreateUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	var req api.AdminUserCreateRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	created, err := s.accounts.CreateUser(r.Context(), account.CreateUserInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, api.UserFromModel(created))
}

func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	users, err := s.accounts.ListUsers(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := make([]*api.UserResponse, 0, len(users))
	for i := range users {
		resp = append(resp, api.UserFromModel(&users[i]))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAdminSetUserDisabled(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}

	username, err := pathUsername(r)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	var req api.AdminUserSetDisabledRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	if req.Disabled && strings.EqualFold(username, principal.User.Username) {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("cannot disable your own account"), ErrCodeInvalidArgument))
		return
	}

	updated, err := s.accounts.SetDisabled(r.Context(), username, req.Disabled)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, api.UserFromModel(updated))
}

func (s *Server) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}

	username, err := pathUsername(r)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	if strings.EqualFold(username, principal.User.Username) {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("cannot delete your own account"), ErrCodeInvalidArgument))
		return
	}

	if err := s.accounts.DeleteUser(r.Context(), username); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, api.AdminUserDeleteResponse{Username: strings.ToLower(username), Deleted: true})
}

// requireAdmin writes 401 or 403 unless the caller is an admin.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) (authPrincipal, bool) {
	principal, ok := s.requireUser(w, r)
	if !ok {
		return authPrincipal{}, false
	}
	if !principal.User.IsAdmin() {
		s.writeErrorReq(w, r, http.StatusForbidden, forbidden(fmt.Errorf("admin role required")))
		return authPrincipal{}, false
	}
	return principal, true
}

func pathUsername(r *http.Request) (string, error) {
	username := strings.TrimSpace(r.PathValue("username"))
	if username == "" {
		return "", badRequestCode(fmt.Errorf("username is required"), ErrCodeMissingRequired)
	}
	return username, nil
}
