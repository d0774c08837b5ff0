package server

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"inkboard/internal/api"
	"inkboard/internal/services/account"
)

func (s *Server) handleAuthSignup(w http.ResponseWriter, r *http.Request) {
	var req api.SignupRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	session, err := s.accounts.Signup(r.Context(), account.SignupInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	setSessionCookie(w, r, session)
	s.writeJSON(w, http.StatusCreated, sessionResponse(session))
}

func (s *Server) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	session, err := s.accounts.Login(r.Context(), account.LoginInput{
		Identifier: req.Username,
		Password:   req.Password,
		RemoteAddr: requestClientIP(r),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	setSessionCookie(w, r, session)
	s.writeJSON(w, http.StatusOK, sessionResponse(session))
}

func (s *Server) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	if token := sessionTokenFromRequest(r); token != "" {
		if err := s.accounts.Logout(r.Context(), token); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
	}
	clearSessionCookie(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAuthMe(w http.ResponseWriter, r *http.Request) {
	signupOpen, err := s.accounts.SignupOpen(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	user := userFromContext(r.Context())
	s.writeJSON(w, http.StatusOK, api.AuthMeResponse{
		Authenticated: user != nil,
		SignupOpen:    signupOpen,
		User:          api.UserFromModel(user),
	})
}

func (s *Server) handleAuthForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req api.ForgotPasswordRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("email is required"), ErrCodeMissingRequired))
		return
	}
	if err := s.accounts.ForgotPassword(r.Context(), req.Email); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleAuthResetPassword(w http.ResponseWriter, r *http.Request) {
	var req api.ResetPasswordRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("token is required"), ErrCodeMissingRequired))
		return
	}
	if err := s.accounts.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireUser writes 401 and returns nil when the request is anonymous.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (authPrincipal, bool) {
	principal, ok := authPrincipalFromContext(r.Context())
	if !ok {
		s.writeErrorReq(w, r, http.StatusUnauthorized, unauthorized(fmt.Errorf("login required")))
		return authPrincipal{}, false
	}
	return principal, true
}

func sessionResponse(session *account.Session) api.AuthMeResponse {
	expires := session.ExpiresAt
	return api.AuthMeResponse{
		Authenticated: true,
		User:          api.UserFromModel(session.User),
		ExpiresAt:     &expires,
	}
}

func requestClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(remote)
	if err == nil {
		return strings.TrimSpace(host)
	}
	return remote
}
