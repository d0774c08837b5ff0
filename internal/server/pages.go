package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"inkboard/internal/models"
	"inkboard/internal/services/assets"
)

const (
	loginPath = "/login"

	// PermissionAdmin limits a page to admin accounts.
	PermissionAdmin = "admin"
)

// RouteRequirements describes what a page needs from the caller.
type RouteRequirements struct {
	NeedLogin   bool
	Permissions []string
}

type pageRoute struct {
	Pattern      string
	Requirements RouteRequirements
}

// pageRoutes are the SPA entry points. The browser router takes over after
// the index loads.
var pageRoutes = []pageRoute{
	{Pattern: "GET /{$}", Requirements: RouteRequirements{NeedLogin: true}},
	{Pattern: "GET /login", Requirements: RouteRequirements{}},
	{Pattern: "GET /signup", Requirements: RouteRequirements{}},
	{Pattern: "GET /forgot-password", Requirements: RouteRequirements{}},
	{Pattern: "GET /reset-password/{token}", Requirements: RouteRequirements{}},
	{Pattern: "GET /admin", Requirements: RouteRequirements{NeedLogin: true, Permissions: []string{PermissionAdmin}}},
}

// pageHandler guards one page route and serves the SPA index.
func (s *Server) pageHandler(req RouteRequirements) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFromContext(r.Context())
		if req.NeedLogin && user == nil {
			http.Redirect(w, r, loginPath, http.StatusFound)
			return
		}
		for _, permission := range req.Permissions {
			if !hasPermission(user, permission) {
				s.serveIndex(w, r, http.StatusForbidden)
				return
			}
		}
		s.serveIndex(w, r, http.StatusOK)
	}
}

// handleAPINotFound answers API paths no route claims, whatever the method.
func (s *Server) handleAPINotFound(w http.ResponseWriter, r *http.Request) {
	s.writeErrorReq(w, r, http.StatusNotFound, notFoundCode(fmt.Errorf("no route for %s %s", r.Method, r.URL.Path), ErrCodeRouteNotFound))
}

// handleCatchAll serves a bundle asset when one matches, else the SPA
// index with 404.
func (s *Server) handleCatchAll(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/v1/") {
		s.handleAPINotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	if _, ok := s.assets.Lookup(r.URL.Path); ok {
		err := s.assets.Serve(w, r, r.URL.Path, http.StatusOK)
		if err == nil {
			return
		}
		if !errors.Is(err, assets.ErrNotFound) {
			s.log().Debug("asset write failed", "path", r.URL.Path, "error", err)
			return
		}
	}
	s.serveIndex(w, r, http.StatusNotFound)
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request, status int) {
	err := s.assets.Serve(w, r, assets.IndexPath, status)
	switch {
	case err == nil:
	case errors.Is(err, assets.ErrNotFound):
		http.Error(w, http.StatusText(status), status)
	default:
		s.log().Debug("index write failed", "path", r.URL.Path, "error", err)
	}
}

func hasPermission(user *models.User, permission string) bool {
	if user == nil {
		return false
	}
	switch permission {
	case PermissionAdmin:
		return user.IsAdmin()
	default:
		return false
	}
}
