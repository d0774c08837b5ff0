package server

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"inkboard/internal/api"
	"inkboard/internal/services/account"
)

var defaultCORSOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}

// corsOrigins returns the configured origins followed by the loopback
// defaults.
func corsOrigins(configured []string) []string {
	out := make([]string, 0, len(configured)+len(defaultCORSOrigins))
	for _, origin := range configured {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin != "" && !slices.Contains(out, origin) {
			out = append(out, origin)
		}
	}
	for _, origin := range defaultCORSOrigins {
		if !slices.Contains(out, origin) {
			out = append(out, origin)
		}
	}
	return out
}

// middleware wraps the router, outermost first.
func (s *Server) middleware(next http.Handler) http.Handler {
	handler := s.withCSRF(next)
	handler = s.withAuthPrincipal(handler)
	handler = cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "If-None-Match", confirmHeader, middleware.RequestIDHeader},
		ExposedHeaders:   []string{"ETag", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	})(handler)
	handler = s.withRequestLogging(handler)
	handler = middleware.RequestID(handler)
	return middleware.Recoverer(handler)
}

// withAuthPrincipal resolves the session cookie. Unknown, expired, or
// revoked tokens leave the request anonymous.
func (s *Server) withAuthPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sessionTokenFromRequest(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		user, err := s.accounts.Authenticate(r.Context(), token)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		if user == nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := contextWithAuthPrincipal(r.Context(), authPrincipal{User: user, Token: token})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withCSRF rejects cookie-authenticated state changes that do not name a
// trusted Origin or Referer.
func (s *Server) withCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isMutationMethod(r.Method) || sessionTokenFromRequest(r) == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !s.trustedOrigin(r) {
			s.writeErrorReq(w, r, http.StatusForbidden, forbidden(fmt.Errorf("cross-origin request rejected")))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) trustedOrigin(r *http.Request) bool {
	if origin := strings.TrimSpace(r.Header.Get("Origin")); origin != "" {
		return s.origins.Allows(origin, r.Host)
	}
	if referer := strings.TrimSpace(r.Header.Get("Referer")); referer != "" {
		return s.origins.AllowsReferer(referer, r.Host)
	}
	return false
}

func isMutationMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

func sessionTokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(api.SessionCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

func requestScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); proto != "" {
		return strings.ToLower(strings.Split(proto, ",")[0])
	}
	return "http"
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, session *account.Session) {
	maxAge := int(time.Until(session.ExpiresAt) / time.Second)
	if maxAge <= 0 {
		maxAge = 1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     api.SessionCookieName,
		Value:    session.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   requestScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
		Expires:  session.ExpiresAt,
	})
}

func clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     api.SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   requestScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
	})
}
