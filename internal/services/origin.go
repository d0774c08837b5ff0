package services

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"inkboard/internal/config"
)

// OriginPolicy decides which browser origins may act on the API: the API's
// own origin, configured CORS origins, loopback origins, and the request's
// own host.
type OriginPolicy struct {
	allowed  map[string]struct{}
	wildcard bool
}

// NewOriginPolicy builds the policy from api_url and cors_allowed_origins.
func NewOriginPolicy(cfg config.Config) OriginPolicy {
	p := OriginPolicy{allowed: map[string]struct{}{}}
	for _, origin := range append([]string{cfg.APIURL}, cfg.CORSAllowedOrigins...) {
		origin = normalizeOrigin(origin)
		switch origin {
		case "":
		case "*":
			p.wildcard = true
		default:
			p.allowed[origin] = struct{}{}
		}
	}
	return p
}

// Allows reports whether origin may act on a request addressed to host.
func (p OriginPolicy) Allows(origin, host string) bool {
	origin = normalizeOrigin(origin)
	if origin == "" {
		return false
	}
	if p.wildcard {
		return true
	}
	if _, ok := p.allowed[origin]; ok {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return isLoopbackHost(u.Hostname()) || strings.EqualFold(u.Host, host)
}

// isLoopbackHost reports whether host is localhost or a loopback address.
func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// AllowsReferer applies Allows to the origin part of a Referer URL.
func (p OriginPolicy) AllowsReferer(referer, host string) bool {
	u, err := url.Parse(strings.TrimSpace(referer))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	return p.Allows(u.Scheme+"://"+u.Host, host)
}

// CheckRequest is the WebSocket upgrade check. Requests without an Origin
// header come from non-browser clients and are accepted.
func (p OriginPolicy) CheckRequest(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return p.Allows(origin, r.Host)
}

func normalizeOrigin(origin string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
}
