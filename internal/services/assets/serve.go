package assets

import (
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
)

// Serve writes the named asset with the given status. A 200 response
// whose If-None-Match matches the asset digest becomes 304.
func (s *Service) Serve(w http.ResponseWriter, r *http.Request, name string, status int) error {
	asset, content, err := s.Open(name)
	if err != nil {
		return err
	}
	defer content.Close()

	header := w.Header()
	header.Set("ETag", asset.ETag())
	header.Set("Content-Type", asset.ContentType)
	header.Set("Cache-Control", cacheControlFor(asset.Path))
	if status == http.StatusOK && etagMatches(r.Header.Get("If-None-Match"), asset.ETag()) {
		w.WriteHeader(http.StatusNotModified)
		return nil
	}

	header.Set("Content-Length", strconv.FormatInt(asset.Size, 10))
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return nil
	}
	_, err = io.Copy(w, content)
	return err
}

func cacheControlFor(name string) string {
	switch {
	case name == IndexPath:
		return "no-cache"
	case isFingerprintAsset(name):
		return "public, max-age=31536000, immutable"
	default:
		return "public, max-age=300"
	}
}

// isFingerprintAsset reports names like app.3f9a1c2b.js whose content
// never changes under the same name.
func isFingerprintAsset(assetPath string) bool {
	base := path.Base(strings.TrimSpace(assetPath))
	parts := strings.Split(base, ".")
	if len(parts) < 3 {
		return false
	}

	hash := parts[len(parts)-2]
	if len(hash) < 8 {
		return false
	}
	for _, ch := range hash {
		if (ch < '0' || ch > '9') && (ch < 'a' || ch > 'f') && (ch < 'A' || ch > 'F') {
			return false
		}
	}
	return true
}

func etagMatches(ifNoneMatch, etag string) bool {
	if ifNoneMatch == "" {
		return false
	}
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
