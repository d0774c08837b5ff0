package assets

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Asset describes one file of the browser bundle.
type Asset struct {
	Path        string    `json:"path"`
	SHA256      string    `json:"sha256"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	ModTime     time.Time `json:"mod_time"`
}

// ETag returns the strong entity tag for the asset.
func (a Asset) ETag() string {
	return `"` + a.SHA256 + `"`
}

// buildManifest hashes every regular file under root. Hidden files and
// directories are skipped.
func buildManifest(root string) (map[string]Asset, error) {
	manifest := make(map[string]Asset)
	if root == "" {
		return manifest, nil
	}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if p != root && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		asset, err := hashAsset(p, filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		manifest[asset.Path] = asset
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan assets in %s: %w", root, err)
	}
	return manifest, nil
}

func hashAsset(fullPath, rel string) (Asset, error) {
	f, err := os.Open(fullPath)
	if err != nil {
		return Asset{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Asset{}, err
	}
	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return Asset{}, err
	}
	return Asset{
		Path:        rel,
		SHA256:      hex.EncodeToString(h.Sum(nil)),
		Size:        size,
		ContentType: contentTypeFor(rel),
		ModTime:     info.ModTime().UTC(),
	}, nil
}

func contentTypeFor(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func sortedAssets(manifest map[string]Asset) []Asset {
	out := make([]Asset, 0, len(manifest))
	for _, asset := range manifest {
		out = append(out, asset)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
