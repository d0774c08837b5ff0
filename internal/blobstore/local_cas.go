package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const casAlgorithmPrefix = "sha256"

// LocalCAS stores blob bytes in a local content-addressed tree.
type LocalCAS struct {
	root string
}

// NewLocalCAS creates a local CAS rooted at root.
func NewLocalCAS(root string) (*LocalCAS, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("local cas root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, "tmp"), 0o755); err != nil {
		return nil, err
	}
	return &LocalCAS{root: abs}, nil
}

// Root returns the absolute root directory.
func (c *LocalCAS) Root() string {
	return c.root
}

// Put streams bytes into a temp file while hashing, then renames the file
// to its digest path. maxBytes <= 0 disables the size check. Identical
// content is stored once.
func (c *LocalCAS) Put(ctx context.Context, r io.Reader, maxBytes int64) (PutResult, error) {
	var zero PutResult
	if c == nil {
		return zero, fmt.Errorf("blob store is not configured")
	}
	if r == nil {
		return zero, fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	tmp, err := os.CreateTemp(filepath.Join(c.root, "tmp"), "put-*")
	if err != nil {
		return zero, err
	}
	tmpPath := tmp.Name()
	discard := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), src)
	if err != nil {
		discard()
		return zero, err
	}
	if maxBytes > 0 && n > maxBytes {
		discard()
		return zero, ErrTooLarge
	}
	if err := tmp.Close(); err != nil {
		discard()
		return zero, err
	}

	digest := hex.EncodeToString(h.Sum(nil))
	result := PutResult{SHA256: digest, SizeBytes: n, Key: keyFromDigest(digest)}
	dst := filepath.Join(c.root, filepath.FromSlash(result.Key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		discard()
		return zero, err
	}

	if _, err := os.Stat(dst); err == nil {
		_ = os.Remove(tmpPath)
		return result, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		discard()
		return zero, err
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		// A concurrent put of the same content won the rename.
		if _, statErr := os.Stat(dst); statErr == nil {
			_ = os.Remove(tmpPath)
			return result, nil
		}
		discard()
		return zero, err
	}

	return result, nil
}

// Open returns a reader for blob key content.
func (c *LocalCAS) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if c == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := c.pathFromKey(key)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// Exists reports whether a blob is present.
func (c *LocalCAS) Exists(ctx context.Context, key string) (bool, error) {
	if c == nil {
		return false, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := c.pathFromKey(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes a blob object. Missing files are ignored.
func (c *LocalCAS) Delete(ctx context.Context, key string) error {
	if c == nil {
		return fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := c.pathFromKey(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Walk visits every blob under the digest tree. Temp files are skipped.
func (c *LocalCAS) Walk(ctx context.Context, fn func(PutResult) error) error {
	if c == nil {
		return fmt.Errorf("blob store is not configured")
	}
	base := filepath.Join(c.root, casAlgorithmPrefix)
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(c.root, path)
		if err != nil {
			return err
		}
		return fn(PutResult{SHA256: d.Name(), SizeBytes: info.Size(), Key: filepath.ToSlash(rel)})
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func keyFromDigest(digest string) string {
	return fmt.Sprintf("%s/%s/%s/%s", casAlgorithmPrefix, digest[0:2], digest[2:4], digest)
}

func (c *LocalCAS) pathFromKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("blob key is required")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("blob key must be relative")
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || strings.Contains(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid blob key")
	}
	return filepath.Join(c.root, clean), nil
}
