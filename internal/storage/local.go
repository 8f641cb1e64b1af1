package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Local stores blobs under a root directory and signs read URLs with HMAC
// against a public base URL served elsewhere.
type Local struct {
	root    string
	baseURL string
	secret  []byte
	now     func() time.Time
}

func NewLocal(root, baseURL string, secret []byte) (*Local, error) {
	if root == "" {
		return nil, fmt.Errorf("local storage root is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Local{root: root, baseURL: baseURL, secret: secret, now: time.Now}, nil
}

func (s *Local) Put(ctx context.Context, path string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p, err := CleanPath(path)
	if err != nil {
		return "", err
	}
	full := filepath.Join(s.root, filepath.FromSlash(p))
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		return "", fmt.Errorf("commit blob: %w", err)
	}
	return p, nil
}

func (s *Local) SignedURL(_ context.Context, path string, ttl time.Duration) (string, error) {
	p, err := CleanPath(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(p))); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return "", fmt.Errorf("stat blob: %w", err)
	}
	expires := strconv.FormatInt(s.now().Add(ttl).Unix(), 10)
	q := url.Values{}
	q.Set("expires", expires)
	q.Set("sig", s.sign(p, expires))
	return s.baseURL + "/" + p + "?" + q.Encode(), nil
}

// Verify checks a signature produced by SignedURL.
func (s *Local) Verify(path, expires, sig string) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || s.now().Unix() > exp {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(s.sign(path, expires)))
}

func (s *Local) sign(path, expires string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(path))
	mac.Write([]byte{0})
	mac.Write([]byte(expires))
	return hex.EncodeToString(mac.Sum(nil))
}

// ServeHTTP serves a blob when the request carries a valid signature from
// SignedURL. Mount it with the base URL's path prefix stripped.
func (s *Local) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, err := CleanPath(strings.TrimPrefix(r.URL.Path, "/"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	if !s.Verify(p, q.Get("expires"), q.Get("sig")) {
		http.Error(w, "invalid or expired signature", http.StatusForbidden)
		return
	}
	http.ServeFile(w, r, filepath.Join(s.root, filepath.FromSlash(p)))
}
