package document

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"maps"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// presignConcurrency bounds concurrent calls to the URL signer.
const presignConcurrency = 8

// URLSigner issues time-limited URLs for stored paths.
type URLSigner interface {
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// Fingerprint is a stable digest of the document content. Signed URLs are
// excluded so presigning does not change it.
func (d *Document) Fingerprint() (string, error) {
	c := *d
	c.URLs = nil
	raw, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Paths lists every stored path the document references, in document order,
// without duplicates.
func (d *Document) Paths() []string {
	seen := make(map[string]struct{})
	var paths []string
	add := func(p string) {
		if p == "" {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		paths = append(paths, p)
	}
	for _, ph := range d.GeneralPhotos {
		add(ph.StoragePath)
	}
	for _, s := range d.Sections {
		for _, ph := range s.Photos {
			add(ph.StoragePath)
		}
		for _, it := range s.Items {
			for _, ph := range it.Photos {
				add(ph.StoragePath)
			}
		}
	}
	for _, sig := range d.Signatures {
		add(sig.ImagePath)
	}
	return paths
}

// Presign returns a copy of doc whose URLs map holds a signed URL for every
// referenced path. doc itself is left untouched.
func Presign(ctx context.Context, doc *Document, signer URLSigner, ttl time.Duration) (*Document, error) {
	out := *doc
	out.URLs = make(map[string]string, len(doc.URLs))
	maps.Copy(out.URLs, doc.URLs)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(presignConcurrency)
	for _, path := range doc.Paths() {
		g.Go(func() error {
			url, err := signer.SignedURL(gctx, path, ttl)
			if err != nil {
				return err
			}
			mu.Lock()
			out.URLs[path] = url
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}
