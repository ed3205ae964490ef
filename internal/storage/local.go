package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// Local keeps blobs on the local filesystem under Root and serves them
// from BaseURL.
type Local struct {
	Root    string
	BaseURL string
	// PruneReplaced makes Prune delete replaced blobs.
	PruneReplaced bool
	// Keep lists paths that are never pruned, such as default images.
	Keep map[string]bool
}

var _ Gateway = (*Local)(nil)

// NewLocal returns a Local gateway rooted at root.
func NewLocal(root, baseURL string, pruneReplaced bool) *Local {
	return &Local{
		Root:          root,
		BaseURL:       strings.TrimRight(baseURL, "/"),
		PruneReplaced: pruneReplaced,
		Keep:          map[string]bool{},
	}
}

// Save copies the upload to <Root>/<namespace>/<slug>-<uuid><ext>.
func (l *Local) Save(_ context.Context, file *multipart.FileHeader, namespace, previousPath string) (string, error) {
	if file == nil {
		return "", errors.New("save: no file")
	}
	rel := path.Join(cleanNamespace(namespace), fileName(file.Filename))
	dst, err := l.abs(rel)
	if err != nil {
		return "", fmt.Errorf("save %s: %w", rel, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("save %s: %w", rel, err)
	}

	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("save %s: open upload: %w", rel, err)
	}
	defer src.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("save %s: %w", rel, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dst)
		return "", fmt.Errorf("save %s: %w", rel, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("save %s: %w", rel, err)
	}

	return rel, nil
}

// Prune deletes previousPath when PruneReplaced is set. Installed defaults
// are never pruned.
func (l *Local) Prune(ctx context.Context, previousPath string) error {
	if !l.PruneReplaced || previousPath == "" || l.Keep[previousPath] {
		return nil
	}
	return l.Delete(ctx, previousPath)
}

// URL joins BaseURL and path. An empty path resolves to an empty URL so
// views can substitute their default image.
func (l *Local) URL(p string) string {
	if p == "" {
		return ""
	}
	return l.BaseURL + "/" + strings.TrimLeft(p, "/")
}

// Delete removes the blob at p if it exists.
func (l *Local) Delete(_ context.Context, p string) error {
	if p == "" {
		return nil
	}
	dst, err := l.abs(p)
	if err != nil {
		return fmt.Errorf("delete %s: %w", p, err)
	}
	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", p, err)
	}
	return nil
}

// Install writes data at p unless a blob is already there and marks p as
// never prunable.
func (l *Local) Install(p string, data []byte) error {
	dst, err := l.abs(p)
	if err != nil {
		return fmt.Errorf("install %s: %w", p, err)
	}
	l.Keep[p] = true
	if _, err := os.Stat(dst); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("install %s: %w", p, err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("install %s: %w", p, err)
	}
	return nil
}

func (l *Local) abs(p string) (string, error) {
	clean := path.Clean("/" + p)
	if clean == "/" || strings.Contains(p, "..") {
		return "", ErrInvalidPath
	}
	return filepath.Join(l.Root, filepath.FromSlash(clean)), nil
}

func cleanNamespace(ns string) string {
	return strings.Trim(path.Clean("/"+ns), "/")
}

// fileName builds a unique, URL-safe name that keeps the original
// extension and a readable hint of the original name.
func fileName(original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	base := slug.Make(strings.TrimSuffix(filepath.Base(original), filepath.Ext(original)))
	id := uuid.NewString()
	if base == "" {
		return id + ext
	}
	return base + "-" + id + ext
}
