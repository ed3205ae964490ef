// Package storage saves uploaded blobs under namespaced, storage-relative
// paths and resolves those paths to public URLs.
package storage

import (
	"context"
	"errors"
	"mime/multipart"
)

// ErrInvalidPath is returned for paths that escape the storage root.
var ErrInvalidPath = errors.New("invalid storage path")

// Gateway is the blob store the controllers talk to.
type Gateway interface {
	// Save stores file under namespace and returns its storage-relative path.
	// previousPath is the blob the new one replaces, empty when there is none.
	// Save never removes it; pass it to Prune once the replacing write has
	// persisted.
	Save(ctx context.Context, file *multipart.FileHeader, namespace, previousPath string) (string, error)
	// Prune releases a blob that a persisted write replaced. Whether it is
	// actually removed is up to the implementation.
	Prune(ctx context.Context, previousPath string) error
	// URL resolves a storage-relative path to the URL browsers load it from.
	URL(path string) string
	// Delete removes the blob at path. Deleting a missing blob is not an error.
	Delete(ctx context.Context, path string) error
}
