// Package source reads raw archive bytes from where the archives live.
package source

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("archive not found")

// Source returns the raw bytes of the archive at path. A missing archive is
// reported as ErrNotFound.
type Source interface {
	ReadArchive(ctx context.Context, path string) ([]byte, error)
}
