package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileSource reads archives from the local filesystem. With a Root set, paths
// are resolved below it and may not escape it.
type FileSource struct {
	Root string
}

var _ Source = &FileSource{}

func (s *FileSource) ReadArchive(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filePath, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	if st, err := os.Stat(filePath); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	} else if err != nil {
		return nil, err
	} else if st.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	return os.ReadFile(filePath)
}

func (s *FileSource) resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrNotFound)
	}
	if s.Root == "" {
		return filepath.Clean(path), nil
	}
	rel := filepath.Clean(filepath.FromSlash("/" + strings.TrimLeft(path, `/\`)))
	return filepath.Join(s.Root, rel), nil
}
