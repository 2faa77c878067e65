package scanning

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// Stager hands images to engines as temporary files
type Stager struct {
	dir string
}

// NewStager creates a Stager writing into dir; an empty dir uses the OS temp dir
func NewStager(dir string) (*Stager, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating staging directory: %w", err)
		}
	}
	return &Stager{dir: dir}, nil
}

// Stage writes data to a new temporary file. The returned release func removes
// it and is safe to call more than once.
func (s *Stager) Stage(data []byte, ext string) (string, func(), error) {
	f, err := os.CreateTemp(s.dir, "coffee-scan-*"+ext)
	if err != nil {
		return "", func() {}, fmt.Errorf("creating staged file: %w", err)
	}
	path := f.Name()

	var once sync.Once
	release := func() {
		once.Do(func() {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				slog.Warn("Failed to remove staged image", "path", path, "error", err)
			}
		})
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		release()
		return "", func() {}, fmt.Errorf("writing staged file: %w", err)
	}
	if err := f.Close(); err != nil {
		release()
		return "", func() {}, fmt.Errorf("closing staged file: %w", err)
	}
	return path, release, nil
}
