package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// IsRemote reports whether location is an http(s) URL rather than a local path.
func IsRemote(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// localPath strips an optional file:// scheme.
func localPath(location string) string {
	if strings.HasPrefix(location, "file://") {
		return strings.TrimPrefix(location, "file://")
	}
	return location
}

// Open returns a reader for location, downloading it when it is remote.
func Open(ctx context.Context, f Fetcher, location string) (io.ReadCloser, error) {
	if IsRemote(location) {
		return f.Download(ctx, location)
	}
	file, err := os.Open(localPath(location))
	if err != nil {
		return nil, eris.Wrap(err, "open local file")
	}
	return file, nil
}

// Staged is a local copy of a dataset. Close removes any staging directory.
type Staged struct {
	Path string
	dir  string
}

// Close releases the staging directory. Local files that were never copied are left alone.
func (s *Staged) Close() error {
	if s == nil || s.dir == "" {
		return nil
	}
	return eris.Wrap(os.RemoveAll(s.dir), "remove staging dir")
}

// Stage makes location available as a local file. Remote locations are
// downloaded into a fresh directory under tempDir (os.TempDir when empty);
// the caller must Close the result on every path.
func Stage(ctx context.Context, f Fetcher, location, tempDir, name string) (*Staged, error) {
	if !IsRemote(location) {
		path := localPath(location)
		if _, err := os.Stat(path); err != nil {
			return nil, eris.Wrap(err, "stat local file")
		}
		return &Staged{Path: path}, nil
	}

	if tempDir != "" {
		if err := os.MkdirAll(tempDir, 0o755); err != nil {
			return nil, eris.Wrap(err, "create temp dir")
		}
	}
	dir, err := os.MkdirTemp(tempDir, "fibre-map-*")
	if err != nil {
		return nil, eris.Wrap(err, "create staging dir")
	}
	staged := &Staged{Path: filepath.Join(dir, name), dir: dir}

	if _, err := f.DownloadToFile(ctx, location, staged.Path); err != nil {
		_ = staged.Close()
		return nil, err
	}
	return staged, nil
}
