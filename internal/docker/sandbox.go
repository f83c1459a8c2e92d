package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/p-arndt/werkbank/internal/runtime"
)

// maxReadBytes caps a single ReadFile.
const maxReadBytes = 32 << 20

type sandbox struct {
	id     string
	driver *Driver
}

func (s *sandbox) ID() string { return s.id }

// SetTimeout moves the locally tracked deadline; the reaper removes the
// container once it passes.
func (s *sandbox) SetTimeout(_ context.Context, ttl time.Duration) error {
	s.driver.setDeadline(s.id, time.Now().Add(ttl))
	return nil
}

// WriteFile copies data to an absolute path inside the container, creating
// parent directories.
func (s *sandbox) WriteFile(ctx context.Context, p string, data []byte) error {
	archive, err := tarFile(p, data)
	if err != nil {
		return err
	}
	err = s.driver.docker.CopyToContainer(ctx, s.id, "/", archive, container.CopyToContainerOptions{
		AllowOverwriteDirWithFile: false,
	})
	if err != nil {
		if client.IsErrNotFound(err) {
			return fmt.Errorf("%w: %s", runtime.ErrSandboxNotFound, shortID(s.id))
		}
		return fmt.Errorf("copy to container: %w", err)
	}
	return nil
}

func (s *sandbox) ReadFile(ctx context.Context, p string) ([]byte, error) {
	rc, _, err := s.driver.docker.CopyFromContainer(ctx, s.id, p)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, p)
		}
		return nil, fmt.Errorf("copy from container: %w", err)
	}
	defer rc.Close()
	return untarFile(rc)
}

func (s *sandbox) Kill(ctx context.Context) error {
	return s.driver.Remove(ctx, s.id)
}

// ErrFileNotFound is returned by ReadFile for paths missing in the container.
var ErrFileNotFound = errors.New("file not found in container")

// tarFile builds a tar stream, rooted at "/", holding p and its parent
// directories.
func tarFile(p string, data []byte) (io.Reader, error) {
	clean := path.Clean(p)
	if !path.IsAbs(clean) || clean == "/" {
		return nil, fmt.Errorf("invalid sandbox path %q", p)
	}
	rel := strings.TrimPrefix(clean, "/")

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	now := time.Now()

	parts := strings.Split(rel, "/")
	for i := 1; i < len(parts); i++ {
		if err := tw.WriteHeader(&tar.Header{
			Typeflag: tar.TypeDir,
			Name:     strings.Join(parts[:i], "/") + "/",
			Mode:     0o755,
			ModTime:  now,
		}); err != nil {
			return nil, err
		}
	}
	if err := tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeReg,
		Name:     rel,
		Mode:     0o644,
		Size:     int64(len(data)),
		ModTime:  now,
	}); err != nil {
		return nil, err
	}
	if _, err := tw.Write(data); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

// untarFile returns the content of the first regular file in the stream.
func untarFile(r io.Reader) ([]byte, error) {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, ErrFileNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("reading archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if hdr.Size > maxReadBytes {
			return nil, fmt.Errorf("file too large: %d bytes", hdr.Size)
		}
		return io.ReadAll(tr)
	}
}
