package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Sidecar artifact names written during ingestion and served verbatim by the
// image endpoints.
const (
	SidecarMetadata   = "metadata.json"
	SidecarBounds     = "bounds.json"
	SidecarInfo       = "info.json"
	SidecarStatistics = "statistics.json"
)

// Store maps viewpoint ids to on-disk directories holding the materialized
// source image and its derived sidecar artifacts. Materialization writes to a
// temporary name and publishes with an atomic rename, so readers never
// observe a partially written file. Disk usage is unbounded: the store
// assumes an operator-provisioned volume and space is only reclaimed by
// evicting viewpoints.
type Store struct {
	basePath string

	// Statistics
	materialized atomic.Int64
	evicted      atomic.Int64
}

// NewStore creates a cache store rooted at basePath, creating it if needed.
func NewStore(basePath string) (*Store, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, errors.Wrap(err, "could not create cache directory")
	}
	return &Store{basePath: basePath}, nil
}

// Dir returns the directory reserved for one viewpoint id.
func (s *Store) Dir(id uuid.UUID) string {
	return filepath.Join(s.basePath, id.String())
}

// WriteHandle is an in-flight materialization. Exactly one of Commit or
// Abort must be called.
type WriteHandle struct {
	store *Store
	id    uuid.UUID
	tmp   *os.File
	final string
	done  bool
}

// Write streams source bytes into the temporary file.
func (w *WriteHandle) Write(p []byte) (int, error) {
	return w.tmp.Write(p)
}

// TempPath is the location of the unpublished temporary file. It exists so a
// SourceResolver can hand the path to a download client directly.
func (w *WriteHandle) TempPath() string {
	return w.tmp.Name()
}

// Commit closes the temporary file and atomically publishes it under the
// final object name. After Commit returns, Open observes a complete file.
func (w *WriteHandle) Commit() (string, error) {
	if w.done {
		return "", fmt.Errorf("write handle already finished")
	}
	w.done = true
	if err := w.tmp.Close(); err != nil {
		os.Remove(w.tmp.Name())
		return "", errors.Wrap(err, "could not flush materialized file")
	}
	if err := os.Rename(w.tmp.Name(), w.final); err != nil {
		os.Remove(w.tmp.Name())
		return "", errors.Wrap(err, "could not publish materialized file")
	}
	w.store.materialized.Add(1)
	return w.final, nil
}

// Abort discards the temporary file and removes the viewpoint directory so
// no partial artifact stays reachable.
func (w *WriteHandle) Abort() {
	if w.done {
		return
	}
	w.done = true
	w.tmp.Close()
	os.Remove(w.tmp.Name())
	w.store.removeDir(w.id)
}

// Materialize reserves the viewpoint directory and returns a write handle
// whose Commit publishes the file under objectName.
func (s *Store) Materialize(id uuid.UUID, objectName string) (*WriteHandle, error) {
	dir := s.Dir(id)
	final := filepath.Join(dir, filepath.Base(objectName))
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return nil, errors.Wrap(err, "could not create viewpoint cache directory")
	}
	tmp, err := os.CreateTemp(dir, ".materialize-*")
	if err != nil {
		return nil, errors.Wrap(err, "could not create temporary cache file")
	}
	return &WriteHandle{store: s, id: id, tmp: tmp, final: final}, nil
}

// Open returns the published path for a viewpoint's materialized object, or
// an error if nothing has been published for that id.
func (s *Store) Open(id uuid.UUID, objectName string) (string, error) {
	path := filepath.Join(s.Dir(id), filepath.Base(objectName))
	if _, err := os.Stat(path); err != nil {
		return "", errors.Wrapf(err, "no cached artifact for viewpoint %s", id)
	}
	return path, nil
}

// WriteSidecar stores a derived artifact (metadata, statistics, bounds, info)
// next to the materialized image. Sidecars are written whole, then renamed,
// with the same publish guarantee as the image itself.
func (s *Store) WriteSidecar(id uuid.UUID, name string, data []byte) error {
	dir := s.Dir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "could not create viewpoint cache directory")
	}
	tmp, err := os.CreateTemp(dir, ".sidecar-*")
	if err != nil {
		return errors.Wrap(err, "could not create temporary sidecar file")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, "could not write sidecar")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "could not flush sidecar")
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, name))
}

// ReadSidecar loads a derived artifact written by WriteSidecar.
func (s *Store) ReadSidecar(id uuid.UUID, name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.Dir(id), name))
}

// Evict removes every on-disk artifact for the viewpoint. Evicting an id
// with no artifacts is a no-op.
func (s *Store) Evict(id uuid.UUID) error {
	if err := s.removeDir(id); err != nil {
		return err
	}
	s.evicted.Add(1)
	logrus.WithField("viewpoint_id", id).Debug("evicted cache artifacts")
	return nil
}

func (s *Store) removeDir(id uuid.UUID) error {
	return os.RemoveAll(s.Dir(id))
}

// UsageBytes walks the cache directory and sums file sizes. Exposed for the
// metrics collector; the store itself imposes no limit.
func (s *Store) UsageBytes() int64 {
	var total int64
	filepath.Walk(s.basePath, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}
