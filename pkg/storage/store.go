package storage

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/harborworks/flotilla/pkg/log"
)

// FileStore persists one map of records as a whole-file JSON snapshot.
// Reads return the current snapshot on demand; a missing or malformed file
// reads as the empty map (after logging) so a damaged store degrades to
// losing history, never to refusing service. Writers inside one process are
// serialized by the store mutex; cross-process writers are not supported.
type FileStore[V any] struct {
	path   string
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewFileStore creates a store backed by the given snapshot path.
func NewFileStore[V any](path string) *FileStore[V] {
	return &FileStore[V]{path: path, logger: log.WithComponent("storage")}
}

// Path returns the snapshot file path.
func (s *FileStore[V]) Path() string {
	return s.path
}

// Load reads the current snapshot. The returned map is owned by the caller.
func (s *FileStore[V]) Load() map[string]V {
	return s.load()
}

// Get reads the current snapshot and returns one record.
func (s *FileStore[V]) Get(key string) (V, bool) {
	v, ok := s.load()[key]
	return v, ok
}

// Update runs fn inside the store's read-compute-write critical section.
// fn receives the current snapshot and may mutate it in place; returning
// true persists the map atomically, false skips the write. An error from
// fn aborts without writing. fn must not block on network or child-process
// waits.
func (s *FileStore[V]) Update(fn func(map[string]V) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.load()
	changed, err := fn(m)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return s.save(m)
}

func (s *FileStore[V]) load() map[string]V {
	m := make(map[string]V)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Error().Err(err).Str("path", s.path).Msg("failed to read snapshot")
		}
		return m
	}
	if err := json.Unmarshal(data, &m); err != nil {
		s.logger.Error().Err(err).Str("path", s.path).Msg("malformed snapshot, starting empty")
		return make(map[string]V)
	}
	return m
}

func (s *FileStore[V]) save(m map[string]V) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return WriteFileAtomic(s.path, append(data, '\n'))
}
