package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestStore(t *testing.T) *FileStore[record] {
	t.Helper()
	return NewFileStore[record](filepath.Join(t.TempDir(), "records.json"))
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	s := newTestStore(t)
	assert.Empty(t, s.Load())
}

func TestFileStoreUpdateAndLoad(t *testing.T) {
	s := newTestStore(t)

	err := s.Update(func(m map[string]record) (bool, error) {
		m["a"] = record{Name: "a", Count: 1}
		m["b"] = record{Name: "b", Count: 2}
		return true, nil
	})
	require.NoError(t, err)

	m := s.Load()
	assert.Len(t, m, 2)
	assert.Equal(t, record{Name: "b", Count: 2}, m["b"])

	got, ok := s.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, got.Count)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestFileStoreUnchangedSkipsWrite(t *testing.T) {
	s := newTestStore(t)

	err := s.Update(func(m map[string]record) (bool, error) {
		m["never"] = record{}
		return false, nil
	})
	require.NoError(t, err)

	_, statErr := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(statErr), "declined update must not create the snapshot")
}

func TestFileStoreErrorAborts(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Update(func(m map[string]record) (bool, error) {
		m["a"] = record{Name: "a"}
		return true, nil
	}))

	err := s.Update(func(m map[string]record) (bool, error) {
		m["b"] = record{Name: "b"}
		return true, assert.AnError
	})
	assert.Error(t, err)
	assert.Len(t, s.Load(), 1, "failed update must not persist")
}

func TestFileStoreMalformedFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := NewFileStore[record](path)
	assert.Empty(t, s.Load())
}

func TestFileStoreNoTempResidue(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Update(func(m map[string]record) (bool, error) {
		m["a"] = record{Name: "a"}
		return true, nil
	}))

	_, err := os.Stat(s.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away")
}

func TestFileStoreConcurrentUpdates(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := s.Update(func(m map[string]record) (bool, error) {
				m[string(rune('a'+n))] = record{Count: n}
				return true, nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.Load(), 20)
}

func TestSaveAndLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf.json")
	in := record{Name: "alpha", Count: 3}
	require.NoError(t, SaveJSON(path, in))

	var out record
	require.NoError(t, LoadJSON(path, &out))
	assert.Equal(t, in, out)

	// strict reads surface missing files
	err := LoadJSON(filepath.Join(t.TempDir(), "absent.json"), &out)
	assert.True(t, os.IsNotExist(err))
}

func TestSnapshotShape(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Update(func(m map[string]record) (bool, error) {
		m["a"] = record{Name: "a", Count: 1}
		return true, nil
	}))

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Contains(t, m, "a")
}
