package reconcile

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_WriteReadDelete(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "status"), nil)
	require.NoError(t, err)

	rec := &Record{Name: "org.a", Jar: "a.jar", Enabled: boolPtr(true)}
	require.NoError(t, s.Write(rec))

	paths, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{s.Path("org.a")}, paths)

	back, err := s.Read(s.Path("org.a"))
	require.NoError(t, err)
	assert.Equal(t, rec, back)

	require.NoError(t, s.Delete("org.a"))
	require.NoError(t, s.Delete("org.a"), "deleting a missing record is not an error")

	_, err = s.Read(s.Path("org.a"))
	var recErr *RecordError
	require.ErrorAs(t, err, &recErr)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestStore_Own(t *testing.T) {
	s, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	path := s.Path("org.a")

	assert.False(t, s.Own(path), "never written")

	require.NoError(t, s.Write(&Record{Name: "org.a", Jar: "a.jar"}))
	assert.True(t, s.Own(path))

	require.NoError(t, os.WriteFile(path, []byte("name: org.a\njar: b.jar\n"), 0o644))
	assert.False(t, s.Own(path), "external edit")

	require.NoError(t, s.Delete("org.a"))
	assert.True(t, s.Own(path))

	require.NoError(t, os.WriteFile(path, []byte("name: org.a\njar: a.jar\n"), 0o644))
	assert.False(t, s.Own(path), "recreated after our delete")
}

func TestStore_IsRecordPath(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, nil)
	require.NoError(t, err)

	assert.True(t, s.IsRecordPath(filepath.Join(dir, "org-a.yaml")))
	assert.False(t, s.IsRecordPath(filepath.Join(dir, ".org-a.yaml.tmp-123")))
	assert.False(t, s.IsRecordPath(filepath.Join(dir, "notes.txt")))
	assert.False(t, s.IsRecordPath(filepath.Join(dir, "sub", "org-a.yaml")))
}

func TestStore_ListSkipsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "c.yaml"), 0o755))

	paths, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yaml"), filepath.Join(dir, "b.yaml")}, paths)
}
