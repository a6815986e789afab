package mmap

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenReadClose(t *testing.T) {
	content := []byte("one label, many pixels")
	path := filepath.Join(t.TempDir(), "batch.bin")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	m, err := Open(path)
	require.NoError(t, err)

	assert.Equal(t, content, m.Data)

	buf := make([]byte, 5)
	n, err := m.ReadAt(buf, 4)
	require.NoError(t, err)
	assert.Equal(t, "label", string(buf[:n]))

	_, err = m.ReadAt(buf, int64(len(content)))
	assert.Equal(t, io.EOF, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}

func TestOpenEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()

	assert.Nil(t, m.Data)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.bin"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
