package fileutils_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"deliverect-tools/catalog-importer/internal/fileutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileExists(t *testing.T) {
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "catalog.csv")
	require.NoError(t, os.WriteFile(testFile, []byte("Category 1,Category 2,Plu\n"), 0600))

	assert.True(t, fileutils.FileExists(testFile))
	assert.False(t, fileutils.FileExists(filepath.Join(tmpDir, "nonexistent.csv")))
	// directories are not files
	assert.False(t, fileutils.FileExists(tmpDir))
}

func TestEnsureDirectoryExists(t *testing.T) {
	tmpDir := t.TempDir()

	newDir := filepath.Join(tmpDir, "reports", "2024")
	require.NoError(t, fileutils.EnsureDirectoryExists(newDir))
	info, err := os.Stat(newDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	assert.NoError(t, fileutils.EnsureDirectoryExists(tmpDir))
	assert.NoError(t, fileutils.EnsureDirectoryExists(""))
}

func TestReadInput(t *testing.T) {
	tmpDir := t.TempDir()
	content := []byte("Category 1,Category 2,Plu\nDrinks,Soda,PLU100\n")
	path := filepath.Join(tmpDir, "catalog.csv")
	require.NoError(t, os.WriteFile(path, content, 0600))

	t.Run("file", func(t *testing.T) {
		data, err := fileutils.ReadInput(path, nil)
		require.NoError(t, err)
		assert.Equal(t, content, data)
	})

	t.Run("stdin", func(t *testing.T) {
		data, err := fileutils.ReadInput(fileutils.Stdio, strings.NewReader("from stdin"))
		require.NoError(t, err)
		assert.Equal(t, "from stdin", string(data))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := fileutils.ReadInput(filepath.Join(tmpDir, "missing.csv"), nil)
		assert.ErrorContains(t, err, "does not exist")
	})
}

func TestWriteOutput(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("creates parent directories", func(t *testing.T) {
		path := filepath.Join(tmpDir, "out", "report.json")
		require.NoError(t, fileutils.WriteOutput(path, []byte(`{"status":"success"}`), nil))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, `{"status":"success"}`, string(data))
	})

	t.Run("stdout", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, fileutils.WriteOutput("", []byte("summary"), &buf))
		require.NoError(t, fileutils.WriteOutput(fileutils.Stdio, []byte("!"), &buf))
		assert.Equal(t, "summary!", buf.String())
	})
}

func TestCreateFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "problems.csv")

	file, err := fileutils.CreateFile(path)
	require.NoError(t, err)
	_, err = file.WriteString("kind,row,context,message\n")
	require.NoError(t, err)
	require.NoError(t, file.Close())

	assert.True(t, fileutils.FileExists(path))
}
