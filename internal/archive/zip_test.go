package archive

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readZipSoleEntry(t *testing.T, path string) string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	require.Len(t, r.File, 1)

	rc, err := r.File[0].Open()
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestZipAndRemoveRoundTrips(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "BTCUSDT_orderbook_20240301_0000.jsonl")
	writeFile(t, src, "line one\nline two\n")

	require.NoError(t, ZipAndRemove(src))

	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("expected source removed, stat err = %v", err)
	}

	dst := src + ".zip"
	got := readZipSoleEntry(t, dst)
	assert.Equal(t, "line one\nline two\n", got)
}

func TestZipAndRemoveMissingSourceFails(t *testing.T) {
	dir := t.TempDir()
	err := ZipAndRemove(filepath.Join(dir, "missing.jsonl"))
	require.Error(t, err)
}

func TestConsolidateDayMergesMembers(t *testing.T) {
	dir := t.TempDir()

	for i, content := range []string{"bucket-one\n", "bucket-two\n"} {
		src := filepath.Join(dir, filepathName(i))
		writeFile(t, src, content)
		require.NoError(t, ZipAndRemove(src))
	}

	dest := filepath.Join(t.TempDir(), "BTCUSDT_orderbook_2024-03-01.zip")
	require.NoError(t, ConsolidateDay(dir, dest))

	r, err := zip.OpenReader(dest)
	require.NoError(t, err)
	defer r.Close()
	assert.Len(t, r.File, 2)
}

func TestConsolidateDayFailsWithNoMembers(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(t.TempDir(), "empty.zip")
	err := ConsolidateDay(dir, dest)
	require.Error(t, err)
}

func filepathName(i int) string {
	names := []string{"BTCUSDT_orderbook_20240301_0000.jsonl", "BTCUSDT_orderbook_20240301_0005.jsonl"}
	return names[i]
}
