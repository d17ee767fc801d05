package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintMeans(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "data.CSV")
	require.NoError(t, os.WriteFile(csvPath, []byte("A,B\n10,1\n20,3\n"), 0644))

	var buf bytes.Buffer
	require.NoError(t, printMeans(&buf, csvPath))
	assert.Equal(t, "A\t15.0\t(n=2)\nB\t2.0\t(n=2)\n", buf.String())

	txtPath := filepath.Join(dir, "data.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("1 2\n3 4\n"), 0644))

	buf.Reset()
	require.NoError(t, printMeans(&buf, txtPath))
	assert.Equal(t, "1\t2.0\t(n=2)\n2\t3.0\t(n=2)\n", buf.String())
}

func TestPrintMeans_Missing(t *testing.T) {
	err := printMeans(&bytes.Buffer{}, filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLogWriter(t *testing.T) {
	n, err := logWriter{}.Write([]byte(":w10=0,0.\n"))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}
