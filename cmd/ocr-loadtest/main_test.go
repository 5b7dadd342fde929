package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenImagesCommand(t *testing.T) {
	dir := t.TempDir()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"gen-images", "--output-dir", dir, "--count", "1", "--seed", "7"})

	require.NoError(t, cmd.Execute())
	_, err := os.Stat(filepath.Join(dir, "test_image_1.jpg"))
	require.NoError(t, err)
	assert.Contains(t, out.String(), "test_image_1.jpg")
}

func TestMonitorRequiresImage(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"monitor"})
	assert.Error(t, cmd.Execute())
}

func TestBenchRejectsZeroRequests(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"bench", "--requests", "0"})
	assert.Error(t, cmd.Execute())
}
