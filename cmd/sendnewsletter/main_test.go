package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dbType string) (string, string) {
	t.Helper()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "data", "subscribers.db")
	yaml := fmt.Sprintf("db:\n  type: %s\n  path: %s\ncontent:\n  newsletters: %s\n",
		dbType, dbPath, filepath.Join(dir, "newsletters"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	return dir, dbPath
}

func TestRunRefusesBoltStore(t *testing.T) {
	t.Setenv("GMAIL_USER", "")
	t.Setenv("GMAIL_APP_PASSWORD", "")
	dir, dbPath := writeConfig(t, "bolt")

	var out bytes.Buffer
	code := run(context.Background(), options{configDir: dir}, &out)

	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "locked by the running server")
	_, err := os.Stat(dbPath)
	assert.True(t, os.IsNotExist(err))
}

func TestRunListWithBoltStore(t *testing.T) {
	t.Setenv("GMAIL_USER", "")
	t.Setenv("GMAIL_APP_PASSWORD", "")
	dir, _ := writeConfig(t, "bolt")

	var out bytes.Buffer
	code := run(context.Background(), options{configDir: dir, list: true}, &out)

	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "No newsletters found")
}
