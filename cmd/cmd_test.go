package cmd

import (
	"bytes"
	"encoding/json"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AzielCF/az-mediacache/mediacache/application"
	"github.com/AzielCF/az-mediacache/mediacache/domain"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func TestCommands_SQLiteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("DB_NAME", filepath.Join(dir, "cache.db"))

	img := imaging.New(4, 4, color.NRGBA{G: 255, A: 255})
	require.NoError(t, imaging.Save(img, filepath.Join(dir, "green.png")))

	out := run(t, "--store", "sqlite", "put", "green.png", "--id", "g1", "--owner", "u1", "--group", "c1")
	assert.Contains(t, out, "stored g1")

	out = run(t, "--store", "sqlite", "get", "g1", "--meta")
	var entry domain.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entry))
	assert.Equal(t, "g1", entry.ID)
	assert.Empty(t, entry.Payload)
	assert.Positive(t, entry.SizeBytes)

	out = run(t, "--store", "sqlite", "stats")
	var stats application.CacheStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 1, stats.TotalEntries)

	out = run(t, "--store", "sqlite", "delete", "--owner", "u1")
	assert.Contains(t, out, "removed 1 entries")

	out = run(t, "--store", "sqlite", "stats")
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 0, stats.TotalEntries)
}

func TestCommands_RehydrateInlineReference(t *testing.T) {
	t.Chdir(t.TempDir())

	out := run(t, "--store", "memory", "rehydrate", "--now", "--owner", "u1", "--group", "c1", "data:text/plain;base64,aGk=")
	assert.Equal(t, "data:text/plain;base64,aGk=\n", out)
}

func TestCommands_InvalidStore(t *testing.T) {
	t.Chdir(t.TempDir())

	rootCmd.SetArgs([]string{"--store", "mongo", "stats"})
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	assert.Error(t, rootCmd.Execute())
	_ = os.Unsetenv("CACHE_STORE")
	flagStore = ""
}
