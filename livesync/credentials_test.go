package livesync

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRuntimeFile(t *testing.T, dir string, port int, token string) string {
	t.Helper()
	path := filepath.Join(dir, "runtime.json")
	data, err := json.Marshal(Credentials{Port: port, Token: token})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestResolver_ReadsRuntimeFile(t *testing.T) {
	path := writeRuntimeFile(t, t.TempDir(), 48123, "secret")

	r, err := NewResolver(path)
	require.NoError(t, err)

	creds, err := r.Resolve()
	require.NoError(t, err)
	assert.Equal(t, 48123, creds.Port)
	assert.Equal(t, "secret", creds.Token)
}

func TestResolver_CachesUntilInvalidated(t *testing.T) {
	dir := t.TempDir()
	path := writeRuntimeFile(t, dir, 48100, "old")

	r, err := NewResolver(path)
	require.NoError(t, err)

	creds, err := r.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "old", creds.Token)

	// Rewriting the file alone must not change the cached value.
	writeRuntimeFile(t, dir, 48101, "new")
	creds, err = r.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "old", creds.Token)

	r.Invalidate()
	creds, err = r.Resolve()
	require.NoError(t, err)
	assert.Equal(t, 48101, creds.Port)
	assert.Equal(t, "new", creds.Token)
}

func TestResolver_InvalidateIdempotent(t *testing.T) {
	path := writeRuntimeFile(t, t.TempDir(), 48100, "tok")
	r, err := NewResolver(path)
	require.NoError(t, err)

	// Clearing an already-clear cache is a no-op.
	r.Invalidate()
	r.Invalidate()

	creds, err := r.Resolve()
	require.NoError(t, err)
	assert.Equal(t, 48100, creds.Port)
}

func TestResolver_EnvOverrides(t *testing.T) {
	path := writeRuntimeFile(t, t.TempDir(), 48100, "file-token")
	t.Setenv(envPort, "48199")
	t.Setenv(envToken, "env-token")

	r, err := NewResolver(path)
	require.NoError(t, err)

	creds, err := r.Resolve()
	require.NoError(t, err)
	assert.Equal(t, 48199, creds.Port)
	assert.Equal(t, "env-token", creds.Token)
}

func TestResolver_EnvOnlyWhenFileMissing(t *testing.T) {
	t.Setenv(envPort, "48150")

	r, err := NewResolver(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)

	creds, err := r.Resolve()
	require.NoError(t, err)
	assert.Equal(t, 48150, creds.Port)
	assert.Empty(t, creds.Token)
}

func TestResolver_MissingFileFails(t *testing.T) {
	t.Setenv(envPort, "") // empty counts as unset

	r, err := NewResolver(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)

	_, err = r.Resolve()
	assert.Error(t, err)
}

func TestResolver_MissingPortFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runtime.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"token":"x"}`), 0600))

	r, err := NewResolver(path)
	require.NoError(t, err)

	_, err = r.Resolve()
	assert.ErrorContains(t, err, "missing port")
}

func TestResolver_WatchInvalidatesOnRewrite(t *testing.T) {
	dir := t.TempDir()
	path := writeRuntimeFile(t, dir, 48100, "first")

	r, err := NewResolver(path)
	require.NoError(t, err)

	done := make(chan struct{})
	defer close(done)
	go func() { _ = r.Watch(done) }()

	// Give the watcher a moment to register.
	time.Sleep(100 * time.Millisecond)

	creds, err := r.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "first", creds.Token)

	writeRuntimeFile(t, dir, 48102, "second")

	// The watcher invalidates asynchronously.
	require.Eventually(t, func() bool {
		creds, err := r.Resolve()
		return err == nil && creds.Token == "second"
	}, 3*time.Second, 25*time.Millisecond, "rewrite should be picked up by the next Resolve")
}
