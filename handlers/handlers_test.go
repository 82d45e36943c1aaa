package handlers

import (
	"context"
	"editor-rpc/message"
	"editor-rpc/server"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"
)

func setup(t *testing.T) (*server.Dispatcher, *SettingsStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	store, err := OpenSettings(path)
	require.NoError(t, err)

	d := server.NewDispatcher(zaptest.NewLogger(t))
	require.NoError(t, Register(d, store))
	return d, store, path
}

func dispatch(t *testing.T, d *server.Dispatcher, command string, args map[string]any, out any) *message.Response {
	t.Helper()
	resp := d.Dispatch(context.Background(), &message.Request{ID: "t-1", Command: command, Arguments: args})
	if out != nil && !resp.Failed() {
		require.NoError(t, json.Unmarshal(resp.Result, out))
	}
	return resp
}

func TestCommandsAreRegistered(t *testing.T) {
	d, _, _ := setup(t)
	assert.Equal(t, []string{
		"echo",
		"ensureImportUpdates",
		"getSettings",
		"listCommands",
		"ping",
		"serverInfo",
		"updateSetting",
	}, d.Commands())

	var listed []string
	dispatch(t, d, "listCommands", nil, &listed)
	assert.Equal(t, d.Commands(), listed)
}

func TestPingAndEcho(t *testing.T) {
	d, _, _ := setup(t)

	var pong string
	dispatch(t, d, "ping", nil, &pong)
	assert.Equal(t, "pong", pong)

	var echoed map[string]any
	dispatch(t, d, "echo", map[string]any{"n": 1.5, "s": "x"}, &echoed)
	assert.Equal(t, map[string]any{"n": 1.5, "s": "x"}, echoed)
}

func TestUpdateAndGetSettings(t *testing.T) {
	d, store, path := setup(t)

	resp := dispatch(t, d, "updateSetting", map[string]any{"key": "editor.tabSize", "value": 2}, nil)
	require.False(t, resp.Failed(), resp.Error)

	v, ok := store.Get("editor.tabSize")
	require.True(t, ok)
	assert.Equal(t, 2, v)

	var all map[string]any
	dispatch(t, d, "getSettings", nil, &all)
	assert.Equal(t, map[string]any{"editor.tabSize": 2.0}, all)

	var some map[string]any
	dispatch(t, d, "getSettings", map[string]any{"keys": []any{"editor.tabSize", "missing"}}, &some)
	assert.Equal(t, map[string]any{"editor.tabSize": 2.0}, some)

	// Persisted as YAML.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk map[string]any
	require.NoError(t, yaml.Unmarshal(data, &onDisk))
	assert.Equal(t, 2, onDisk["editor.tabSize"])
}

func TestUpdateSettingValidation(t *testing.T) {
	d, _, _ := setup(t)

	assert.Equal(t, "key is required", dispatch(t, d, "updateSetting", map[string]any{"value": 1}, nil).Error)
	assert.Equal(t, "value is required", dispatch(t, d, "updateSetting", map[string]any{"key": "a"}, nil).Error)
	assert.Equal(t, "keys must be an array of strings", dispatch(t, d, "getSettings", map[string]any{"keys": "a"}, nil).Error)
}

func TestEnsureImportUpdates(t *testing.T) {
	d, store, path := setup(t)
	require.NoError(t, store.Set("javascript.updateImportsOnFileMove.enabled", "never"))

	var out struct {
		Value   string   `json:"value"`
		Changed []string `json:"changed"`
	}
	dispatch(t, d, "ensureImportUpdates", nil, &out)
	assert.Equal(t, "always", out.Value)
	assert.ElementsMatch(t, importUpdateKeys, out.Changed)

	for _, key := range importUpdateKeys {
		v, _ := store.Get(key)
		assert.Equal(t, "always", v, key)
	}

	// Second run is a no-op.
	dispatch(t, d, "ensureImportUpdates", nil, &out)
	assert.Empty(t, out.Changed)

	reopened, err := OpenSettings(path)
	require.NoError(t, err)
	v, _ := reopened.Get("typescript.updateImportsOnFileMove.enabled")
	assert.Equal(t, "always", v)
}

func TestOpenSettingsRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("[not: a map"), 0o600))

	_, err := OpenSettings(path)
	assert.Error(t, err)
}

func TestSetManyKeepsMemoryOnSaveFailure(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenSettings(filepath.Join(dir, "sub", "settings.yaml"))
	require.NoError(t, err)

	// The parent "directory" is a regular file, so saving fails.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub"), nil, 0o600))

	assert.Error(t, store.Set("a", 1))
	_, ok := store.Get("a")
	assert.False(t, ok)
}
