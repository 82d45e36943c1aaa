// Package handlers holds the commands the editor side answers. Each exported
// method of Commands with the handler signature becomes a command named after
// it (Ping -> "ping").
package handlers

import (
	"context"
	"editor-rpc/server"
	"errors"
	"fmt"
	"runtime"
	"time"
)

const importUpdatesValue = "always"

// Settings switched on by ensureImportUpdates so moving a file rewrites the
// imports that point at it.
var importUpdateKeys = []string{
	"typescript.updateImportsOnFileMove.enabled",
	"javascript.updateImportsOnFileMove.enabled",
}

type Commands struct {
	settings *SettingsStore
	lister   interface{ Commands() []string }
	started  time.Time
}

// Register installs every command on d.
func Register(d *server.Dispatcher, settings *SettingsStore) error {
	return d.RegisterService(&Commands{
		settings: settings,
		lister:   d,
		started:  time.Now(),
	})
}

func (c *Commands) Ping(ctx context.Context, args map[string]any) (any, error) {
	return "pong", nil
}

// Echo returns its arguments unchanged.
func (c *Commands) Echo(ctx context.Context, args map[string]any) (any, error) {
	return args, nil
}

func (c *Commands) ListCommands(ctx context.Context, args map[string]any) (any, error) {
	return c.lister.Commands(), nil
}

func (c *Commands) ServerInfo(ctx context.Context, args map[string]any) (any, error) {
	return map[string]any{
		"uptime":    time.Since(c.started).Round(time.Second).String(),
		"goVersion": runtime.Version(),
		"commands":  len(c.lister.Commands()),
	}, nil
}

// GetSettings returns every setting, or only those named in "keys".
func (c *Commands) GetSettings(ctx context.Context, args map[string]any) (any, error) {
	raw, ok := args["keys"]
	if !ok {
		return c.settings.All(), nil
	}
	keys, ok := raw.([]any)
	if !ok {
		return nil, errors.New("keys must be an array of strings")
	}

	out := make(map[string]any, len(keys))
	for _, k := range keys {
		key, ok := k.(string)
		if !ok {
			return nil, errors.New("keys must be an array of strings")
		}
		if v, found := c.settings.Get(key); found {
			out[key] = v
		}
	}
	return out, nil
}

func (c *Commands) UpdateSetting(ctx context.Context, args map[string]any) (any, error) {
	key, _ := args["key"].(string)
	if key == "" {
		return nil, errors.New("key is required")
	}
	value, ok := args["value"]
	if !ok {
		return nil, errors.New("value is required")
	}
	if err := c.settings.Set(key, value); err != nil {
		return nil, fmt.Errorf("update %s: %w", key, err)
	}
	return map[string]any{"key": key, "value": value}, nil
}

// EnsureImportUpdates turns on import rewriting for TypeScript and JavaScript.
func (c *Commands) EnsureImportUpdates(ctx context.Context, args map[string]any) (any, error) {
	updates := make(map[string]any, len(importUpdateKeys))
	changed := []string{}
	for _, key := range importUpdateKeys {
		updates[key] = importUpdatesValue
		if v, _ := c.settings.Get(key); v != importUpdatesValue {
			changed = append(changed, key)
		}
	}
	if len(changed) > 0 {
		if err := c.settings.SetMany(updates); err != nil {
			return nil, err
		}
	}
	return map[string]any{"value": importUpdatesValue, "changed": changed}, nil
}
