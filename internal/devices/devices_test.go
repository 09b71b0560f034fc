package devices

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTable(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "devices.yaml", `
devices:
  - name: sensor-1
    address: 10.1.0.10
    fields:
      rack: a3
  - name: sensor-2
    address: 10.1.0.11
`)

	table, err := LoadTable(path)
	require.NoError(t, err)
	require.Len(t, table.Devices, 2)
	assert.Equal(t, "sensor-1", table.Devices[0].Name)
	assert.Equal(t, "a3", table.Devices[0].Fields["rack"])

	empty := writeFile(t, dir, "empty.yaml", "devices: []\n")
	_, err = LoadTable(empty)
	assert.ErrorContains(t, err, "no devices")
}

func TestRenderEntries(t *testing.T) {
	dir := t.TempDir()
	tmpl := writeFile(t, dir, "entry.json.tmpl",
		`{"id": "{{.Name}}", "ip": "{{.Address}}"}`)

	table := &Table{Devices: []Device{
		{Name: "sensor-1", Address: "10.1.0.10"},
		{Name: "sensor-2", Address: "10.1.0.11"},
	}}

	entries, err := RenderEntries(tmpl, table)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	first := entries[0].(map[string]any)
	assert.Equal(t, "sensor-1", first["id"])
	assert.Equal(t, "10.1.0.10", first["ip"])
}

func TestRenderEntries_MissingFieldIsFatal(t *testing.T) {
	dir := t.TempDir()
	tmpl := writeFile(t, dir, "entry.json.tmpl", `{"id": "{{.Nope}}"}`)

	table := &Table{Devices: []Device{{Name: "sensor-1"}}}
	_, err := RenderEntries(tmpl, table)
	assert.Error(t, err)
}

func TestParseEdit(t *testing.T) {
	tests := []struct {
		in    string
		path  string
		value any
	}{
		{"network.mtu=9000", "network.mtu", float64(9000)},
		{"features.tls=true", "features.tls", true},
		{"name=edge-router", "name", "edge-router"},
		{"limit=null", "limit", nil},
	}
	for _, tt := range tests {
		edit, err := ParseEdit(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.path, edit.Path)
		assert.Equal(t, tt.value, edit.Value)
	}

	_, err := ParseEdit("no-equals-sign")
	assert.Error(t, err)
}

func TestApply_ReplacesDevicesAndSetsFields(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "site-a.json", `{
  "version": 1,
  "devices": [{"id": "old"}],
  "network": {"mtu": 1500}
}`)

	result, err := Apply([]string{filepath.Join(dir, "*.json")}, ApplyOptions{
		DeviceKey: "devices",
		Entries:   []any{map[string]any{"id": "sensor-1"}},
		Edits: []Edit{
			{Path: "network.mtu", Value: float64(9000)},
			{Path: "network.dns.primary", Value: "10.0.0.2"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{cfg}, result.Patched)
	assert.Empty(t, result.Failed)

	data, err := os.ReadFile(cfg)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))

	devices := doc["devices"].([]any)
	require.Len(t, devices, 1)
	assert.Equal(t, "sensor-1", devices[0].(map[string]any)["id"])

	network := doc["network"].(map[string]any)
	assert.Equal(t, float64(9000), network["mtu"])
	assert.Equal(t, "10.0.0.2", network["dns"].(map[string]any)["primary"])
}

func TestApply_BadFileWarnsAndContinues(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.json", `{"version": 1}`)
	bad := writeFile(t, dir, "bad.json", `not json at all`)

	result, err := Apply([]string{filepath.Join(dir, "*.json")}, ApplyOptions{
		Edits: []Edit{{Path: "version", Value: float64(2)}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{good}, result.Patched)
	assert.Equal(t, []string{bad}, result.Failed)
}

func TestApply_NoMatches(t *testing.T) {
	_, err := Apply([]string{filepath.Join(t.TempDir(), "*.json")}, ApplyOptions{})
	assert.ErrorContains(t, err, "no files matched")
}

func TestSetPath_ArrayIndex(t *testing.T) {
	doc := map[string]any{
		"devices": []any{
			map[string]any{"id": "a"},
			map[string]any{"id": "b"},
		},
	}
	require.NoError(t, setPath(doc, "devices.1.id", "patched"))
	assert.Equal(t, "patched", doc["devices"].([]any)[1].(map[string]any)["id"])

	assert.Error(t, setPath(doc, "devices.9.id", "x"))
	assert.Error(t, setPath(doc, "devices.notanum", "x"))
}

func TestSetPath_ScalarInPath(t *testing.T) {
	doc := map[string]any{"version": float64(1)}
	assert.Error(t, setPath(doc, "version.minor", 2))
}
