// Package devices applies bulk edits to JSON config files: a templated
// device table that replaces each file's device array, and dotted-path
// field assignments.
package devices

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// Device is one row of the device table.
type Device struct {
	Name    string            `yaml:"name"`
	Address string            `yaml:"address"`
	Fields  map[string]string `yaml:"fields,omitempty"`
}

// Table is the YAML device inventory.
type Table struct {
	Devices []Device `yaml:"devices"`
}

// LoadTable reads the device inventory from a YAML file.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading device table %s: %w", path, err)
	}
	var table Table
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parsing device table %s: %w", path, err)
	}
	if len(table.Devices) == 0 {
		return nil, fmt.Errorf("device table %s lists no devices", path)
	}
	return &table, nil
}

// RenderEntries executes the entry template once per device. Each rendering
// must produce a single JSON object.
func RenderEntries(templatePath string, table *Table) ([]any, error) {
	tmpl, err := template.New(filepath.Base(templatePath)).
		Option("missingkey=error").
		ParseFiles(templatePath)
	if err != nil {
		return nil, fmt.Errorf("parsing entry template %s: %w", templatePath, err)
	}

	entries := make([]any, 0, len(table.Devices))
	for _, dev := range table.Devices {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, dev); err != nil {
			return nil, fmt.Errorf("rendering entry for device %s: %w", dev.Name, err)
		}
		var entry any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			return nil, fmt.Errorf("entry for device %s is not valid JSON: %w", dev.Name, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Edit is one dotted-path assignment, e.g. "network.mtu=9000".
type Edit struct {
	Path  string
	Value any
}

// ParseEdit splits a "path=value" flag. Values that parse as JSON scalars
// (numbers, booleans, null) keep their type, everything else is a string.
func ParseEdit(s string) (Edit, error) {
	path, raw, ok := strings.Cut(s, "=")
	if !ok || path == "" {
		return Edit{}, fmt.Errorf("edit %q must have the form path=value", s)
	}
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		value = raw
	}
	return Edit{Path: path, Value: value}, nil
}

// ApplyOptions describe one bulk-edit run.
type ApplyOptions struct {
	// DeviceKey is the config field holding the device array. Empty skips
	// the device-table replacement.
	DeviceKey string
	Entries   []any
	Edits     []Edit
}

// Result tallies the run across files.
type Result struct {
	Patched []string
	Failed  []string
}

// Apply patches every file matching the globs. Per-file failures are
// warnings; the run continues and reports which files failed.
func Apply(globs []string, opts ApplyOptions) (*Result, error) {
	var files []string
	seen := map[string]bool{}
	for _, g := range globs {
		matches, err := filepath.Glob(g)
		if err != nil {
			return nil, fmt.Errorf("bad glob %q: %w", g, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files matched %v", globs)
	}
	sort.Strings(files)

	result := &Result{}
	for _, file := range files {
		if err := patchFile(file, opts); err != nil {
			klog.Warningf("patching %s: %v", file, err)
			result.Failed = append(result.Failed, file)
			continue
		}
		result.Patched = append(result.Patched, file)
	}
	return result, nil
}

func patchFile(path string, opts ApplyOptions) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("not a JSON object: %w", err)
	}

	if opts.DeviceKey != "" {
		doc[opts.DeviceKey] = opts.Entries
	}

	for _, edit := range opts.Edits {
		if err := setPath(doc, edit.Path, edit.Value); err != nil {
			return err
		}
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	out = append(out, '\n')

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, info.Mode().Perm())
}

// setPath assigns value at a dotted path, creating intermediate objects.
// Numeric segments index into existing arrays.
func setPath(doc map[string]any, path string, value any) error {
	segments := strings.Split(path, ".")
	var current any = doc

	for i, seg := range segments {
		last := i == len(segments)-1

		switch node := current.(type) {
		case map[string]any:
			if last {
				node[seg] = value
				return nil
			}
			next, ok := node[seg]
			if !ok {
				next = map[string]any{}
				node[seg] = next
			}
			current = next

		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil {
				return fmt.Errorf("path %q: %q is not an array index", path, seg)
			}
			if idx < 0 || idx >= len(node) {
				return fmt.Errorf("path %q: index %d out of range (len %d)", path, idx, len(node))
			}
			if last {
				node[idx] = value
				return nil
			}
			current = node[idx]

		default:
			return fmt.Errorf("path %q: segment %q is a scalar, cannot descend", path, seg)
		}
	}
	return nil
}
