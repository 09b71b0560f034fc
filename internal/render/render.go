// Package render fills deployment manifest templates from a values file,
// validating that the output is well-formed YAML before writing it.
package render

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// LoadValues reads the values YAML and applies key=value overrides on top.
// Override keys may be dotted to reach into nested maps.
func LoadValues(path string, overrides []string) (map[string]any, error) {
	values := map[string]any{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading values %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("parsing values %s: %w", path, err)
		}
	}

	for _, ov := range overrides {
		key, value, ok := strings.Cut(ov, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("override %q must have the form key=value", ov)
		}
		setValue(values, strings.Split(key, "."), value)
	}
	return values, nil
}

func setValue(values map[string]any, keys []string, value string) {
	for i, key := range keys {
		if i == len(keys)-1 {
			values[key] = value
			return
		}
		next, ok := values[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			values[key] = next
		}
		values = next
	}
}

// RenderFile executes one template against the values. Unresolved
// placeholders are fatal, and the output must parse as YAML.
func RenderFile(templatePath string, values map[string]any) ([]byte, error) {
	tmpl, err := template.New(filepath.Base(templatePath)).
		Option("missingkey=error").
		ParseFiles(templatePath)
	if err != nil {
		return nil, fmt.Errorf("parsing template %s: %w", templatePath, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, values); err != nil {
		return nil, fmt.Errorf("rendering %s: %w", templatePath, err)
	}

	var check any
	if err := yaml.Unmarshal(buf.Bytes(), &check); err != nil {
		return nil, fmt.Errorf("rendered %s is not valid YAML: %w", templatePath, err)
	}
	return buf.Bytes(), nil
}

// RenderAll renders every template into outDir, stripping a trailing
// ".tmpl" from the file name. Returns the paths written.
func RenderAll(templatePaths []string, values map[string]any, outDir string) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir %s: %w", outDir, err)
	}

	var written []string
	for _, tp := range templatePaths {
		data, err := RenderFile(tp, values)
		if err != nil {
			return written, err
		}
		name := strings.TrimSuffix(filepath.Base(tp), ".tmpl")
		out := filepath.Join(outDir, name)
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return written, fmt.Errorf("writing %s: %w", out, err)
		}
		written = append(written, out)
	}
	return written, nil
}
