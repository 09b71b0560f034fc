// Package dirdiff compares two directory trees file by file: files present
// on only one side are reported as such, files present on both are compared
// with a unified diff.
package dirdiff

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/opsctl/opsctl/internal/cli"
)

// Options control how the comparison is rendered.
type Options struct {
	// ContextLines is the number of unchanged lines around each hunk.
	ContextLines int
	// Color enables lipgloss-styled terminal output.
	Color bool
}

// FileDiff is the comparison result for one relative path.
type FileDiff struct {
	RelPath   string
	OnlyLeft  bool
	OnlyRight bool
	// Diff is the unified diff text, empty when the files are identical
	// or the file exists on one side only.
	Diff string
}

// Result is the full tree comparison.
type Result struct {
	Left, Right string
	Files       []FileDiff
}

// Identical reports whether the two trees held the same files with the
// same content.
func (r *Result) Identical() bool {
	for _, f := range r.Files {
		if f.OnlyLeft || f.OnlyRight || f.Diff != "" {
			return false
		}
	}
	return true
}

// Compare walks both roots and diffs the union of their relative paths.
func Compare(left, right string, opts Options) (*Result, error) {
	if opts.ContextLines <= 0 {
		opts.ContextLines = 3
	}

	leftFiles, err := collectFiles(left)
	if err != nil {
		return nil, err
	}
	rightFiles, err := collectFiles(right)
	if err != nil {
		return nil, err
	}

	paths := map[string]bool{}
	for p := range leftFiles {
		paths[p] = true
	}
	for p := range rightFiles {
		paths[p] = true
	}
	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	result := &Result{Left: left, Right: right}
	for _, rel := range sorted {
		_, inLeft := leftFiles[rel]
		_, inRight := rightFiles[rel]

		fd := FileDiff{RelPath: rel}
		switch {
		case inLeft && !inRight:
			fd.OnlyLeft = true
		case !inLeft && inRight:
			fd.OnlyRight = true
		default:
			diff, err := diffFiles(leftFiles[rel], rightFiles[rel], rel, opts.ContextLines)
			if err != nil {
				return nil, err
			}
			fd.Diff = diff
		}
		result.Files = append(result.Files, fd)
	}
	return result, nil
}

// collectFiles maps relative path to absolute path for every regular file
// under root.
func collectFiles(root string) (map[string]string, error) {
	files := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = path
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return files, nil
}

func diffFiles(leftPath, rightPath, rel string, contextLines int) (string, error) {
	leftData, err := os.ReadFile(leftPath)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", leftPath, err)
	}
	rightData, err := os.ReadFile(rightPath)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", rightPath, err)
	}

	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(leftData)),
		B:        difflib.SplitLines(string(rightData)),
		FromFile: filepath.Join("a", rel),
		ToFile:   filepath.Join("b", rel),
		Context:  contextLines,
	})
}

// Render writes the result as text, colored when opts.Color is set.
func Render(w io.Writer, result *Result, opts Options) error {
	for _, f := range result.Files {
		switch {
		case f.OnlyLeft:
			line := fmt.Sprintf("only in %s: %s", result.Left, f.RelPath)
			if opts.Color {
				line = cli.WarningStyle.Render(line)
			}
			fmt.Fprintln(w, line)
		case f.OnlyRight:
			line := fmt.Sprintf("only in %s: %s", result.Right, f.RelPath)
			if opts.Color {
				line = cli.WarningStyle.Render(line)
			}
			fmt.Fprintln(w, line)
		case f.Diff != "":
			header := fmt.Sprintf("=== %s ===", f.RelPath)
			if opts.Color {
				header = cli.HeaderStyle.Render(header)
			}
			fmt.Fprintln(w, header)
			if opts.Color {
				fmt.Fprint(w, colorize(f.Diff))
			} else {
				fmt.Fprint(w, f.Diff)
			}
		}
	}
	if result.Identical() {
		line := "directories are identical"
		if opts.Color {
			line = cli.SuccessStyle.Render(line)
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

// colorize styles unified diff lines: additions green, removals red,
// hunk and file headers muted.
func colorize(diff string) string {
	var b strings.Builder
	for _, line := range strings.SplitAfter(diff, "\n") {
		if line == "" {
			continue
		}
		text := strings.TrimSuffix(line, "\n")
		switch {
		case strings.HasPrefix(text, "+++"), strings.HasPrefix(text, "---"), strings.HasPrefix(text, "@@"):
			b.WriteString(cli.MutedStyle.Render(text))
		case strings.HasPrefix(text, "+"):
			b.WriteString(cli.AddedStyle.Render(text))
		case strings.HasPrefix(text, "-"):
			b.WriteString(cli.RemovedStyle.Render(text))
		default:
			b.WriteString(text)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// WriteReport writes a plain-text (uncolored) report to path.
func WriteReport(path string, result *Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report %s: %w", path, err)
	}
	defer f.Close()
	return Render(f, result, Options{})
}
