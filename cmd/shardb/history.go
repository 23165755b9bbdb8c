package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/tuannm99/shardb/internal/record"
)

// History is the shell's own history file, one command per line.
type History struct {
	fs    afero.Fs
	path  string
	lines []string
}

func NewHistory(fsys afero.Fs, path string) *History {
	return &History{fs: fsys, path: path}
}

// Load reads the file, keeping at most the last max lines (max <= 0 keeps
// all). A missing file is not an error.
func (h *History) Load(max int) error {
	if h.path == "" {
		return nil
	}
	f, err := h.fs.Open(h.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer func() { _ = f.Close() }()

	return record.ScanLines(f, func(line string) error {
		s := strings.TrimSpace(line)
		if s == "" {
			return nil
		}
		h.lines = append(h.lines, s)
		if max > 0 && len(h.lines) > max {
			h.lines = h.lines[len(h.lines)-max:]
		}
		return nil
	})
}

func (h *History) Lines() []string { return h.lines }

func (h *History) Append(cmd string) error {
	cmd = compactOneLine(cmd)
	if cmd == "" || h.path == "" {
		return nil
	}

	if err := h.fs.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return err
	}
	f, err := h.fs.OpenFile(h.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if _, err := fmt.Fprintln(f, cmd); err != nil {
		return err
	}
	h.lines = append(h.lines, cmd)
	return nil
}

// Print writes the last n entries, numbered; n <= 0 prints all.
func (h *History) Print(w io.Writer, last int) {
	if last <= 0 || last > len(h.lines) {
		last = len(h.lines)
	}
	start := len(h.lines) - last
	for i := start; i < len(h.lines); i++ {
		_, _ = fmt.Fprintf(w, "%5d  %s\n", i+1, h.lines[i])
	}
}

// compactOneLine folds any whitespace run into one space.
func compactOneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
