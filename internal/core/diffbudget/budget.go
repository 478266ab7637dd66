// Package diffbudget bounds how much of a rendered diff is shown.
package diffbudget

import (
	"bytes"

	"github.com/foundry/artifactview/internal/core/models"
)

const (
	// DefaultBodyLines is the number of diff body lines kept per file.
	DefaultBodyLines = 199
	// DefaultHeaderLines covers the ---/+++/@@ header lines of a unified diff.
	DefaultHeaderLines = 4
)

// Budget is a per-file line budget. Text and binary/archive diffs share it.
type Budget struct {
	BodyLines   int
	HeaderLines int
}

// Default returns the 199 + 4 line budget.
func Default() Budget {
	return Budget{BodyLines: DefaultBodyLines, HeaderLines: DefaultHeaderLines}
}

// Total is the number of rendered lines a file may show.
func (b Budget) Total() int {
	return b.BodyLines + b.HeaderLines
}

// Truncate returns f with its content cut to the budget unless full is set.
// Lines is always the rendered line count before truncation.
func (b Budget) Truncate(f models.DiffFile, full bool) models.DiffFile {
	lines := CountLines(f.Content)
	f.Lines = lines
	f.Truncated = false
	if full || lines <= b.Total() {
		return f
	}
	f.Content = firstLines(f.Content, b.Total())
	f.Truncated = true
	return f
}

// TruncateAll applies Truncate to every file, keeping order and the file list intact.
func (b Budget) TruncateAll(files []models.DiffFile, full bool) (out []models.DiffFile, anyTruncated bool) {
	out = make([]models.DiffFile, 0, len(files))
	for _, f := range files {
		f = b.Truncate(f, full)
		anyTruncated = anyTruncated || f.Truncated
		out = append(out, f)
	}
	return out, anyTruncated
}

// CountLines counts newline-terminated lines; a final unterminated line counts too.
func CountLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := bytes.Count(content, []byte{'\n'})
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}

func firstLines(content []byte, n int) []byte {
	if n <= 0 {
		return []byte{}
	}
	end := 0
	for i := 0; i < n; i++ {
		idx := bytes.IndexByte(content[end:], '\n')
		if idx < 0 {
			return content
		}
		end += idx + 1
	}
	out := make([]byte, end)
	copy(out, content[:end])
	return out
}
