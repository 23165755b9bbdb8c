package hashjoin

import (
	"io"
	"log/slog"
	"strings"

	"github.com/tuannm99/shardb/internal/record"
)

// Index is the in-memory build side: join value -> every record with it.
type Index struct {
	pos     int
	buckets map[string][]record.Record
	rows    int
	skipped int
}

func NewIndex(pos int) *Index {
	return &Index{pos: pos, buckets: make(map[string][]record.Record)}
}

// Add indexes one line. Lines shorter than pos+1 fields are skipped and
// counted; it reports whether the line was indexed.
func (ix *Index) Add(line string) bool {
	rec := record.Split(line)
	key, ok := rec.Field(ix.pos)
	if !ok {
		ix.skipped++
		return false
	}
	ix.buckets[key] = append(ix.buckets[key], rec)
	ix.rows++
	return true
}

// Lookup returns the build records whose join column equals key exactly.
func (ix *Index) Lookup(key string) []record.Record {
	return ix.buckets[key]
}

// Rows is the number of indexed records.
func (ix *Index) Rows() int { return ix.rows }

// Skipped is the number of malformed lines seen by Add.
func (ix *Index) Skipped() int { return ix.skipped }

// Keys is the number of distinct join values.
func (ix *Index) Keys() int { return len(ix.buckets) }

// BuildIndex reads every line of r into a new Index.
func BuildIndex(r io.Reader, pos int) (*Index, error) {
	ix := NewIndex(pos)
	err := record.ScanLines(r, func(line string) error {
		if !ix.Add(line) {
			slog.Warn("hashjoin: build record too short, skipped", "pos", pos, "record", abbreviate(line))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ix, nil
}

func abbreviate(s string) string {
	const max = 80
	if len(s) <= max {
		return s
	}
	return strings.TrimSpace(s[:max]) + "..."
}
