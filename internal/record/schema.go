package record

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/tuannm99/shardb/internal/dberr"
)

// MetadataFile is the per-table schema file name.
const MetadataFile = "metadata.txt"

// Metadata maps attribute names to column positions.
//
// Base tables always have a dense mapping 0..N-1. Join results carry a
// combined mapping whose width is the physical field count of every joined
// row; two names may share one position there.
type Metadata struct {
	pos   map[string]int
	width int
}

// NewMetadata assigns positions 0..len(attrs)-1 in order.
func NewMetadata(attrs []string) (Metadata, error) {
	if len(attrs) == 0 {
		return Metadata{}, fmt.Errorf("%w: table needs at least one attribute", dberr.ErrInvalid)
	}
	m := Metadata{pos: make(map[string]int, len(attrs)), width: len(attrs)}
	for i, a := range attrs {
		if err := ValidateName(a); err != nil {
			return Metadata{}, fmt.Errorf("attribute: %w", err)
		}
		if _, dup := m.pos[a]; dup {
			return Metadata{}, fmt.Errorf("%w: duplicate attribute %q", dberr.ErrInvalid, a)
		}
		m.pos[a] = i
	}
	return m, nil
}

// Pos returns the column of attr.
func (m Metadata) Pos(attr string) (int, bool) {
	p, ok := m.pos[attr]
	return p, ok
}

// Has reports whether attr is mapped.
func (m Metadata) Has(attr string) bool {
	_, ok := m.pos[attr]
	return ok
}

// Width is the number of physical fields in every record.
func (m Metadata) Width() int { return m.width }

// Len is the number of mapped names.
func (m Metadata) Len() int { return len(m.pos) }

// Names returns attribute names ordered by position, then by name.
func (m Metadata) Names() []string {
	names := make([]string, 0, len(m.pos))
	for n := range m.pos {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		pi, pj := m.pos[names[i]], m.pos[names[j]]
		if pi != pj {
			return pi < pj
		}
		return names[i] < names[j]
	})
	return names
}

// Validate checks that every key in attrs is mapped. The first unknown name
// is reported as ErrSchema.
func (m Metadata) Validate(attrs []string) error {
	for _, a := range attrs {
		if !m.Has(a) {
			return fmt.Errorf("%w: %q", dberr.ErrSchema, a)
		}
	}
	return nil
}

// Combine builds the metadata of m ⋈ other. m keeps its positions, other's
// columns move right by m.Width(), and other's join column is aliased to
// m's join column position. When other reuses one of m's names (other than
// the join column) other's mapping wins.
func (m Metadata) Combine(other Metadata, thisAttr, otherAttr string) (Metadata, error) {
	thisPos, ok := m.Pos(thisAttr)
	if !ok {
		return Metadata{}, fmt.Errorf("%w: join attribute %q missing on left side", dberr.ErrJoin, thisAttr)
	}
	if !other.Has(otherAttr) {
		return Metadata{}, fmt.Errorf("%w: join attribute %q missing on right side", dberr.ErrJoin, otherAttr)
	}

	out := Metadata{
		pos:   make(map[string]int, m.Len()+other.Len()),
		width: m.width + other.width,
	}
	for k, v := range m.pos {
		out.pos[k] = v
	}
	for k, v := range other.pos {
		if k == otherAttr {
			out.pos[k] = thisPos
			continue
		}
		out.pos[k] = v + m.width
	}
	return out, nil
}

// ParseMetadata reads "attr,idx" lines. Blank lines are ignored and lines
// without a comma are logged and skipped; a bad index is an error.
func ParseMetadata(r io.Reader) (Metadata, error) {
	m := Metadata{pos: make(map[string]int)}
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		cut := strings.IndexByte(line, ',')
		if cut < 0 {
			slog.Warn("metadata: invalid mapping line, skipped", "line", lineNo, "text", line)
			continue
		}
		name := line[:cut]
		idx, err := strconv.Atoi(strings.TrimSpace(line[cut+1:]))
		if err != nil || idx < 0 {
			return Metadata{}, fmt.Errorf("%w: metadata line %d: bad column index %q", dberr.ErrInvalid, lineNo, line[cut+1:])
		}
		m.pos[name] = idx
		if idx+1 > m.width {
			m.width = idx + 1
		}
	}
	if err := sc.Err(); err != nil {
		return Metadata{}, err
	}
	return m, nil
}

// WriteTo writes one "attr,idx\n" line per name in column order.
func (m Metadata) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, n := range m.Names() {
		k, err := fmt.Fprintf(w, "%s,%d\n", n, m.pos[n])
		total += int64(k)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ValidateName checks a table or attribute identifier:
//   - non-empty, single token
//   - first char: letter or '_'
//   - rest: letter/digit/'_'
//
// This keeps names safe as directory names and free of the ',' ':' '.'
// separators used by the file format and the command language.
func ValidateName(s string) error {
	if s == "" {
		return fmt.Errorf("%w: missing identifier", dberr.ErrInvalid)
	}
	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return fmt.Errorf("%w: invalid identifier %q", dberr.ErrInvalid, s)
			}
			continue
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return fmt.Errorf("%w: invalid identifier %q", dberr.ErrInvalid, s)
		}
	}
	return nil
}
