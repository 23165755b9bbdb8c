package record

import "strings"

// Null marks a cleared field. It is an ordinary string on disk.
const Null = "NULL"

// Record is one row; field order is defined by the table Metadata.
type Record []string

// Split parses one shard line. Fields are not quoted, so a value holding a
// comma shifts every following column.
func Split(line string) Record {
	return Record(strings.Split(line, ","))
}

// Line serializes r without a trailing newline.
func (r Record) Line() string {
	return strings.Join(r, ",")
}

// Field returns r[pos], or false when the record is too short.
func (r Record) Field(pos int) (string, bool) {
	if pos < 0 || pos >= len(r) {
		return "", false
	}
	return r[pos], true
}

// Pad returns r extended with empty fields up to width.
func (r Record) Pad(width int) Record {
	if len(r) >= width {
		return r
	}
	out := make(Record, width)
	copy(out, r)
	return out
}

// Build lays out attrs by metadata position. Unset columns stay empty.
// Every key must already be validated.
func Build(m Metadata, attrs map[string]string) Record {
	rec := make(Record, m.Width())
	for k, v := range attrs {
		if p, ok := m.Pos(k); ok {
			rec[p] = v
		}
	}
	return rec
}

// Matches reports whether every attr=value pair holds for r (AND).
func Matches(m Metadata, r Record, attrs map[string]string) bool {
	for k, v := range attrs {
		p, ok := m.Pos(k)
		if !ok {
			return false
		}
		got, ok := r.Field(p)
		if !ok || got != v {
			return false
		}
	}
	return true
}
