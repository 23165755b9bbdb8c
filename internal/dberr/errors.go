// Package dberr holds the error kinds shared by every layer of shardb.
// Callers classify failures with errors.Is against these sentinels; the
// concrete error always carries the table, attribute or path involved.
package dberr

import (
	"errors"
	"fmt"
)

var (
	// ErrSchema: an attribute name is not part of the table metadata.
	ErrSchema = errors.New("shardb: unknown attribute")
	// ErrNotFound: missing table, or a record index out of range.
	ErrNotFound = errors.New("shardb: not found")
	// ErrIO: open/read/write/rename failure beneath a table.
	ErrIO = errors.New("shardb: i/o error")
	// ErrJoin: missing join attribute or a failed join worker.
	ErrJoin = errors.New("shardb: join failed")
	// ErrExists: the table is already cataloged or on disk.
	ErrExists = errors.New("shardb: already exists")
	// ErrInvalid: malformed names or arguments.
	ErrInvalid = errors.New("shardb: invalid argument")
)

// IO wraps err as an ErrIO for the given operation and path.
func IO(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s %s: %w", ErrIO, op, path, err)
}

// Kind returns the sentinel that err wraps, or nil when err is not one of ours.
func Kind(err error) error {
	for _, k := range []error{ErrSchema, ErrNotFound, ErrIO, ErrJoin, ErrExists, ErrInvalid} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
