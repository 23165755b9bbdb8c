package util

import (
	"io"
	"log/slog"
)

// CloseFileFunc closes f on read-only paths, where a failed close loses no
// data; the error is logged and dropped.
func CloseFileFunc(f io.Closer) {
	if err := f.Close(); err != nil {
		slog.Warn("close file", "err", err)
	}
}
