// Package shardb is the top-level facade for the sharded CSV table store.
package shardb

import (
	"github.com/tuannm99/shardb/internal/catalog"
	"github.com/tuannm99/shardb/internal/engine"
	"github.com/tuannm99/shardb/internal/heap"
)

type (
	Database     = engine.DBManager
	Options      = engine.Options
	TableOptions = heap.Options
	Table        = heap.Table
	TableInfo    = catalog.TableInfo
)

// Open loads (or creates) the database under opts.Root.
func Open(opts Options) (*Database, error) {
	return engine.Open(opts)
}
