package heap

import (
	"fmt"

	"github.com/tuannm99/shardb/internal/dberr"
)

// Location is where a logical record index lives:
// Shard: position in the table's shard list
// Line : 0-based line offset inside that shard
type Location struct {
	Shard int
	Line  int
}

// findRecord walks the shards in order, accumulating record counts, until
// id falls inside one of them.
func (t *Table) findRecord(id int) (Location, error) {
	if id < 0 {
		return Location{}, fmt.Errorf("%w: record %d in table %q", dberr.ErrNotFound, id, t.Name)
	}
	seen := 0
	for i, s := range t.shards {
		n, err := s.CountRecords()
		if err != nil {
			return Location{}, err
		}
		if id < seen+n {
			return Location{Shard: i, Line: id - seen}, nil
		}
		seen += n
	}
	return Location{}, fmt.Errorf("%w: record %d in table %q (%d records)", dberr.ErrNotFound, id, t.Name, seen)
}
