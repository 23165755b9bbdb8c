package catalog

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"golang.org/x/exp/slices"

	"github.com/tuannm99/shardb/internal/dberr"
	"github.com/tuannm99/shardb/internal/heap"
)

// TableInfo is what `describe` prints about one table.
type TableInfo struct {
	Name    string
	Columns []string
	Shards  int
	Records int
	Bytes   int64
}

// Size is Bytes in IEC units, e.g. "1.5 MiB".
func (ti TableInfo) Size() string {
	if ti.Bytes < 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(ti.Bytes))
}

// NewTableInfo snapshots tbl.
func NewTableInfo(tbl *heap.Table) (TableInfo, error) {
	st, err := tbl.Stats()
	if err != nil {
		return TableInfo{}, err
	}
	return TableInfo{
		Name:    tbl.Name,
		Columns: tbl.Metadata().Names(),
		Shards:  st.Shards,
		Records: st.Records,
		Bytes:   st.Bytes,
	}, nil
}

// Catalog maps table names to open tables. Lookups may run concurrently;
// Put and Remove take the write lock.
type Catalog struct {
	mu     sync.RWMutex
	tables map[string]*heap.Table
}

func New() *Catalog {
	return &Catalog{tables: make(map[string]*heap.Table)}
}

func (c *Catalog) Get(name string) (*heap.Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tbl, ok := c.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: table %q", dberr.ErrNotFound, name)
	}
	return tbl, nil
}

func (c *Catalog) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.tables[name]
	return ok
}

// Put registers tbl under tbl.Name. An existing entry is never replaced.
func (c *Catalog) Put(tbl *heap.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.tables[tbl.Name]; ok {
		return fmt.Errorf("%w: table %q", dberr.ErrExists, tbl.Name)
	}
	c.tables[tbl.Name] = tbl
	return nil
}

// Remove unregisters name and returns the table it held.
func (c *Catalog) Remove(name string) (*heap.Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tbl, ok := c.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: table %q", dberr.ErrNotFound, name)
	}
	delete(c.tables, name)
	return tbl, nil
}

// Names returns the cataloged table names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	names := make([]string, 0, len(c.tables))
	for n := range c.tables {
		names = append(names, n)
	}
	c.mu.RUnlock()

	slices.Sort(names)
	return names
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tables)
}
