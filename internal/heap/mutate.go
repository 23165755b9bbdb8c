package heap

import (
	"fmt"
	"log/slog"

	"github.com/tuannm99/shardb/internal/dberr"
	"github.com/tuannm99/shardb/internal/record"
)

// Update overwrites the named fields of record id in place. Only the shard
// holding the record is rewritten; every other shard file is untouched.
func (t *Table) Update(id int, updates map[string]string) error {
	if err := t.meta.Validate(sortedKeys(updates)); err != nil {
		return fmt.Errorf("update %q: %w", t.Name, err)
	}
	loc, err := t.findRecord(id)
	if err != nil {
		return err
	}

	width := t.meta.Width()
	_, err = t.shards[loc.Shard].Rewrite(func(local int, line string) (string, bool, error) {
		if local != loc.Line {
			return line, true, nil
		}
		rec := record.Split(line).Pad(width)
		for attr, v := range updates {
			pos, _ := t.meta.Pos(attr)
			rec[pos] = v
		}
		return rec.Line(), true, nil
	})
	if err != nil {
		return fmt.Errorf("update %q record %d: %w", t.Name, id, err)
	}
	return nil
}

// NullifyByIndex sets the given attributes of record id to NULL.
func (t *Table) NullifyByIndex(id int, attrs []string) error {
	if len(attrs) == 0 {
		return fmt.Errorf("%w: no attributes to nullify", dberr.ErrInvalid)
	}
	updates := make(map[string]string, len(attrs))
	for _, a := range attrs {
		updates[a] = record.Null
	}
	return t.Update(id, updates)
}

// DeleteByIndex removes record id. Later records shift down by one.
func (t *Table) DeleteByIndex(id int) error {
	if _, err := t.findRecord(id); err != nil {
		return err
	}
	n, err := t.deleteWhere(func(idx int, _ record.Record) bool { return idx == id })
	if err != nil {
		return err
	}
	slog.Debug("heap: delete by index", "table", t.Name, "id", id, "deleted", n)
	return nil
}

// DeleteByAttributes removes every record whose fields equal all of attrs
// and returns how many went. An empty attrs matches, and deletes, all.
func (t *Table) DeleteByAttributes(attrs map[string]string) (int, error) {
	if err := t.meta.Validate(sortedKeys(attrs)); err != nil {
		return 0, fmt.Errorf("delete from %q: %w", t.Name, err)
	}
	n, err := t.deleteWhere(func(_ int, rec record.Record) bool {
		return record.Matches(t.meta, rec, attrs)
	})
	if err != nil {
		return n, err
	}
	slog.Debug("heap: delete by attributes", "table", t.Name, "deleted", n)
	return n, nil
}

// deleteWhere rewrites every shard, dropping records for which pred holds.
// idx is the logical index before any deletion. Shards without a match are
// not replaced. A failure part way leaves earlier shards rewritten.
func (t *Table) deleteWhere(pred func(idx int, rec record.Record) bool) (int, error) {
	deleted, base := 0, 0
	for _, s := range t.shards {
		seen := 0
		_, err := s.Rewrite(func(local int, line string) (string, bool, error) {
			seen = local + 1
			if pred(base+local, record.Split(line)) {
				deleted++
				return "", false, nil
			}
			return line, true, nil
		})
		if err != nil {
			return deleted, fmt.Errorf("delete from %q: %w", t.Name, err)
		}
		base += seen
	}
	return deleted, nil
}
