package heap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.uber.org/multierr"

	"github.com/tuannm99/shardb/internal/alias/util"
	"github.com/tuannm99/shardb/internal/dberr"
	"github.com/tuannm99/shardb/internal/hashjoin"
	"github.com/tuannm99/shardb/internal/storage"
)

// Join computes t ⋈ other on t.thisAttr == other.otherAttr.
//
// Every shard of t runs as the build side of its own task against all of
// other's shards; the task outputs are merged, in t's shard order, into one
// ephemeral shard owned by the returned temporary table. If any task fails
// the whole join fails and no partial output survives.
func (t *Table) Join(ctx context.Context, other *Table, thisAttr, otherAttr string) (*Table, error) {
	combined, err := t.meta.Combine(other.meta, thisAttr, otherAttr)
	if err != nil {
		return nil, fmt.Errorf("join %q with %q: %w", t.Name, other.Name, err)
	}

	opts := storage.JoinOptions{TempDir: t.opts.TempDir}
	futures := make([]*storage.JoinFuture, len(t.shards))
	results := make([]storage.JoinResult, len(t.shards))

	collected := 0
	for i, s := range t.shards {
		if limit := t.opts.MaxJoinWorkers; limit > 0 && i-collected >= limit {
			results[collected] = futures[collected].Wait()
			collected++
		}
		futures[i] = s.JoinAsync(ctx, other.shards, thisAttr, otherAttr, t.meta, other.meta, opts)
	}
	for ; collected < len(futures); collected++ {
		results[collected] = futures[collected].Wait()
	}

	var (
		errs  error
		parts []*storage.Shard
		total hashjoin.Stats
	)
	for _, res := range results {
		if res.Err != nil {
			errs = multierr.Append(errs, res.Err)
			continue
		}
		parts = append(parts, res.Shard)
		total.BuildRows += res.Stats.BuildRows
		total.ProbeRows += res.Stats.ProbeRows
		total.Matches += res.Stats.Matches
		total.Skipped += res.Stats.Skipped
	}
	defer releaseAll(parts)

	if errs != nil {
		return nil, fmt.Errorf("join %q with %q: %w", t.Name, other.Name, errs)
	}

	merged, err := mergeShards(t, parts)
	if err != nil {
		return nil, fmt.Errorf("join %q with %q: %w", t.Name, other.Name, err)
	}

	slog.Info("heap: join done",
		"left", t.Name, "right", other.Name,
		"tasks", len(parts), "matches", total.Matches, "skipped", total.Skipped)
	if total.Skipped > 0 {
		slog.Warn("heap: join skipped short records", "left", t.Name, "right", other.Name, "count", total.Skipped)
	}

	name := t.Name + "_" + other.Name
	return NewTempTable(t.fs, name, combined, []*storage.Shard{merged}, t.opts), nil
}

func releaseAll(shards []*storage.Shard) {
	for _, s := range shards {
		if err := s.Release(); err != nil {
			slog.Warn("heap: release shard", "path", s.Path(), "err", err)
		}
	}
}

// mergeShards concatenates parts into a fresh ephemeral shard. With
// MergeSkipLeadingLine set, the first line of every part after the first
// is dropped.
func mergeShards(t *Table, parts []*storage.Shard) (*storage.Shard, error) {
	out, err := storage.NewEphemeralShard(t.fs, t.opts.TempDir)
	if err != nil {
		return nil, err
	}

	if err := writeMerged(t, out.Path(), parts); err != nil {
		if relErr := out.Release(); relErr != nil {
			slog.Warn("heap: release merge output", "path", out.Path(), "err", relErr)
		}
		return nil, err
	}
	return out, nil
}

func writeMerged(t *Table, path string, parts []*storage.Shard) (err error) {
	f, err := t.fs.OpenFile(path, os.O_WRONLY|os.O_TRUNC, storage.FileMode0644)
	if err != nil {
		return dberr.IO("open merge output", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = dberr.IO("close merge output", path, cerr)
		}
	}()

	bw := bufio.NewWriter(f)
	for i, p := range parts {
		if err := copyPart(t, bw, p.Path(), t.opts.MergeSkipLeadingLine && i > 0); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return dberr.IO("write merge output", path, err)
	}
	return nil
}

func copyPart(t *Table, w io.Writer, path string, skipFirst bool) error {
	in, err := t.fs.Open(path)
	if err != nil {
		return dberr.IO("open join output", path, err)
	}
	defer util.CloseFileFunc(in)

	br := bufio.NewReader(in)
	if skipFirst {
		if _, err := br.ReadString('\n'); err != nil && !errors.Is(err, io.EOF) {
			return dberr.IO("read join output", path, err)
		}
	}
	if _, err := io.Copy(w, br); err != nil {
		return dberr.IO("copy join output", path, err)
	}
	return nil
}
