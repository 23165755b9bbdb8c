package hashjoin

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/tuannm99/shardb/internal/alias/util"
	"github.com/tuannm99/shardb/internal/dberr"
	"github.com/tuannm99/shardb/internal/record"
)

// flushLines bounds how many joined lines a probe keeps before appending.
const flushLines = 4096

// Stats summarizes one Run.
type Stats struct {
	BuildRows int
	ProbeRows int
	Matches   int
	Skipped   int
}

func (s *Stats) add(o Stats) {
	s.BuildRows += o.BuildRows
	s.ProbeRows += o.ProbeRows
	s.Matches += o.Matches
	s.Skipped += o.Skipped
}

// Worker runs a hash join of one build shard against a set of probe shards
// and appends joined lines to a single output file.
//
// Each join task normally owns a private Worker and output file. Run may
// still be called from several goroutines on one Worker: output is appended
// in whole-line batches under mu.
type Worker struct {
	fs     afero.Fs
	output string

	mu    sync.Mutex
	total Stats
}

func NewWorker(fsys afero.Fs, outputPath string) *Worker {
	return &Worker{fs: fsys, output: outputPath}
}

func (w *Worker) OutputPath() string { return w.output }

// Total returns the stats accumulated over every Run so far.
func (w *Worker) Total() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.total
}

// Run joins buildPath (indexed on buildPos) with every probe path
// (matched on probePos). Each output line is the build record followed by
// the probe record. Records too short to hold the join column are skipped
// on both sides and counted in Stats.Skipped.
func (w *Worker) Run(ctx context.Context, buildPath string, probePaths []string, buildPos, probePos int) (Stats, error) {
	if buildPos < 0 || probePos < 0 {
		return Stats{}, fmt.Errorf("%w: invalid join positions build=%d probe=%d", dberr.ErrJoin, buildPos, probePos)
	}

	ix, err := w.build(buildPath, buildPos)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{BuildRows: ix.Rows(), Skipped: ix.Skipped()}

	slog.Debug("hashjoin: build done",
		"build", buildPath,
		"rows", ix.Rows(),
		"keys", ix.Keys(),
		"skipped", ix.Skipped(),
	)

	for _, p := range probePaths {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		ps, batch, err := w.probe(ix, p, probePos)
		if err != nil {
			return st, err
		}
		if err := w.flush(batch); err != nil {
			return st, err
		}
		st.ProbeRows += ps.ProbeRows
		st.Matches += ps.Matches
		st.Skipped += ps.Skipped
	}

	w.mu.Lock()
	w.total.add(st)
	w.mu.Unlock()

	slog.Debug("hashjoin: probe done",
		"build", buildPath,
		"probe_shards", len(probePaths),
		"matches", st.Matches,
		"output", w.output,
	)
	return st, nil
}

func (w *Worker) build(path string, pos int) (*Index, error) {
	f, err := w.fs.Open(path)
	if err != nil {
		return nil, dberr.IO("open build shard", path, err)
	}
	defer util.CloseFileFunc(f)

	ix, err := BuildIndex(f, pos)
	if err != nil {
		return nil, dberr.IO("read build shard", path, err)
	}
	return ix, nil
}

func (w *Worker) probe(ix *Index, path string, pos int) (Stats, []string, error) {
	f, err := w.fs.Open(path)
	if err != nil {
		return Stats{}, nil, dberr.IO("open probe shard", path, err)
	}
	defer util.CloseFileFunc(f)

	var (
		st    Stats
		batch []string
		sb    strings.Builder
	)
	err = record.ScanLines(f, func(line string) error {
		st.ProbeRows++
		rec := record.Split(line)
		key, ok := rec.Field(pos)
		if !ok {
			st.Skipped++
			slog.Warn("hashjoin: probe record too short, skipped", "shard", path, "pos", pos, "record", abbreviate(line))
			return nil
		}
		for _, m := range ix.Lookup(key) {
			sb.Reset()
			sb.WriteString(m.Line())
			sb.WriteByte(',')
			sb.WriteString(line)
			batch = append(batch, sb.String())
			st.Matches++
		}
		if len(batch) >= flushLines {
			if err := w.flush(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
		return nil
	})
	if err != nil {
		if dberr.Kind(err) == nil {
			err = dberr.IO("read probe shard", path, err)
		}
		return Stats{}, nil, err
	}
	return st, batch, nil
}

func (w *Worker) flush(lines []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.fs.OpenFile(w.output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return dberr.IO("open output", w.output, err)
	}
	bw := bufio.NewWriter(f)
	for _, l := range lines {
		if _, err := bw.WriteString(l); err != nil {
			_ = f.Close()
			return dberr.IO("write output", w.output, err)
		}
		if err := bw.WriteByte('\n'); err != nil {
			_ = f.Close()
			return dberr.IO("write output", w.output, err)
		}
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return dberr.IO("write output", w.output, err)
	}
	return dberr.IO("close output", w.output, f.Close())
}
