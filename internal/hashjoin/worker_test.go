package hashjoin

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/shardb/internal/dberr"
)

func writeFile(t *testing.T, fsys afero.Fs, path string, lines ...string) string {
	t.Helper()
	data := ""
	if len(lines) > 0 {
		data = strings.Join(lines, "\n") + "\n"
	}
	require.NoError(t, afero.WriteFile(fsys, path, []byte(data), 0o644))
	return path
}

func readLines(t *testing.T, fsys afero.Fs, path string) []string {
	t.Helper()
	data, err := afero.ReadFile(fsys, path)
	require.NoError(t, err)
	s := strings.TrimSuffix(string(data), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func TestWorker_JoinsAcrossProbeShards(t *testing.T) {
	fsys := afero.NewMemMapFs()
	build := writeFile(t, fsys, "/a/shard_0.csv", "1,NY", "2,LA")
	p1 := writeFile(t, fsys, "/b/shard_0.csv", "NY,8M", "SF,1M")
	p2 := writeFile(t, fsys, "/b/shard_1.csv", "LA,4M")

	w := NewWorker(fsys, "/out/join.csv")
	st, err := w.Run(context.Background(), build, []string{p1, p2}, 1, 0)
	require.NoError(t, err)

	assert.Equal(t, Stats{BuildRows: 2, ProbeRows: 3, Matches: 2}, st)
	assert.Equal(t, []string{"1,NY,NY,8M", "2,LA,LA,4M"}, readLines(t, fsys, w.OutputPath()))
	assert.Equal(t, st, w.Total())
}

func TestWorker_DuplicateKeysEmitEveryPair(t *testing.T) {
	fsys := afero.NewMemMapFs()
	build := writeFile(t, fsys, "/a.csv", "1,x", "2,x", "3,y")
	probe := writeFile(t, fsys, "/b.csv", "x,p", "x,q")

	w := NewWorker(fsys, "/out.csv")
	st, err := w.Run(context.Background(), build, []string{probe}, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Matches)

	got := readLines(t, fsys, "/out.csv")
	sort.Strings(got)
	assert.Equal(t, []string{"1,x,x,p", "1,x,x,q", "2,x,x,p", "2,x,x,q"}, got)
}

func TestWorker_ExactStringEquality(t *testing.T) {
	fsys := afero.NewMemMapFs()
	build := writeFile(t, fsys, "/a.csv", "1,NY", "2,ny", "3,NY ")
	probe := writeFile(t, fsys, "/b.csv", "NY,8M")

	w := NewWorker(fsys, "/out.csv")
	_, err := w.Run(context.Background(), build, []string{probe}, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"1,NY,NY,8M"}, readLines(t, fsys, "/out.csv"))
}

func TestWorker_SkipsShortRecordsOnBothSides(t *testing.T) {
	fsys := afero.NewMemMapFs()
	build := writeFile(t, fsys, "/a.csv", "1,NY", "broken", "2,LA")
	probe := writeFile(t, fsys, "/b.csv", "x", "NY,8M,extra", "LA,4M")

	w := NewWorker(fsys, "/out.csv")
	st, err := w.Run(context.Background(), build, []string{probe}, 1, 1)
	require.NoError(t, err)

	// probe join column is index 1: "8M" and "4M" never match "NY"/"LA",
	// and "x" is too short.
	assert.Equal(t, 2, st.Skipped)
	assert.Equal(t, 2, st.BuildRows)
	assert.Equal(t, 3, st.ProbeRows)
	assert.Equal(t, 0, st.Matches)
}

func TestWorker_NoMatchesLeavesNoOutput(t *testing.T) {
	fsys := afero.NewMemMapFs()
	build := writeFile(t, fsys, "/a.csv", "1,NY")
	probe := writeFile(t, fsys, "/b.csv", "SF,1M")

	w := NewWorker(fsys, "/out.csv")
	_, err := w.Run(context.Background(), build, []string{probe}, 1, 0)
	require.NoError(t, err)

	lines := readLines(t, fsys, "/out.csv")
	assert.Empty(t, lines)
}

func TestWorker_UnreadablePaths(t *testing.T) {
	fsys := afero.NewMemMapFs()
	probe := writeFile(t, fsys, "/b.csv", "NY,8M")

	w := NewWorker(fsys, "/out.csv")
	_, err := w.Run(context.Background(), "/missing.csv", []string{probe}, 0, 0)
	require.ErrorIs(t, err, dberr.ErrIO)
	require.ErrorIs(t, err, os.ErrNotExist)

	build := writeFile(t, fsys, "/a.csv", "1,NY")
	_, err = w.Run(context.Background(), build, []string{"/gone.csv"}, 1, 0)
	require.ErrorIs(t, err, dberr.ErrIO)
}

func TestWorker_InvalidPositions(t *testing.T) {
	w := NewWorker(afero.NewMemMapFs(), "/out.csv")
	_, err := w.Run(context.Background(), "/a.csv", nil, -1, 0)
	require.ErrorIs(t, err, dberr.ErrJoin)
}

func TestWorker_CanceledBeforeProbe(t *testing.T) {
	fsys := afero.NewMemMapFs()
	build := writeFile(t, fsys, "/a.csv", "1,NY")
	probe := writeFile(t, fsys, "/b.csv", "NY,8M")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewWorker(fsys, "/out.csv")
	_, err := w.Run(ctx, build, []string{probe}, 1, 0)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWorker_SharedAcrossGoroutinesWritesWholeLines(t *testing.T) {
	dir := t.TempDir()
	fsys := afero.NewOsFs()

	const builds = 8
	var probeLines []string
	for i := 0; i < 5000; i++ {
		probeLines = append(probeLines, "k,"+strings.Repeat("p", 40))
	}
	probe := writeFile(t, fsys, filepath.Join(dir, "probe.csv"), probeLines...)

	var paths []string
	for i := 0; i < builds; i++ {
		paths = append(paths, writeFile(t, fsys, filepath.Join(dir, "build_"+string(rune('a'+i))+".csv"), string(rune('a'+i))+",k"))
	}

	w := NewWorker(fsys, filepath.Join(dir, "out.csv"))
	var wg sync.WaitGroup
	for _, p := range paths {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			_, err := w.Run(context.Background(), p, []string{probe}, 1, 0)
			assert.NoError(t, err)
		}(p)
	}
	wg.Wait()

	lines := readLines(t, fsys, w.OutputPath())
	require.Len(t, lines, builds*len(probeLines))
	for _, l := range lines {
		require.Len(t, strings.Split(l, ","), 4, l)
	}
	assert.Equal(t, builds*len(probeLines), w.Total().Matches)
}
