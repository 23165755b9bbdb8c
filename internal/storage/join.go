package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sourcegraph/conc/panics"

	"github.com/tuannm99/shardb/internal/dberr"
	"github.com/tuannm99/shardb/internal/hashjoin"
	"github.com/tuannm99/shardb/internal/record"
)

// JoinOptions tunes one shard join task.
type JoinOptions struct {
	// TempDir receives the ephemeral output shard; empty means os.TempDir().
	TempDir string
}

// JoinResult is the outcome of one shard join task. On success Shard is a
// fresh ephemeral shard owned by the receiver of the result.
type JoinResult struct {
	Shard *Shard
	Stats hashjoin.Stats
	Err   error
}

func (r JoinResult) OK() bool { return r.Err == nil && r.Shard != nil }

// JoinFuture is the pending result of Shard.JoinAsync.
type JoinFuture struct {
	done chan struct{}
	res  JoinResult
}

// Done is closed once the result is available.
func (f *JoinFuture) Done() <-chan struct{} { return f.done }

// Wait blocks until the task finishes. Cancel the context given to
// JoinAsync to stop a task early; Wait itself never abandons a task, so a
// finished result shard is always handed to the caller.
func (f *JoinFuture) Wait() JoinResult {
	<-f.done
	return f.res
}

// JoinAsync starts a hash join on its own goroutine with s as the build
// side and every shard in others as the probe side. The task holds a
// reference on all input shards until it finishes.
//
// A join attribute missing from either metadata, a worker I/O error and a
// worker panic all come back as a failed JoinResult.
func (s *Shard) JoinAsync(
	ctx context.Context,
	others []*Shard,
	thisAttr, otherAttr string,
	thisMeta, otherMeta record.Metadata,
	opts JoinOptions,
) *JoinFuture {
	f := &JoinFuture{done: make(chan struct{})}

	inputs := make([]*Shard, 0, len(others)+1)
	inputs = append(inputs, s.Retain())
	probePaths := make([]string, 0, len(others))
	for _, o := range others {
		inputs = append(inputs, o.Retain())
		probePaths = append(probePaths, o.Path())
	}

	go func() {
		defer close(f.done)
		defer func() {
			for _, in := range inputs {
				if err := in.Release(); err != nil {
					slog.Warn("storage: release join input", "path", in.Path(), "err", err)
				}
			}
		}()
		f.res = s.runJoin(ctx, probePaths, thisAttr, otherAttr, thisMeta, otherMeta, opts)
	}()
	return f
}

func (s *Shard) runJoin(
	ctx context.Context,
	probePaths []string,
	thisAttr, otherAttr string,
	thisMeta, otherMeta record.Metadata,
	opts JoinOptions,
) JoinResult {
	buildPos, ok := thisMeta.Pos(thisAttr)
	if !ok {
		return JoinResult{Err: fmt.Errorf("%w: attribute %q not in build metadata", dberr.ErrJoin, thisAttr)}
	}
	probePos, ok := otherMeta.Pos(otherAttr)
	if !ok {
		return JoinResult{Err: fmt.Errorf("%w: attribute %q not in probe metadata", dberr.ErrJoin, otherAttr)}
	}

	out, err := NewEphemeralShard(s.fs, opts.TempDir)
	if err != nil {
		return JoinResult{Err: fmt.Errorf("%w: %w", dberr.ErrJoin, err)}
	}

	w := hashjoin.NewWorker(s.fs, out.Path())

	var (
		stats hashjoin.Stats
		pc    panics.Catcher
	)
	pc.Try(func() {
		stats, err = w.Run(ctx, s.path, probePaths, buildPos, probePos)
	})
	if r := pc.Recovered(); r != nil {
		err = r.AsError()
	}
	if err != nil {
		if relErr := out.Release(); relErr != nil {
			slog.Warn("storage: release failed join output", "path", out.Path(), "err", relErr)
		}
		return JoinResult{Stats: stats, Err: fmt.Errorf("%w: shard %s: %w", dberr.ErrJoin, s.path, err)}
	}
	return JoinResult{Shard: out, Stats: stats}
}
