package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/bamsammich/beamsplit/internal/chunk"
	"github.com/bamsammich/beamsplit/internal/config"
	"github.com/bamsammich/beamsplit/internal/event"
	"github.com/bamsammich/beamsplit/internal/filter"
	"github.com/bamsammich/beamsplit/internal/mount"
	"github.com/bamsammich/beamsplit/internal/pathmap"
	"github.com/bamsammich/beamsplit/internal/snapshot"
	"github.com/bamsammich/beamsplit/internal/stats"
	"github.com/bamsammich/beamsplit/internal/tree"
)

// Mounter makes a remote share path available locally.
type Mounter interface {
	Mount(ctx context.Context, unc string) (string, mount.Handle, error)
	Unmount(ctx context.Context, h mount.Handle) error
}

// Runner executes profiles one after another on an Orchestrator.
type Runner struct {
	Orchestrator *Orchestrator
	Lister       Lister            // nil profiles the filesystem directly
	Snapshots    snapshot.Provider // used by profiles that ask for a snapshot
	Mounts       Mounter           // used for \\server\share sources
	FS           afero.Fs
	Logger       *slog.Logger
	// CheckpointDir holds checkpoint databases; empty uses the runtime dir.
	CheckpointDir string
	Interval      time.Duration
	Checkpoint    bool
}

// ProfileResult is the outcome of one profile.
type ProfileResult struct {
	Err             error
	Name            string
	Source          string
	EffectiveSource string
	Destination     string
	Failed          []chunk.Chunk
	Skipped         []chunk.Chunk
	Degraded        []string
	Duration        time.Duration
	Planned         int
	Completed       int
	Resumed         int // chunks finished by an earlier run
	Bytes           int64
	Files           int64
	Stopped         bool
}

// OK reports whether every chunk of the profile was copied or skipped.
func (p ProfileResult) OK() bool {
	return p.Err == nil && len(p.Failed) == 0 && !p.Stopped
}

// Result is the outcome of a run.
type Result struct {
	Profiles []ProfileResult
	Stats    stats.Snapshot
	Duration time.Duration
	Stopped  bool
}

// Err summarizes why the run failed, or returns nil. Skipped chunks do not
// fail a run.
func (r Result) Err() error {
	if r.Stopped {
		return ErrStopped
	}
	var errs []error
	for _, p := range r.Profiles {
		switch {
		case p.Err != nil:
			errs = append(errs, fmt.Errorf("profile %s: %w", p.Name, p.Err))
		case len(p.Failed) > 0:
			errs = append(errs, fmt.Errorf("profile %s: %d chunks failed", p.Name, len(p.Failed)))
		}
	}
	return errors.Join(errs...)
}

// Failed reports whether the run failed.
func (r Result) Failed() bool { return r.Err() != nil }

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *Runner) fs() afero.Fs {
	if r.FS != nil {
		return r.FS
	}
	return afero.NewOsFs()
}

func (r *Runner) interval() time.Duration {
	if r.Interval > 0 {
		return r.Interval
	}
	return time.Second
}

// Run executes profiles in order. A profile that cannot be planned is
// reported and the run moves on; a stop skips the remaining profiles.
func (r *Runner) Run(ctx context.Context, profiles []config.Profile) Result {
	o := r.Orchestrator
	names := make([]string, len(profiles))
	for i, p := range profiles {
		names[i] = p.Name
	}
	o.state.Reset(names)
	start := o.now()

	var res Result
	for _, p := range profiles {
		if ctx.Err() != nil {
			o.Stop()
		}
		if o.Stopped() {
			res.Profiles = append(res.Profiles, ProfileResult{
				Name: p.Name, Source: p.Source, Destination: p.Destination, Stopped: true, Err: ErrStopped,
			})
			continue
		}
		res.Profiles = append(res.Profiles, r.runProfile(ctx, p))
	}

	res.Stopped = o.Stopped()
	if !res.Stopped {
		o.state.setPhase(PhaseComplete)
	}
	res.Stats = o.stats.Snapshot()
	res.Duration = o.now().Sub(start)
	return res
}

func (r *Runner) runProfile(ctx context.Context, p config.Profile) (pr ProfileResult) {
	o := r.Orchestrator
	log := r.logger().With("profile", p.Name)
	o.state.ResetForNewProfile(p.Name)
	start := o.now()
	pr = ProfileResult{Name: p.Name, Source: p.Source, Destination: p.Destination}
	defer func() { pr.Duration = o.now().Sub(start) }()

	log.Info("profile started", "source", p.Source, "dest", p.Destination)
	o.emit(event.Event{Type: event.ProfileStarted, Path: p.Source, Message: p.Destination})

	src := p.Source
	if p.Snapshot && r.Snapshots != nil {
		eff, h, err := r.Snapshots.Begin(ctx, src)
		if err != nil {
			r.degrade(&pr, log, "snapshot", err)
		} else {
			src = eff
			defer func() {
				if err := r.Snapshots.End(context.WithoutCancel(ctx), h); err != nil {
					log.Warn("cannot release snapshot", "path", eff, "error", err)
				}
			}()
		}
	}
	if r.Mounts != nil && pathmap.Windows.IsUNC(src) {
		local, h, err := r.Mounts.Mount(ctx, src)
		if err != nil {
			r.degrade(&pr, log, "mount", err)
		} else {
			src = local
			defer func() {
				if err := r.Mounts.Unmount(context.WithoutCancel(ctx), h); err != nil {
					log.Warn("cannot unmount share", "local", h.Local, "error", err)
				}
			}()
		}
	}
	pr.EffectiveSource = src

	chunks, err := r.plan(ctx, p, src, log)
	if err != nil {
		pr.Err = err
		log.Error("cannot plan profile", "error", err)
		o.emit(event.Event{Type: event.ProfileFailed, Path: p.Source, Error: err, Message: err.Error()})
		return pr
	}

	var db *CheckpointDB
	if r.Checkpoint {
		db, err = r.openCheckpoint(p)
		if err != nil {
			r.degrade(&pr, log, "checkpoint", err)
		} else {
			var done []*chunk.Chunk
			chunks, done = db.Filter(chunks)
			pr.Resumed = len(done)
			if len(done) > 0 {
				log.Info("resuming profile", "already_done", len(done), "remaining", len(chunks), "checkpoint", db.Path())
			}
			o.setCheckpoint(db)
		}
	}

	size, files := chunk.Totals(chunks)
	pr.Planned = len(chunks)
	o.state.Enqueue(chunks)
	o.stats.AddPlanned(int64(len(chunks)), files, size)
	log.Info("chunks planned", "chunks", len(chunks), "bytes", size, "files", files, "resumed", pr.Resumed)
	o.emit(event.Event{
		Type: event.ChunksPlanned, Path: src, Total: int64(len(chunks)), TotalSize: size, Files: files,
	})

	loopErr := o.Loop(ctx, r.interval())
	if db != nil {
		o.setCheckpoint(nil)
	}

	st := o.state
	pr.Failed = st.Failed.Snapshot()
	pr.Skipped = st.Skipped.Snapshot()
	pr.Completed = st.Completed.Len()
	pr.Bytes = st.BytesComplete.Load()
	pr.Files = st.FilesComplete.Load()
	pr.Stopped = loopErr != nil

	if db != nil {
		r.closeCheckpoint(db, pr.OK(), log)
	}

	if pr.OK() {
		log.Info("profile complete", "chunks", pr.Completed, "skipped", len(pr.Skipped), "bytes", pr.Bytes, "files", pr.Files)
		o.emit(event.Event{Type: event.ProfileComplete, Path: p.Source, Total: int64(pr.Completed), Size: pr.Bytes, Files: pr.Files})
		return pr
	}
	msg := fmt.Sprintf("%d chunks failed", len(pr.Failed))
	if pr.Stopped {
		msg = "stopped"
	}
	log.Warn("profile finished with failures", "failed", len(pr.Failed), "completed", pr.Completed, "stopped", pr.Stopped)
	o.emit(event.Event{Type: event.ProfileFailed, Path: p.Source, Total: int64(pr.Completed), Message: msg})
	return pr
}

// Plan partitions a profile's source as found, without snapshots or
// mounts.
func (r *Runner) Plan(ctx context.Context, p config.Profile) ([]*chunk.Chunk, error) {
	return r.plan(ctx, p, p.Source, r.logger().With("profile", p.Name))
}

func (r *Runner) plan(ctx context.Context, p config.Profile, src string, log *slog.Logger) ([]*chunk.Chunk, error) {
	c, err := p.Constraints()
	if err != nil {
		return nil, err
	}
	if err := chunk.ValidateRequest(r.fs(), chunk.Request{Path: src, DestinationRoot: p.Destination, Constraints: c}); err != nil {
		return nil, err
	}
	excludes, err := filter.NewExcludeChain(p.ExcludeDirs, true)
	if err != nil {
		return nil, fmt.Errorf("exclude_dirs: %w", err)
	}

	root, style, err := r.buildTree(ctx, src, excludes, log)
	if err != nil {
		return nil, err
	}
	chunks, err := chunk.Partition(root, p.Destination, c, style)
	if err != nil {
		return nil, err
	}
	for _, ch := range chunks {
		ch.Profile = p.Name
	}
	log.Debug("source partitioned", "dirs", tree.Count(root), "chunks", len(chunks), "max_depth", c.MaxDepth)
	return chunks, nil
}

// buildTree lists src with the copy tool and falls back to walking the
// filesystem when that fails.
func (r *Runner) buildTree(ctx context.Context, src string, excludes *filter.Chain, log *slog.Logger) (*tree.Node, pathmap.Style, error) {
	if r.Lister != nil {
		style := pathmap.StyleFor(src)
		root, err := r.listTree(ctx, src, excludes, style, log)
		if err == nil {
			return root, style, nil
		}
		if ctx.Err() != nil {
			return nil, style, ctx.Err()
		}
		log.Warn("copy tool listing failed, walking the filesystem instead", "source", src, "error", err)
	}

	p := tree.Profiler{FS: r.fs(), Filter: excludes, Logger: log}
	root, err := p.Profile(ctx, src)
	if err != nil {
		return nil, pathmap.Native, err
	}
	return root, pathmap.Native, nil
}

func (r *Runner) listTree(ctx context.Context, src string, excludes *filter.Chain, style pathmap.Style, log *slog.Logger) (*tree.Node, error) {
	rc, err := r.Lister.List(ctx, src)
	if err != nil {
		return nil, err
	}
	b := tree.Builder{Logger: log, Filter: excludes, Style: style}
	root, st, err := b.Build(src, rc)
	if closeErr := rc.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, err
	}
	log.Debug("listing parsed",
		"lines", st.Lines, "dirs", st.Dirs, "files", st.Files,
		"excluded", st.Excluded, "dest_only", st.DestOnly)
	return root, nil
}

func (r *Runner) openCheckpoint(p config.Profile) (*CheckpointDB, error) {
	if r.CheckpointDir == "" {
		return OpenCheckpoint(p.Name, p.Source, p.Destination)
	}
	id := checkpointJobID(p.Name, p.Source, p.Destination)
	return OpenCheckpointAt(filepath.Join(r.CheckpointDir, id+".db"), p.Source, p.Destination)
}

// closeCheckpoint keeps the database for a rerun unless the profile
// finished cleanly.
func (r *Runner) closeCheckpoint(db *CheckpointDB, clean bool, log *slog.Logger) {
	if err := db.Close(); err != nil {
		log.Warn("cannot close checkpoint", "path", db.Path(), "error", err)
	}
	if !clean {
		log.Info("checkpoint kept for resume", "path", db.Path())
		return
	}
	if err := db.Remove(); err != nil {
		log.Warn("cannot remove checkpoint", "path", db.Path(), "error", err)
	}
}

func (r *Runner) degrade(pr *ProfileResult, log *slog.Logger, component string, err error) {
	pr.Degraded = append(pr.Degraded, fmt.Sprintf("%s: %v", component, err))
	log.Warn("degraded, continuing without "+component, "error", err)
	r.Orchestrator.emit(event.Event{
		Type: event.Degraded, Path: pr.Source, Message: component, Error: err,
	})
}
