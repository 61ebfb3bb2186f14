// Package mount attaches remote shares to local mount points for the
// duration of a profile, sharing one mount between profiles on the same
// share.
package mount

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bamsammich/beamsplit/internal/hook"
	"github.com/bamsammich/beamsplit/internal/pathmap"
)

var (
	// ErrNoFreeMountPoint is returned when every configured point is in use.
	ErrNoFreeMountPoint = errors.New("no free mount point")
	// ErrNotRemote is returned for a path that is not a \\server\share path.
	ErrNotRemote = errors.New("not a UNC path")
)

// Mounter attaches and detaches a share at a local point.
type Mounter interface {
	Mount(ctx context.Context, remote, local string) error
	Unmount(ctx context.Context, local string) error
}

// Handle is returned by Pool.Mount and given back to Pool.Unmount.
type Handle struct {
	Remote string // share root, \\server\share
	Local  string // mount point
}

type slot struct {
	ready  chan struct{}
	err    error
	remote string
	local  string
	refs   int
}

// Pool hands out mount points. Paths on the same share reuse one mount;
// different shares always get different points.
type Pool struct {
	mounter Mounter
	logger  *slog.Logger
	shares  map[string]*slot // keyed by lower-cased share root
	inUse   map[string]bool
	points  []string
	mu      sync.Mutex
}

// NewPool creates a pool over the given mount points.
func NewPool(m Mounter, points []string, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		mounter: m,
		logger:  logger.With("component", "mount"),
		points:  append([]string(nil), points...),
		shares:  make(map[string]*slot),
		inUse:   make(map[string]bool),
	}
}

// Mount makes the share holding unc available locally and returns the
// local path equivalent to unc.
func (p *Pool) Mount(ctx context.Context, unc string) (string, Handle, error) {
	style := pathmap.Windows
	if !style.IsUNC(unc) {
		return "", Handle{}, fmt.Errorf("mount %s: %w", unc, ErrNotRemote)
	}
	share := style.Volume(unc)
	key := strings.ToLower(share)

	p.mu.Lock()
	s, ok := p.shares[key]
	if ok {
		s.refs++
		p.mu.Unlock()
		<-s.ready
		if s.err != nil {
			p.release(key, s)
			return "", Handle{}, s.err
		}
		return localPath(s.local, unc, share), Handle{Remote: s.remote, Local: s.local}, nil
	}

	point := ""
	for _, pt := range p.points {
		if !p.inUse[pt] {
			point = pt
			break
		}
	}
	if point == "" {
		p.mu.Unlock()
		return "", Handle{}, fmt.Errorf("mount %s: %w", share, ErrNoFreeMountPoint)
	}
	s = &slot{ready: make(chan struct{}), remote: share, local: point, refs: 1}
	p.inUse[point] = true
	p.shares[key] = s
	p.mu.Unlock()

	err := p.mounter.Mount(ctx, share, point)
	if err != nil {
		s.err = fmt.Errorf("mount %s at %s: %w", share, point, err)
		close(s.ready)
		p.release(key, s)
		return "", Handle{}, s.err
	}
	close(s.ready)
	p.logger.Info("share mounted", "remote", share, "local", point)
	return localPath(point, unc, share), Handle{Remote: share, Local: point}, nil
}

// release drops a reference to a slot whose mount failed, freeing its point
// once nobody waits on it.
func (p *Pool) release(key string, s *slot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s.refs--
	if s.refs > 0 {
		return
	}
	if p.shares[key] == s {
		delete(p.shares, key)
	}
	delete(p.inUse, s.local)
}

// Unmount drops one reference to the handle's mount and detaches it when
// that was the last.
func (p *Pool) Unmount(ctx context.Context, h Handle) error {
	key := strings.ToLower(h.Remote)

	p.mu.Lock()
	s, ok := p.shares[key]
	if !ok || s.local != h.Local {
		p.mu.Unlock()
		return nil
	}
	s.refs--
	if s.refs > 0 {
		p.mu.Unlock()
		return nil
	}
	delete(p.shares, key)
	p.mu.Unlock()

	if err := p.mounter.Unmount(ctx, h.Local); err != nil {
		// the point stays reserved: something may still be attached there
		p.logger.Warn("cannot unmount share, mount point retired", "remote", h.Remote, "local", h.Local, "error", err)
		return fmt.Errorf("unmount %s: %w", h.Local, err)
	}

	p.mu.Lock()
	delete(p.inUse, h.Local)
	p.mu.Unlock()
	p.logger.Info("share unmounted", "remote", h.Remote, "local", h.Local)
	return nil
}

// InUse reports how many mount points are currently reserved.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inUse)
}

// localPath maps unc beneath share onto the local mount point.
func localPath(point, unc, share string) string {
	rel, _ := pathmap.Windows.Rel(unc, share)
	style := pathmap.StyleFor(point)
	return style.Join(point, pathmap.Windows.Split(rel)...)
}

// Command mounts with operator-supplied commands. MountArgs may use
// {remote} and {local}; UnmountArgs may use {local}.
type Command struct {
	MountArgs   []string
	UnmountArgs []string
}

func (c Command) Mount(ctx context.Context, remote, local string) error {
	_, err := hook.RunTemplate(ctx, c.MountArgs, map[string]string{"remote": remote, "local": local})
	return err
}

func (c Command) Unmount(ctx context.Context, local string) error {
	if len(c.UnmountArgs) == 0 {
		return nil
	}
	_, err := hook.RunTemplate(ctx, c.UnmountArgs, map[string]string{"local": local})
	return err
}
