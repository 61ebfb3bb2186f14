// Package snapshot provisions point-in-time copies of a source volume so a
// profile copies a consistent view instead of files still being written.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bamsammich/beamsplit/internal/hook"
)

// ErrNoPath is returned when a create command reports no snapshot path.
var ErrNoPath = errors.New("snapshot command printed no path")

// Handle identifies a snapshot created by Begin.
type Handle struct {
	ID     string
	Source string
	Path   string
}

// Provider creates and releases snapshots. Begin returns the path to copy
// from instead of source.
type Provider interface {
	Begin(ctx context.Context, source string) (string, Handle, error)
	End(ctx context.Context, h Handle) error
}

// Noop copies from the live source.
type Noop struct{}

func (Noop) Begin(_ context.Context, source string) (string, Handle, error) {
	return source, Handle{Source: source, Path: source}, nil
}

func (Noop) End(context.Context, Handle) error { return nil }

// Command runs operator-supplied commands. Create may use {source} and
// {id}; the first line it prints is the snapshot path. Delete may also
// use {path}. An empty Delete leaves the snapshot in place.
type Command struct {
	Logger *slog.Logger
	Create []string
	Delete []string
}

func (c *Command) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Command) Begin(ctx context.Context, source string) (string, Handle, error) {
	h := Handle{ID: uuid.NewString(), Source: source}
	res, err := hook.RunTemplate(ctx, c.Create, map[string]string{"source": source, "id": h.ID})
	if err != nil {
		return source, Handle{}, fmt.Errorf("create snapshot of %s: %w", source, err)
	}
	h.Path = res.FirstLine()
	if h.Path == "" {
		return source, Handle{}, fmt.Errorf("create snapshot of %s: %w", source, ErrNoPath)
	}
	c.logger().Info("snapshot created", "source", source, "path", h.Path, "id", h.ID)
	return h.Path, h, nil
}

func (c *Command) End(ctx context.Context, h Handle) error {
	if len(c.Delete) == 0 || h.ID == "" {
		return nil
	}
	vars := map[string]string{"source": h.Source, "id": h.ID, "path": h.Path}
	if _, err := hook.RunTemplate(ctx, c.Delete, vars); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", h.Path, err)
	}
	c.logger().Info("snapshot deleted", "path", h.Path, "id", h.ID)
	return nil
}
