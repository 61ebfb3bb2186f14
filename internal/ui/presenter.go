package ui

import (
	"io"
	"time"

	"github.com/bamsammich/beamsplit/internal/engine"
	"github.com/bamsammich/beamsplit/internal/stats"
)

// DefaultProgressInterval is how often the plain presenter prints a
// progress line.
const DefaultProgressInterval = 5 * time.Second

// Presenter consumes events and displays progress.
type Presenter interface {
	// Run consumes events until the channel closes. Blocks until done.
	Run(events <-chan Event) error
	// Summary returns the final summary line.
	Summary() string
}

// StatusFunc returns the orchestrator's current status.
type StatusFunc func() engine.Status

// Config configures a Presenter.
type Config struct {
	Writer           io.Writer
	ErrWriter        io.Writer
	Stats            stats.ReadTicker
	Status           StatusFunc
	Workers          int
	ProgressInterval time.Duration
	IsTTY            bool
	Quiet            bool
	Verbose          bool
	NoProgress       bool
}

// NewPresenter creates the appropriate presenter based on configuration.
//
//nolint:ireturn // factory function returns interface by design
func NewPresenter(
	cfg Config,
) Presenter {
	status := cfg.Status
	if status == nil {
		status = func() engine.Status { return engine.Status{} }
	}
	if cfg.Quiet {
		return &quietPresenter{stats: cfg.Stats}
	}
	if !cfg.IsTTY || cfg.NoProgress {
		interval := cfg.ProgressInterval
		if interval <= 0 {
			interval = DefaultProgressInterval
		}
		return &plainPresenter{
			w:        cfg.Writer,
			errW:     cfg.ErrWriter,
			stats:    cfg.Stats,
			status:   status,
			verbose:  cfg.Verbose,
			interval: interval,
			progress: !cfg.NoProgress,
		}
	}
	return &hudPresenter{
		w:       cfg.ErrWriter, // HUD renders to stderr (the TTY)
		stats:   cfg.Stats,
		status:  status,
		workers: cfg.Workers,
		verbose: cfg.Verbose,
	}
}
