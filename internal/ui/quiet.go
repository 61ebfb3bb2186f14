package ui

import "github.com/bamsammich/beamsplit/internal/stats"

// quietPresenter consumes events but produces no output.
type quietPresenter struct {
	stats stats.Reader
}

func (p *quietPresenter) Run(events <-chan Event) error {
	for range events {
		// Counters are kept by the orchestrator; presenters only read them.
	}
	return nil
}

func (p *quietPresenter) Summary() string {
	return ""
}
