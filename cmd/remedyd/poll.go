package main

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/pkg/logsource"
	"github.com/fyrsmithlabs/remedyd/pkg/pipeline"
)

// caseRunner runs one log entry through the remediation pipeline.
type caseRunner interface {
	Run(ctx context.Context, entry logsource.LogEntry) *pipeline.ErrorCase
}

// caseFinisher records a terminal case for observers.
type caseFinisher interface {
	Finish(ec *pipeline.ErrorCase)
}

// pollerConfig holds the poll loop settings.
type pollerConfig struct {
	// Window is how far back each fetch looks.
	Window time.Duration

	// Interval is the wait between fetches.
	Interval time.Duration

	// Service restricts fetches to one service when set.
	Service string
}

// poller drives the pipeline from the log source on a fixed interval.
//
// Fetch windows overlap so a slow source cannot drop entries between polls;
// the seen set keeps an entry that shows up in consecutive fetches from
// opening a second case. Keys age out once they fall behind the window and
// can no longer be fetched.
type poller struct {
	source   logsource.Source
	runner   caseRunner
	finisher caseFinisher
	cfg      pollerConfig
	logger   *zap.Logger

	seen map[string]time.Time
}

func newPoller(source logsource.Source, runner caseRunner, finisher caseFinisher, cfg pollerConfig, logger *zap.Logger) *poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &poller{
		source:   source,
		runner:   runner,
		finisher: finisher,
		cfg:      cfg,
		logger:   logger,
		seen:     make(map[string]time.Time),
	}
}

// Run polls until the context is cancelled. The first poll happens
// immediately, then every interval.
func (p *poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll fetches one window and runs every unseen ERROR and FATAL entry.
// Cases run sequentially; a long pipeline run delays the next tick rather
// than stacking concurrent runs on one repository.
func (p *poller) poll(ctx context.Context) {
	window := logsource.LastWindow(p.cfg.Window)

	filter := logsource.Filter{}
	if p.cfg.Service != "" {
		filter.Services = []string{p.cfg.Service}
	}

	entries, err := p.source.Fetch(ctx, window, filter)
	if err != nil {
		p.logger.Error("Log fetch failed", zap.Error(err))
		return
	}

	entries = logsource.FilterBySeverity(entries, logsource.SeverityError)
	p.expire(window.From)

	ran := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}

		key := entryKey(entry)
		if _, ok := p.seen[key]; ok {
			continue
		}
		p.seen[key] = entry.Timestamp

		ec := p.runner.Run(ctx, entry)
		p.finisher.Finish(ec)
		ran++
	}

	if ran > 0 {
		p.logger.Info("Poll cycle complete",
			zap.Int("fetched", len(entries)),
			zap.Int("cases", ran))
	}
}

// expire drops seen keys whose entries fell behind the fetch window.
func (p *poller) expire(cutoff time.Time) {
	for key, ts := range p.seen {
		if ts.Before(cutoff) {
			delete(p.seen, key)
		}
	}
}

// entryKey identifies one log entry across overlapping poll windows.
func entryKey(e logsource.LogEntry) string {
	h := sha256.Sum256([]byte(e.Service + "\x00" + e.Timestamp.UTC().Format(time.RFC3339Nano) + "\x00" + e.Message))
	return fmt.Sprintf("%x", h)[:16]
}
