// Package poller is the client side of the in-app channel. It polls the
// due-notifications endpoint on an interval and on demand, renders each
// candidate once per session and confirms what it rendered.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dukerupert/stockbook/internal/model"
)

// DefaultInterval matches the browser client's polling period.
const DefaultInterval = 5 * time.Minute

// Renderer displays one notification.
type Renderer interface {
	Render(c model.Candidate) error
}

type Poller struct {
	api      API
	seen     *SeenCache
	render   Renderer
	interval time.Duration
	logger   *slog.Logger
	group    singleflight.Group
}

func New(api API, render Renderer, seen *SeenCache, interval time.Duration, logger *slog.Logger) *Poller {
	if seen == nil {
		seen = NewSeenCache(DefaultSeenSize)
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		api:      api,
		seen:     seen,
		render:   render,
		interval: interval,
		logger:   logger,
	}
}

// Check fetches due notifications once and renders the new ones. Calls that
// overlap an in-flight check share its result.
func (p *Poller) Check(ctx context.Context) (int, error) {
	v, err, _ := p.group.Do("check", func() (any, error) {
		return p.check(ctx)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (p *Poller) check(ctx context.Context) (int, error) {
	candidates, err := p.api.Due(ctx)
	if err != nil {
		return 0, err
	}

	rendered := 0
	for _, c := range candidates {
		if !p.seen.MarkNew(c) {
			p.logger.Debug("skipping already rendered notification", "key", c.Key())
			continue
		}
		if err := p.render.Render(c); err != nil {
			p.logger.Warn("render notification", "key", c.Key(), "error", err)
			continue
		}
		rendered++
		if err := p.api.Confirm(ctx, c); err != nil {
			p.logger.Warn("confirm notification", "key", c.Key(), "error", err)
		}
	}
	return rendered, nil
}

// Run checks immediately, then on every interval tick and every trigger,
// until ctx is done. Only an authorization failure stops it early.
func (p *Poller) Run(ctx context.Context, triggers <-chan struct{}) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.runCheck(ctx); errors.Is(err, ErrUnauthorized) {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-triggers:
		}
	}
}

func (p *Poller) runCheck(ctx context.Context) error {
	n, err := p.Check(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("notification check failed", "error", err)
		}
		return err
	}
	if n > 0 {
		p.logger.Debug("rendered notifications", "count", n)
	}
	return nil
}
