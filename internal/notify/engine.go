// Package notify decides which financial reminders are due for a user and
// hands each one out at most once.
//
// Candidate generation runs preference resolution, the date window, the
// transaction matcher and the classifier. Delivery channels consume it through
// Source, which claims every candidate in the notification ledger before
// returning it.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dukerupert/stockbook/internal/model"
)

// Claimer is the atomic claim side of the notification ledger.
type Claimer interface {
	TryClaim(ctx context.Context, key model.LedgerKey, channel model.Channel, at time.Time) (model.ClaimResult, error)
}

// Source produces claimed candidates for one user. It is the boundary shared
// by the in-app and push channels.
type Source interface {
	ClaimDue(ctx context.Context, userID string, channel model.Channel) ([]model.Candidate, error)
}

// Engine generates and claims notification candidates.
type Engine struct {
	resolver *Resolver
	matcher  *Matcher
	ledger   Claimer
	now      func() time.Time
	logger   *slog.Logger
}

// NewEngine wires the pipeline. A nil now uses time.Now.
func NewEngine(resolver *Resolver, matcher *Matcher, ledger Claimer, now func() time.Time, logger *slog.Logger) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		resolver: resolver,
		matcher:  matcher,
		ledger:   ledger,
		now:      now,
		logger:   logger,
	}
}

// Evaluate returns the user's due candidates without claiming them, ordered
// by scheduled date ascending.
func (e *Engine) Evaluate(ctx context.Context, userID string) ([]model.Candidate, error) {
	res, err := e.resolver.Resolve(ctx, userID)
	if err != nil {
		var lookupErr *PreferenceLookupError
		if errors.As(err, &lookupErr) {
			e.logger.Warn("preferences unavailable, skipping user this run", "user_id", userID, "error", lookupErr.Err)
			return nil, nil
		}
		return nil, err
	}
	if len(res.Offsets) == 0 {
		return nil, nil
	}

	today := Today(e.now(), res.Location)
	window := CalculateWindow(today, res.Offsets)

	matches, err := e.matcher.Match(ctx, userID, window)
	if err != nil {
		return nil, fmt.Errorf("evaluate user %s: %w", userID, err)
	}

	candidates := make([]model.Candidate, 0, len(matches))
	for _, m := range matches {
		candidates = append(candidates, Classify(m.Transaction, m.Offset, today))
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].ScheduledDate != candidates[j].ScheduledDate {
			return candidates[i].ScheduledDate < candidates[j].ScheduledDate
		}
		return candidates[i].TransactionID < candidates[j].TransactionID
	})
	return candidates, nil
}

// ClaimDue evaluates the user and claims each candidate for channel. Only
// candidates this call claimed are returned. A candidate whose claim fails
// for a storage reason is left unclaimed for the next run.
func (e *Engine) ClaimDue(ctx context.Context, userID string, channel model.Channel) ([]model.Candidate, error) {
	candidates, err := e.Evaluate(ctx, userID)
	if err != nil {
		return nil, err
	}

	claimed := make([]model.Candidate, 0, len(candidates))
	for _, c := range candidates {
		res, err := e.ledger.TryClaim(ctx, model.KeyFor(userID, c), channel, e.now())
		if err != nil {
			e.logger.Error("claim notification", "user_id", userID, "key", c.Key(), "error", err)
			continue
		}
		if res == model.AlreadyClaimed {
			e.logger.Debug("notification already claimed", "user_id", userID, "key", c.Key(), "channel", channel)
			continue
		}
		claimed = append(claimed, c)
	}
	return claimed, nil
}
