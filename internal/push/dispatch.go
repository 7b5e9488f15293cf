package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/stockbook/internal/model"
	"github.com/dukerupert/stockbook/internal/notify"
)

// Registry is the part of the subscription store the dispatcher needs.
type Registry interface {
	ListUserIDs(ctx context.Context) ([]string, error)
	ListByUser(ctx context.Context, userID string) ([]model.PushSubscription, error)
	PruneDead(ctx context.Context, endpoint string) (int64, error)
}

// Result summarizes one batch run.
type Result struct {
	RunID   string `json:"run_id"`
	Users   int    `json:"users"`
	Claimed int    `json:"claimed"`
	Sent    int    `json:"sent"`
	Failed  int    `json:"failed"`
	Pruned  int    `json:"pruned"`
}

// Dispatcher runs the push batch: every user with a subscription is
// evaluated, each claimed candidate is sent to each of the user's
// subscriptions, and endpoints reported gone are pruned.
type Dispatcher struct {
	source   notify.Source
	registry Registry
	sender   Sender
	workers  int
	logger   *slog.Logger
}

func NewDispatcher(source notify.Source, registry Registry, sender Sender, workers int, logger *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	return &Dispatcher{
		source:   source,
		registry: registry,
		sender:   sender,
		workers:  workers,
		logger:   logger,
	}
}

type counters struct {
	claimed atomic.Int64
	sent    atomic.Int64
	failed  atomic.Int64
	pruned  atomic.Int64
}

// Run processes all users once. Per-user and per-subscription failures are
// logged and counted; only a failure to list users aborts the run.
//
// Cancelling ctx stops new users from starting. A user already started runs
// its claim and sends to completion, so nothing claimed is left unsent; the
// users never started keep their candidates for the next run.
func (d *Dispatcher) Run(ctx context.Context) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	logger := d.logger.With("run_id", res.RunID)

	userIDs, err := d.registry.ListUserIDs(ctx)
	if err != nil {
		return res, fmt.Errorf("list push users: %w", err)
	}

	var c counters
	work := context.WithoutCancel(ctx)
	var g errgroup.Group
	g.SetLimit(d.workers)
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			logger.Warn("push batch cancelled, remaining users left for the next run",
				"skipped", len(userIDs)-res.Users)
			break
		}
		res.Users++
		g.Go(func() error {
			d.runUser(work, logger, userID, &c)
			return nil
		})
	}
	_ = g.Wait()

	res.Claimed = int(c.claimed.Load())
	res.Sent = int(c.sent.Load())
	res.Failed = int(c.failed.Load())
	res.Pruned = int(c.pruned.Load())
	logger.Info("push batch complete",
		"users", res.Users, "claimed", res.Claimed, "sent", res.Sent,
		"failed", res.Failed, "pruned", res.Pruned)
	return res, nil
}

func (d *Dispatcher) runUser(ctx context.Context, logger *slog.Logger, userID string, c *counters) {
	logger = logger.With("user_id", userID)

	subs, err := d.registry.ListByUser(ctx, userID)
	if err != nil {
		logger.Error("list push subscriptions", "error", err)
		return
	}
	if len(subs) == 0 {
		return
	}

	candidates, err := d.source.ClaimDue(ctx, userID, model.ChannelPush)
	if err != nil {
		logger.Error("claim push candidates", "error", err)
		return
	}
	c.claimed.Add(int64(len(candidates)))

	gone := make(map[string]bool)
	for _, cand := range candidates {
		payload := PayloadFor(cand)
		for i := range subs {
			sub := &subs[i]
			if gone[sub.Endpoint] {
				continue
			}
			err := d.sender.Send(ctx, sub, payload)
			switch {
			case err == nil:
				c.sent.Add(1)
			case errors.Is(err, ErrExpired):
				gone[sub.Endpoint] = true
				n, perr := d.registry.PruneDead(ctx, sub.Endpoint)
				if perr != nil {
					logger.Error("prune dead subscription", "subscription_id", sub.ID, "error", perr)
					continue
				}
				c.pruned.Add(n)
				logger.Info("pruned dead subscription", "subscription_id", sub.ID)
			default:
				c.failed.Add(1)
				logger.Warn("push send failed", "subscription_id", sub.ID, "key", cand.Key(), "error", err)
			}
		}
	}
}
