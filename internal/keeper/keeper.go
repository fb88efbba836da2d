// =============================
// File: internal/keeper/keeper.go
// =============================

// Package keeper drives buybacks. Nothing in the wrapper or router retries
// on its own; this process periodically scans both pending ledgers and
// submits batched speculative buybacks, with backoff when a sweep leaves
// restored balances behind.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/snowball-dex/launchpad/internal/buyback"
	"github.com/snowball-dex/launchpad/internal/router"
)

type Keeper struct {
	wrapper *buyback.Wrapper
	router  *router.Router

	interval  time.Duration
	batchSize int
	retries   int
	logger    *zap.Logger
}

func New(w *buyback.Wrapper, r *router.Router, interval time.Duration, batchSize, retries int, logger *zap.Logger) *Keeper {
	if batchSize <= 0 {
		batchSize = 25
	}
	if retries < 0 {
		retries = 0
	}
	return &Keeper{
		wrapper:   w,
		router:    r,
		interval:  interval,
		batchSize: batchSize,
		retries:   retries,
		logger:    logger.Named("keeper"),
	}
}

// Run sweeps both ledgers on the configured interval until ctx ends.
func (k *Keeper) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error { return k.loop(gCtx, "curve", k.sweepCurvePools) })
	g.Go(func() error { return k.loop(gCtx, "router", k.sweepRouterTokens) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (k *Keeper) loop(ctx context.Context, name string, sweep func(context.Context) (int, error)) error {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			executed, err := sweep(ctx)
			if err != nil {
				// Restored balances stay pending; the next tick retries.
				k.logger.Warn("sweep incomplete",
					zap.String("ledger", name),
					zap.Int("executed", executed),
					zap.Error(err))
				continue
			}
			if executed > 0 {
				k.logger.Info("sweep complete",
					zap.String("ledger", name),
					zap.Int("executed", executed))
			}
		}
	}
}

// sweepCurvePools drains the wrapper's eligible pools in batches. A pool
// whose buyback fails gets its balance restored, so it shows up as still
// eligible afterwards; that case is retried with backoff before giving up
// until the next tick.
func (k *Keeper) sweepCurvePools(ctx context.Context) (int, error) {
	if len(k.wrapper.EligiblePools()) == 0 {
		return 0, nil
	}
	return k.retrySweep(ctx, func() (int, error) {
		executed := 0
		for _, batch := range chunks(k.wrapper.EligiblePools(), k.batchSize) {
			executed += k.wrapper.BatchAutoBuyback(batch, nil)
		}
		if remaining := len(k.wrapper.EligiblePools()); remaining > 0 {
			return executed, fmt.Errorf("%d pools still eligible after sweep", remaining)
		}
		return executed, nil
	})
}

// sweepRouterTokens does the same for the router's per-token ledger.
func (k *Keeper) sweepRouterTokens(ctx context.Context) (int, error) {
	if len(k.router.TokensWithPending()) == 0 {
		return 0, nil
	}
	return k.retrySweep(ctx, func() (int, error) {
		executed := 0
		for _, batch := range chunks(k.router.TokensWithPending(), k.batchSize) {
			executed += k.router.BatchExecuteBuyback(batch, nil)
		}
		if remaining := len(k.router.TokensWithPending()); remaining > 0 {
			return executed, fmt.Errorf("%d tokens still pending after sweep", remaining)
		}
		return executed, nil
	})
}

func (k *Keeper) retrySweep(ctx context.Context, operation func() (int, error)) (int, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 2 * time.Second

	notify := func(err error, wait time.Duration) {
		k.logger.Debug("retrying sweep",
			zap.Error(err),
			zap.Duration("backoff", wait))
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(k.retries)+1),
		backoff.WithNotify(notify))
}

func chunks(items []common.Address, size int) [][]common.Address {
	var out [][]common.Address
	for len(items) > size {
		out = append(out, items[:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
