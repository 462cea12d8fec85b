package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/alvmarrod/proxy-harvest/internal/fetch"
	"github.com/alvmarrod/proxy-harvest/internal/proxy"
	"github.com/sirupsen/logrus"
)

var errEmptyPayload = errors.New("empty payload")

// Outcome is the terminal state of one item.
type Outcome int

const (
	Succeeded Outcome = iota + 1
	Exhausted
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Exhausted:
		return "exhausted"
	}
	return "pending"
}

// ItemResult is what the Controller reports for one item. Payload is
// non-empty exactly when Outcome is Succeeded. Attempts counts failed
// fetches only.
type ItemResult struct {
	Item     int
	Outcome  Outcome
	Payload  fetch.Payload
	Attempts int
}

// Observer receives scheduling events. metrics.Tracker implements it.
type Observer interface {
	AttemptFinished(d time.Duration, err error)
	ItemFinished(succeeded bool)
	Paused(reason string)
}

type nopObserver struct{}

func (nopObserver) AttemptFinished(time.Duration, error) {}
func (nopObserver) ItemFinished(bool)                    {}
func (nopObserver) Paused(string)                        {}

// Controller drives the attempts for a single item:
// Pending -> Attempting -> Succeeded | Exhausted.
type Controller struct {
	pool            *proxy.Pool
	exec            fetch.Executor
	pacer           Pacer
	limiter         *Limiter
	observer        Observer
	maxRetries      int
	cooldown        time.Duration
	emptyPoolPause  time.Duration
	retireOnSuccess bool
}

// Fetch runs the retry loop for item. Only failed fetches count as
// attempts; waiting for a proxy does not.
func (c *Controller) Fetch(ctx context.Context, item int) ItemResult {
	res := ItemResult{Item: item, Outcome: Exhausted}
	tried := make(map[*proxy.Proxy]bool, c.maxRetries)

	for res.Attempts < c.maxRetries {
		// No new acquisitions once the run is cancelled.
		if ctx.Err() != nil {
			break
		}

		// Proxies that already failed this item are passed over while an
		// untried one is still in circulation.
		p, err := c.pool.AcquireExcept(tried)
		if errors.Is(err, proxy.ErrPoolDrained) {
			logrus.Warnf("Item %d: every proxy is retired, giving up", item)
			break
		}
		if err != nil {
			c.observer.Paused(ReasonEmptyPool)
			logrus.Debugf("Item %d: %v, pausing %v", item, err, c.emptyPoolPause)
			if err := c.pacer.Pause(ctx, ReasonEmptyPool, c.emptyPoolPause); err != nil {
				break
			}
			continue
		}

		if c.pool.NeedsCooldown(p) {
			if err := c.coolDown(ctx, item, p); err != nil {
				c.release(p)
				break
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			c.release(p)
			break
		}

		if _, _, err := c.pool.RecordUse(p); err != nil {
			logrus.Warnf("Item %d: %v", item, err)
		}

		// An in-flight fetch is allowed to finish after cancellation.
		start := time.Now()
		payload, err := c.exec.Fetch(context.WithoutCancel(ctx), item, p)
		if err == nil && len(payload) == 0 {
			err = errEmptyPayload
		}
		c.observer.AttemptFinished(time.Since(start), err)

		if err == nil {
			if c.retireOnSuccess {
				if err := c.pool.Retire(p); err != nil {
					logrus.Warnf("Item %d: %v", item, err)
				}
			} else {
				c.release(p)
			}
			res.Outcome = Succeeded
			res.Payload = payload
			break
		}

		c.release(p)
		tried[p] = true
		res.Attempts++
		logrus.Debugf("Item %d: attempt %d/%d via %s failed: %v", item, res.Attempts, c.maxRetries, p, err)
	}

	c.observer.ItemFinished(res.Outcome == Succeeded)
	return res
}

// coolDown parks p in the cooling state for the cooldown period and
// resets its usage counter. p stays held by the caller.
func (c *Controller) coolDown(ctx context.Context, item int, p *proxy.Proxy) error {
	if err := c.pool.BeginCooldown(p); err != nil {
		return err
	}
	c.observer.Paused(ReasonCooldown)
	logrus.Debugf("Item %d: proxy %s hit its usage cap, cooling down %v", item, p, c.cooldown)

	pauseErr := c.pacer.Pause(ctx, ReasonCooldown, c.cooldown)
	if err := c.pool.EndCooldown(p); err != nil {
		return err
	}
	return pauseErr
}

func (c *Controller) release(p *proxy.Proxy) {
	if err := c.pool.Release(p); err != nil {
		logrus.Warnf("Failed to return proxy to pool: %v", err)
	}
}
