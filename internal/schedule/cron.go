package schedule

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/cronexpr"
)

// ValidateCron reports whether cron is a well-formed expression.
func ValidateCron(cron string) error {
	_, err := cronexpr.Parse(cron)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// Cron runs fn at every time matched by cron until ctx is done. The
// expression is validated up front; the loop itself runs on a new goroutine.
func Cron(ctx context.Context, clk clock.Clock, cron string, fn func(ctx context.Context)) error {
	expr, err := cronexpr.Parse(cron)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	if clk == nil {
		clk = clock.New()
	}

	go func() {
		for {
			now := clk.Now()
			next := expr.Next(now)
			if next.IsZero() {
				slog.Warn("cron expression has no further run times", "cron", cron)
				return
			}

			timer := clk.Timer(next.Sub(now))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			fn(ctx)
		}
	}()
	return nil
}
