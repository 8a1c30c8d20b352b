package schedule

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// RunAt executes fn on its own goroutine once clk reaches runAt. If ctx is
// done before then, fn is never called. A nil clk uses wall time.
func RunAt(ctx context.Context, clk clock.Clock, runAt time.Time, execute func(ctx context.Context)) {
	if clk == nil {
		clk = clock.New()
	}
	delay := runAt.Sub(clk.Now())
	go func() {
		if delay > 0 {
			timer := clk.Timer(delay)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
		}
		if ctx.Err() != nil {
			return
		}
		execute(ctx)
	}()
}
