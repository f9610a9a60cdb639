package fieldsync

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	restartBackoffStart = 200 * time.Millisecond
	restartBackoffMax   = 30 * time.Second
)

// goSafe runs loop in group and restarts it with exponential backoff when it
// panics. A returned error keeps errgroup semantics and stops the group; a
// done ctx stops the restarts.
//
// Panics go to stderr rather than the logger since the logger itself may be
// what panicked.
func goSafe(ctx context.Context, group *errgroup.Group, name string, loop func(context.Context) error) {
	if group == nil || loop == nil {
		return
	}
	group.Go(func() error {
		backoff := restartBackoffStart
		for restarts := 0; ; restarts++ {
			if ctx.Err() != nil {
				return nil
			}
			recovered, err := runRecovered(ctx, loop)
			if recovered == nil {
				return err
			}
			_, _ = fmt.Fprintf(os.Stderr, "WARN: %s panicked (restart %d): %v\n%s\n",
				name, restarts+1, recovered, debug.Stack())

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff + jitter(backoff/2)):
			}
			backoff *= 2
			if backoff > restartBackoffMax {
				backoff = restartBackoffMax
			}
		}
	})
}

func runRecovered(ctx context.Context, loop func(context.Context) error) (recovered any, err error) {
	defer func() {
		if r := recover(); r != nil {
			recovered = r
		}
	}()
	return nil, loop(ctx)
}

// jitter is deterministic enough for spreading restarts without math/rand.
func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(time.Now().UnixNano() % int64(max))
}
