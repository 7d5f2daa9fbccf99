package session

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// contentionPolicy paces optimistic writers that lost a race on the same
// session. Delays grow exponentially up to maxDelay and are jittered so the
// losers of one round do not collide again in the next.
type contentionPolicy struct {
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
}

var defaultContention = contentionPolicy{
	maxAttempts:  64,
	initialDelay: 2 * time.Millisecond,
	maxDelay:     50 * time.Millisecond,
}

// delay is the pause before retry number attempt (1-indexed): a random
// duration between half and all of the capped exponential step.
func (p contentionPolicy) delay(attempt int) time.Duration {
	step := p.initialDelay
	for i := 1; i < attempt && step < p.maxDelay; i++ {
		step *= 2
	}
	if step > p.maxDelay {
		step = p.maxDelay
	}
	half := step / 2
	return half + time.Duration(rand.Int63n(int64(step-half+1)))
}

// run calls try until it reports done, returns an error, or the attempts
// run out. try returns done=false only when it lost an optimistic race.
func (p contentionPolicy) run(ctx context.Context, chatID string, try func() (done bool, err error)) error {
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		done, err := try()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if attempt == p.maxAttempts {
			break
		}
		timer := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("update session %s: %w", chatID, ErrContention)
}
