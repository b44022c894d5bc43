package utils

import (
	"context"
	"time"
)

func ContextSleep(ctx context.Context, d time.Duration) *time.Time {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return nil
	case t := <-timer.C:
		return &t
	}
}

// ContextWait is the same as ContextSleep, but also returns early when wake fires.
// It returns false only when ctx is done.
func ContextWait(ctx context.Context, d time.Duration, wake <-chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-wake:
		return true
	case <-timer.C:
		return true
	}
}
