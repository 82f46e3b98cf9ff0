// Package cache holds small in-process caches with expiry.
package cache

import (
	"context"
	"time"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

// Cleaner is a cache that can drop its expired entries.
type Cleaner interface {
	CleanExpired() int
}

// Sweep calls CleanExpired on every cleaner each interval until ctx ends.
// onClean, when set, receives the number of entries removed by a pass.
func Sweep(ctx context.Context, interval time.Duration, onClean func(removed int), cleaners ...Cleaner) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			removed := 0
			for _, c := range cleaners {
				removed += c.CleanExpired()
			}
			if onClean != nil {
				onClean(removed)
			}
		}
	}
}
