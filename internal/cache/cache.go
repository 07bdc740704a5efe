// Package cache stores rendered views per user and drops them when the
// data behind them changes.
package cache

import (
	"context"
	"time"
)

// DefaultTTL bounds how long a view may be served without revalidation.
const DefaultTTL = 5 * time.Minute

// ViewCache holds rendered views keyed by user and logical path.
//
// Each user has a generation that Revalidate advances. A reader takes the
// generation before querying the store and hands it to Set, which drops
// the view if a revalidation happened in between.
type ViewCache interface {
	Generation(ctx context.Context, userID string) (uint64, error)
	Get(ctx context.Context, userID, path string) ([]byte, bool, error)
	Set(ctx context.Context, userID, path string, gen uint64, view []byte) error
	Revalidate(ctx context.Context, userID string, paths ...string) error
	Close() error
}

// Key is the storage key of a user's view.
func Key(userID, path string) string {
	return "view:" + userID + ":" + path
}

// GenerationKey is the storage key of a user's view generation.
func GenerationKey(userID string) string {
	return "viewgen:" + userID
}
