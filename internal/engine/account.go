package engine

import (
	"context"
	"time"
)

// AccountContext is the external account/context provider used only by
// the filter stage. Implementations may be slow or flaky; callers wrap
// them in bounded retry.
type AccountContext interface {
	// FirstSeenAt returns the wallet's first observed activity time.
	FirstSeenAt(ctx context.Context, wallet string) (time.Time, error)
	// BalanceAt returns the wallet balance at or before the given time,
	// never a later snapshot.
	BalanceAt(ctx context.Context, wallet string, at time.Time) (uint64, error)
}

// CustomPredicate evaluates an opaque filter expression against the
// trigger wallet. The engine assumes nothing about the grammar.
type CustomPredicate func(ctx context.Context, expression, wallet string) (bool, error)
