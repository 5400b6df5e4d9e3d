// Package quota is the boundary to the platform's user quota accounting.
package quota

import "context"

// Checker reports whether a user may produce additionalBytes more storage
type Checker interface {
	IsUserQuotaValid(ctx context.Context, userID int64, additionalBytes int64) (bool, error)
}

// UnlimitedChecker accepts everything; the default when no accounting
// backend is wired
type UnlimitedChecker struct{}

func (UnlimitedChecker) IsUserQuotaValid(ctx context.Context, userID int64, additionalBytes int64) (bool, error) {
	return true, nil
}

// StaticChecker enforces a fixed per-user byte budget. Mostly used in tests.
type StaticChecker struct {
	Used  map[int64]int64
	Limit int64
}

func (c *StaticChecker) IsUserQuotaValid(ctx context.Context, userID int64, additionalBytes int64) (bool, error) {
	return c.Used[userID]+additionalBytes <= c.Limit, nil
}
