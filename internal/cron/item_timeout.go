package cron

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/bidhaus/bidhaus-backend/pkg/errors"
)

// itemContext bounds one batch item's work so a single unresponsive
// collaborator call cannot stall the whole sweep.
func itemContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// asTransient maps a deadline expiry to a retryable dependency error; the
// next sweep picks the item up again.
func asTransient(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "collaborator call timed out")
	}
	return err
}
