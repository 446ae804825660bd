package optimistic

import (
	"context"
	"log/slog"

	"github.com/goliatone/go-goal-cache/ids"
)

// Failure describes a mutation that was rolled back.
type Failure struct {
	Resource string
	Op       string
	ID       ids.ID
	Owner    ids.ID
	Err      error
}

// Notifier surfaces rolled back mutations to the user.
type Notifier interface {
	Notify(ctx context.Context, failure Failure)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, failure Failure)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, failure Failure) {
	f(ctx, failure)
}

// LogNotifier reports failures through slog.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(ctx context.Context, failure Failure) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.ErrorContext(ctx, "mutation rolled back",
		"resource", failure.Resource,
		"op", failure.Op,
		"id", failure.ID.String(),
		"owner", failure.Owner.String(),
		"error", failure.Err,
	)
}
