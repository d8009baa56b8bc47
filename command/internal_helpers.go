package command

import (
	"context"
	"time"

	"github.com/goliatone/go-oplog/pkg/types"
)

func safeClock(clock types.Clock) types.Clock {
	if clock != nil {
		return clock
	}
	return types.SystemClock{}
}

func safeLogger(logger types.Logger) types.Logger {
	if logger != nil {
		return logger
	}
	return types.NopLogger{}
}

func now(clock types.Clock) time.Time {
	if clock == nil {
		return time.Now().UTC()
	}
	return clock.Now()
}

func emitOperationHook(ctx context.Context, hooks types.Hooks, record types.OperationRecord) {
	if hooks.AfterOperation == nil {
		return
	}
	hooks.AfterOperation(ctx, record)
}

func emitRestoreHook(ctx context.Context, hooks types.Hooks, event types.RestoreEvent) {
	if hooks.AfterRestore == nil {
		return
	}
	hooks.AfterRestore(ctx, event)
}
