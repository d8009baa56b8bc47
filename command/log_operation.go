package command

import (
	"context"
	"strings"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-masker"
	"github.com/goliatone/go-oplog/entry"
	"github.com/goliatone/go-oplog/pkg/types"
)

// LogOperationInput wraps a record to persist through the OperationSink.
type LogOperationInput struct {
	Record types.OperationRecord
}

// Type implements gocommand.Message.
func (LogOperationInput) Type() string {
	return "command.operation.log"
}

// Validate implements gocommand.Message.
func (input LogOperationInput) Validate() error {
	if strings.TrimSpace(input.Record.ModelUID) == "" {
		return ErrModelUIDRequired
	}
	if input.Record.Action == "" {
		return ErrActionRequired
	}
	if strings.TrimSpace(input.Record.EntryID) == "" {
		return ErrEntryIDRequired
	}
	return nil
}

// LogOperationCommand persists operation records into the log.
type LogOperationCommand struct {
	sink   types.OperationSink
	hooks  types.Hooks
	clock  types.Clock
	masker *masker.Masker
}

// LogOperationConfig wires dependencies for the log command.
type LogOperationConfig struct {
	Sink   types.OperationSink
	Hooks  types.Hooks
	Clock  types.Clock
	Masker *masker.Masker
}

// NewLogOperationCommand constructs the logging command handler.
func NewLogOperationCommand(cfg LogOperationConfig) *LogOperationCommand {
	return &LogOperationCommand{
		sink:   cfg.Sink,
		hooks:  cfg.Hooks,
		clock:  safeClock(cfg.Clock),
		masker: cfg.Masker,
	}
}

var _ gocommand.Commander[LogOperationInput] = (*LogOperationCommand)(nil)

// Execute validates, sanitizes, and persists the supplied record.
func (c *LogOperationCommand) Execute(ctx context.Context, input LogOperationInput) error {
	if c.sink == nil {
		return types.ErrMissingOperationSink
	}
	if err := input.Validate(); err != nil {
		return err
	}
	record := input.Record
	if record.OpTime.IsZero() {
		record.OpTime = now(c.clock)
	}
	record = entry.SanitizeRecord(c.masker, record)
	if err := c.sink.Append(ctx, record); err != nil {
		return err
	}
	emitOperationHook(ctx, c.hooks, record)
	return nil
}
