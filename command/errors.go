package command

import (
	"errors"

	"github.com/goliatone/go-oplog/pkg/types"
)

var (
	// ErrModelUIDRequired indicates the record omitted the model identifier.
	ErrModelUIDRequired = types.ErrModelUIDRequired
	// ErrActionRequired indicates the record omitted the action.
	ErrActionRequired = types.ErrActionRequired
	// ErrEntryIDRequired indicates the record omitted the entry identifier.
	ErrEntryIDRequired = types.ErrEntryIDRequired
	// ErrLogIDRequired occurs when restore is invoked without a log id.
	ErrLogIDRequired = errors.New("go-oplog: restore requires log id")
)
