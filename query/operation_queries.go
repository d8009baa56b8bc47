// Package query exposes the read side of the operation log.
package query

import (
	"context"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-oplog/pkg/types"
	"github.com/google/uuid"
)

// OperationFeedQuery renders paginated log feeds for admin panels.
type OperationFeedQuery struct {
	repo types.OperationRepository
}

// NewOperationFeedQuery constructs the feed query helper.
func NewOperationFeedQuery(repo types.OperationRepository) *OperationFeedQuery {
	return &OperationFeedQuery{repo: repo}
}

var _ gocommand.Querier[types.OperationFilter, types.OperationPage] = (*OperationFeedQuery)(nil)

// Query fetches a page of operation logs via the injected repository.
func (q *OperationFeedQuery) Query(ctx context.Context, filter types.OperationFilter) (types.OperationPage, error) {
	if q.repo == nil {
		return types.OperationPage{}, types.ErrMissingOperationRepository
	}
	return q.repo.ListOperations(ctx, filter)
}

// OperationStatsQuery aggregates log counts per action.
type OperationStatsQuery struct {
	repo types.OperationRepository
}

// NewOperationStatsQuery constructs the stats helper.
func NewOperationStatsQuery(repo types.OperationRepository) *OperationStatsQuery {
	return &OperationStatsQuery{repo: repo}
}

var _ gocommand.Querier[types.OperationStatsFilter, types.OperationStats] = (*OperationStatsQuery)(nil)

// Query returns aggregate counts for dashboard widgets.
func (q *OperationStatsQuery) Query(ctx context.Context, filter types.OperationStatsFilter) (types.OperationStats, error) {
	if q.repo == nil {
		return types.OperationStats{}, types.ErrMissingOperationRepository
	}
	return q.repo.OperationStats(ctx, filter)
}

// OperationDetailInput identifies a single log entry.
type OperationDetailInput struct {
	ID uuid.UUID
}

// Type implements gocommand.Message.
func (OperationDetailInput) Type() string {
	return "query.operation.detail"
}

// Validate implements gocommand.Message.
func (input OperationDetailInput) Validate() error {
	if input.ID == uuid.Nil {
		return types.ErrEntryIDRequired
	}
	return nil
}

// OperationDetailQuery loads one log entry by id.
type OperationDetailQuery struct {
	repo types.OperationRepository
}

// NewOperationDetailQuery constructs the detail helper.
func NewOperationDetailQuery(repo types.OperationRepository) *OperationDetailQuery {
	return &OperationDetailQuery{repo: repo}
}

var _ gocommand.Querier[OperationDetailInput, *types.OperationRecord] = (*OperationDetailQuery)(nil)

// Query returns the record, or nil without error when it does not exist.
func (q *OperationDetailQuery) Query(ctx context.Context, input OperationDetailInput) (*types.OperationRecord, error) {
	if q.repo == nil {
		return nil, types.ErrMissingOperationRepository
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}
	return q.repo.GetOperation(ctx, input.ID)
}
