package entry

import (
	"context"
	"errors"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-oplog/pkg/types"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryConfig wires the Bun-backed operation log repository.
type RepositoryConfig struct {
	DB         *bun.DB
	Repository repository.Repository[*Entry]
	Clock      types.Clock
	IDGen      types.IDGenerator
}

type entryStore interface {
	repository.Repository[*Entry]
}

// Repository persists operation log entries and exposes query helpers.
type Repository struct {
	entryStore
	db    *bun.DB
	clock types.Clock
	idGen types.IDGenerator
}

// NewRepository constructs a repository that implements both OperationSink
// and OperationRepository interfaces.
func NewRepository(cfg RepositoryConfig, opts ...RepositoryOption) (*Repository, error) {
	if cfg.Repository == nil && cfg.DB == nil {
		return nil, errors.New("entry: db or repository required")
	}
	repo := cfg.Repository
	if repo == nil {
		repo = repository.NewRepository(cfg.DB, repository.ModelHandlers[*Entry]{
			NewRecord: func() *Entry { return &Entry{} },
			GetID: func(rec *Entry) uuid.UUID {
				if rec == nil {
					return uuid.Nil
				}
				return rec.ID
			},
			SetID: func(rec *Entry, id uuid.UUID) {
				if rec != nil {
					rec.ID = id
				}
			},
		})
	}
	repo = decorateRepository(repo, applyRepositoryOptions(opts))

	clock := cfg.Clock
	if clock == nil {
		clock = types.SystemClock{}
	}
	idGen := cfg.IDGen
	if idGen == nil {
		idGen = types.UUIDGenerator{}
	}

	return &Repository{
		entryStore: repo,
		db:         cfg.DB,
		clock:      clock,
		idGen:      idGen,
	}, nil
}

var (
	_ repository.Repository[*Entry] = (*Repository)(nil)
	_ types.OperationSink           = (*Repository)(nil)
	_ types.OperationRepository     = (*Repository)(nil)
)

// Append persists an operation record. Entries are immutable once written.
func (r *Repository) Append(ctx context.Context, record types.OperationRecord) error {
	rec := fromRecord(record)
	if rec.ID == uuid.Nil {
		rec.ID = r.idGen.UUID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.clock.Now()
	}
	if rec.OpTime.IsZero() {
		rec.OpTime = rec.CreatedAt
	}
	_, err := r.Create(ctx, rec)
	return err
}

// GetOperation fetches a single log entry; nil without error when missing.
func (r *Repository) GetOperation(ctx context.Context, id uuid.UUID) (*types.OperationRecord, error) {
	rec, err := r.GetByID(ctx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	record := toRecord(rec)
	return &record, nil
}

// RecentByDocKey returns the newest entries correlated to one logical
// document, optionally restricted by action.
func (r *Repository) RecentByDocKey(ctx context.Context, modelUID, docKey string, actions []types.Action, limit int) ([]types.OperationRecord, error) {
	if limit <= 0 {
		limit = 1
	}
	criteria := []repository.SelectCriteria{
		func(q *bun.SelectQuery) *bun.SelectQuery {
			q = q.Where("model_uid = ?", modelUID).
				Where("doc_key = ?", docKey).
				OrderExpr("created_at DESC").
				Limit(limit)
			if len(actions) > 0 {
				q = q.Where("action IN (?)", bun.In(actionStrings(actions)))
			}
			return q
		},
	}
	rows, _, err := r.List(ctx, criteria...)
	if err != nil {
		return nil, err
	}
	return toRecords(rows), nil
}

// ListOperations returns a paginated feed filtered by the supplied criteria.
func (r *Repository) ListOperations(ctx context.Context, filter types.OperationFilter) (types.OperationPage, error) {
	pagination := normalizePagination(filter.Pagination, 50, 200)
	criteria := []repository.SelectCriteria{
		func(q *bun.SelectQuery) *bun.SelectQuery {
			q = q.OrderExpr("created_at DESC").
				Limit(pagination.Limit).
				Offset(pagination.Offset)
			return applyOperationFilter(q, filter)
		},
	}

	rows, total, err := r.List(ctx, criteria...)
	if err != nil {
		return types.OperationPage{}, err
	}
	return types.OperationPage{
		Records:    toRecords(rows),
		Total:      total,
		NextOffset: pagination.Offset + pagination.Limit,
		HasMore:    pagination.Offset+pagination.Limit < total,
	}, nil
}

// OperationStats aggregates counts grouped by action.
func (r *Repository) OperationStats(ctx context.Context, filter types.OperationStatsFilter) (types.OperationStats, error) {
	stats := types.OperationStats{
		ByAction: make(map[string]int),
	}
	if r.db == nil {
		return stats, errors.New("entry: stats requires bun DB")
	}
	query := r.db.NewSelect().
		Table("operation_logs").
		ColumnExpr("COUNT(*) AS total").
		ColumnExpr("action").
		Group("action")
	query = applyOperationStatsFilter(query, filter)

	type row struct {
		Action string `bun:"action"`
		Total  int    `bun:"total"`
	}
	var rows []row
	if err := query.Scan(ctx, &rows); err != nil {
		return stats, err
	}
	total := 0
	for _, rec := range rows {
		stats.ByAction[rec.Action] = rec.Total
		total += rec.Total
	}
	stats.Total = total
	return stats, nil
}

func applyOperationFilter(q *bun.SelectQuery, filter types.OperationFilter) *bun.SelectQuery {
	if filter.ModelUID != "" {
		q = q.Where("model_uid = ?", filter.ModelUID)
	}
	if filter.DocKey != "" {
		q = q.Where("doc_key = ?", filter.DocKey)
	}
	if filter.EntryID != "" {
		q = q.Where("entry_id = ?", filter.EntryID)
	}
	if len(filter.Actions) > 0 {
		q = q.Where("action IN (?)", bun.In(actionStrings(filter.Actions)))
	}
	if filter.Since != nil && !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since)
	}
	if filter.Until != nil && !filter.Until.IsZero() {
		q = q.Where("created_at <= ?", filter.Until)
	}
	if strings.TrimSpace(filter.Keyword) != "" {
		keyword := "%" + strings.ToLower(strings.TrimSpace(filter.Keyword)) + "%"
		q = q.Where("LOWER(entry_name) LIKE ? OR LOWER(doc_key) LIKE ? OR LOWER(actor_email) LIKE ?", keyword, keyword, keyword)
	}
	return q
}

func applyOperationStatsFilter(q *bun.SelectQuery, filter types.OperationStatsFilter) *bun.SelectQuery {
	if filter.ModelUID != "" {
		q = q.Where("model_uid = ?", filter.ModelUID)
	}
	if filter.Since != nil && !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since)
	}
	if filter.Until != nil && !filter.Until.IsZero() {
		q = q.Where("created_at <= ?", filter.Until)
	}
	if len(filter.Actions) > 0 {
		q = q.Where("action IN (?)", bun.In(actionStrings(filter.Actions)))
	}
	return q
}

func actionStrings(actions []types.Action) []string {
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		out = append(out, string(a))
	}
	return out
}

func fromRecord(record types.OperationRecord) *Entry {
	return &Entry{
		ID:            record.ID,
		Action:        string(record.Action),
		ModelUID:      record.ModelUID,
		ModelName:     record.ModelName,
		EntryID:       record.EntryID,
		EntryName:     record.EntryName,
		DocKey:        record.DocKey,
		ActorEmail:    record.ActorEmail,
		ActorName:     record.ActorName,
		ChangedFields: append([]string(nil), record.ChangedFields...),
		DataBefore:    record.DataBefore.Clone(),
		DataAfter:     record.DataAfter.Clone(),
		OpTime:        record.OpTime,
	}
}

func toRecord(rec *Entry) types.OperationRecord {
	if rec == nil {
		return types.OperationRecord{}
	}
	return types.OperationRecord{
		ID:            rec.ID,
		Action:        types.Action(rec.Action),
		ModelUID:      rec.ModelUID,
		ModelName:     rec.ModelName,
		EntryID:       rec.EntryID,
		EntryName:     rec.EntryName,
		DocKey:        rec.DocKey,
		ActorEmail:    rec.ActorEmail,
		ActorName:     rec.ActorName,
		ChangedFields: append([]string(nil), rec.ChangedFields...),
		DataBefore:    types.Snapshot(rec.DataBefore).Clone(),
		DataAfter:     types.Snapshot(rec.DataAfter).Clone(),
		OpTime:        rec.OpTime,
	}
}

func toRecords(rows []*Entry) []types.OperationRecord {
	records := make([]types.OperationRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, toRecord(row))
	}
	return records
}

// FromOperationRecord converts a domain record into the Bun model so
// transports can reuse the conversion.
func FromOperationRecord(record types.OperationRecord) *Entry {
	return fromRecord(record)
}

// ToOperationRecord converts the Bun model into the domain record.
func ToOperationRecord(rec *Entry) types.OperationRecord {
	return toRecord(rec)
}

func normalizePagination(p types.Pagination, def, max int) types.Pagination {
	if p.Limit <= 0 {
		p.Limit = def
	}
	if p.Limit > max {
		p.Limit = max
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
