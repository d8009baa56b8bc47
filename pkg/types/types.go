package types

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Action is the operation class recorded on a log entry.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ActionClass identifies the dedup scope of a lifecycle event. It is distinct
// from the logged Action: a publish event may resolve to a logged create or a
// logged update, but both dedup under ClassPublish.
type ActionClass string

const (
	ClassCreate  ActionClass = "create"
	ClassPublish ActionClass = "publish"
	ClassDelete  ActionClass = "delete"
)

// Row is a loosely typed record as returned by the entity store.
type Row = map[string]any

// Snapshot holds the scalar state of an entity, keyed by field name. Values
// are primitives or nil; relations and nested structures are never captured.
type Snapshot map[string]any

// Clone returns a copy detached from the original map reference.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	if len(s) == 0 {
		return Snapshot{}
	}
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// OperationRecord describes one audit log entry. It is shared across the
// writer, repository, and query layers.
type OperationRecord struct {
	ID            uuid.UUID
	Action        Action
	ModelUID      string
	ModelName     string
	EntryID       string
	EntryName     string
	DocKey        string
	ActorEmail    string
	ActorName     string
	ChangedFields []string
	DataBefore    Snapshot
	DataAfter     Snapshot
	OpTime        time.Time
}

// OperationSink is the minimal DI contract for persisting operation records.
// Entries are append-only; the sink never updates or deletes.
type OperationSink interface {
	Append(ctx context.Context, record OperationRecord) error
}

// OperationRepository exposes read-side access to the operation log.
type OperationRepository interface {
	GetOperation(ctx context.Context, id uuid.UUID) (*OperationRecord, error)
	RecentByDocKey(ctx context.Context, modelUID, docKey string, actions []Action, limit int) ([]OperationRecord, error)
	ListOperations(ctx context.Context, filter OperationFilter) (OperationPage, error)
	OperationStats(ctx context.Context, filter OperationStatsFilter) (OperationStats, error)
}

// Pagination supports query pagination across admin panels.
type Pagination struct {
	Limit  int
	Offset int
}

// OperationFilter narrows operation feed queries.
type OperationFilter struct {
	ModelUID   string
	DocKey     string
	EntryID    string
	Actions    []Action
	Since      *time.Time
	Until      *time.Time
	Keyword    string
	Pagination Pagination
}

// Type implements gocommand.Message for query inputs.
func (OperationFilter) Type() string {
	return "query.operation.feed"
}

// Validate implements gocommand.Message.
func (OperationFilter) Validate() error {
	return nil
}

// OperationPage represents a paginated feed response.
type OperationPage struct {
	Records    []OperationRecord
	Total      int
	NextOffset int
	HasMore    bool
}

// OperationStatsFilter scopes aggregate log queries.
type OperationStatsFilter struct {
	ModelUID string
	Since    *time.Time
	Until    *time.Time
	Actions  []Action
}

// Type implements gocommand.Message for query inputs.
func (OperationStatsFilter) Type() string {
	return "query.operation.stats"
}

// Validate implements gocommand.Message.
func (OperationStatsFilter) Validate() error {
	return nil
}

// OperationStats powers dashboard widgets summarizing logged actions.
type OperationStats struct {
	Total    int
	ByAction map[string]int
}

// FindQuery is the explicit filter surface the audit engine needs from the
// entity store. Fields left zero are not applied.
type FindQuery struct {
	DocumentID      string
	ExcludeID       string
	Slug            string
	SortNewestFirst bool
	Limit           int
}

// EntityStore is the black-box query interface of the host content store.
// FindOne returns nil without error when no record matches.
type EntityStore interface {
	FindOne(ctx context.Context, modelUID, id string) (Row, error)
	FindMany(ctx context.Context, modelUID string, query FindQuery) ([]Row, error)
	Create(ctx context.Context, modelUID string, data Row) (Row, error)
}

// ContentType describes a watched model.
type ContentType struct {
	UID             string
	Name            string
	DraftAndPublish bool
}

// ContentTypeRegistry resolves model metadata for watched content types.
type ContentTypeRegistry interface {
	ContentType(uid string) (ContentType, bool)
}

// StaticContentTypes is a fixed registry backed by a map.
type StaticContentTypes map[string]ContentType

// ContentType implements ContentTypeRegistry.
func (m StaticContentTypes) ContentType(uid string) (ContentType, bool) {
	ct, ok := m[uid]
	if ok && ct.UID == "" {
		ct.UID = uid
	}
	return ct, ok
}

// LifecycleEvent carries the payload of one entity store lifecycle callback.
type LifecycleEvent struct {
	ModelUID string
	// Result is the row as materialized by the store (after-phase events).
	Result Row
	// Data is the raw payload submitted by the caller.
	Data Row
	// Where is the row filter for update/delete operations.
	Where Row
}

// LifecycleHooks groups the handlers the recorder attaches to the store.
// Handlers never return errors; audit failures are contained internally so the
// observed operation is never affected.
type LifecycleHooks struct {
	AfterCreate  func(ctx context.Context, event LifecycleEvent)
	BeforeUpdate func(ctx context.Context, event LifecycleEvent)
	AfterUpdate  func(ctx context.Context, event LifecycleEvent)
	BeforeDelete func(ctx context.Context, event LifecycleEvent)
	AfterDelete  func(ctx context.Context, event LifecycleEvent)
}

// LifecycleSubscriber registers hooks for a fixed set of watched models.
type LifecycleSubscriber interface {
	Subscribe(models []string, hooks LifecycleHooks)
}

// Hooks groups optional callbacks invoked after key workflows complete.
type Hooks struct {
	AfterOperation func(context.Context, OperationRecord)
	AfterRestore   func(context.Context, RestoreEvent)
}

// RestoreEvent is emitted after a successful restore.
type RestoreEvent struct {
	LogID      uuid.UUID
	ModelUID   string
	RestoredID string
	OccurredAt time.Time
}

// Clock abstracts time retrieval for deterministic testing.
type Clock interface {
	Now() time.Time
}

// IDGenerator abstracts UUID creation.
type IDGenerator interface {
	UUID() uuid.UUID
}

// Logger captures basic logging hooks used by the engine.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Error(msg string, err error, fields ...any)
}

// SystemClock defers to time.Now for production usage.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// UUIDGenerator produces UUIDv4 identifiers.
type UUIDGenerator struct{}

// UUID returns a randomly generated UUID.
func (UUIDGenerator) UUID() uuid.UUID { return uuid.New() }

// NopLogger discards all log lines.
type NopLogger struct{}

// Debug implements Logger.
func (NopLogger) Debug(string, ...any) {}

// Info implements Logger.
func (NopLogger) Info(string, ...any) {}

// Error implements Logger.
func (NopLogger) Error(string, error, ...any) {}

// StringID renders a store-local identifier as a string. Stores return ids as
// numbers or strings depending on the backing driver.
func StringID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(id)
	case int:
		return strconv.FormatInt(int64(id), 10)
	case int32:
		return strconv.FormatInt(int64(id), 10)
	case int64:
		return strconv.FormatInt(id, 10)
	case float64:
		return strconv.FormatInt(int64(id), 10)
	case uuid.UUID:
		return id.String()
	default:
		return ""
	}
}

var (
	// ErrServiceNotReady indicates the service has not been properly configured.
	ErrServiceNotReady = errors.New("go-oplog: service not ready")
	// ErrMissingEntityStore occurs when no entity store was supplied.
	ErrMissingEntityStore = errors.New("go-oplog: missing entity store")
	// ErrMissingOperationSink occurs when no operation sink was supplied.
	ErrMissingOperationSink = errors.New("go-oplog: missing operation sink")
	// ErrMissingOperationRepository occurs when read-side queries lack storage.
	ErrMissingOperationRepository = errors.New("go-oplog: missing operation repository")
	// ErrMissingContentTypes occurs when no content type registry was supplied.
	ErrMissingContentTypes = errors.New("go-oplog: missing content type registry")
	// ErrModelUIDRequired indicates a record omitted the model identifier.
	ErrModelUIDRequired = errors.New("go-oplog: model uid required")
	// ErrActionRequired indicates a record omitted the action.
	ErrActionRequired = errors.New("go-oplog: action required")
	// ErrEntryIDRequired indicates a record omitted the entry identifier.
	ErrEntryIDRequired = errors.New("go-oplog: entry id required")
)
