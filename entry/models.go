package entry

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Entry models the persisted row in operation_logs. Rows are append-only;
// nothing in this module updates or deletes them.
type Entry struct {
	bun.BaseModel `bun:"table:operation_logs"`

	ID            uuid.UUID      `bun:",pk,type:uuid"`
	Action        string         `bun:"action"`
	ModelUID      string         `bun:"model_uid"`
	ModelName     string         `bun:"model_name"`
	EntryID       string         `bun:"entry_id"`
	EntryName     string         `bun:"entry_name"`
	DocKey        string         `bun:"doc_key"`
	ActorEmail    string         `bun:"actor_email,nullzero"`
	ActorName     string         `bun:"actor_name,nullzero"`
	ChangedFields []string       `bun:"changed_fields,type:jsonb"`
	DataBefore    map[string]any `bun:"data_before,type:jsonb"`
	DataAfter     map[string]any `bun:"data_after,type:jsonb"`
	OpTime        time.Time      `bun:"op_time"`
	CreatedAt     time.Time      `bun:"created_at"`
}
