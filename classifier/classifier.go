// Package classifier decides whether a lifecycle event represents a loggable
// business operation or should be suppressed (draft saves, internal writes,
// non-POST/DELETE traffic).
package classifier

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-oplog/diff"
	"github.com/goliatone/go-oplog/pkg/reqctx"
	"github.com/goliatone/go-oplog/pkg/types"
)

// publishPathMarker is the admin route segment of an explicit publish action.
const publishPathMarker = "/actions/publish"

// Decision is the classifier verdict for one lifecycle event.
type Decision struct {
	// Proceed is false when the event must be suppressed.
	Proceed bool
	// Action is the provisional classification; the baseline resolver may
	// refine a create into an update when prior publish evidence exists.
	Action types.Action
	// Class scopes dedup keys.
	Class types.ActionClass
}

func suppress() Decision {
	return Decision{}
}

// Config wires classifier dependencies.
type Config struct {
	ContentTypes types.ContentTypeRegistry
	Logger       types.Logger
}

// Classifier filters lifecycle events for watched content types.
type Classifier struct {
	contentTypes types.ContentTypeRegistry
	logger       types.Logger
}

// New constructs a classifier.
func New(cfg Config) *Classifier {
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Classifier{
		contentTypes: cfg.ContentTypes,
		logger:       logger,
	}
}

// AfterCreate classifies a creation event. Draft saves on draft/publish types
// are suppressed; audit happens at publish time. Non-draft/publish types only
// log direct POST creations, which filters out internal and replicated writes.
func (c *Classifier) AfterCreate(ctx context.Context, event types.LifecycleEvent) Decision {
	ct, ok := c.lookup(event.ModelUID)
	if !ok {
		return suppress()
	}
	if ct.DraftAndPublish {
		if !Published(event.Result) {
			c.logger.Debug("skip draft save", "model", event.ModelUID)
			return suppress()
		}
		return Decision{Proceed: true, Action: types.ActionCreate, Class: types.ClassPublish}
	}
	if reqctx.Method(ctx) != http.MethodPost {
		return suppress()
	}
	return Decision{Proceed: true, Action: types.ActionCreate, Class: types.ClassCreate}
}

// AfterUpdate classifies an update event, proceeding only on publish-final
// transitions: an explicit publish route, a draft becoming published, or a
// republish of an already-published document with actual business changes.
// Plain draft-to-draft saves are suppressed.
func (c *Classifier) AfterUpdate(ctx context.Context, event types.LifecycleEvent, before types.Snapshot) Decision {
	ct, ok := c.lookup(event.ModelUID)
	if !ok {
		return suppress()
	}

	pubBefore := Published(types.Row(before))
	pubAfter := Published(event.Result)

	publishFinal := false
	switch {
	case IsPublishPath(reqctx.URL(ctx)):
		publishFinal = true
	case !pubBefore && pubAfter:
		publishFinal = true
	case ct.DraftAndPublish && pubBefore && pubAfter:
		changed := diff.ChangedFields(before, diff.PickScalars(event.Result), event.Data)
		publishFinal = len(changed) > 0
	}
	if !publishFinal {
		return suppress()
	}

	action := types.ActionCreate
	if pubBefore {
		action = types.ActionUpdate
	}
	return Decision{Proceed: true, Action: action, Class: types.ClassPublish}
}

// AfterDelete classifies a deletion event. Only DELETE-initiated removals are
// logged, which guards against cascading and internal deletes.
func (c *Classifier) AfterDelete(ctx context.Context, event types.LifecycleEvent) Decision {
	if _, ok := c.lookup(event.ModelUID); !ok {
		return suppress()
	}
	if reqctx.Method(ctx) != http.MethodDelete {
		return suppress()
	}
	return Decision{Proceed: true, Action: types.ActionDelete, Class: types.ClassDelete}
}

func (c *Classifier) lookup(uid string) (types.ContentType, bool) {
	if c == nil || c.contentTypes == nil {
		return types.ContentType{}, false
	}
	return c.contentTypes.ContentType(uid)
}

// Published reports whether the row carries a non-null publishedAt value.
func Published(row types.Row) bool {
	if row == nil {
		return false
	}
	switch v := row["publishedAt"].(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	case time.Time:
		return !v.IsZero()
	case *time.Time:
		return v != nil && !v.IsZero()
	default:
		return true
	}
}

// IsPublishPath reports whether the URL targets an explicit publish action.
func IsPublishPath(url string) bool {
	return strings.Contains(url, publishPathMarker)
}
