// Package recorder attaches to entity store lifecycle hooks and turns raw
// create/update/delete callbacks into operation log entries. Every handler is
// failure-contained: an audit error is logged and swallowed, never surfaced to
// the operation that triggered it.
package recorder

import (
	"context"
	"errors"
	"fmt"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-oplog/baseline"
	"github.com/goliatone/go-oplog/classifier"
	"github.com/goliatone/go-oplog/command"
	"github.com/goliatone/go-oplog/dedup"
	"github.com/goliatone/go-oplog/diff"
	"github.com/goliatone/go-oplog/pkg/reqctx"
	"github.com/goliatone/go-oplog/pkg/types"
)

// Config wires recorder dependencies.
type Config struct {
	Classifier   *classifier.Classifier
	Baseline     *baseline.Resolver
	Guard        *dedup.Guard
	Writer       gocommand.Commander[command.LogOperationInput]
	ContentTypes types.ContentTypeRegistry
	Store        types.EntityStore
	Clock        types.Clock
	Logger       types.Logger
	// WatchModels lists the model UIDs to subscribe to.
	WatchModels []string
}

// Recorder observes lifecycle events for watched models.
type Recorder struct {
	classifier   *classifier.Classifier
	baseline     *baseline.Resolver
	guard        *dedup.Guard
	writer       gocommand.Commander[command.LogOperationInput]
	contentTypes types.ContentTypeRegistry
	store        types.EntityStore
	clock        types.Clock
	logger       types.Logger
	watchModels  []string
}

// New constructs a recorder, validating the required collaborators.
func New(cfg Config) (*Recorder, error) {
	if cfg.Writer == nil {
		return nil, errors.New("go-oplog: recorder requires a log writer")
	}
	if cfg.Store == nil {
		return nil, types.ErrMissingEntityStore
	}
	if cfg.ContentTypes == nil {
		return nil, types.ErrMissingContentTypes
	}
	if cfg.Baseline == nil {
		return nil, errors.New("go-oplog: recorder requires a baseline resolver")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.SystemClock{}
	}
	cls := cfg.Classifier
	if cls == nil {
		cls = classifier.New(classifier.Config{ContentTypes: cfg.ContentTypes, Logger: logger})
	}
	guard := cfg.Guard
	if guard == nil {
		guard = dedup.New(dedup.Config{Clock: clock})
	}
	return &Recorder{
		classifier:   cls,
		baseline:     cfg.Baseline,
		guard:        guard,
		writer:       cfg.Writer,
		contentTypes: cfg.ContentTypes,
		store:        cfg.Store,
		clock:        clock,
		logger:       logger,
		watchModels:  append([]string(nil), cfg.WatchModels...),
	}, nil
}

// Models returns the watched model UIDs.
func (r *Recorder) Models() []string {
	return append([]string(nil), r.watchModels...)
}

// Register subscribes the recorder's hooks for every watched model.
func (r *Recorder) Register(sub types.LifecycleSubscriber) {
	if sub == nil {
		return
	}
	sub.Subscribe(r.Models(), r.Hooks())
}

// Hooks exposes the lifecycle handlers for manual wiring.
func (r *Recorder) Hooks() types.LifecycleHooks {
	return types.LifecycleHooks{
		AfterCreate:  r.afterCreate,
		BeforeUpdate: r.beforeUpdate,
		AfterUpdate:  r.afterUpdate,
		BeforeDelete: r.beforeDelete,
		AfterDelete:  r.afterDelete,
	}
}

func (r *Recorder) afterCreate(ctx context.Context, event types.LifecycleEvent) {
	defer r.contain(event, "after create")

	decision := r.classifier.AfterCreate(ctx, event)
	if !decision.Proceed {
		return
	}
	row := event.Result
	docKey := docKeyOf(row)
	if r.guard.Suppress(ctx, dedup.Key(event.ModelUID, docKey, decision.Class)) {
		r.logger.Debug("duplicate suppressed", "model", event.ModelUID, "doc_key", docKey, "class", string(decision.Class))
		return
	}

	res := baseline.Resolution{Action: decision.Action, Baseline: types.Snapshot{}}
	if decision.Class == types.ClassPublish {
		// Publishing replaces the row, so this "create" may be a republish of
		// an existing document. The resolver decides using sibling rows and
		// log history.
		res = r.baseline.Resolve(ctx, baseline.Input{
			ModelUID: event.ModelUID,
			Row:      row,
			DocKey:   docKey,
			Action:   decision.Action,
		})
	}
	r.write(ctx, event, row, docKey, res)
}

func (r *Recorder) beforeUpdate(ctx context.Context, event types.LifecycleEvent) {
	defer r.contain(event, "before update")
	r.stash(ctx, event)
}

func (r *Recorder) afterUpdate(ctx context.Context, event types.LifecycleEvent) {
	defer r.contain(event, "after update")

	row := event.Result
	before := r.stashed(ctx, event.ModelUID, types.StringID(row["id"]))
	decision := r.classifier.AfterUpdate(ctx, event, before)
	if !decision.Proceed {
		return
	}
	docKey := docKeyOf(row)
	if docKey == "" {
		docKey = docKeyOf(types.Row(before))
	}
	if r.guard.Suppress(ctx, dedup.Key(event.ModelUID, docKey, decision.Class)) {
		r.logger.Debug("duplicate suppressed", "model", event.ModelUID, "doc_key", docKey, "class", string(decision.Class))
		return
	}

	res := r.baseline.Resolve(ctx, baseline.Input{
		ModelUID: event.ModelUID,
		Row:      row,
		DocKey:   docKey,
		Before:   before,
		Action:   decision.Action,
	})
	r.write(ctx, event, row, docKey, res)
}

func (r *Recorder) beforeDelete(ctx context.Context, event types.LifecycleEvent) {
	defer r.contain(event, "before delete")
	r.stash(ctx, event)
}

func (r *Recorder) afterDelete(ctx context.Context, event types.LifecycleEvent) {
	defer r.contain(event, "after delete")

	decision := r.classifier.AfterDelete(ctx, event)
	if !decision.Proceed {
		return
	}
	row := event.Result
	entryID := types.StringID(row["id"])
	if entryID == "" {
		entryID = types.StringID(event.Where["id"])
	}
	before := r.stashed(ctx, event.ModelUID, entryID)
	if before == nil {
		before = diff.PickPrimitives(row)
	}
	docKey := docKeyOf(types.Row(before))
	if docKey == "" {
		docKey = docKeyOf(row)
	}
	if r.guard.Suppress(ctx, dedup.Key(event.ModelUID, docKey, decision.Class)) {
		return
	}

	record := r.baseRecord(ctx, event.ModelUID, types.ActionDelete)
	record.EntryID = entryID
	record.EntryName = entryNameOf(types.Row(before))
	record.DocKey = docKey
	record.DataBefore = diff.PickScalars(types.Row(before))
	r.submit(ctx, record)
}

// write composes and persists a create/update record from the resolved
// baseline. First publishes list every business field as changed; updates
// narrow both snapshots down to the fields that differ.
func (r *Recorder) write(ctx context.Context, event types.LifecycleEvent, row types.Row, docKey string, res baseline.Resolution) {
	after := diff.PickScalars(row)

	var changed []string
	switch res.Action {
	case types.ActionCreate:
		changed = diff.BusinessKeys(after)
	default:
		changed = diff.ChangedFields(res.Baseline, after, event.Data)
	}

	record := r.baseRecord(ctx, event.ModelUID, res.Action)
	record.EntryID = types.StringID(row["id"])
	record.EntryName = entryNameOf(row)
	record.DocKey = docKey
	record.ChangedFields = changed
	record.DataAfter = diff.Pick(after, changed)
	if res.Action != types.ActionCreate {
		record.DataBefore = diff.Pick(res.Baseline, changed)
	}
	r.submit(ctx, record)
}

func (r *Recorder) baseRecord(ctx context.Context, modelUID string, action types.Action) types.OperationRecord {
	record := types.OperationRecord{
		Action:   action,
		ModelUID: modelUID,
		OpTime:   r.clock.Now(),
	}
	if ct, ok := r.contentTypes.ContentType(modelUID); ok {
		record.ModelName = ct.Name
	}
	if actor := reqctx.ActorFromContext(ctx); actor != nil {
		record.ActorEmail = actor.Email
		record.ActorName = actor.Name
	}
	return record
}

func (r *Recorder) submit(ctx context.Context, record types.OperationRecord) {
	if err := r.writer.Execute(ctx, command.LogOperationInput{Record: record}); err != nil {
		r.logger.Error("operation log write failed", err,
			"model", record.ModelUID, "action", string(record.Action), "entry", record.EntryID)
	}
}

// stash captures the current row state before an update or delete mutates it.
// Technical primitives stay in the stash; the classifier needs publishedAt to
// detect publish transitions.
func (r *Recorder) stash(ctx context.Context, event types.LifecycleEvent) {
	req, ok := reqctx.FromContext(ctx)
	if !ok {
		return
	}
	if _, watched := r.contentTypes.ContentType(event.ModelUID); !watched {
		return
	}
	id := types.StringID(event.Where["id"])
	if id == "" {
		id = types.StringID(event.Data["id"])
	}
	if id == "" {
		return
	}
	row, err := r.store.FindOne(ctx, event.ModelUID, id)
	if err != nil {
		r.logger.Debug("before-state lookup failed", "model", event.ModelUID, "id", id, "error", err)
		return
	}
	if row == nil {
		return
	}
	req.StashBefore(stashKey(event.ModelUID, id), diff.PickPrimitives(row))
}

func (r *Recorder) stashed(ctx context.Context, modelUID, id string) types.Snapshot {
	req, ok := reqctx.FromContext(ctx)
	if !ok || id == "" {
		return nil
	}
	snap, ok := req.Before(stashKey(modelUID, id))
	if !ok {
		return nil
	}
	return snap
}

// contain keeps handler panics and stray failures away from the host
// operation.
func (r *Recorder) contain(event types.LifecycleEvent, phase string) {
	if rec := recover(); rec != nil {
		r.logger.Error("audit handler panicked", fmt.Errorf("%v", rec),
			"model", event.ModelUID, "phase", phase)
	}
}

func stashKey(modelUID, id string) string {
	return modelUID + ":" + id
}

// docKeyOf picks the stable correlation key of a row: human-readable name
// first, slug next, then the cross-version document id, finally the row id.
func docKeyOf(row types.Row) string {
	for _, key := range []string{"name", "slug"} {
		if v, ok := row[key].(string); ok && v != "" {
			return v
		}
	}
	if v := types.StringID(row["documentId"]); v != "" {
		return v
	}
	return types.StringID(row["id"])
}

// entryNameOf picks a display label for the log entry.
func entryNameOf(row types.Row) string {
	for _, key := range []string{"name", "title", "slug"} {
		if v, ok := row[key].(string); ok && v != "" {
			return v
		}
	}
	return types.StringID(row["id"])
}
