// Package baseline reconstructs the "before" state a publish event must be
// diffed against. Draft/publish stores physically replace rows on each
// publish, so the immediately preceding row is usually the wrong comparison
// point; the resolver layers live sibling rows over prior log snapshots to
// always diff against the last known published state.
package baseline

import (
	"context"
	"errors"

	"github.com/goliatone/go-oplog/classifier"
	"github.com/goliatone/go-oplog/diff"
	"github.com/goliatone/go-oplog/pkg/types"
)

// siblingLimit caps the sibling scan per resolution.
const siblingLimit = 10

// Input describes the freshly written row under classification.
type Input struct {
	ModelUID string
	Row      types.Row
	DocKey   string
	// Before is the pre-operation stash for same-row updates; empty for
	// create events.
	Before types.Snapshot
	// Action is the classifier's provisional verdict.
	Action types.Action
}

// Resolution carries the refined action and the baseline snapshot.
type Resolution struct {
	Action   types.Action
	Baseline types.Snapshot
}

// History is the slice of the log store the resolver consults when live
// sibling evidence has been destroyed.
type History interface {
	RecentByDocKey(ctx context.Context, modelUID, docKey string, actions []types.Action, limit int) ([]types.OperationRecord, error)
}

// Config wires resolver dependencies.
type Config struct {
	Store   types.EntityStore
	History History
	Logger  types.Logger
}

// Resolver finds the last published state of a document.
type Resolver struct {
	store   types.EntityStore
	history History
	logger  types.Logger
}

// New constructs a resolver.
func New(cfg Config) (*Resolver, error) {
	if cfg.Store == nil {
		return nil, types.ErrMissingEntityStore
	}
	if cfg.History == nil {
		return nil, errors.New("go-oplog: baseline resolver requires log history")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Resolver{
		store:   cfg.Store,
		history: cfg.History,
		logger:  logger,
	}, nil
}

// Resolve returns the refined action plus the baseline to diff against. It
// never fails: lookup errors degrade to "no baseline available" so the audit
// path can still record a less precise entry.
func (r *Resolver) Resolve(ctx context.Context, in Input) Resolution {
	// Same-row republish: the stashed pre-state is the document's last
	// published version, fresher than any sibling row.
	if classifier.Published(types.Row(in.Before)) {
		return Resolution{
			Action:   types.ActionUpdate,
			Baseline: scrub(in.Before),
		}
	}

	action := in.Action
	siblings := r.siblings(ctx, in)
	prevPublished := firstPublished(siblings)

	switch {
	case prevPublished != nil:
		action = types.ActionUpdate
	case len(siblings) >= 2:
		// Two or more versions imply a prior publish cycle even when the
		// published row itself is gone.
		action = types.ActionUpdate
	case len(siblings) == 1:
		action = types.ActionCreate
	}

	var fallback *types.OperationRecord
	if prevPublished == nil && in.DocKey != "" {
		fallback = r.latestLogged(ctx, in.ModelUID, in.DocKey)
		// Sibling rows may have been hard-deleted after a prior publish;
		// the log trail still proves this is not a first publish.
		if action == types.ActionCreate && fallback != nil {
			action = types.ActionUpdate
		}
	}

	if prevPublished != nil {
		return Resolution{Action: action, Baseline: diff.PickScalars(prevPublished)}
	}
	if action == types.ActionUpdate && fallback != nil {
		if len(fallback.DataAfter) > 0 {
			return Resolution{Action: action, Baseline: fallback.DataAfter.Clone()}
		}
		if len(fallback.DataBefore) > 0 {
			return Resolution{Action: action, Baseline: fallback.DataBefore.Clone()}
		}
	}
	// Genuine first publish: empty baseline, every business field counts as
	// changed.
	return Resolution{Action: action, Baseline: types.Snapshot{}}
}

func (r *Resolver) siblings(ctx context.Context, in Input) []types.Row {
	docID := types.StringID(in.Row["documentId"])
	if docID == "" {
		return nil
	}
	rows, err := r.store.FindMany(ctx, in.ModelUID, types.FindQuery{
		DocumentID:      docID,
		ExcludeID:       types.StringID(in.Row["id"]),
		SortNewestFirst: true,
		Limit:           siblingLimit,
	})
	if err != nil {
		r.logger.Debug("sibling lookup failed, degrading to log history",
			"model", in.ModelUID, "document", docID, "error", err)
		return nil
	}
	return rows
}

func (r *Resolver) latestLogged(ctx context.Context, modelUID, docKey string) *types.OperationRecord {
	recs, err := r.history.RecentByDocKey(ctx, modelUID, docKey,
		[]types.Action{types.ActionCreate, types.ActionUpdate}, 1)
	if err != nil {
		r.logger.Debug("log history lookup failed",
			"model", modelUID, "doc_key", docKey, "error", err)
		return nil
	}
	if len(recs) == 0 {
		return nil
	}
	return &recs[0]
}

func firstPublished(rows []types.Row) types.Row {
	for _, row := range rows {
		if classifier.Published(row) {
			return row
		}
	}
	return nil
}

// scrub reduces a stash (which keeps technical primitives for classification)
// to business scalar state.
func scrub(snap types.Snapshot) types.Snapshot {
	return diff.PickScalars(types.Row(snap))
}
