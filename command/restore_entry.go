package command

import (
	"context"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-oplog/diff"
	"github.com/goliatone/go-oplog/pkg/types"
	"github.com/google/uuid"
)

// RestoreInput identifies the delete log to restore from.
type RestoreInput struct {
	LogID  uuid.UUID
	Secret string
}

// Type implements gocommand.Message.
func (RestoreInput) Type() string {
	return "command.operation.restore"
}

// Validate implements gocommand.Message.
func (input RestoreInput) Validate() error {
	if input.LogID == uuid.Nil {
		return ErrLogIDRequired
	}
	return nil
}

// RestoreResult describes the row recreated from a delete log.
type RestoreResult struct {
	OK         bool      `json:"ok"`
	UID        string    `json:"uid"`
	RestoredID string    `json:"restoredId"`
	Data       types.Row `json:"data"`
}

// RestoreConfig wires dependencies for the restore command.
type RestoreConfig struct {
	Operations   types.OperationRepository
	Store        types.EntityStore
	ContentTypes types.ContentTypeRegistry
	Hooks        types.Hooks
	Clock        types.Clock
	Logger       types.Logger
	// Secret gates the restore endpoint. Empty disables the check.
	Secret string
}

// RestoreCommand recreates an entity from the before-state snapshot of a
// delete log entry. The restored row always lands as a draft on models with
// draft workflow enabled.
type RestoreCommand struct {
	operations   types.OperationRepository
	store        types.EntityStore
	contentTypes types.ContentTypeRegistry
	hooks        types.Hooks
	clock        types.Clock
	logger       types.Logger
	secret       string
}

// NewRestoreCommand constructs the restore handler.
func NewRestoreCommand(cfg RestoreConfig) *RestoreCommand {
	return &RestoreCommand{
		operations:   cfg.Operations,
		store:        cfg.Store,
		contentTypes: cfg.ContentTypes,
		hooks:        cfg.Hooks,
		clock:        safeClock(cfg.Clock),
		logger:       safeLogger(cfg.Logger),
		secret:       cfg.Secret,
	}
}

// Execute resolves the log entry, rebuilds a scalar payload, and inserts a
// fresh row in the source model.
func (c *RestoreCommand) Execute(ctx context.Context, input RestoreInput) (RestoreResult, error) {
	if c.operations == nil {
		return RestoreResult{}, types.ErrMissingOperationRepository
	}
	if c.store == nil {
		return RestoreResult{}, types.ErrMissingEntityStore
	}
	if err := input.Validate(); err != nil {
		return RestoreResult{}, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid restore input").
			WithCode(goerrors.CodeBadRequest)
	}
	if c.secret != "" && input.Secret != c.secret {
		return RestoreResult{}, goerrors.New("restore secret mismatch", goerrors.CategoryAuthz).
			WithCode(goerrors.CodeForbidden)
	}

	log, err := c.operations.GetOperation(ctx, input.LogID)
	if err != nil {
		return RestoreResult{}, goerrors.Wrap(err, goerrors.CategoryInternal, "restore lookup failed").
			WithCode(goerrors.CodeInternal)
	}
	if log == nil {
		return RestoreResult{}, goerrors.New("operation log not found", goerrors.CategoryNotFound).
			WithCode(goerrors.CodeNotFound)
	}
	if log.Action != types.ActionDelete {
		return RestoreResult{}, goerrors.New("only delete logs can be restored", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}
	if log.ModelUID == "" || len(log.DataBefore) == 0 {
		return RestoreResult{}, goerrors.New("invalid log payload", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	data := diff.PickScalars(log.DataBefore)
	if c.draftAndPublish(log.ModelUID) {
		data["publishedAt"] = nil
	} else {
		delete(data, "publishedAt")
	}
	c.ensureUniqueSlug(ctx, log.ModelUID, data)

	created, err := c.store.Create(ctx, log.ModelUID, types.Row(data))
	if err != nil {
		c.logger.Error("restore failed", err, "model", log.ModelUID, "log_id", input.LogID.String())
		return RestoreResult{}, goerrors.Wrap(err, goerrors.CategoryInternal, "restore failed").
			WithCode(goerrors.CodeInternal)
	}

	result := RestoreResult{
		OK:         true,
		UID:        log.ModelUID,
		RestoredID: types.StringID(created["id"]),
		Data:       created,
	}
	emitRestoreHook(ctx, c.hooks, types.RestoreEvent{
		LogID:      input.LogID,
		ModelUID:   log.ModelUID,
		RestoredID: result.RestoredID,
		OccurredAt: now(c.clock),
	})
	return result, nil
}

func (c *RestoreCommand) draftAndPublish(uid string) bool {
	if c.contentTypes == nil {
		return false
	}
	ct, ok := c.contentTypes.ContentType(uid)
	return ok && ct.DraftAndPublish
}

// ensureUniqueSlug probes for a free slug by suffixing the original. After 20
// attempts it falls back to a timestamp suffix that cannot collide.
func (c *RestoreCommand) ensureUniqueSlug(ctx context.Context, uid string, data types.Snapshot) {
	slug, _ := data["slug"].(string)
	if slug == "" {
		return
	}
	base := slug
	attempt := base
	for i := 1; ; i++ {
		rows, err := c.store.FindMany(ctx, uid, types.FindQuery{Slug: attempt, Limit: 1})
		if err != nil {
			c.logger.Debug("slug probe failed", "model", uid, "slug", attempt, "error", err)
			return
		}
		if len(rows) == 0 {
			data["slug"] = attempt
			return
		}
		if i >= 20 {
			data["slug"] = fmt.Sprintf("%s-restored-%d", base, now(c.clock).UnixMilli())
			return
		}
		attempt = fmt.Sprintf("%s-restored%d", base, i+1)
	}
}
