// Package httpapi mounts the operation log read endpoints and the restore
// action on a go-router router.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-oplog/command"
	"github.com/goliatone/go-oplog/pkg/reqctx"
	"github.com/goliatone/go-oplog/pkg/types"
	"github.com/goliatone/go-oplog/query"
	"github.com/goliatone/go-oplog/service"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// RestoreSecretHeader is the conventional header carrying the restore secret.
const RestoreSecretHeader = "X-Restore-Secret"

// API bundles the handlers for the operation log HTTP surface.
type API struct {
	commands service.Commands
	queries  service.Queries
	logger   types.Logger
}

// Config wires API construction.
type Config struct {
	Service *service.Service
	Logger  types.Logger
}

// New constructs the API facade.
func New(cfg Config) (*API, error) {
	if cfg.Service == nil {
		return nil, types.ErrServiceNotReady
	}
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &API{
		commands: cfg.Service.Commands(),
		queries:  cfg.Service.Queries(),
		logger:   logger,
	}, nil
}

// RegisterRoutes mounts the log endpoints under /operation-logs.
func RegisterRoutes[T any](r router.Router[T], api *API) {
	group := r.Group("/operation-logs")
	group.Get("/", api.handleFeed)
	group.Get("/stats", api.handleStats)
	group.Get("/:id", api.handleDetail)
	group.Post("/:id/restore", api.handleRestore)
}

func (a *API) handleFeed(c router.Context) error {
	filter := types.OperationFilter{
		ModelUID: strings.TrimSpace(c.Query("model")),
		DocKey:   strings.TrimSpace(c.Query("doc_key")),
		EntryID:  strings.TrimSpace(c.Query("entry_id")),
		Actions:  queryActions(c),
		Since:    queryTime(c, "since"),
		Until:    queryTime(c, "until"),
		Keyword:  strings.TrimSpace(c.Query("q")),
		Pagination: types.Pagination{
			Limit:  queryInt(c, "limit", 50),
			Offset: queryInt(c, "offset", 0),
		},
	}
	page, err := a.queries.OperationFeed.Query(c.Context(), filter)
	if err != nil {
		return a.fail(c, err, "operation feed failed")
	}
	return writeJSON(c, map[string]any{
		"records": recordViews(page.Records),
		"total":   page.Total,
		"hasMore": page.HasMore,
	})
}

func (a *API) handleStats(c router.Context) error {
	filter := types.OperationStatsFilter{
		ModelUID: strings.TrimSpace(c.Query("model")),
		Since:    queryTime(c, "since"),
		Until:    queryTime(c, "until"),
		Actions:  queryActions(c),
	}
	stats, err := a.queries.OperationStats.Query(c.Context(), filter)
	if err != nil {
		return a.fail(c, err, "operation stats failed")
	}
	return writeJSON(c, map[string]any{
		"total":    stats.Total,
		"byAction": stats.ByAction,
	})
}

func (a *API) handleDetail(c router.Context) error {
	id, err := uuid.Parse(c.Param("id", ""))
	if err != nil {
		return c.Status(http.StatusBadRequest).SendString("invalid operation log id")
	}
	record, err := a.queries.OperationDetail.Query(c.Context(), query.OperationDetailInput{ID: id})
	if err != nil {
		return a.fail(c, err, "operation detail failed")
	}
	if record == nil {
		return c.Status(http.StatusNotFound).SendString("operation log not found")
	}
	return writeJSON(c, recordView(*record))
}

func (a *API) handleRestore(c router.Context) error {
	id, err := uuid.Parse(c.Param("id", ""))
	if err != nil {
		return c.Status(http.StatusBadRequest).SendString("invalid operation log id")
	}
	result, err := a.commands.Restore.Execute(c.Context(), command.RestoreInput{
		LogID:  id,
		Secret: restoreSecret(c),
	})
	if err != nil {
		return a.fail(c, err, "restore failed")
	}
	return writeJSON(c, result)
}

// restoreSecret reads the secret stashed on the ambient request state by the
// host's transport middleware.
func restoreSecret(c router.Context) string {
	req, ok := reqctx.FromContext(c.Context())
	if !ok {
		return ""
	}
	return req.Header(RestoreSecretHeader)
}

func (a *API) fail(c router.Context, err error, msg string) error {
	a.logger.Error(msg, err)
	return c.Status(statusFromError(err)).SendString(publicMessage(err))
}

func statusFromError(err error) int {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		switch rich.Category {
		case goerrors.CategoryNotFound:
			return http.StatusNotFound
		case goerrors.CategoryValidation:
			return http.StatusBadRequest
		case goerrors.CategoryAuthz:
			return http.StatusForbidden
		}
	}
	return http.StatusInternalServerError
}

func publicMessage(err error) string {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Category != goerrors.CategoryInternal {
		return rich.Error()
	}
	return "internal error"
}

func recordView(record types.OperationRecord) map[string]any {
	return map[string]any{
		"id":            record.ID.String(),
		"action":        string(record.Action),
		"modelUid":      record.ModelUID,
		"modelName":     record.ModelName,
		"entryId":       record.EntryID,
		"entryName":     record.EntryName,
		"docKey":        record.DocKey,
		"actorEmail":    record.ActorEmail,
		"actorName":     record.ActorName,
		"changedFields": record.ChangedFields,
		"dataBefore":    record.DataBefore,
		"dataAfter":     record.DataAfter,
		"opTime":        record.OpTime,
	}
}

func recordViews(records []types.OperationRecord) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, record := range records {
		out = append(out, recordView(record))
	}
	return out
}

func queryActions(c router.Context) []types.Action {
	raw := strings.TrimSpace(c.Query("action"))
	if raw == "" {
		return nil
	}
	var actions []types.Action
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			actions = append(actions, types.Action(part))
		}
	}
	return actions
}

func queryInt(c router.Context, key string, def int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func queryTime(c router.Context, key string) *time.Time {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}

func writeJSON(c router.Context, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return c.Status(http.StatusInternalServerError).SendString("failed to marshal JSON")
	}
	c.SetHeader("Content-Type", "application/json")
	return c.Status(http.StatusOK).Send(data)
}
