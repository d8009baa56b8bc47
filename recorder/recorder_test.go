package recorder

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-oplog/baseline"
	"github.com/goliatone/go-oplog/command"
	"github.com/goliatone/go-oplog/dedup"
	"github.com/goliatone/go-oplog/pkg/reqctx"
	"github.com/goliatone/go-oplog/pkg/types"
	"github.com/stretchr/testify/require"
)

const articleUID = "api::article.article"

// envStore is a minimal entity store the recorder can read back from.
type envStore struct {
	rows map[string]types.Row
}

func newEnvStore() *envStore {
	return &envStore{rows: make(map[string]types.Row)}
}

func (s *envStore) put(uid string, row types.Row) {
	s.rows[uid+":"+types.StringID(row["id"])] = row
}

func (s *envStore) remove(uid, id string) {
	delete(s.rows, uid+":"+id)
}

func (s *envStore) FindOne(ctx context.Context, modelUID, id string) (types.Row, error) {
	row, ok := s.rows[modelUID+":"+id]
	if !ok {
		return nil, nil
	}
	return row, nil
}

func (s *envStore) FindMany(ctx context.Context, modelUID string, q types.FindQuery) ([]types.Row, error) {
	var out []types.Row
	for key, row := range s.rows {
		if len(key) < len(modelUID) || key[:len(modelUID)] != modelUID {
			continue
		}
		if q.DocumentID != "" && types.StringID(row["documentId"]) != q.DocumentID {
			continue
		}
		if q.ExcludeID != "" && types.StringID(row["id"]) == q.ExcludeID {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *envStore) Create(ctx context.Context, modelUID string, data types.Row) (types.Row, error) {
	return data, nil
}

// captureWriter records submitted entries and doubles as the resolver's log
// history.
type captureWriter struct {
	records []types.OperationRecord
}

func (w *captureWriter) Execute(ctx context.Context, input command.LogOperationInput) error {
	w.records = append(w.records, input.Record)
	return nil
}

func (w *captureWriter) RecentByDocKey(ctx context.Context, modelUID, docKey string, actions []types.Action, limit int) ([]types.OperationRecord, error) {
	var out []types.OperationRecord
	for i := len(w.records) - 1; i >= 0 && len(out) < limit; i-- {
		rec := w.records[i]
		if rec.ModelUID != modelUID || rec.DocKey != docKey {
			continue
		}
		for _, action := range actions {
			if rec.Action == action {
				out = append(out, rec)
				break
			}
		}
	}
	return out, nil
}

type testEnv struct {
	store    *envStore
	writer   *captureWriter
	recorder *Recorder
	hooks    types.LifecycleHooks
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newEnvStore()
	writer := &captureWriter{}

	contentTypes := types.StaticContentTypes{
		articleUID:      {Name: "Article", DraftAndPublish: true},
		"api::tag.tag":  {Name: "Tag", DraftAndPublish: false},
		"api::faq.faq":  {Name: "FAQ", DraftAndPublish: true},
		"api::raw.page": {Name: "Raw Page", DraftAndPublish: false},
	}
	resolver, err := baseline.New(baseline.Config{Store: store, History: writer})
	require.NoError(t, err)

	rec, err := New(Config{
		Baseline:     resolver,
		Guard:        dedup.New(dedup.Config{TTL: time.Minute}),
		Writer:       writer,
		ContentTypes: contentTypes,
		Store:        store,
		WatchModels:  []string{articleUID, "api::tag.tag"},
	})
	require.NoError(t, err)

	return &testEnv{
		store:    store,
		writer:   writer,
		recorder: rec,
		hooks:    rec.Hooks(),
	}
}

func editorContext(method, url string) context.Context {
	actor := &reqctx.Actor{Email: "editor@example.com", Name: "Pat Editor"}
	return reqctx.WithRequest(context.Background(), reqctx.New(method, url, actor))
}

func TestRecorder_DraftSaveNotLogged(t *testing.T) {
	env := newTestEnv(t)

	env.hooks.AfterCreate(editorContext(http.MethodPost, "/api/articles"), types.LifecycleEvent{
		ModelUID: articleUID,
		Result:   types.Row{"id": 1, "documentId": "doc-1", "name": "Hello", "publishedAt": nil},
	})

	require.Empty(t, env.writer.records)
}

func TestRecorder_FirstPublishLogsCreate(t *testing.T) {
	env := newTestEnv(t)
	draft := types.Row{"id": 1, "documentId": "doc-1", "name": "Hello", "body": "text", "publishedAt": nil}
	env.store.put(articleUID, draft)

	published := types.Row{
		"id": 2, "documentId": "doc-1", "name": "Hello", "body": "text",
		"publishedAt": time.Now(),
	}
	env.store.put(articleUID, published)
	env.hooks.AfterCreate(editorContext(http.MethodPost, "/publish"), types.LifecycleEvent{
		ModelUID: articleUID,
		Result:   published,
	})

	require.Len(t, env.writer.records, 1)
	rec := env.writer.records[0]
	require.Equal(t, types.ActionCreate, rec.Action)
	require.Equal(t, "Article", rec.ModelName)
	require.Equal(t, "2", rec.EntryID)
	require.Equal(t, "Hello", rec.DocKey)
	require.Equal(t, "editor@example.com", rec.ActorEmail)
	require.Equal(t, []string{"body", "name"}, rec.ChangedFields)
	require.Empty(t, rec.DataBefore)
	require.Equal(t, types.Snapshot{"body": "text", "name": "Hello"}, rec.DataAfter)
}

func TestRecorder_RepublishLogsUpdateWithDiff(t *testing.T) {
	env := newTestEnv(t)
	publishedAt := time.Now().Add(-time.Hour)
	env.store.put(articleUID, types.Row{
		"id": 1, "documentId": "doc-1", "name": "Hello", "body": "old text", "publishedAt": nil,
	})
	env.store.put(articleUID, types.Row{
		"id": 2, "documentId": "doc-1", "name": "Hello", "body": "old text", "publishedAt": publishedAt,
	})

	replacement := types.Row{
		"id": 3, "documentId": "doc-1", "name": "Hello", "body": "new text",
		"publishedAt": time.Now(),
	}
	env.store.put(articleUID, replacement)
	env.hooks.AfterCreate(editorContext(http.MethodPost, "/publish"), types.LifecycleEvent{
		ModelUID: articleUID,
		Result:   replacement,
	})

	require.Len(t, env.writer.records, 1)
	rec := env.writer.records[0]
	require.Equal(t, types.ActionUpdate, rec.Action)
	require.Equal(t, []string{"body"}, rec.ChangedFields)
	require.Equal(t, types.Snapshot{"body": "old text"}, rec.DataBefore)
	require.Equal(t, types.Snapshot{"body": "new text"}, rec.DataAfter)
}

func TestRecorder_DuplicateEventsInOneRequestSuppressed(t *testing.T) {
	env := newTestEnv(t)
	ctx := editorContext(http.MethodPost, "/publish")

	published := types.Row{
		"id": 2, "documentId": "doc-1", "name": "Hello", "publishedAt": time.Now(),
	}
	env.store.put(articleUID, published)

	event := types.LifecycleEvent{ModelUID: articleUID, Result: published}
	env.hooks.AfterCreate(ctx, event)
	env.hooks.AfterCreate(ctx, event)

	require.Len(t, env.writer.records, 1)
}

func TestRecorder_SameRowPublishUpdate(t *testing.T) {
	env := newTestEnv(t)
	publishedAt := time.Now().Add(-time.Hour)
	current := types.Row{
		"id": 5, "documentId": "doc-2", "name": "Pricing", "body": "old", "publishedAt": publishedAt,
	}
	env.store.put(articleUID, current)

	url := "/content-manager/collection-types/" + articleUID + "/doc-2/actions/publish"
	ctx := editorContext(http.MethodPut, url)

	env.hooks.BeforeUpdate(ctx, types.LifecycleEvent{
		ModelUID: articleUID,
		Where:    types.Row{"id": 5},
		Data:     types.Row{"body": "new"},
	})

	updated := types.Row{
		"id": 5, "documentId": "doc-2", "name": "Pricing", "body": "new", "publishedAt": time.Now(),
	}
	env.store.put(articleUID, updated)
	env.hooks.AfterUpdate(ctx, types.LifecycleEvent{
		ModelUID: articleUID,
		Result:   updated,
		Data:     types.Row{"body": "new"},
		Where:    types.Row{"id": 5},
	})

	require.Len(t, env.writer.records, 1)
	rec := env.writer.records[0]
	require.Equal(t, types.ActionUpdate, rec.Action)
	require.Equal(t, []string{"body"}, rec.ChangedFields)
	require.Equal(t, types.Snapshot{"body": "old"}, rec.DataBefore)
	require.Equal(t, types.Snapshot{"body": "new"}, rec.DataAfter)
}

func TestRecorder_DraftToDraftUpdateNotLogged(t *testing.T) {
	env := newTestEnv(t)
	draft := types.Row{"id": 1, "documentId": "doc-1", "name": "Hello", "body": "v1", "publishedAt": nil}
	env.store.put(articleUID, draft)

	ctx := editorContext(http.MethodPut, "/api/articles/1")
	env.hooks.BeforeUpdate(ctx, types.LifecycleEvent{
		ModelUID: articleUID,
		Where:    types.Row{"id": 1},
		Data:     types.Row{"body": "v2"},
	})
	env.hooks.AfterUpdate(ctx, types.LifecycleEvent{
		ModelUID: articleUID,
		Result:   types.Row{"id": 1, "documentId": "doc-1", "name": "Hello", "body": "v2", "publishedAt": nil},
		Data:     types.Row{"body": "v2"},
		Where:    types.Row{"id": 1},
	})

	require.Empty(t, env.writer.records)
}

func TestRecorder_DeleteLogsFullSnapshot(t *testing.T) {
	env := newTestEnv(t)
	row := types.Row{
		"id": 9, "documentId": "doc-9", "name": "Old Post", "body": "bye",
		"publishedAt": time.Now(),
	}
	env.store.put(articleUID, row)

	ctx := editorContext(http.MethodDelete, "/api/articles/9")
	env.hooks.BeforeDelete(ctx, types.LifecycleEvent{
		ModelUID: articleUID,
		Where:    types.Row{"id": 9},
	})
	env.store.remove(articleUID, "9")
	env.hooks.AfterDelete(ctx, types.LifecycleEvent{
		ModelUID: articleUID,
		Result:   row,
		Where:    types.Row{"id": 9},
	})

	require.Len(t, env.writer.records, 1)
	rec := env.writer.records[0]
	require.Equal(t, types.ActionDelete, rec.Action)
	require.Equal(t, "9", rec.EntryID)
	require.Equal(t, "Old Post", rec.EntryName)
	require.Equal(t, types.Snapshot{"name": "Old Post", "body": "bye"}, rec.DataBefore)
	require.Empty(t, rec.ChangedFields)
	require.Empty(t, rec.DataAfter)
}

func TestRecorder_DeleteAfterPublishCycleUsesLogHistory(t *testing.T) {
	// sibling rows are destroyed before afterCreate fires; the log history
	// still proves a prior publish, so the event is an update.
	env := newTestEnv(t)
	env.writer.records = append(env.writer.records, types.OperationRecord{
		Action:    types.ActionCreate,
		ModelUID:  articleUID,
		DocKey:    "Hello",
		DataAfter: types.Snapshot{"name": "Hello", "body": "logged"},
	})

	replacement := types.Row{
		"id": 7, "documentId": "doc-1", "name": "Hello", "body": "fresh",
		"publishedAt": time.Now(),
	}
	env.store.put(articleUID, replacement)
	env.hooks.AfterCreate(editorContext(http.MethodPost, "/publish"), types.LifecycleEvent{
		ModelUID: articleUID,
		Result:   replacement,
	})

	require.Len(t, env.writer.records, 2)
	rec := env.writer.records[1]
	require.Equal(t, types.ActionUpdate, rec.Action)
	require.Equal(t, []string{"body"}, rec.ChangedFields)
	require.Equal(t, types.Snapshot{"body": "logged"}, rec.DataBefore)
}

func TestRecorder_UnwatchedModelIgnored(t *testing.T) {
	env := newTestEnv(t)

	env.hooks.AfterCreate(editorContext(http.MethodPost, "/api/widgets"), types.LifecycleEvent{
		ModelUID: "api::widget.widget",
		Result:   types.Row{"id": 1, "name": "Widget", "publishedAt": time.Now()},
	})
	env.hooks.AfterDelete(editorContext(http.MethodDelete, "/api/widgets/1"), types.LifecycleEvent{
		ModelUID: "api::widget.widget",
		Result:   types.Row{"id": 1, "name": "Widget"},
	})

	require.Empty(t, env.writer.records)
}

func TestRecorder_NonDraftPublishCreate(t *testing.T) {
	env := newTestEnv(t)

	env.hooks.AfterCreate(editorContext(http.MethodPost, "/api/tags"), types.LifecycleEvent{
		ModelUID: "api::tag.tag",
		Result:   types.Row{"id": 11, "name": "golang"},
	})

	require.Len(t, env.writer.records, 1)
	rec := env.writer.records[0]
	require.Equal(t, types.ActionCreate, rec.Action)
	require.Equal(t, "golang", rec.DocKey)
	require.Equal(t, types.Snapshot{"name": "golang"}, rec.DataAfter)
}

func TestRecorder_WriterFailureIsContained(t *testing.T) {
	env := newTestEnv(t)
	rec, err := New(Config{
		Baseline:     mustResolver(t, env.store, env.writer),
		Writer:       failingWriter{},
		ContentTypes: types.StaticContentTypes{articleUID: {Name: "Article", DraftAndPublish: true}},
		Store:        env.store,
	})
	require.NoError(t, err)

	hooks := rec.Hooks()
	require.NotPanics(t, func() {
		hooks.AfterCreate(editorContext(http.MethodPost, "/publish"), types.LifecycleEvent{
			ModelUID: articleUID,
			Result:   types.Row{"id": 1, "name": "Hello", "publishedAt": time.Now()},
		})
	})
}

type failingWriter struct{}

func (failingWriter) Execute(ctx context.Context, input command.LogOperationInput) error {
	return context.DeadlineExceeded
}

func mustResolver(t *testing.T, store types.EntityStore, history baseline.History) *baseline.Resolver {
	t.Helper()
	r, err := baseline.New(baseline.Config{Store: store, History: history})
	require.NoError(t, err)
	return r
}
