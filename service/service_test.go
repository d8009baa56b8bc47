package service

import (
	"context"
	"testing"

	"github.com/goliatone/go-oplog/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type stubStore struct{}

func (stubStore) FindOne(ctx context.Context, modelUID, id string) (types.Row, error) {
	return nil, nil
}

func (stubStore) FindMany(ctx context.Context, modelUID string, q types.FindQuery) ([]types.Row, error) {
	return nil, nil
}

func (stubStore) Create(ctx context.Context, modelUID string, data types.Row) (types.Row, error) {
	return data, nil
}

// stubSink only appends; it does not satisfy OperationRepository.
type stubSink struct{}

func (stubSink) Append(ctx context.Context, record types.OperationRecord) error { return nil }

// stubRepo is a sink that also serves reads, like *entry.Repository does.
type stubRepo struct {
	stubSink
}

func (stubRepo) GetOperation(ctx context.Context, id uuid.UUID) (*types.OperationRecord, error) {
	return nil, nil
}

func (stubRepo) RecentByDocKey(ctx context.Context, modelUID, docKey string, actions []types.Action, limit int) ([]types.OperationRecord, error) {
	return nil, nil
}

func (stubRepo) ListOperations(ctx context.Context, filter types.OperationFilter) (types.OperationPage, error) {
	return types.OperationPage{}, nil
}

func (stubRepo) OperationStats(ctx context.Context, filter types.OperationStatsFilter) (types.OperationStats, error) {
	return types.OperationStats{}, nil
}

type stubSubscriber struct {
	models []string
	hooks  types.LifecycleHooks
	calls  int
}

func (s *stubSubscriber) Subscribe(models []string, hooks types.LifecycleHooks) {
	s.models = models
	s.hooks = hooks
	s.calls++
}

func validConfig() Config {
	return Config{
		Store: stubStore{},
		Sink:  stubRepo{},
		ContentTypes: types.StaticContentTypes{
			"api::article.article": {Name: "Article", DraftAndPublish: true},
		},
	}
}

func TestNew_RequiresStore(t *testing.T) {
	cfg := validConfig()
	cfg.Store = nil
	_, err := New(cfg)
	require.ErrorIs(t, err, types.ErrMissingEntityStore)
}

func TestNew_RequiresSink(t *testing.T) {
	cfg := validConfig()
	cfg.Sink = nil
	_, err := New(cfg)
	require.ErrorIs(t, err, types.ErrMissingOperationSink)
}

func TestNew_RequiresContentTypes(t *testing.T) {
	cfg := validConfig()
	cfg.ContentTypes = nil
	_, err := New(cfg)
	require.ErrorIs(t, err, types.ErrMissingContentTypes)
}

func TestNew_SinkWithoutReadSideNeedsOperations(t *testing.T) {
	cfg := validConfig()
	cfg.Sink = stubSink{}
	_, err := New(cfg)
	require.ErrorIs(t, err, types.ErrMissingOperationRepository)

	cfg.Operations = stubRepo{}
	svc, err := New(cfg)
	require.NoError(t, err)
	require.True(t, svc.Ready())
}

func TestNew_WiresFacades(t *testing.T) {
	svc, err := New(validConfig())
	require.NoError(t, err)

	require.NotNil(t, svc.Commands().LogOperation)
	require.NotNil(t, svc.Commands().Restore)
	require.NotNil(t, svc.Queries().OperationFeed)
	require.NotNil(t, svc.Queries().OperationStats)
	require.NotNil(t, svc.Queries().OperationDetail)
	require.NotNil(t, svc.Recorder())
	require.NoError(t, svc.HealthCheck(context.Background()))
}

func TestWatchModelsDefaultFromRegistry(t *testing.T) {
	svc, err := New(validConfig())
	require.NoError(t, err)
	require.Equal(t, []string{"api::article.article"}, svc.Recorder().Models())
}

func TestAttach(t *testing.T) {
	svc, err := New(validConfig())
	require.NoError(t, err)

	sub := &stubSubscriber{}
	require.NoError(t, svc.Attach(sub))
	require.Equal(t, 1, sub.calls)
	require.Equal(t, []string{"api::article.article"}, sub.models)
	require.NotNil(t, sub.hooks.AfterCreate)
	require.NotNil(t, sub.hooks.AfterDelete)

	require.Error(t, svc.Attach(sub))
}

func TestAttach_NilSubscriber(t *testing.T) {
	svc, err := New(validConfig())
	require.NoError(t, err)
	require.Error(t, svc.Attach(nil))
}

func TestHealthCheck_NotReady(t *testing.T) {
	var svc *Service
	require.ErrorIs(t, svc.HealthCheck(context.Background()), types.ErrServiceNotReady)
}
