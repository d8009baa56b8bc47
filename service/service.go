// Package service assembles the audit engine: classifier, baseline resolver,
// dedup guard, recorder, and the command/query facades.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-masker"
	"github.com/goliatone/go-oplog/baseline"
	"github.com/goliatone/go-oplog/classifier"
	"github.com/goliatone/go-oplog/command"
	"github.com/goliatone/go-oplog/dedup"
	"github.com/goliatone/go-oplog/entry"
	"github.com/goliatone/go-oplog/pkg/types"
	"github.com/goliatone/go-oplog/query"
	"github.com/goliatone/go-oplog/recorder"
)

// Service is the entry point for go-oplog. It wires the entity store,
// log storage, registries, and hooks supplied by the host application.
type Service struct {
	cfg      Config
	commands Commands
	queries  Queries
	recorder *recorder.Recorder
	repo     types.OperationRepository
	attached bool
}

// Commands exposes the service command handlers.
type Commands struct {
	LogOperation *command.LogOperationCommand
	Restore      *command.RestoreCommand
}

// Queries exposes read-model helpers.
type Queries struct {
	OperationFeed   *query.OperationFeedQuery
	OperationStats  *query.OperationStatsQuery
	OperationDetail *query.OperationDetailQuery
}

// Config captures all required dependencies so callers can provide their own
// instances (bun.DB-backed repositories, hooks, cached decorators, etc.).
type Config struct {
	// Store is the host content store the engine observes and restores into.
	Store types.EntityStore
	// Sink receives operation records. Usually an *entry.Repository.
	Sink types.OperationSink
	// Operations serves the read side. Defaults to Sink when it implements
	// the repository interface.
	Operations   types.OperationRepository
	ContentTypes types.ContentTypeRegistry
	// WatchModels lists the model UIDs to audit. Defaults to every UID the
	// registry is seeded with when it is a StaticContentTypes map.
	WatchModels []string
	Hooks       types.Hooks
	Clock       types.Clock
	IDGenerator types.IDGenerator
	Logger      types.Logger
	Masker      *masker.Masker
	// DedupTTL is the cross-request duplicate suppression window.
	DedupTTL time.Duration
	// DedupMaxEntries bounds the suppression map before eviction kicks in.
	DedupMaxEntries int
	// RestoreSecret gates the restore command. Empty disables the check.
	RestoreSecret string
}

// New constructs a Service from the supplied configuration.
func New(cfg Config) (*Service, error) {
	norm := normalizeConfig(cfg)
	if norm.Store == nil {
		return nil, types.ErrMissingEntityStore
	}
	if norm.Sink == nil {
		return nil, types.ErrMissingOperationSink
	}
	if norm.ContentTypes == nil {
		return nil, types.ErrMissingContentTypes
	}

	repo := norm.Operations
	if repo == nil {
		if cast, ok := norm.Sink.(types.OperationRepository); ok {
			repo = cast
		}
	}
	if repo == nil {
		return nil, types.ErrMissingOperationRepository
	}

	s := &Service{
		cfg:  norm,
		repo: repo,
	}
	s.commands = s.buildCommands()
	s.queries = s.buildQueries()

	resolver, err := baseline.New(baseline.Config{
		Store:   norm.Store,
		History: repo,
		Logger:  norm.Logger,
	})
	if err != nil {
		return nil, err
	}
	rec, err := recorder.New(recorder.Config{
		Classifier:   classifier.New(classifier.Config{ContentTypes: norm.ContentTypes, Logger: norm.Logger}),
		Baseline:     resolver,
		Guard:        dedup.New(dedup.Config{TTL: norm.DedupTTL, MaxEntries: norm.DedupMaxEntries, Clock: norm.Clock}),
		Writer:       s.commands.LogOperation,
		ContentTypes: norm.ContentTypes,
		Store:        norm.Store,
		Clock:        norm.Clock,
		Logger:       norm.Logger,
		WatchModels:  norm.WatchModels,
	})
	if err != nil {
		return nil, err
	}
	s.recorder = rec
	return s, nil
}

func normalizeConfig(cfg Config) Config {
	if cfg.Clock == nil {
		cfg.Clock = types.SystemClock{}
	}
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = types.UUIDGenerator{}
	}
	if cfg.Logger == nil {
		cfg.Logger = types.NopLogger{}
	}
	if cfg.Masker == nil {
		cfg.Masker = entry.DefaultMasker()
	}
	if len(cfg.WatchModels) == 0 {
		if static, ok := cfg.ContentTypes.(types.StaticContentTypes); ok {
			for uid := range static {
				cfg.WatchModels = append(cfg.WatchModels, uid)
			}
		}
	}
	return cfg
}

// Commands returns the command facade.
func (s *Service) Commands() Commands {
	return s.commands
}

// Queries returns the query facade.
func (s *Service) Queries() Queries {
	return s.queries
}

// Recorder exposes the lifecycle recorder for hosts that wire hooks manually.
func (s *Service) Recorder() *recorder.Recorder {
	return s.recorder
}

// Attach subscribes the recorder to the host's lifecycle events. Call once
// from the composition root.
func (s *Service) Attach(sub types.LifecycleSubscriber) error {
	if s == nil || s.recorder == nil {
		return types.ErrServiceNotReady
	}
	if sub == nil {
		return errors.New("go-oplog: lifecycle subscriber required")
	}
	if s.attached {
		return errors.New("go-oplog: recorder already attached")
	}
	s.recorder.Register(sub)
	s.attached = true
	return nil
}

// Ready reports whether the service has the required dependencies wired in.
func (s *Service) Ready() bool {
	return s != nil &&
		s.cfg.Store != nil &&
		s.cfg.Sink != nil &&
		s.cfg.ContentTypes != nil &&
		s.repo != nil &&
		s.recorder != nil
}

// HealthCheck surfaces missing configuration to upstream transports.
func (s *Service) HealthCheck(ctx context.Context) error {
	if !s.Ready() {
		return types.ErrServiceNotReady
	}
	if s.cfg.Store == nil {
		return types.ErrMissingEntityStore
	}
	if s.cfg.Sink == nil {
		return types.ErrMissingOperationSink
	}
	if s.repo == nil {
		return types.ErrMissingOperationRepository
	}
	if s.cfg.ContentTypes == nil {
		return types.ErrMissingContentTypes
	}
	return nil
}

func (s *Service) buildCommands() Commands {
	return Commands{
		LogOperation: command.NewLogOperationCommand(command.LogOperationConfig{
			Sink:   s.cfg.Sink,
			Hooks:  s.cfg.Hooks,
			Clock:  s.cfg.Clock,
			Masker: s.cfg.Masker,
		}),
		Restore: command.NewRestoreCommand(command.RestoreConfig{
			Operations:   s.repo,
			Store:        s.cfg.Store,
			ContentTypes: s.cfg.ContentTypes,
			Hooks:        s.cfg.Hooks,
			Clock:        s.cfg.Clock,
			Logger:       s.cfg.Logger,
			Secret:       s.cfg.RestoreSecret,
		}),
	}
}

func (s *Service) buildQueries() Queries {
	return Queries{
		OperationFeed:   query.NewOperationFeedQuery(s.repo),
		OperationStats:  query.NewOperationStatsQuery(s.repo),
		OperationDetail: query.NewOperationDetailQuery(s.repo),
	}
}
