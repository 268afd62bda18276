// Package migratord runs the country catalogue behind a migration facade as
// an HTTP service, with admin endpoints to move the migration between phases.
package migratord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/surrealdb/migrator"
	"github.com/surrealdb/migrator/contrib/countries/service"
	"github.com/surrealdb/migrator/contrib/countries/store"
	"github.com/surrealdb/migrator/contrib/countries/store/memory"
	"github.com/surrealdb/migrator/contrib/countries/store/postgres"
	"github.com/surrealdb/migrator/contrib/countries/store/sqlite"
	"github.com/surrealdb/migrator/contrib/countries/store/surrealdb"
	"github.com/surrealdb/migrator/contrib/eventstream"
	"github.com/surrealdb/migrator/internal/retry"
	"github.com/surrealdb/migrator/pkg/decision"
	"github.com/surrealdb/migrator/pkg/events"
	"github.com/surrealdb/migrator/pkg/events/promsink"
	"github.com/surrealdb/migrator/pkg/logger"
	"github.com/surrealdb/migrator/pkg/properties"
)

// App holds the running service.
type App struct {
	conf     Config
	log      logger.Logger
	source   store.Store
	dest     store.Store
	facade   *migrator.Facade
	service  *service.Service
	phase    *decision.PhaseProvider
	hub      *eventstream.Hub
	registry *prometheus.Registry
}

// New connects both stores, creating their schema, and builds the facade.
func New(ctx context.Context, conf Config, log logger.Logger) (*App, error) {
	source, err := connect(ctx, conf.Source, "source", true, log)
	if err != nil {
		return nil, err
	}
	dest, err := connect(ctx, conf.Destination, "destination", false, log)
	if err != nil {
		_ = source.Close()
		return nil, err
	}

	app, err := NewWithStores(conf, log, source, dest)
	if err != nil {
		_ = source.Close()
		_ = dest.Close()
		return nil, err
	}
	return app, nil
}

// NewWithStores builds the facade over already connected stores.
func NewWithStores(conf Config, log logger.Logger, source, dest store.Store) (*App, error) {
	if conf.Properties == nil {
		conf.Properties = properties.Empty()
	}
	app := &App{
		conf:     conf,
		log:      log,
		source:   source,
		dest:     dest,
		hub:      eventstream.NewHub(eventstream.WithLogger(log)),
		registry: prometheus.NewRegistry(),
	}
	app.registry.MustRegister(collectors.NewGoCollector())

	metrics, err := promsink.New(app.registry, "migrator")
	if err != nil {
		return nil, err
	}

	opts := []migrator.Option{
		migrator.WithProperties(conf.Properties),
		migrator.WithPoolSize(conf.PoolSize),
		migrator.WithLogger(log),
		migrator.WithSink(events.Multi(events.NewLogSink(log), metrics, app.hub)),
	}
	switch conf.Decision {
	case DecideFlags:
		opts = append(opts, migrator.WithDecisionProvider(
			decision.NewFlagProvider(decision.PropertyFlags(conf.Properties, "flags"))))
	default:
		initial, err := decision.ParsePhase(conf.Phase)
		if err != nil {
			return nil, err
		}
		phase, err := decision.NewPhaseProvider(initial)
		if err != nil {
			return nil, err
		}
		phase.Observe(app.hub.PhaseObserver())
		phase.Observe(func(from, to decision.Phase) {
			log.Info("migration phase changed", "from", from, "to", to)
		})
		app.phase = phase
		opts = append(opts, migrator.WithDecisionProvider(phase))
	}
	if conf.DestinationWinsFrom != "" {
		from, err := decision.ParsePhase(conf.DestinationWinsFrom)
		if err != nil {
			return nil, err
		}
		opts = append(opts, migrator.WithTieBreak(migrator.DestinationWinsFrom(from)))
	}

	f, err := migrator.New(service.Component, opts...)
	if err != nil {
		return nil, err
	}
	svc, err := service.New(f, source, dest)
	if err != nil {
		return nil, err
	}
	app.facade = f
	app.service = svc
	return app, nil
}

// Phase returns the phase provider, or nil when flags decide.
func (a *App) Phase() *decision.PhaseProvider {
	return a.phase
}

func (a *App) Service() *service.Service {
	return a.service
}

// Close drains in-flight destination calls, disconnects event stream
// clients and closes both stores.
func (a *App) Close(ctx context.Context) error {
	return errors.Join(
		a.facade.Close(ctx),
		a.hub.Close(ctx),
		a.source.Close(),
		a.dest.Close(),
	)
}

func connect(ctx context.Context, conf StoreConfig, role string, generatesIDs bool, log logger.Logger) (store.Store, error) {
	var s store.Store
	err := retry.Do(ctx, clock.WallClock, retry.NewBackoff(), log, "connect "+role, func(ctx context.Context) error {
		var err error
		s, err = open(ctx, conf, generatesIDs)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", role, err)
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%s: migrate: %w", role, err)
	}
	log.Info("store ready", "role", role, "kind", conf.Kind)
	return s, nil
}

func open(ctx context.Context, conf StoreConfig, generatesIDs bool) (store.Store, error) {
	switch conf.Kind {
	case KindPostgres:
		return postgres.Open(ctx, conf.DSN, postgres.Config{
			MaxOpenConns:    conf.MaxConns,
			MaxIdleConns:    conf.MaxConns,
			ConnMaxLifetime: 30 * time.Minute,
		})
	case KindSQLite:
		return sqlite.Open(conf.Path)
	case KindSurrealDB:
		return surrealdb.Open(ctx, surrealdb.Config{
			URL:       conf.URL,
			Namespace: conf.Namespace,
			Database:  conf.Database,
			Username:  conf.Username,
			Password:  conf.Password,
		})
	case KindMemory:
		if generatesIDs {
			return memory.New(memory.WithGeneratedIDs()), nil
		}
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported store kind %q", conf.Kind)
	}
}
