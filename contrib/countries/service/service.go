// Package service serves the country catalogue through a migration facade
// over a source and a destination store.
package service

import (
	"context"

	"github.com/surrealdb/migrator"
	"github.com/surrealdb/migrator/contrib/countries/models"
	"github.com/surrealdb/migrator/contrib/countries/store"
	"github.com/surrealdb/migrator/pkg/consistency"
	"github.com/surrealdb/migrator/pkg/idstore"
	"github.com/surrealdb/migrator/pkg/operation"
)

// Component keys the catalogue's timeout properties and flags.
const Component = "CountryFacade"

// Operation names.
const (
	GetCountry    = "GetCountry"
	ListCountries = "ListCountries"
	CreateCountry = "CreateCountry"
	UpdateCountry = "UpdateCountry"
	DeleteCountry = "DeleteCountry"
)

// UpdateArgs are the arguments of UpdateCountry.
type UpdateArgs struct {
	ID    int64
	Patch models.Patch
}

// Service is the catalogue API the host calls. Every method goes through the
// facade.
type Service struct {
	f *migrator.Facade
}

// New registers the catalogue's operations on f.
func New(f *migrator.Facade, source, destination store.Store) (*Service, error) {
	src, dst := handlers{source}, handlers{destination}

	if err := migrator.Register(f, GetCountry,
		migrator.OperationSpec{Kind: operation.Read, Mode: operation.Parallel},
		src.get, dst.get); err != nil {
		return nil, err
	}
	if err := migrator.Register(f, ListCountries,
		migrator.OperationSpec{Kind: operation.Read, Mode: operation.Parallel, UnorderedArrays: true},
		src.list, dst.list); err != nil {
		return nil, err
	}
	// The destination does not generate IDs: it waits for the one the
	// source created.
	if err := migrator.Register(f, CreateCountry,
		migrator.OperationSpec{Kind: operation.Write, Mode: operation.Parallel},
		src.createAndHandOff, dst.createWithHandedID); err != nil {
		return nil, err
	}
	// Population is loaded into each store by its own import job.
	if err := migrator.Register(f, UpdateCountry,
		migrator.OperationSpec{
			Kind:   operation.Write,
			Mode:   operation.Serial,
			Fields: consistency.FieldRules{Exclude: []string{"population"}},
		},
		src.update, dst.update); err != nil {
		return nil, err
	}
	if err := migrator.Register(f, DeleteCountry,
		migrator.OperationSpec{Kind: operation.Write, Mode: operation.Serial},
		src.delete, dst.delete); err != nil {
		return nil, err
	}
	return &Service{f: f}, nil
}

func (s *Service) Facade() *migrator.Facade {
	return s.f
}

func (s *Service) Get(ctx context.Context, id int64) (*models.Country, error) {
	return migrator.Invoke[int64, *models.Country](ctx, s.f, GetCountry, id)
}

func (s *Service) List(ctx context.Context) ([]models.Country, error) {
	return migrator.Invoke[struct{}, []models.Country](ctx, s.f, ListCountries, struct{}{})
}

func (s *Service) Create(ctx context.Context, c models.Country) (*models.Country, error) {
	return migrator.Invoke[models.Country, *models.Country](ctx, s.f, CreateCountry, c)
}

func (s *Service) Update(ctx context.Context, id int64, p models.Patch) (*models.Country, error) {
	return migrator.Invoke[UpdateArgs, *models.Country](ctx, s.f, UpdateCountry, UpdateArgs{ID: id, Patch: p})
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	_, err := migrator.Invoke[int64, int64](ctx, s.f, DeleteCountry, id)
	return err
}

// handlers adapts one store to the facade's handler signatures.
type handlers struct {
	store store.Store
}

func (h handlers) get(ctx context.Context, id int64) (*models.Country, error) {
	return h.store.GetCountry(ctx, id)
}

func (h handlers) list(ctx context.Context, _ struct{}) ([]models.Country, error) {
	return h.store.ListCountries(ctx)
}

func (h handlers) createAndHandOff(ctx context.Context, c models.Country) (*models.Country, error) {
	created, err := h.store.CreateCountry(ctx, &c)
	if err != nil {
		return nil, err
	}
	if err := idstore.Push(ctx, created.ID); err != nil {
		return nil, err
	}
	return created, nil
}

func (h handlers) createWithHandedID(ctx context.Context, c models.Country) (*models.Country, error) {
	id, err := idstore.PopAs[int64](ctx)
	if err != nil {
		return nil, err
	}
	c.ID = id
	return h.store.CreateCountry(ctx, &c)
}

func (h handlers) update(ctx context.Context, args UpdateArgs) (*models.Country, error) {
	return h.store.UpdateCountry(ctx, args.ID, args.Patch)
}

func (h handlers) delete(ctx context.Context, id int64) (int64, error) {
	if err := h.store.DeleteCountry(ctx, id); err != nil {
		return 0, err
	}
	return id, nil
}
