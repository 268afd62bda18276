// Package memory is an in-process country store for demos and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/surrealdb/migrator/contrib/countries/models"
	"github.com/surrealdb/migrator/contrib/countries/store"
)

// Store implements store.Store on a map. It is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	countries map[int64]models.Country
	nextID    int64
	generate  bool
	now       func() time.Time
}

var _ store.Store = (*Store)(nil)

type Option func(*Store)

// WithGeneratedIDs makes the store assign sequential IDs to countries
// created without one, as a relational source does.
func WithGeneratedIDs() Option {
	return func(s *Store) {
		s.generate = true
	}
}

// WithClock replaces time.Now for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		countries: make(map[int64]models.Country),
		nextID:    1,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Migrate(context.Context) error { return nil }
func (s *Store) Close() error { return nil }

func (s *Store) GetCountry(_ context.Context, id int64) (*models.Country, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.countries[id]
	if !ok {
		return nil, store.NotFound(id)
	}
	return &c, nil
}

func (s *Store) ListCountries(context.Context) ([]models.Country, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]models.Country, 0, len(s.countries))
	for _, c := range s.countries {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (s *Store) CreateCountry(_ context.Context, c *models.Country) (*models.Country, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == 0 {
		if !s.generate {
			return nil, fmt.Errorf("memory: country %s has no id", c.Code)
		}
		c.ID = s.nextID
	}
	if _, ok := s.countries[c.ID]; ok {
		return nil, fmt.Errorf("memory: country %d already exists", c.ID)
	}
	for _, other := range s.countries {
		if other.Code == c.Code {
			return nil, fmt.Errorf("memory: country code %s already exists", c.Code)
		}
	}
	if c.ID >= s.nextID {
		s.nextID = c.ID + 1
	}
	c.UpdatedAt = s.now()
	s.countries[c.ID] = *c
	out := *c
	return &out, nil
}

func (s *Store) UpdateCountry(_ context.Context, id int64, p models.Patch) (*models.Country, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.countries[id]
	if !ok {
		return nil, store.NotFound(id)
	}
	p.Apply(&c)
	c.UpdatedAt = s.now()
	s.countries[id] = c
	return &c, nil
}

func (s *Store) DeleteCountry(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.countries[id]; !ok {
		return store.NotFound(id)
	}
	delete(s.countries, id)
	return nil
}

// Len returns the number of stored countries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.countries)
}
