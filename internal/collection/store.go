// Package collection owns the per-entity record collections: it fetches them
// from the backend, applies mutations, and re-reads after every change.
package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"shankh-dashboard/internal/metadata"
	"shankh-dashboard/internal/metrics"
)

var ErrUnknownEntity = errors.New("unknown entity")

// fetchConcurrency bounds FetchAll's fan-out.
const fetchConcurrency = 4

// Backend is the subset of the REST client the store needs.
type Backend interface {
	List(ctx context.Context, entity string, envelopeKeys ...string) ([]map[string]any, error)
	Create(ctx context.Context, entity string, record map[string]any) (map[string]any, error)
	Update(ctx context.Context, entity, id string, record map[string]any) (map[string]any, error)
	Delete(ctx context.Context, entity, id string) error
	Import(ctx context.Context, entity string, records []map[string]any) error
}

// Invalidator drops cached lookup data for an entity.
type Invalidator interface {
	Invalidate(entity string)
}

// State is a point-in-time copy of one entity's collection.
type State struct {
	Records   []map[string]any `json:"records"`
	Loading   bool             `json:"loading"`
	Error     string           `json:"error,omitempty"`
	FetchedAt time.Time        `json:"fetched_at,omitzero"`
}

type entityState struct {
	State
	issued uint64 // sequence of the newest fetch started
}

// MutationError is a failed create, update, delete or import.
type MutationError struct {
	Op     string
	Entity string
	Err    error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("Failed to %s %s: %s", e.Op, e.Entity, e.Err.Error())
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

type Store struct {
	backend  Backend
	registry *metadata.Registry
	lookups  Invalidator
	feed     *Feed

	mu     sync.RWMutex
	states map[string]*entityState
}

// NewStore builds a store. lookups may be nil.
func NewStore(backend Backend, reg *metadata.Registry, lookups Invalidator, feed *Feed) *Store {
	if feed == nil {
		feed = NewFeed(DefaultFeedCapacity)
	}
	return &Store{
		backend:  backend,
		registry: reg,
		lookups:  lookups,
		feed:     feed,
		states:   make(map[string]*entityState),
	}
}

func (s *Store) Feed() *Feed {
	return s.feed
}

func (s *Store) entity(name string) (*metadata.Entity, error) {
	e := s.registry.GetEntity(name)
	if e == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, name)
	}
	return e, nil
}

// stateLocked returns the entity's state, creating it. Callers hold s.mu.
func (s *Store) stateLocked(entity string) *entityState {
	st, ok := s.states[entity]
	if !ok {
		st = &entityState{State: State{Records: []map[string]any{}}}
		s.states[entity] = st
	}
	return st
}

// State returns a copy of the entity's collection state.
func (s *Store) State(entity string) State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[entity]
	if !ok {
		return State{Records: []map[string]any{}}
	}
	out := st.State
	out.Records = slices.Clone(st.Records)
	return out
}

// Records returns the entity's cached records.
func (s *Store) Records(entity string) []map[string]any {
	return s.State(entity).Records
}

// Fetch re-reads the entity's collection. Only the newest of overlapping
// fetches for the same entity is applied; older responses are dropped.
func (s *Store) Fetch(ctx context.Context, entity string) error {
	e, err := s.entity(entity)
	if err != nil {
		return err
	}

	s.mu.Lock()
	st := s.stateLocked(entity)
	st.issued++
	seq := st.issued
	st.Loading = true
	st.Error = ""
	s.mu.Unlock()

	records, err := s.backend.List(ctx, e.CollectionPath(), e.EnvelopeKeys...)

	s.mu.Lock()
	if seq != st.issued {
		s.mu.Unlock()
		metrics.StaleResponses.WithLabelValues(entity).Inc()
		slog.DebugContext(ctx, "Dropped stale fetch response", "entity", entity, "seq", seq)
		return nil
	}
	st.Loading = false
	if err != nil {
		st.Error = err.Error()
		s.mu.Unlock()
		s.feed.Push(ctx, LevelError, entity, fmt.Sprintf("Failed to load %s: %s", entity, err.Error()))
		return fmt.Errorf("fetch %s: %w", entity, err)
	}
	if records == nil {
		records = []map[string]any{}
	}
	st.Records = records
	st.FetchedAt = time.Now()
	s.mu.Unlock()
	return nil
}

// FetchAll loads every registered entity concurrently and reports all failures.
func (s *Store) FetchAll(ctx context.Context) error {
	names := s.registry.Names()
	errs := make([]error, len(names))

	var g errgroup.Group
	g.SetLimit(fetchConcurrency)
	for i, name := range names {
		g.Go(func() error {
			errs[i] = s.Fetch(ctx, name)
			return nil
		})
	}
	g.Wait()
	return errors.Join(errs...)
}

func (s *Store) begin(entity string) {
	s.mu.Lock()
	st := s.stateLocked(entity)
	st.Loading = true
	st.Error = ""
	s.mu.Unlock()
}

func (s *Store) fail(ctx context.Context, op, entity string, err error) error {
	merr := &MutationError{Op: op, Entity: entity, Err: err}
	s.mu.Lock()
	st := s.stateLocked(entity)
	st.Loading = false
	st.Error = err.Error()
	s.mu.Unlock()
	metrics.Mutations.WithLabelValues(entity, op, "error").Inc()
	s.feed.Push(ctx, LevelError, entity, merr.Error())
	return merr
}

// succeed invalidates the entity's lookup data, re-reads the collection and
// announces the change.
func (s *Store) succeed(ctx context.Context, op, entity, message string) {
	metrics.Mutations.WithLabelValues(entity, op, "ok").Inc()
	if s.lookups != nil {
		s.lookups.Invalidate(entity)
	}
	if err := s.Fetch(ctx, entity); err != nil {
		slog.WarnContext(ctx, "Refetch after mutation failed", "entity", entity, "op", op, "err", err)
	}
	s.feed.Push(ctx, LevelSuccess, entity, message)
}

// Create adds a record.
func (s *Store) Create(ctx context.Context, entity string, rec map[string]any) error {
	e, err := s.entity(entity)
	if err != nil {
		return err
	}
	s.begin(entity)
	if _, err := s.backend.Create(ctx, e.CollectionPath(), rec); err != nil {
		return s.fail(ctx, "add", entity, err)
	}
	s.succeed(ctx, "add", entity, entity+" added successfully")
	return nil
}

// Update sends changed fields of one record.
func (s *Store) Update(ctx context.Context, entity, id string, rec map[string]any) error {
	e, err := s.entity(entity)
	if err != nil {
		return err
	}
	s.begin(entity)
	if _, err := s.backend.Update(ctx, e.CollectionPath(), id, rec); err != nil {
		return s.fail(ctx, "update", entity, err)
	}
	s.succeed(ctx, "update", entity, entity+" updated successfully")
	return nil
}

func (s *Store) Delete(ctx context.Context, entity, id string) error {
	e, err := s.entity(entity)
	if err != nil {
		return err
	}
	s.begin(entity)
	if err := s.backend.Delete(ctx, e.CollectionPath(), id); err != nil {
		return s.fail(ctx, "delete", entity, err)
	}
	s.succeed(ctx, "delete", entity, entity+" deleted successfully")
	return nil
}

// Import sends a batch of validated records.
func (s *Store) Import(ctx context.Context, entity string, records []map[string]any) error {
	e, err := s.entity(entity)
	if err != nil {
		return err
	}
	s.begin(entity)
	if err := s.backend.Import(ctx, e.CollectionPath(), records); err != nil {
		return s.fail(ctx, "import", entity, err)
	}
	s.succeed(ctx, "import", entity, fmt.Sprintf("%d %s imported successfully", len(records), entity))
	return nil
}
