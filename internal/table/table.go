// Package table implements the schema-driven record table: search, cell
// rendering, lookup display, validation and the add/edit form lifecycle.
package table

import (
	"context"
	"io"

	"shankh-dashboard/internal/metadata"
)

type Record = map[string]any

// Lookups supplies cached lookup collections.
type Lookups interface {
	Get(ctx context.Context, entity string) []map[string]any
}

// Mutator performs backend writes for the table. On success it is expected
// to refresh the collection.
type Mutator interface {
	Create(ctx context.Context, entity string, rec Record) error
	Update(ctx context.Context, entity, id string, rec Record) error
	Delete(ctx context.Context, entity, id string) error
}

// ImageUploader sends an order's design image once the record exists.
type ImageUploader interface {
	UploadOrderImage(ctx context.Context, orderID, filename string, r io.Reader) error
}

type Table struct {
	entity   *metadata.Entity
	registry *metadata.Registry
	lookups  Lookups
	mutator  Mutator
	images   ImageUploader
}

func New(entity *metadata.Entity, reg *metadata.Registry, lookups Lookups, mutator Mutator) *Table {
	return &Table{entity: entity, registry: reg, lookups: lookups, mutator: mutator}
}

// WithImageUploader enables edit-time image uploads.
func (t *Table) WithImageUploader(u ImageUploader) *Table {
	t.images = u
	return t
}

func (t *Table) Entity() *metadata.Entity {
	return t.entity
}

// Resolve snapshots the lookup collections this table's columns need.
func (t *Table) Resolve(ctx context.Context) *Resolution {
	data := make(map[string][]map[string]any)
	for _, name := range t.neededLookups() {
		data[name] = t.lookups.Get(ctx, name)
	}
	return NewResolution(t.registry, data)
}

// neededLookups includes clients whenever orders are looked up, since an
// order's label embeds its client's name.
func (t *Table) neededLookups() []string {
	names := t.entity.LookupEntities()
	hasOrders, hasClients := false, false
	for _, n := range names {
		hasOrders = hasOrders || n == "client_orders"
		hasClients = hasClients || n == "clients"
	}
	if hasOrders && !hasClients {
		names = append(names, "clients")
	}
	return names
}
