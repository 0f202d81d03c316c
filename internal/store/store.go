// Package store provides the document store used to persist scans, host
// results, and schedules. Documents are schemaless field maps addressed by
// collection and id. Two implementations exist: an in-memory store for tests
// and single-process use, and a Postgres JSONB store for production.
package store

import (
	"context"
)

// Document is a schemaless set of named fields persisted as a unit.
type Document map[string]interface{}

// Filter restricts a query to documents whose field equals the given value.
type Filter struct {
	Field string
	Value interface{}
}

// Query describes an equality-filtered, ordered, paginated collection read.
type Query struct {
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
	Offset     int
}

// Store is the persistence boundary for all scan state. Writes follow
// last-writer-wins semantics per document.
type Store interface {
	// Create writes a document, replacing any existing document with the
	// same collection and id.
	Create(ctx context.Context, collection, id string, fields Document) error

	// Get retrieves a document by id. Returns a NOT_FOUND error when the
	// document does not exist.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Update merges the given fields into an existing document. Returns a
	// NOT_FOUND error when the document does not exist.
	Update(ctx context.Context, collection, id string, fields Document) error

	// Delete removes a document. Returns a NOT_FOUND error when the
	// document does not exist.
	Delete(ctx context.Context, collection, id string) error

	// QueryDocuments returns documents from a collection matching the
	// query's equality filters, ordered and paginated as requested.
	QueryDocuments(ctx context.Context, collection string, q Query) ([]Document, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Collections used by the scan orchestration service.
const (
	CollectionScans     = "scans"
	CollectionScanHosts = "scan_hosts"
	CollectionSchedules = "scan_schedules"
)
