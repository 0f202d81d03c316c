package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/redforge/riskscan/internal/errors"
)

// MemoryStore is an in-memory Store implementation. It is safe for
// concurrent use and is the default backing for tests and the standalone
// CLI mode.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]Document),
	}
}

// Create writes a document, replacing any existing one with the same id.
func (s *MemoryStore) Create(_ context.Context, collection, id string, fields Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]Document)
		s.collections[collection] = docs
	}
	docs[id] = copyDocument(fields)
	return nil
}

// Get retrieves a document by id.
func (s *MemoryStore) Get(_ context.Context, collection, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, errors.ErrDocumentNotFound(collection, id)
	}
	return copyDocument(doc), nil
}

// Update merges fields into an existing document.
func (s *MemoryStore) Update(_ context.Context, collection, id string, fields Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return errors.ErrDocumentNotFound(collection, id)
	}
	for k, v := range copyDocument(fields) {
		doc[k] = v
	}
	return nil
}

// Delete removes a document.
func (s *MemoryStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection][id]; !ok {
		return errors.ErrDocumentNotFound(collection, id)
	}
	delete(s.collections[collection], id)
	return nil
}

// QueryDocuments returns matching documents, ordered and paginated.
func (s *MemoryStore) QueryDocuments(_ context.Context, collection string, q Query) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []Document
	for _, doc := range s.collections[collection] {
		if matchesFilters(doc, q.Filters) {
			results = append(results, copyDocument(doc))
		}
	}

	if q.OrderBy != "" {
		sort.SliceStable(results, func(i, j int) bool {
			a := fieldString(results[i], q.OrderBy)
			b := fieldString(results[j], q.OrderBy)
			if q.Descending {
				return a > b
			}
			return a < b
		})
	}

	if q.Offset > 0 {
		if q.Offset >= len(results) {
			return nil, nil
		}
		results = results[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(results) {
		results = results[:q.Limit]
	}
	return results, nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

func matchesFilters(doc Document, filters []Filter) bool {
	for _, f := range filters {
		value, ok := doc[f.Field]
		if !ok {
			return false
		}
		// Stringified comparison matches the JSONB ->> operator semantics
		// of the Postgres implementation.
		if fmt.Sprint(value) != fmt.Sprint(f.Value) {
			return false
		}
	}
	return true
}

func fieldString(doc Document, field string) string {
	value, ok := doc[field]
	if !ok {
		return ""
	}
	return fmt.Sprint(value)
}

// copyDocument deep-copies a document so nested maps and slices are never
// aliased between the store and callers. Documents hold JSON-representable
// values, matching the Postgres JSONB backend.
func copyDocument(doc Document) Document {
	if raw, err := json.Marshal(doc); err == nil {
		var out Document
		if err := json.Unmarshal(raw, &out); err == nil {
			return out
		}
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
