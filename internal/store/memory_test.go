package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redforge/riskscan/internal/errors"
)

func TestMemoryStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	err := s.Create(ctx, CollectionScans, "scan-1", Document{
		"status": "PENDING",
		"owner":  "user-1",
	})
	require.NoError(t, err)

	doc, err := s.Get(ctx, CollectionScans, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, "PENDING", doc["status"])

	err = s.Update(ctx, CollectionScans, "scan-1", Document{"status": "RUNNING"})
	require.NoError(t, err)

	doc, err = s.Get(ctx, CollectionScans, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, "RUNNING", doc["status"])
	assert.Equal(t, "user-1", doc["owner"], "update should merge, not replace")

	require.NoError(t, s.Delete(ctx, CollectionScans, "scan-1"))

	_, err = s.Get(ctx, CollectionScans, "scan-1")
	assert.True(t, errors.IsNotFound(err))
}

func TestMemoryStoreIsolatesNestedValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	original := Document{
		"status":  "PENDING",
		"options": map[string]interface{}{"ports": "80,443"},
		"targets": []interface{}{"10.0.0.1", "10.0.0.2"},
	}
	require.NoError(t, s.Create(ctx, CollectionScans, "scan-1", original))

	// Mutating the caller's document must not reach the store.
	original["options"].(map[string]interface{})["ports"] = "tampered"
	original["targets"].([]interface{})[0] = "tampered"

	doc, err := s.Get(ctx, CollectionScans, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, "80,443", doc["options"].(map[string]interface{})["ports"])
	assert.Equal(t, "10.0.0.1", doc["targets"].([]interface{})[0])

	// Mutating a fetched document must not corrupt the stored copy.
	doc["options"].(map[string]interface{})["ports"] = "tampered"

	fresh, err := s.Get(ctx, CollectionScans, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, "80,443", fresh["options"].(map[string]interface{})["ports"])
}

func TestMemoryStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, CollectionScans, "missing")
	assert.True(t, errors.IsNotFound(err))

	err = s.Update(ctx, CollectionScans, "missing", Document{"status": "RUNNING"})
	assert.True(t, errors.IsNotFound(err))

	err = s.Delete(ctx, CollectionScans, "missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestMemoryStoreCreateReplaces(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Create(ctx, CollectionScans, "scan-1", Document{"status": "PENDING", "extra": "x"}))
	require.NoError(t, s.Create(ctx, CollectionScans, "scan-1", Document{"status": "RUNNING"}))

	doc, err := s.Get(ctx, CollectionScans, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, "RUNNING", doc["status"])
	assert.NotContains(t, doc, "extra", "create should fully replace the document")
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Create(ctx, CollectionScans, "scan-1", Document{"status": "PENDING"}))

	doc, err := s.Get(ctx, CollectionScans, "scan-1")
	require.NoError(t, err)
	doc["status"] = "mutated"

	fresh, err := s.Get(ctx, CollectionScans, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, "PENDING", fresh["status"])
}

func TestMemoryStoreQuery(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for i := 0; i < 5; i++ {
		status := "COMPLETED"
		if i%2 == 0 {
			status = "FAILED"
		}
		require.NoError(t, s.Create(ctx, CollectionScans, fmt.Sprintf("scan-%d", i), Document{
			"status":     status,
			"owner":      "user-1",
			"created_at": fmt.Sprintf("2026-08-0%dT00:00:00Z", i+1),
		}))
	}
	require.NoError(t, s.Create(ctx, CollectionScans, "other", Document{
		"status": "COMPLETED",
		"owner":  "user-2",
	}))

	t.Run("equality filters", func(t *testing.T) {
		docs, err := s.QueryDocuments(ctx, CollectionScans, Query{
			Filters: []Filter{
				{Field: "owner", Value: "user-1"},
				{Field: "status", Value: "FAILED"},
			},
		})
		require.NoError(t, err)
		assert.Len(t, docs, 3)
	})

	t.Run("order descending with limit and offset", func(t *testing.T) {
		docs, err := s.QueryDocuments(ctx, CollectionScans, Query{
			Filters:    []Filter{{Field: "owner", Value: "user-1"}},
			OrderBy:    "created_at",
			Descending: true,
			Limit:      2,
			Offset:     1,
		})
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "2026-08-04T00:00:00Z", docs[0]["created_at"])
		assert.Equal(t, "2026-08-03T00:00:00Z", docs[1]["created_at"])
	})

	t.Run("offset past end", func(t *testing.T) {
		docs, err := s.QueryDocuments(ctx, CollectionScans, Query{
			Filters: []Filter{{Field: "owner", Value: "user-1"}},
			Offset:  100,
		})
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("empty collection", func(t *testing.T) {
		docs, err := s.QueryDocuments(ctx, "nonexistent", Query{})
		require.NoError(t, err)
		assert.Empty(t, docs)
	})
}
