package store

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescueradar/rescueradar/internal/types"
)

func TestUpsertSQLArgs(t *testing.T) {
	s := &AnimalStore{}
	a := &types.Animal{
		OrganizationID: 7,
		ExternalID:     "buddy",
		AdoptionURL:    "https://example.org/dogs/buddy",
		Name:           "Buddy",
		Breed:          "Labrador Retriever",
		Properties:     map[string]any{"description": "friendly"},
		Status:         types.StatusAvailable,
		ContentHash:    "abc123",
	}

	q, args := s.UpsertSQL(a)

	require.Len(t, args, 21)
	assert.Equal(t, int64(7), args[0])
	assert.Equal(t, "buddy", args[1])
	assert.Equal(t, "abc123", args[len(args)-1])

	// Placeholders must line up with the arg slice; $21 is the highest.
	assert.Contains(t, q, "$21")
	assert.NotContains(t, q, "$22")
	assert.Contains(t, q, "ON CONFLICT (organization_id, external_id)")
}

func TestUpsertSQLDefaultsNilProperties(t *testing.T) {
	s := &AnimalStore{}
	a := &types.Animal{OrganizationID: 1, ExternalID: "x"}

	_, args := s.UpsertSQL(a)

	props, ok := args[18].(map[string]any)
	require.True(t, ok, "properties arg should be a map, got %T", args[18])
	assert.Empty(t, props)
}

func TestEnrichmentSQL(t *testing.T) {
	s := &AnimalStore{}

	q, args := s.EnrichmentSQL(42, "A gentle boy who loves walks.")

	require.Len(t, args, 2)
	assert.Equal(t, int64(42), args[0])
	assert.Equal(t, "A gentle boy who loves walks.", args[1])
	assert.Contains(t, q, "jsonb_set(properties, '{enriched_description}'")
	assert.Contains(t, q, "WHERE id = $1")
}

func TestImageUpsertSQLArgs(t *testing.T) {
	s := &ImageStore{}
	now := time.Now()
	img := &types.AnimalImage{
		OrganizationID: 3,
		ExternalID:     "buddy",
		ImageURL:       "https://cdn.example.org/buddy.jpg",
		Position:       0,
		ContentType:    "image/jpeg",
		Bytes:          51200,
		Verified:       true,
		CheckedAt:      &now,
	}

	q, args := s.UpsertSQL(img)

	require.Len(t, args, 8)
	assert.Equal(t, "https://cdn.example.org/buddy.jpg", args[2])
	assert.Equal(t, true, args[6])
	assert.Equal(t, &now, args[7])
	assert.Equal(t, 1, strings.Count(q, "ON CONFLICT"))
	assert.Contains(t, q, "(organization_id, external_id, image_url)")
}
