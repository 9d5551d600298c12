package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memlayer/internal/extraction"
)

func TestResolvedRelationships_ResolvesWithinOwnChunk(t *testing.T) {
	chunkResults := []extraction.ChunkExtractionResult{
		{
			Status: extraction.StatusSuccess,
			Memories: []extraction.Memory{
				{ID: "m1", Type: extraction.TypeEntity},
				{ID: "m2", Type: extraction.TypeFact},
			},
			Relationships: []extraction.Relationship{
				{FromMemoryID: "temp_0", ToMemoryID: "temp_1", RelationshipType: "works_at", Confidence: 0.8},
			},
		},
		{
			Status: extraction.StatusSuccess,
			Memories: []extraction.Memory{
				{ID: "m3", Type: extraction.TypeEntity},
				{ID: "m4", Type: extraction.TypeFact},
			},
			Relationships: []extraction.Relationship{
				{FromMemoryID: "temp_0", ToMemoryID: "temp_1", RelationshipType: "lives_in", Confidence: 0.6},
			},
		},
	}

	resolved := ResolvedRelationships(chunkResults)
	require.Len(t, resolved, 2)
	assert.Equal(t, "m1", resolved[0].FromMemoryID)
	assert.Equal(t, "m2", resolved[0].ToMemoryID)
	assert.Equal(t, "m3", resolved[1].FromMemoryID)
	assert.Equal(t, "m4", resolved[1].ToMemoryID)
}

func TestResolvedRelationships_SkipsFailedChunks(t *testing.T) {
	chunkResults := []extraction.ChunkExtractionResult{
		{
			Status:        extraction.StatusFailed,
			Memories:      []extraction.Memory{{ID: "m1"}, {ID: "m2"}},
			Relationships: []extraction.Relationship{{FromMemoryID: "temp_0", ToMemoryID: "temp_1"}},
		},
	}
	assert.Empty(t, ResolvedRelationships(chunkResults))
}

func TestResolvedRelationships_DropsOutOfRangeEndpoint(t *testing.T) {
	chunkResults := []extraction.ChunkExtractionResult{
		{
			Status:        extraction.StatusSuccess,
			Memories:      []extraction.Memory{{ID: "m1"}},
			Relationships: []extraction.Relationship{{FromMemoryID: "temp_0", ToMemoryID: "temp_9"}},
		},
	}
	assert.Empty(t, ResolvedRelationships(chunkResults))
}

func TestMergeRelationships_RewritesToCanonicalIDs(t *testing.T) {
	unique := []extraction.Memory{
		{ID: "canonical-1", MergedFrom: []string{"m1", "m2"}},
		{ID: "canonical-2"},
	}
	resolved := []extraction.Relationship{
		{FromMemoryID: "m1", ToMemoryID: "canonical-2", RelationshipType: "related_to", Confidence: 0.5},
	}

	merged := MergeRelationships(unique, resolved)
	require.Len(t, merged, 1)
	assert.Equal(t, "canonical-1", merged[0].FromMemoryID)
	assert.Equal(t, "canonical-2", merged[0].ToMemoryID)
}

func TestMergeRelationships_DropsDanglingEndpoint(t *testing.T) {
	unique := []extraction.Memory{{ID: "canonical-1"}}
	resolved := []extraction.Relationship{
		{FromMemoryID: "canonical-1", ToMemoryID: "gone", RelationshipType: "related_to"},
	}
	assert.Empty(t, MergeRelationships(unique, resolved))
}

func TestMergeRelationships_CollapsesDuplicateKeepingHigherConfidence(t *testing.T) {
	unique := []extraction.Memory{{ID: "a"}, {ID: "b"}}
	resolved := []extraction.Relationship{
		{FromMemoryID: "a", ToMemoryID: "b", RelationshipType: "related_to", Confidence: 0.4},
		{FromMemoryID: "a", ToMemoryID: "b", RelationshipType: "related_to", Confidence: 0.9},
	}

	merged := MergeRelationships(unique, resolved)
	require.Len(t, merged, 1)
	assert.Equal(t, 0.9, merged[0].Confidence)
}

func TestMergeRelationships_PreservesFirstSeenOrder(t *testing.T) {
	unique := []extraction.Memory{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	resolved := []extraction.Relationship{
		{FromMemoryID: "b", ToMemoryID: "c", RelationshipType: "x"},
		{FromMemoryID: "a", ToMemoryID: "b", RelationshipType: "y"},
	}

	merged := MergeRelationships(unique, resolved)
	require.Len(t, merged, 2)
	assert.Equal(t, "b", merged[0].FromMemoryID)
	assert.Equal(t, "a", merged[1].FromMemoryID)
}
