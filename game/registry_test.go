package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrySharedInstance(t *testing.T) {
	registry := NewRegistry()
	match := NewMatch(7, 1, []*Player{
		{UserID: 1, ParticipantID: 10},
		{UserID: 2, ParticipantID: 11},
	})

	registry.Register("conn-a", match)
	registry.Register("conn-b", match)

	gotA, ok := registry.ByConnection("conn-a")
	require.True(t, ok)
	gotB, ok := registry.ByConnection("conn-b")
	require.True(t, ok)

	assert.Same(t, match, gotA)
	assert.Same(t, match, gotB)
	assert.ElementsMatch(t, []string{"conn-a", "conn-b"}, registry.Connections(7))
}

func TestRegistryUnknownConnection(t *testing.T) {
	registry := NewRegistry()

	_, ok := registry.ByConnection("nope")
	assert.False(t, ok)
	assert.Empty(t, registry.Connections(42))
}

func TestRegistryRemoveMatchPurgesEverything(t *testing.T) {
	registry := NewRegistry()
	match := NewMatch(3, 1, []*Player{{UserID: 1}, {UserID: 2}})
	registry.Register("conn-a", match)
	registry.Register("conn-b", match)

	removed := registry.RemoveMatch(3)
	assert.ElementsMatch(t, []string{"conn-a", "conn-b"}, removed)

	_, ok := registry.ByConnection("conn-a")
	assert.False(t, ok)
	_, ok = registry.ByConnection("conn-b")
	assert.False(t, ok)
	assert.Empty(t, registry.Connections(3))
}

func TestRegistryRemoveMatchIdempotent(t *testing.T) {
	registry := NewRegistry()
	match := NewMatch(3, 1, []*Player{{UserID: 1}})
	registry.Register("conn-a", match)

	require.Len(t, registry.RemoveMatch(3), 1)
	assert.Empty(t, registry.RemoveMatch(3))
	assert.Empty(t, registry.RemoveMatch(999))
}

func TestRegistryRebindReplacesPreviousEntry(t *testing.T) {
	registry := NewRegistry()
	first := NewMatch(1, 1, []*Player{{UserID: 1}})
	second := NewMatch(2, 2, []*Player{{UserID: 1}})

	registry.Register("conn-a", first)
	registry.Register("conn-a", second)

	got, ok := registry.ByConnection("conn-a")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Empty(t, registry.Connections(1))
	assert.ElementsMatch(t, []string{"conn-a"}, registry.Connections(2))
}
