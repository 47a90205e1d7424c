package prompt

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vibegame-backend/internal/history"
	"vibegame-backend/internal/storage"
)

func newWorldStore() *storage.MemoryStorage {
	return storage.NewMemoryStorage(strings.Repeat("Nexus lore. ", 400),
		storage.Entity{ID: "prospero", Kind: storage.KindCharacter, Title: "Prospero", Names: []string{"prospero", "technomancer"}, Content: "Duke of circuits."},
		storage.Entity{ID: "puck", Kind: storage.KindCharacter, Names: []string{"puck"}, Content: "A sprite."},
		storage.Entity{ID: "hamlet", Kind: storage.KindCharacter, Names: []string{"hamlet"}, Content: "A brooding AI."},
		storage.Entity{ID: "verona", Kind: storage.KindLocation, Names: []string{"verona"}, Content: "City of fates."},
		storage.Entity{ID: "arden", Kind: storage.KindLocation, Names: []string{"arden"}, Content: "Digital forest."},
		storage.Entity{ID: "skull", Kind: storage.KindItem, Names: []string{"skull"}, Content: "Memory skull."},
	)
}

func TestStatic(t *testing.T) {
	assert.Equal(t, DungeonMaster, Static(DungeonMaster).Build(context.Background(), nil))
}

func TestWorldDetectRespectsLimits(t *testing.T) {
	w := NewWorld(newWorldStore(), WorldOptions{MaxCharacters: 2, MaxLocations: 1, MaxItems: 2})

	turns := []history.Turn{
		history.UserTurn("I seek Prospero and Puck and Hamlet in Verona near Arden"),
		history.AssistantTurn("A skull grins at you."),
	}
	got, err := w.Detect(turns)
	require.NoError(t, err)

	var ids []string
	for _, e := range got {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"prospero", "puck", "verona", "skull"}, ids)
}

func TestWorldBuildInjectsContext(t *testing.T) {
	w := NewWorld(newWorldStore(), WorldOptions{OverviewLimit: 100, MaxCharacters: 2, MaxLocations: 1, MaxItems: 2})

	out := w.Build(context.Background(), []history.Turn{history.UserTurn("Hail, technomancer!")})

	assert.Contains(t, out, "Stratford Nexus campaign")
	assert.Contains(t, out, "<world_context>\n"+strings.Repeat("Nexus lore. ", 400)[:100]+"\n</world_context>")
	assert.Contains(t, out, "<character name=\"Prospero\">\nDuke of circuits.\n</character>")
	assert.NotContains(t, out, "A sprite.")
}

type brokenStore struct{ storage.MemoryStorage }

func (*brokenStore) Overview() (string, error) { return "", storage.ErrFileOperation }

func TestWorldBuildFallsBackToDungeonMaster(t *testing.T) {
	w := NewWorld(&brokenStore{}, WorldOptions{})
	assert.Equal(t, DungeonMaster, w.Build(context.Background(), nil))
}
