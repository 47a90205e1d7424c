package fallback

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondMatchesCategories(t *testing.T) {
	lines := CategoryLines()
	tests := []struct {
		utterance string
		want      string
	}{
		{"I attack the goblin", lines[0]},
		{"FIGHT!", lines[0]},
		{"I look around", lines[1]},
		{"search the chest", lines[1]},
		{"head north", lines[2]},
		{"let's go", lines[2]},
		{"I talk to the innkeeper", lines[3]},
		{"say hello", lines[3]},
	}

	r := New()
	for _, tt := range tests {
		t.Run(tt.utterance, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Respond(tt.utterance))
		})
	}
}

func TestRespondPriorityOrder(t *testing.T) {
	r := New()
	// combat outranks observation, movement and dialogue
	assert.Equal(t, CategoryLines()[0], r.Respond("look north and attack while you talk"))
	// observation outranks movement
	assert.Equal(t, CategoryLines()[1], r.Respond("go search"))
}

func TestRespondDefaultPool(t *testing.T) {
	r := NewWithRand(rand.New(rand.NewPCG(1, 2)))
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		line := r.Respond("hmm")
		assert.Contains(t, DefaultLines(), line)
		seen[line] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestRespondDeterministicWithSeed(t *testing.T) {
	a := NewWithRand(rand.New(rand.NewPCG(7, 7)))
	b := NewWithRand(rand.New(rand.NewPCG(7, 7)))
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Respond("..."), b.Respond("..."))
	}
}

func TestComposeAnnotation(t *testing.T) {
	r := New()

	plain := r.Compose("attack", ReasonNoCredential, false)
	assert.Equal(t, CategoryLines()[0], plain)

	noted := r.Compose("attack", ReasonProviderError, true)
	require.True(t, strings.HasPrefix(noted, CategoryLines()[0]+"\n\n"))
	assert.True(t, strings.HasSuffix(noted, "API temporarily unavailable)*"))
}

func TestEveryReasonHasAnnotation(t *testing.T) {
	for _, r := range []Reason{ReasonNoCredential, ReasonProviderError, ReasonNetworkError, ReasonMalformedResponse} {
		assert.NotEmpty(t, r.Annotation(), string(r))
	}
	assert.Equal(t, "mock", ReasonNoCredential.Mode())
	assert.Equal(t, "fallback", ReasonProviderError.Mode())
}

func TestWordsRoundTrip(t *testing.T) {
	for _, text := range append(Lines(), "", "one", "trailing space ", "two  spaces", ServerErrorText()) {
		assert.Equal(t, text, strings.Join(Words(text), ""))
	}

	assert.Equal(t, []string{"You ", "draw ", "steel."}, Words("You draw steel."))
}

func TestStratfordNexusCatalog(t *testing.T) {
	r := NewWithCatalog(StratfordNexus, rand.New(rand.NewPCG(3, 4)))
	lines := StratfordNexus.CategoryLines()
	require.Len(t, lines, 4)

	assert.Equal(t, lines[0], r.Respond("I call on Prospero's MAGIC"))
	assert.Equal(t, lines[1], r.Respond("walk to the station"))
	assert.Equal(t, lines[2], r.Respond("attack the sprite"), "combat outranks chaos")
	assert.Equal(t, lines[3], r.Respond("find puck"))
	assert.Contains(t, r.Respond("attack"), "nano-circuitry")

	for i := 0; i < 50; i++ {
		line := r.Respond("hmm")
		assert.Contains(t, StratfordNexus.DefaultLines(), line)
		assert.NotContains(t, DefaultLines(), line)
	}
}

func TestCatalogDefaults(t *testing.T) {
	assert.Same(t, Dungeon, New().Catalog())
	assert.Same(t, Dungeon, NewWithCatalog(nil, nil).Catalog())
	assert.Equal(t, Dungeon.Lines(), Lines())

	_, ok := StratfordNexus.Match("look north")
	assert.False(t, ok)
	line, ok := Match("look north")
	assert.True(t, ok)
	assert.Equal(t, CategoryLines()[1], line)
}
