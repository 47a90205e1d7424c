// Package fallback produces in-universe narration when the live model
// cannot answer.
package fallback

import (
	"math/rand/v2"
	"strings"
	"sync"
)

// Reason records why the live pipeline was abandoned.
type Reason string

const (
	ReasonNoCredential      Reason = "no_credential"
	ReasonProviderError     Reason = "provider_error"
	ReasonNetworkError      Reason = "network_error"
	ReasonMalformedResponse Reason = "malformed_response"
)

// Mode mirrors the relay's "mode" response field for a reason.
func (r Reason) Mode() string {
	if r == ReasonNoCredential {
		return "mock"
	}
	return "fallback"
}

var annotations = map[Reason]string{
	ReasonNoCredential:      "*(Note: Using mock responses - no API key configured)*",
	ReasonProviderError:     "*(Note: Using fallback response - API temporarily unavailable)*",
	ReasonNetworkError:      "*(Note: The connection to the Dungeon Master was lost - using a local response)*",
	ReasonMalformedResponse: "*(Note: Received an unreadable reply - using a local response)*",
}

// ServerErrorAnnotation is appended to the narration returned in 500 bodies.
const ServerErrorAnnotation = "*(Note: Server error - using fallback response)*"

// Annotation returns the out-of-character note for r, or "" if none.
func (r Reason) Annotation() string {
	return annotations[r]
}

type category struct {
	name     string
	keywords []string
	line     string
}

// Catalog is a set of keyword categories, checked in order, plus the pool
// used when none of them matches.
type Catalog struct {
	Name       string
	categories []category
	pool       []string
}

// Dungeon is the generic dungeon-crawl catalog.
var Dungeon = &Catalog{
	Name: "dungeon",
	categories: []category{
		{
			name:     "combat",
			keywords: []string{"attack", "fight", "combat"},
			line:     "You draw your weapon and prepare for battle! The creature before you snarls and circles, looking for an opening. Roll for initiative - what's your strategy?",
		},
		{
			name:     "observation",
			keywords: []string{"look", "examine", "search"},
			line:     "As you carefully examine your surroundings, you notice intricate details previously hidden in shadow. Ancient carvings tell a story of heroes past, and you spot something glinting in a nearby alcove. What catches your attention?",
		},
		{
			name:     "movement",
			keywords: []string{"north", "south", "east", "west", "go"},
			line:     "You move cautiously in that direction, your footsteps echoing off the stone walls. The path ahead curves mysteriously, and you hear distant sounds that make your heart race with excitement. What do you do as you continue forward?",
		},
		{
			name:     "dialogue",
			keywords: []string{"talk", "speak", "say"},
			line:     "Your words echo in the chamber, and to your surprise, you hear a response! A mysterious voice seems to come from everywhere and nowhere at once: 'Welcome, brave soul. Your journey has only just begun...' How do you respond?",
		},
	},
	pool: []string{
		"You venture deeper into the dungeon. The torch light flickers across ancient stone walls carved with mysterious runes. Ahead, you hear the distant sound of dripping water and something else... footsteps? What do you do?",
		"A cool breeze carries the scent of adventure from the passage ahead. The shadows dance as your torch illuminates a fork in the path - one way leads up toward distant light, the other down into echoing darkness. Which path calls to you?",
		"Your footsteps echo in the silence as you discover a chamber filled with glittering gems embedded in the walls. But wait - those aren't gems, they're eyes! Dozens of creatures watch you from hidden alcoves. How do you react?",
		"The dungeon floor suddenly gives way beneath your feet! You tumble into a hidden chamber where ancient magic still pulses through crystalline formations. As you dust yourself off, you notice three doorways marked with different symbols. Which one draws your attention?",
		"A wise old sage emerges from the shadows, his beard sparkling with stardust. 'Young adventurer,' he says, 'I sense great potential in you. But first, you must prove your worth.' Will you accept his challenge?",
		"The air shimmers and a magical portal opens before you, revealing glimpses of three different realms: a fiery volcanic landscape, a serene underwater kingdom, and a floating city among the clouds. Which realm calls to your adventurous spirit?",
	},
}

// StratfordNexus matches the lore served by the world-aware prompt.
var StratfordNexus = &Catalog{
	Name: "stratford_nexus",
	categories: []category{
		{
			name:     "technomancy",
			keywords: []string{"prospero", "wizard", "magic"},
			line:     "The air shimmers with technomantic energy, and you sense the presence of Prospero somewhere in the quantum distance. Ancient devices hum with power, waiting for a worthy hand to command them. What magical technology calls to you?",
		},
		{
			name:     "nexus",
			keywords: []string{"globe", "nexus", "station"},
			line:     "The Globe Nexus Station pulses with dramatic energy around you, its memory theaters casting holographic shadows of countless stories. You stand at the crossroads of seven spheres, where every choice echoes across dimensions. Which way does your journey lead?",
		},
		{
			name:     "combat",
			keywords: []string{"attack", "fight", "combat"},
			line:     "Your weapon gleams with nano-circuitry as you prepare for battle! But wait - a nearby comedy circuit glitches, turning your opponent's threatening roar into an operatic aria. Roll for initiative, but beware the whimsical nature of Nexus technology!",
		},
		{
			name:     "chaos",
			keywords: []string{"puck", "sprite", "chaos"},
			line:     "Reality hiccups delightfully around you, and you catch a glimpse of Puck's mischievous grin phasing between dimensions. Probability waves dance through the air, making the impossible suddenly quite likely. What wonderful chaos do you embrace?",
		},
	},
	pool: []string{
		"The quantum threads of the Nexus shimmer before you, reality bending like stage lights in an infinite theater. Ancient technology hums with Shakespearean magic, and you sense great adventures ahead. What draws your attention in this realm where science and poetry have become one?",
		"A malfunction in nearby comedy circuits causes the air itself to sparkle with whimsical energy. You hear distant laughter mixing with the sound of probability cascades, and notice three paths before you - each glowing with different narrative potential. Which path speaks to your adventurous spirit?",
		"The memory banks of this place whisper with echoes of the Bard's greatest works, now transformed into living magic. Holographic butterflies flutter past, trailing stardust that forms into half-remembered sonnets. What would you like to explore in this world where technology dreams of poetry?",
	},
}

// Match reports the line of the first category with a keyword in the
// lower-cased utterance.
func (c *Catalog) Match(utterance string) (string, bool) {
	input := strings.ToLower(utterance)
	for _, cat := range c.categories {
		for _, kw := range cat.keywords {
			if strings.Contains(input, kw) {
				return cat.line, true
			}
		}
	}
	return "", false
}

// CategoryLines returns the fixed line of every category, in priority order.
func (c *Catalog) CategoryLines() []string {
	lines := make([]string, len(c.categories))
	for i, cat := range c.categories {
		lines[i] = cat.line
	}
	return lines
}

func (c *Catalog) DefaultLines() []string {
	return append([]string(nil), c.pool...)
}

// Lines returns every string a Responder over c can produce.
func (c *Catalog) Lines() []string {
	return append(c.CategoryLines(), c.pool...)
}

// Match, CategoryLines, DefaultLines and Lines use the Dungeon catalog.
func Match(utterance string) (string, bool) { return Dungeon.Match(utterance) }
func CategoryLines() []string                { return Dungeon.CategoryLines() }
func DefaultLines() []string                 { return Dungeon.DefaultLines() }
func Lines() []string                        { return Dungeon.Lines() }

// Responder maps utterances to canned narration. The zero value is not
// usable; construct with New, NewWithRand or NewWithCatalog.
type Responder struct {
	mu      sync.Mutex
	rng     *rand.Rand
	catalog *Catalog
}

func New() *Responder {
	return NewWithCatalog(Dungeon, nil)
}

// NewWithRand uses rng for default-pool selection, which makes the output
// reproducible in tests.
func NewWithRand(rng *rand.Rand) *Responder {
	return NewWithCatalog(Dungeon, rng)
}

// NewWithCatalog answers from catalog. A nil rng is seeded randomly.
func NewWithCatalog(catalog *Catalog, rng *rand.Rand) *Responder {
	if catalog == nil {
		catalog = Dungeon
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Responder{rng: rng, catalog: catalog}
}

// Catalog returns the catalog r answers from.
func (r *Responder) Catalog() *Catalog { return r.catalog }

// Respond never fails. It returns the line of the first keyword category
// found in the lower-cased utterance, or a random default line.
func (r *Responder) Respond(utterance string) string {
	if line, ok := r.catalog.Match(utterance); ok {
		return line
	}
	r.mu.Lock()
	i := r.rng.IntN(len(r.catalog.pool))
	r.mu.Unlock()
	return r.catalog.pool[i]
}

// Compose returns narration for utterance, followed by the reason's note as
// a separate paragraph when annotate is set.
func (r *Responder) Compose(utterance string, reason Reason, annotate bool) string {
	text := r.Respond(utterance)
	if !annotate {
		return text
	}
	return Annotate(text, reason.Annotation())
}

// Annotate appends note to narration as its own paragraph.
func Annotate(narration, note string) string {
	if note == "" {
		return narration
	}
	return narration + "\n\n" + note
}

// ServerErrorText is the narration sent with a 500 response.
func ServerErrorText() string {
	return Annotate(Dungeon.pool[0], ServerErrorAnnotation)
}

// Words splits text into pieces that each keep their trailing space, so
// that concatenating the pieces yields text unchanged.
func Words(text string) []string {
	parts := strings.SplitAfter(text, " ")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
