package prompt

import (
	"context"
	"fmt"
	"strings"

	"vibegame-backend/internal/history"
	"vibegame-backend/internal/storage"
	"vibegame-backend/pkg/logger"
)

const worldPreamble = `You are an expert Dungeon Master running the Stratford Nexus campaign, a Shakespeare-inspired sci-fantasy adventure where fallen technology has become magic. Your role is to:

1. Create vivid, engaging scenarios that respond to player actions
2. Maintain narrative consistency with the established world
3. Present clear choices and consequences
4. Keep responses concise but descriptive (2-4 sentences)
5. Always end with a question or prompt for the player's next action
6. Be creative with encounters, puzzles, and character interactions
7. Adapt the story based on player decisions

Guidelines:
- Describe scenes with rich sensory details
- Include NPCs with distinct personalities
- Present meaningful choices that impact the story
- Balance whimsical humor with real danger
- Keep the tone adventurous and engaging
- Never break character or mention you're an AI
- Technology often malfunctions into magical effects
- Maintain the Shakespearean elegant speech patterns for important NPCs
`

type WorldOptions struct {
	OverviewLimit int
	MaxCharacters int
	MaxLocations  int
	MaxItems      int
	RecentTurns   int
}

// World injects lore from a storage.Storage into the prompt: the world
// overview plus every entity whose name appears in the recent conversation.
// Any storage failure degrades to the plain Dungeon Master prompt.
type World struct {
	store storage.Storage
	opts  WorldOptions
}

func NewWorld(store storage.Storage, opts WorldOptions) *World {
	if opts.OverviewLimit <= 0 {
		opts.OverviewLimit = 1500
	}
	if opts.RecentTurns <= 0 {
		opts.RecentTurns = 6
	}
	return &World{store: store, opts: opts}
}

func (w *World) Build(ctx context.Context, turns []history.Turn) string {
	overview, err := w.store.Overview()
	if err != nil {
		logger.Warnf("world overview unavailable, using default prompt: %v", err)
		return DungeonMaster
	}

	var b strings.Builder
	b.WriteString(worldPreamble)
	fmt.Fprintf(&b, "\n<world_context>\n%s\n</world_context>\n", truncateRunes(overview, w.opts.OverviewLimit))

	detected, err := w.Detect(turns)
	if err != nil {
		logger.Warnf("entity index unavailable: %v", err)
		return b.String()
	}

	for _, ref := range detected {
		if ctx.Err() != nil {
			break
		}
		e, err := w.store.GetEntity(ref.Kind, ref.ID)
		if err != nil {
			logger.Debugf("skipping entity %s/%s: %v", ref.Kind, ref.ID, err)
			continue
		}
		writeEntity(&b, e)
	}
	return b.String()
}

// Detect returns the entities mentioned in the latest user utterance or the
// recent turns, characters first, each kind bounded by its limit.
func (w *World) Detect(turns []history.Turn) ([]storage.Entity, error) {
	index, err := w.store.Entities()
	if err != nil {
		return nil, err
	}

	recent := turns
	if len(recent) > w.opts.RecentTurns {
		recent = recent[len(recent)-w.opts.RecentTurns:]
	}
	parts := []string{strings.ToLower(history.LastUserContent(turns))}
	for _, t := range recent {
		parts = append(parts, strings.ToLower(t.Content))
	}
	text := strings.Join(parts, " ")

	limits := map[storage.EntityKind]int{
		storage.KindCharacter: w.opts.MaxCharacters,
		storage.KindLocation:  w.opts.MaxLocations,
		storage.KindItem:      w.opts.MaxItems,
	}
	var out []storage.Entity
	for _, kind := range []storage.EntityKind{storage.KindCharacter, storage.KindLocation, storage.KindItem} {
		taken := 0
		for _, e := range index {
			if e.Kind != kind || taken >= limits[kind] {
				continue
			}
			if mentions(text, e.Names) {
				out = append(out, e)
				taken++
			}
		}
	}
	return out, nil
}

func mentions(text string, names []string) bool {
	for _, n := range names {
		if n != "" && strings.Contains(text, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

func writeEntity(b *strings.Builder, e *storage.Entity) {
	title := e.Title
	if title == "" {
		title = e.ID
	}
	tag := strings.TrimSuffix(string(e.Kind), "s")
	fmt.Fprintf(b, "\n<%s name=%q>\n%s\n</%s>\n", tag, title, strings.TrimSpace(e.Content), tag)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
