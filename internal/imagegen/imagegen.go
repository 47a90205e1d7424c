// Package imagegen illustrates narration with a generated scene image.
package imagegen

import (
	"context"
	"regexp"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"vibegame-backend/internal/config"
	"vibegame-backend/internal/model"
	"vibegame-backend/internal/utils"
	"vibegame-backend/pkg/logger"
)

const (
	promptPrefix  = "Fantasy RPG scene: "
	promptGeneric = "an epic fantasy adventure scene"
	promptStyle   = ", digital art style, detailed illustration, cinematic lighting, high quality"

	placeholderBase    = "https://via.placeholder.com/1024x1024/4A5568/FFFFFF"
	placeholderGeneric = "Fantasy+Adventure"

	maxPromptElements = 3
)

// Longer alternatives come first so "dark forest" wins over "forest".
var visualPatterns = []*regexp.Regexp{
	regexp.MustCompile(`dark forest|mystical forest|enchanted forest|forest`),
	regexp.MustCompile(`dragons|dragon`),
	regexp.MustCompile(`castle|fortress|tower`),
	regexp.MustCompile(`dungeon|cavern|cave`),
	regexp.MustCompile(`ancient ruins|ruins|temple`),
	regexp.MustCompile(`magical sword|sword|weapon`),
	regexp.MustCompile(`magical glow|mystical light|glowing`),
	regexp.MustCompile(`stone walls|stone pillars|pillars`),
	regexp.MustCompile(`torchlight|torch|firelight`),
	regexp.MustCompile(`runes|mysterious symbols|carvings`),
	regexp.MustCompile(`starry sky|night sky|stars`),
	regexp.MustCompile(`crystalline|crystal|gems`),
	regexp.MustCompile(`magical portal|portal`),
	regexp.MustCompile(`wizard|sage|mage`),
	regexp.MustCompile(`creature|monster|beast`),
	regexp.MustCompile(`treasure|gold|jewels`),
	regexp.MustCompile(`mountain|cliff|valley`),
	regexp.MustCompile(`river|stream|waterfall`),
	regexp.MustCompile(`bridge|path|trail`),
}

var placeholderWords = map[string]bool{
	"forest": true, "dragon": true, "castle": true, "dungeon": true,
	"magic": true, "sword": true, "adventure": true,
}

// VisualElements returns the scenery words found in text, without
// duplicates, in pattern order.
func VisualElements(text string) []string {
	lower := strings.ToLower(text)
	seen := make(map[string]bool)
	var elements []string
	for _, re := range visualPatterns {
		for _, m := range re.FindAllString(lower, -1) {
			if !seen[m] {
				seen[m] = true
				elements = append(elements, m)
			}
		}
	}
	return elements
}

// BuildPrompt describes the scene in narration and the player's action.
func BuildPrompt(narration, action string) string {
	elements := VisualElements(narration + " " + action)

	var b strings.Builder
	b.WriteString(promptPrefix)
	if len(elements) == 0 {
		b.WriteString(promptGeneric)
	} else {
		b.WriteString(strings.Join(elements[:min(len(elements), maxPromptElements)], ", "))
	}
	b.WriteString(promptStyle)
	return b.String()
}

// Placeholder returns a stand-in image captioned with up to two key words
// from prompt.
func Placeholder(prompt string) *model.Image {
	var words []string
	for _, w := range strings.Fields(strings.ReplaceAll(prompt, ",", " ")) {
		if placeholderWords[strings.ToLower(w)] {
			words = append(words, w)
			if len(words) == 2 {
				break
			}
		}
	}
	text := placeholderGeneric
	if len(words) > 0 {
		text = strings.Join(words, "+")
	}

	return &model.Image{
		URL:           placeholderBase + "?text=" + text,
		Prompt:        prompt,
		RevisedPrompt: prompt,
	}
}

// Generator calls the OpenAI images API. A Generator without an API key
// only returns placeholders.
type Generator struct {
	client  *openai.Client
	model   string
	size    string
	quality string
}

func New(cfg config.ImageConfig) *Generator {
	g := &Generator{
		model:   cfg.Model,
		size:    cfg.Size,
		quality: cfg.Quality,
	}
	if cfg.APIKey == "" {
		logger.Info("No image API key configured, scene images will be placeholders")
		return g
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = utils.NewHTTPClient(cfg.Timeout, false)
	g.client = openai.NewClientWithConfig(clientConfig)
	return g
}

// Generate illustrates narration. Failures degrade to a placeholder; nil
// means the API answered without an image.
func (g *Generator) Generate(ctx context.Context, narration, action string) *model.Image {
	prompt := BuildPrompt(narration, action)
	if g.client == nil {
		return Placeholder(prompt)
	}

	resp, err := g.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          g.model,
		N:              1,
		Size:           g.size,
		Quality:        g.quality,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		logger.WithFields(map[string]any{"model": g.model}).WithError(err).Warn("Image generation failed, using placeholder")
		return Placeholder(prompt)
	}
	if len(resp.Data) == 0 {
		return nil
	}

	return &model.Image{
		URL:           resp.Data[0].URL,
		Prompt:        prompt,
		RevisedPrompt: resp.Data[0].RevisedPrompt,
	}
}
