package api

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/crimson-sun/wastenot/internal/engine/matcher"
	"github.com/crimson-sun/wastenot/internal/model"
)

// DefaultPlaceholder is shown for recipes whose image file is missing.
const DefaultPlaceholder = "https://via.placeholder.com/320x200?text=Image+Unavailable"

// RenderOptions controls how recipes are turned into cards.
type RenderOptions struct {
	// ImageDir is searched for recipe image files. Empty means no local
	// images; every card gets the placeholder.
	ImageDir string
	// ImageURLPrefix is prepended to the escaped image file name.
	ImageURLPrefix string
	Placeholder    string

	IncludeSteps     bool
	IncludeNutrition bool
}

// DefaultRenderOptions renders full cards with images under dir.
func DefaultRenderOptions(dir string) RenderOptions {
	return RenderOptions{
		ImageDir:         dir,
		ImageURLPrefix:   "/recipe-images/",
		Placeholder:      DefaultPlaceholder,
		IncludeSteps:     true,
		IncludeNutrition: true,
	}
}

// RecipeCard is the JSON shape of one recipe.
type RecipeCard struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Image       string          `json:"image"`
	Tags        []string        `json:"tags"`
	Ingredients []string        `json:"ingredients"`
	Steps       []string        `json:"steps,omitempty"`
	Nutrition   []NutritionItem `json:"nutrition,omitempty"`
	PrepMinutes int             `json:"prep_minutes,omitempty"`
	Servings    int             `json:"servings,omitempty"`
	Score       int             `json:"score,omitempty"`
}

// NutritionItem keeps nutrition facts ordered in JSON.
type NutritionItem struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Card renders one recipe.
func (o RenderOptions) Card(r model.Recipe) RecipeCard {
	c := RecipeCard{
		Name:        r.Name,
		Description: r.Description,
		Image:       o.imageURL(r.Image),
		Tags:        r.Tags.Names(),
		Ingredients: r.Ingredients,
		PrepMinutes: int(r.PrepTime.Minutes()),
		Servings:    r.Servings,
	}
	if o.IncludeSteps {
		c.Steps = r.Steps
	}
	if o.IncludeNutrition {
		for _, f := range r.Nutrition {
			c.Nutrition = append(c.Nutrition, NutritionItem{Name: f.Key, Value: f.Value})
		}
	}
	return c
}

// Cards renders recipes in order.
func (o RenderOptions) Cards(recipes []model.Recipe) []RecipeCard {
	cards := make([]RecipeCard, len(recipes))
	for i, r := range recipes {
		cards[i] = o.Card(r)
	}
	return cards
}

// Ranked renders match results in rank order, carrying their scores.
func (o RenderOptions) Ranked(results []matcher.Result) []RecipeCard {
	cards := make([]RecipeCard, len(results))
	for i, res := range results {
		cards[i] = o.Card(res.Recipe)
		cards[i].Score = res.Score
	}
	return cards
}

func (o RenderOptions) imageURL(name string) string {
	if name == "" || o.ImageDir == "" {
		return o.Placeholder
	}
	base := filepath.Base(name)
	if info, err := os.Stat(filepath.Join(o.ImageDir, base)); err != nil || info.IsDir() {
		return o.Placeholder
	}
	return strings.TrimSuffix(o.ImageURLPrefix, "/") + "/" + url.PathEscape(base)
}
