// Package catalog holds the immutable, ordered recipe catalog. Declaration
// order is preserved and used by the matcher as the ranking tie-break.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/crimson-sun/wastenot/internal/model"
)

//go:embed default.yaml
var defaultYAML []byte

// Catalog is an ordered, read-only collection of recipes. Safe for
// concurrent use.
type Catalog struct {
	recipes []model.Recipe
	byName  map[string]int
}

// New builds a Catalog from recipes in the given order. Recipe names must be
// unique and every recipe needs at least one ingredient tag.
func New(recipes []model.Recipe) (*Catalog, error) {
	c := &Catalog{
		recipes: make([]model.Recipe, 0, len(recipes)),
		byName:  make(map[string]int, len(recipes)),
	}
	for i, r := range recipes {
		if r.Name == "" {
			return nil, fmt.Errorf("catalog: recipe %d has no name", i)
		}
		if r.Tags.Empty() {
			return nil, fmt.Errorf("catalog: recipe %q has no ingredient tags", r.Name)
		}
		if _, dup := c.byName[r.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate recipe %q", r.Name)
		}
		c.byName[r.Name] = len(c.recipes)
		c.recipes = append(c.recipes, r.Clone())
	}
	return c, nil
}

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(defaultYAML))
}

// LoadFile reads a YAML catalog from path.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes a YAML catalog document.
func Load(r io.Reader) (*Catalog, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("catalog: empty document")
		}
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}

	recipes := make([]model.Recipe, 0, len(doc.Recipes))
	for i, entry := range doc.Recipes {
		r, err := entry.recipe()
		if err != nil {
			return nil, fmt.Errorf("catalog: recipe %d: %w", i, err)
		}
		recipes = append(recipes, r)
	}
	return New(recipes)
}

// Len returns the number of recipes.
func (c *Catalog) Len() int { return len(c.recipes) }

// Recipes returns copies of the recipes in declaration order.
func (c *Catalog) Recipes() []model.Recipe {
	out := make([]model.Recipe, len(c.recipes))
	for i, r := range c.recipes {
		out[i] = r.Clone()
	}
	return out
}

// Each calls fn for every recipe in declaration order without copying. fn
// must not modify the recipe.
func (c *Catalog) Each(fn func(i int, r *model.Recipe)) {
	for i := range c.recipes {
		fn(i, &c.recipes[i])
	}
}

// Lookup returns the recipe with the given name.
func (c *Catalog) Lookup(name string) (model.Recipe, bool) {
	i, ok := c.byName[name]
	if !ok {
		return model.Recipe{}, false
	}
	return c.recipes[i].Clone(), true
}

// document is the on-disk YAML shape.
type document struct {
	Recipes []entry `yaml:"recipes"`
}

type entry struct {
	Name        string    `yaml:"name" validate:"required"`
	Description string    `yaml:"description"`
	Tags        []string  `yaml:"tags" validate:"min=1,dive,required"`
	Image       string    `yaml:"image"`
	Ingredients []string  `yaml:"ingredients" validate:"min=1"`
	Steps       []string  `yaml:"steps" validate:"min=1"`
	Nutrition   yaml.Node `yaml:"nutrition" validate:"-"`
	PrepTime    string    `yaml:"prep_time" validate:"required"`
	Servings    int       `yaml:"servings" validate:"min=1"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (e entry) recipe() (model.Recipe, error) {
	if err := validate.Struct(e); err != nil {
		return model.Recipe{}, fmt.Errorf("%q: %w", e.Name, err)
	}

	var tags model.IngredientSet
	for _, t := range e.Tags {
		ing, err := model.ParseIngredient(t)
		if err != nil {
			return model.Recipe{}, fmt.Errorf("%q: %w", e.Name, err)
		}
		tags = tags.With(ing)
	}

	prep, err := time.ParseDuration(e.PrepTime)
	if err != nil {
		return model.Recipe{}, fmt.Errorf("%q: prep_time: %w", e.Name, err)
	}

	nutrition, err := nutritionFacts(&e.Nutrition)
	if err != nil {
		return model.Recipe{}, fmt.Errorf("%q: %w", e.Name, err)
	}

	return model.Recipe{
		Name:        e.Name,
		Description: e.Description,
		Tags:        tags,
		Ingredients: e.Ingredients,
		Steps:       e.Steps,
		Nutrition:   nutrition,
		PrepTime:    prep,
		Servings:    e.Servings,
		Image:       e.Image,
	}, nil
}

// nutritionFacts walks a YAML mapping node so that key order survives.
func nutritionFacts(n *yaml.Node) ([]model.NutritionFact, error) {
	if n.Kind == 0 {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("nutrition: expected mapping at line %d", n.Line)
	}
	facts := make([]model.NutritionFact, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if k.Kind != yaml.ScalarNode || v.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("nutrition: expected scalar pair at line %d", k.Line)
		}
		facts = append(facts, model.NutritionFact{Key: k.Value, Value: v.Value})
	}
	return facts, nil
}
