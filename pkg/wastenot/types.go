package wastenot

import (
	"time"

	"github.com/crimson-sun/wastenot/internal/engine/matcher"
	"github.com/crimson-sun/wastenot/internal/model"
)

// Unknown is the label of a prediction below the confidence threshold.
const Unknown = model.UnknownLabel

// Image is one photo to classify.
type Image struct {
	Name string
	Data []byte
}

// Prediction is the classification of one image.
type Prediction struct {
	Name       string  `json:"name"`
	Ingredient string  `json:"ingredient"` // vocabulary label or "unknown"
	Confidence float64 `json:"confidence"`
	Known      bool    `json:"known"`
	// Err is set when the image could not be classified.
	Err error `json:"-"`
}

// Recipe is a catalog recipe.
type Recipe struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Tags        []string        `json:"tags"`
	Ingredients []string        `json:"ingredients"`
	Steps       []string        `json:"steps"`
	Nutrition   []NutritionFact `json:"nutrition,omitempty"`
	PrepTime    time.Duration   `json:"prep_time"`
	Servings    int             `json:"servings"`
	Image       string          `json:"image,omitempty"`
}

// NutritionFact is one nutrition entry, e.g. {"Calories", "260 kcal"}.
type NutritionFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Match is a recommended recipe with the number of detected ingredients it uses.
type Match struct {
	Score  int    `json:"score"`
	Recipe Recipe `json:"recipe"`
}

// Recommendation is the result for a batch of images.
type Recommendation struct {
	Predictions []Prediction `json:"predictions"`
	Detected    []string     `json:"detected"`
	Recipes     []Match      `json:"recipes"`
}

func predictionFrom(name string, res model.ClassificationResult) Prediction {
	return Prediction{
		Name:       name,
		Ingredient: res.Resolved(),
		Confidence: res.Confidence(),
		Known:      res.IsKnown(),
	}
}

func recipeFrom(r model.Recipe) Recipe {
	out := Recipe{
		Name:        r.Name,
		Description: r.Description,
		Tags:        r.Tags.Names(),
		Ingredients: append([]string(nil), r.Ingredients...),
		Steps:       append([]string(nil), r.Steps...),
		PrepTime:    r.PrepTime,
		Servings:    r.Servings,
		Image:       r.Image,
	}
	for _, f := range r.Nutrition {
		out.Nutrition = append(out.Nutrition, NutritionFact{Name: f.Key, Value: f.Value})
	}
	return out
}

func matchesFrom(results []matcher.Result) []Match {
	out := make([]Match, len(results))
	for i, res := range results {
		out[i] = Match{Score: res.Score, Recipe: recipeFrom(res.Recipe)}
	}
	return out
}
