package model

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"

	"golang.org/x/text/cases"
)

// UnknownLabel is the resolved label reported for a classification whose
// confidence fell below the threshold. It is never an Ingredient.
const UnknownLabel = "unknown"

// Ingredient is one entry of the closed ingredient vocabulary. The zero value
// is not a valid ingredient.
type Ingredient uint8

// Vocabulary entries, in model output index order.
const (
	Bread Ingredient = iota + 1
	Cheese
	Egg
	Onion
	Potato
	Rice
	Tomato
)

var ingredientNames = [...]string{
	Bread:  "bread",
	Cheese: "cheese",
	Egg:    "egg",
	Onion:  "onion",
	Potato: "potato",
	Rice:   "rice",
	Tomato: "tomato",
}

// Vocabulary lists every ingredient in model output index order.
var Vocabulary = []Ingredient{Bread, Cheese, Egg, Onion, Potato, Rice, Tomato}

// ErrUnknownIngredient is returned when a label is not in the vocabulary.
var ErrUnknownIngredient = errors.New("unknown ingredient")

// ParseIngredient maps a label to its Ingredient. Matching is
// case-insensitive and ignores surrounding whitespace. "unknown" is rejected.
func ParseIngredient(s string) (Ingredient, error) {
	key := cases.Fold().String(strings.TrimSpace(s))
	for _, ing := range Vocabulary {
		if ingredientNames[ing] == key {
			return ing, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownIngredient, s)
}

// Valid reports whether i is a member of the vocabulary.
func (i Ingredient) Valid() bool {
	return i >= Bread && i <= Tomato
}

func (i Ingredient) String() string {
	if !i.Valid() {
		return fmt.Sprintf("Ingredient(%d)", uint8(i))
	}
	return ingredientNames[i]
}

// MarshalText implements encoding.TextMarshaler.
func (i Ingredient) MarshalText() ([]byte, error) {
	if !i.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownIngredient, uint8(i))
	}
	return []byte(ingredientNames[i]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *Ingredient) UnmarshalText(b []byte) error {
	v, err := ParseIngredient(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

// IngredientSet is an immutable set of ingredients. The zero value is the
// empty set. Invalid ingredients are never members.
type IngredientSet uint16

// NewIngredientSet returns the set containing the given ingredients.
func NewIngredientSet(ings ...Ingredient) IngredientSet {
	var s IngredientSet
	for _, ing := range ings {
		s = s.With(ing)
	}
	return s
}

// With returns s with ing added. Invalid ingredients are ignored.
func (s IngredientSet) With(ing Ingredient) IngredientSet {
	if !ing.Valid() {
		return s
	}
	return s | 1<<ing
}

// Has reports whether ing is a member of s.
func (s IngredientSet) Has(ing Ingredient) bool {
	return ing.Valid() && s&(1<<ing) != 0
}

// Union returns the set of ingredients in s or o.
func (s IngredientSet) Union(o IngredientSet) IngredientSet { return s | o }

// Intersect returns the set of ingredients in both s and o.
func (s IngredientSet) Intersect(o IngredientSet) IngredientSet { return s & o }

// Len returns the number of members.
func (s IngredientSet) Len() int { return bits.OnesCount16(uint16(s)) }

// Empty reports whether s has no members.
func (s IngredientSet) Empty() bool { return s == 0 }

// Ingredients returns the members in vocabulary order.
func (s IngredientSet) Ingredients() []Ingredient {
	out := make([]Ingredient, 0, s.Len())
	for _, ing := range Vocabulary {
		if s.Has(ing) {
			out = append(out, ing)
		}
	}
	return out
}

// Names returns the member labels in vocabulary order.
func (s IngredientSet) Names() []string {
	out := make([]string, 0, s.Len())
	for _, ing := range s.Ingredients() {
		out = append(out, ing.String())
	}
	return out
}

func (s IngredientSet) String() string {
	return "{" + strings.Join(s.Names(), ", ") + "}"
}
