package storage

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidEnum = errors.New("invalid enum value")

// Cuisine is the closed set of cuisines a dish can belong to.
type Cuisine string

const (
	CuisineAsian    Cuisine = "asian"
	CuisineChinese  Cuisine = "chinese"
	CuisineJapanese Cuisine = "japanese"
	CuisineWestern  Cuisine = "western"

	DefaultCuisine = CuisineAsian
)

var Cuisines = []Cuisine{CuisineAsian, CuisineChinese, CuisineJapanese, CuisineWestern}

func (c Cuisine) Valid() bool {
	for _, v := range Cuisines {
		if v == c {
			return true
		}
	}
	return false
}

func ParseCuisine(s string) (Cuisine, error) {
	c := Cuisine(normalize(s))
	if !c.Valid() {
		return "", fmt.Errorf("%w: cuisine %q", ErrInvalidEnum, s)
	}
	return c, nil
}

// Ingredient is a main ingredient tag.
type Ingredient string

const (
	IngredientRedMeat    Ingredient = "red meat"
	IngredientPork       Ingredient = "pork"
	IngredientChicken    Ingredient = "chicken"
	IngredientSeafood    Ingredient = "seafood"
	IngredientEggs       Ingredient = "eggs"
	IngredientBread      Ingredient = "bread"
	IngredientNoodles    Ingredient = "noodles"
	IngredientPasta      Ingredient = "pasta"
	IngredientRice       Ingredient = "rice"
	IngredientSoup       Ingredient = "soup"
	IngredientVegetables Ingredient = "vegetables"
)

var Ingredients = []Ingredient{
	IngredientRedMeat, IngredientPork, IngredientChicken, IngredientSeafood,
	IngredientEggs, IngredientBread, IngredientNoodles, IngredientPasta,
	IngredientRice, IngredientSoup, IngredientVegetables,
}

func (i Ingredient) Valid() bool {
	for _, v := range Ingredients {
		if v == i {
			return true
		}
	}
	return false
}

// ParseIngredients validates and de-duplicates a set of ingredient tags,
// keeping first-seen order.
func ParseIngredients(values []string) ([]Ingredient, error) {
	out := make([]Ingredient, 0, len(values))
	seen := make(map[Ingredient]bool, len(values))
	for _, raw := range values {
		v := Ingredient(normalize(raw))
		if !v.Valid() {
			return nil, fmt.Errorf("%w: ingredient %q", ErrInvalidEnum, raw)
		}
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out, nil
}

// FamilyMember is a household member who likes a dish.
type FamilyMember string

const (
	MemberHubert FamilyMember = "hubert"
	MemberCherry FamilyMember = "cherry"
	MemberHaley  FamilyMember = "haley"
	MemberRyan   FamilyMember = "ryan"
	MemberMeagan FamilyMember = "meagan"
)

var FamilyMembers = []FamilyMember{MemberHubert, MemberCherry, MemberHaley, MemberRyan, MemberMeagan}

func (m FamilyMember) Valid() bool {
	for _, v := range FamilyMembers {
		if v == m {
			return true
		}
	}
	return false
}

func ParsePreferences(values []string) ([]FamilyMember, error) {
	out := make([]FamilyMember, 0, len(values))
	seen := make(map[FamilyMember]bool, len(values))
	for _, raw := range values {
		v := FamilyMember(normalize(raw))
		if !v.Valid() {
			return nil, fmt.Errorf("%w: preference %q", ErrInvalidEnum, raw)
		}
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out, nil
}

// MealType selects one of the two daily slots.
type MealType string

const (
	MealLunch  MealType = "lunch"
	MealDinner MealType = "dinner"
)

var MealTypes = []MealType{MealLunch, MealDinner}

func (m MealType) Valid() bool {
	return m == MealLunch || m == MealDinner
}

// Sibling returns the other slot of the same day.
func (m MealType) Sibling() MealType {
	if m == MealLunch {
		return MealDinner
	}
	return MealLunch
}

func ParseMealType(s string) (MealType, error) {
	m := MealType(normalize(s))
	if !m.Valid() {
		return "", fmt.Errorf("%w: meal %q", ErrInvalidEnum, s)
	}
	return m, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
