package postgres

import (
	"reflect"
	"testing"

	"github.com/fdg312/meal-calendar/internal/storage"
)

func TestBuildDishWhere(t *testing.T) {
	t.Run("no filters", func(t *testing.T) {
		where, args := buildDishWhere(storage.DishFilter{Limit: 15})
		if where != "" || len(args) != 0 {
			t.Errorf("expected empty clause, got %q %v", where, args)
		}
	})

	t.Run("all filters", func(t *testing.T) {
		where, args := buildDishWhere(storage.DishFilter{
			Query:       " Curry ",
			Cuisine:     storage.CuisineJapanese,
			Ingredients: []storage.Ingredient{storage.IngredientRice, storage.IngredientChicken},
			Preferences: []storage.FamilyMember{storage.MemberCherry},
		})
		want := "WHERE LOWER(name) LIKE $1 AND cuisine = $2 AND ingredients @> $3::text[] AND preferences @> $4::text[]"
		if where != want {
			t.Errorf("where:\n got %s\nwant %s", where, want)
		}
		wantArgs := []any{"%curry%", "japanese", []string{"rice", "chicken"}, []string{"cherry"}}
		if !reflect.DeepEqual(args, wantArgs) {
			t.Errorf("args: got %#v, want %#v", args, wantArgs)
		}
	})
}
