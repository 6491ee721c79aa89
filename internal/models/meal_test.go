package models

import "testing"

func TestTodayMealCards(t *testing.T) {
	today := TodayMeal{
		MorningList: []string{"oatmeal", "banana"},
		EveningList: []string{"salmon"},
	}
	cards := today.Cards()
	if len(cards) != 2 {
		t.Fatalf("want 2 cards got %d", len(cards))
	}
	if cards[0].Meal != MealBreakfast || cards[0].DishName != "oatmeal" || len(cards[0].Items) != 2 {
		t.Fatalf("unexpected breakfast card: %+v", cards[0])
	}
	if cards[1].Meal != MealDinner || cards[1].DishName != "salmon" {
		t.Fatalf("unexpected dinner card: %+v", cards[1])
	}
	if len(TodayMeal{}.Cards()) != 0 {
		t.Fatalf("empty history should yield no cards")
	}
}

func TestNormalizeMealSlot(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Breakfast", MealBreakfast, true},
		{" lunch ", MealLunch, true},
		{"저녁", MealDinner, true},
		{"brunch", "", false},
	}
	for _, tc := range tests {
		got, ok := NormalizeMealSlot(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("NormalizeMealSlot(%q) want (%q,%v) got (%q,%v)", tc.in, tc.want, tc.ok, got, ok)
		}
	}
}
