package models

import (
	"strings"
)

// Meal slots as labelled by the backend
const (
	MealBreakfast = "아침"
	MealLunch     = "점심"
	MealDinner    = "저녁"
)

var mealAliases = map[string]string{
	"breakfast":   MealBreakfast,
	"morning":     MealBreakfast,
	MealBreakfast: MealBreakfast,
	"lunch":       MealLunch,
	"afternoon":   MealLunch,
	MealLunch:     MealLunch,
	"dinner":      MealDinner,
	"evening":     MealDinner,
	MealDinner:    MealDinner,
}

// NormalizeMealSlot maps English or backend labels to the backend label
func NormalizeMealSlot(slot string) (string, bool) {
	label, ok := mealAliases[strings.ToLower(strings.TrimSpace(slot))]
	return label, ok
}

// Meal is one meal card: a recommendation or a recorded meal
type Meal struct {
	Meal     string   `json:"meal"`
	DishName string   `json:"dish_name"`
	Items    []string `json:"items"`
}

// TodayMeal is the backend's record of what was eaten today
type TodayMeal struct {
	MorningList   []string `json:"morning_list"`
	AfternoonList []string `json:"afternoon_list"`
	EveningList   []string `json:"evening_list"`
	Kcal          float64  `json:"kcal"`
	Date          string   `json:"date"`
}

// Cards turns today's history into meal cards, first item as dish name
func (t TodayMeal) Cards() []Meal {
	var cards []Meal
	for _, slot := range []struct {
		label string
		items []string
	}{
		{MealBreakfast, t.MorningList},
		{MealLunch, t.AfternoonList},
		{MealDinner, t.EveningList},
	} {
		if len(slot.items) == 0 {
			continue
		}
		cards = append(cards, Meal{Meal: slot.label, DishName: slot.items[0], Items: slot.items})
	}
	return cards
}

// Dashboard is everything the home screen renders
type Dashboard struct {
	Purpose   string  `json:"purpose"`
	ResetTime string  `json:"reset_time,omitempty"`
	Source    string  `json:"source"`
	Meals     []Meal  `json:"meals"`
	Kcal      float64 `json:"kcal,omitempty"`
	Date      string  `json:"date,omitempty"`
}

const (
	DashboardSourceHistory   = "history"
	DashboardSourceRecommend = "recommend"
)
