package backend

import (
	"context"
	"net/http"

	"eatflow-gateway/internal/models"
)

func (c *Client) TodayMeals(ctx context.Context, token string) ([]models.TodayMeal, error) {
	var out []models.TodayMeal
	if err := c.do(ctx, http.MethodGet, "/meal/history/today", token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RecommendMeals(ctx context.Context, token string) ([]models.Meal, error) {
	var out []models.Meal
	if err := c.do(ctx, http.MethodGet, "/meal/recommend", token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RecordMeal stores what was actually eaten for a meal slot
func (c *Client) RecordMeal(ctx context.Context, token string, meal models.Meal) error {
	return c.do(ctx, http.MethodPut, "/meal/history", token, meal, nil)
}
