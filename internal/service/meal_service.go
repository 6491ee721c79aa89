package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"eatflow-gateway/internal/backend"
	"eatflow-gateway/internal/models"
)

// MealBackend is the meal half of the EatFlow API
type MealBackend interface {
	MyInfo(ctx context.Context, token string) (*backend.UserInfo, error)
	ResetTime(ctx context.Context, token string) (string, error)
	TodayMeals(ctx context.Context, token string) ([]models.TodayMeal, error)
	RecommendMeals(ctx context.Context, token string) ([]models.Meal, error)
	RecordMeal(ctx context.Context, token string, meal models.Meal) error
}

type RecordMealInput struct {
	Meal     string
	DishName string
	Items    []string
}

type MealService struct {
	backend  MealBackend
	accounts *AccountService
	logger   *zap.Logger
}

func NewMealService(b MealBackend, accounts *AccountService, logger *zap.Logger) *MealService {
	return &MealService{backend: b, accounts: accounts, logger: logger}
}

// Dashboard loads the home screen. Today's recorded meals take the place of
// recommendations once any exist.
func (s *MealService) Dashboard(ctx context.Context, auth *models.AuthSession) (*models.Dashboard, error) {
	var (
		info      *backend.UserInfo
		today     []models.TodayMeal
		recommend []models.Meal
		resetTime string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		info, err = s.backend.MyInfo(gctx, auth.AccessToken)
		return err
	})
	g.Go(func() error {
		var err error
		today, err = s.backend.TodayMeals(gctx, auth.AccessToken)
		return err
	})
	g.Go(func() error {
		var err error
		recommend, err = s.backend.RecommendMeals(gctx, auth.AccessToken)
		return err
	})
	g.Go(func() error {
		rt, err := s.backend.ResetTime(gctx, auth.AccessToken)
		if err != nil {
			// the dashboard renders without a reset time
			s.logger.Warn("Failed to fetch reset time", zap.String("user_id", auth.UserID), zap.Error(err))
			return nil
		}
		resetTime = rt
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, s.accounts.dropIfUnauthorized(ctx, auth, err)
	}

	dash := &models.Dashboard{
		Purpose:   info.Purpose,
		ResetTime: resetTime,
		Source:    models.DashboardSourceRecommend,
		Meals:     recommend,
	}
	if len(today) > 0 {
		dash.Kcal = today[0].Kcal
		dash.Date = today[0].Date
		if cards := today[0].Cards(); len(cards) > 0 {
			dash.Source = models.DashboardSourceHistory
			dash.Meals = cards
		}
	}
	if dash.Meals == nil {
		dash.Meals = []models.Meal{}
	}
	return dash, nil
}

// RecordMeal stores a meal and returns today's refreshed cards
func (s *MealService) RecordMeal(ctx context.Context, auth *models.AuthSession, in RecordMealInput) ([]models.Meal, error) {
	meal, err := normalizeMeal(in)
	if err != nil {
		return nil, err
	}
	if err := s.backend.RecordMeal(ctx, auth.AccessToken, meal); err != nil {
		return nil, s.accounts.dropIfUnauthorized(ctx, auth, err)
	}
	s.logger.Info("Meal recorded",
		zap.String("user_id", auth.UserID),
		zap.String("meal", meal.Meal),
		zap.Int("items", len(meal.Items)))

	today, err := s.backend.TodayMeals(ctx, auth.AccessToken)
	if err != nil {
		s.logger.Warn("Failed to refresh today's meals", zap.Error(err))
		return []models.Meal{meal}, nil
	}
	if len(today) == 0 {
		return []models.Meal{meal}, nil
	}
	return today[0].Cards(), nil
}

func normalizeMeal(in RecordMealInput) (models.Meal, error) {
	label, ok := models.NormalizeMealSlot(in.Meal)
	if !ok {
		return models.Meal{}, fmt.Errorf("%w: unknown meal %q", ErrInvalidInput, in.Meal)
	}
	items := make([]string, 0, len(in.Items))
	for _, item := range in.Items {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return models.Meal{}, fmt.Errorf("%w: at least one item is required", ErrInvalidInput)
	}
	dish := strings.TrimSpace(in.DishName)
	if dish == "" {
		dish = items[0]
	}
	return models.Meal{Meal: label, DishName: dish, Items: items}, nil
}
