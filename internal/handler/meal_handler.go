package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"eatflow-gateway/internal/service"
)

type MealHandler struct {
	responder
	meals *service.MealService
}

func NewMealHandler(meals *service.MealService, logger *zap.Logger) *MealHandler {
	return &MealHandler{
		responder: responder{logger: logger},
		meals:     meals,
	}
}

type recordMealRequest struct {
	Meal     string   `json:"meal" validate:"required,meal_slot"`
	DishName string   `json:"dish_name" validate:"max=100,safe_text"`
	Items    []string `json:"items" validate:"required,min=1,max=20,dive,max=100,safe_text"`
}

// RegisterRoutes expects to be mounted behind RequireSession
func (h *MealHandler) RegisterRoutes(router chi.Router) {
	router.Route("/meals", func(r chi.Router) {
		r.Get("/dashboard", h.Dashboard)
		r.Put("/history", h.RecordMeal)
	})
}

func (h *MealHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := h.meals.Dashboard(r.Context(), authSessionFrom(r.Context()))
	if err != nil {
		h.respondWithError(w, getStatusCode(err), err, "Failed to load dashboard")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(dash, ""))
}

func (h *MealHandler) RecordMeal(w http.ResponseWriter, r *http.Request) {
	var req recordMealRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	cards, err := h.meals.RecordMeal(r.Context(), authSessionFrom(r.Context()), service.RecordMealInput{
		Meal:     req.Meal,
		DishName: req.DishName,
		Items:    req.Items,
	})
	if err != nil {
		h.respondWithError(w, getStatusCode(err), err, "Failed to record meal")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(cards, "Meal recorded"))
}
