package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"eatflow-gateway/internal/backend"
	"eatflow-gateway/internal/bucketing"
	"eatflow-gateway/internal/config"
	"eatflow-gateway/internal/models"
	"eatflow-gateway/internal/repository/memory"
	"eatflow-gateway/internal/service"
	"eatflow-gateway/internal/verification"
)

// eatflowAPI fakes the upstream EatFlow API
type eatflowAPI struct {
	mu       sync.Mutex
	signups  []backend.SignupRequest
	recorded []models.Meal
}

func (a *eatflowAPI) routes() http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/users/send-verification-email", func(w http.ResponseWriter, r *http.Request) {
			var body struct{ Email string }
			_ = json.NewDecoder(r.Body).Decode(&body)
			switch body.Email {
			case "unknown@example.com":
				writeJSON(w, http.StatusNotFound, map[string]string{"detail": "no such user"})
				return
			case "relay@example.com":
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "smtp relay down"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"message": "sent"})
		})
		r.Post("/users/verify-email-code", func(w http.ResponseWriter, r *http.Request) {
			var body struct{ Email, Code string }
			_ = json.NewDecoder(r.Body).Decode(&body)
			switch body.Code {
			case "123456":
				writeJSON(w, http.StatusOK, map[string]string{"message": "verified"})
			case "000000":
				writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "code expired"})
			default:
				writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid code"})
			}
		})
		r.Post("/users/find-id", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"id": "eater01"})
		})
		r.Post("/users/signup", func(w http.ResponseWriter, r *http.Request) {
			var body backend.SignupRequest
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.Username == "taken" {
				writeJSON(w, http.StatusBadRequest, map[string]interface{}{
					"detail": []map[string]string{{"msg": "username already exists"}},
				})
				return
			}
			a.mu.Lock()
			a.signups = append(a.signups, body)
			a.mu.Unlock()
			writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
		})
		r.Post("/users/login", func(w http.ResponseWriter, r *http.Request) {
			var body struct{ ID, Password string }
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.Password != "password1" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid credentials"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"access_token": "tok"})
		})

		r.Group(func(r chi.Router) {
			r.Use(func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					if r.Header.Get("Authorization") != "Bearer tok" {
						writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "invalid token"})
						return
					}
					next.ServeHTTP(w, r)
				})
			})
			r.Get("/users/my", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]string{"username": "eater01", "purpose": "diet"})
			})
			r.Get("/users/set-time", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]string{"reset_time": "04:00"})
			})
			r.Get("/meal/history/today", func(w http.ResponseWriter, r *http.Request) {
				a.mu.Lock()
				defer a.mu.Unlock()
				today := []models.TodayMeal{}
				for _, m := range a.recorded {
					if m.Meal == models.MealDinner {
						today = []models.TodayMeal{{EveningList: m.Items, Kcal: 500, Date: "2024-05-01"}}
					}
				}
				writeJSON(w, http.StatusOK, today)
			})
			r.Get("/meal/recommend", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, []models.Meal{{Meal: models.MealLunch, DishName: "salad", Items: []string{"salad"}}})
			})
			r.Put("/meal/history", func(w http.ResponseWriter, r *http.Request) {
				var meal models.Meal
				_ = json.NewDecoder(r.Body).Decode(&meal)
				a.mu.Lock()
				a.recorded = append(a.recorded, meal)
				a.mu.Unlock()
				writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
			})
			r.Put("/users/account", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
			})
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type gateway struct {
	api    *eatflowAPI
	router http.Handler
}

func newGateway(t *testing.T) *gateway {
	t.Helper()
	api := &eatflowAPI{}
	upstream := httptest.NewServer(api.routes())
	t.Cleanup(upstream.Close)

	cfg := config.Default()
	cfg.Verification.TickInterval = 0

	logger := zap.NewNop()
	client := backend.NewClient(upstream.URL+"/api/v1", 2*time.Second)
	registry := verification.NewRegistry(bucketing.NewBucketingManager(4))
	factory := service.NewServiceFactory(cfg, client, registry, nil, memory.NewAuthSessionStore(), logger)
	t.Cleanup(factory.Cleanup)

	handlers := Handlers{
		Verification: NewVerificationHandler(factory.VerificationService(), logger),
		Account:      NewAccountHandler(factory.AccountService(), logger),
		Meal:         NewMealHandler(factory.MealService(), logger),
	}
	router := NewRouter(handlers, factory.AccountService(), RouterOptions{RequestTimeout: 5 * time.Second}, logger)
	return &gateway{api: api, router: router}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func (g *gateway) do(t *testing.T, method, path, session string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.Header.Set("Authorization", "Bearer "+session)
	}
	rec := httptest.NewRecorder()
	g.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Code != http.StatusNoContent {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec.Code, env
}

func decodeSnapshot(t *testing.T, env envelope) verification.Snapshot {
	t.Helper()
	var snap verification.Snapshot
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		t.Fatalf("decode snapshot %s: %v", env.Data, err)
	}
	return snap
}

func (g *gateway) startVerification(t *testing.T, flow string) string {
	t.Helper()
	status, env := g.do(t, http.MethodPost, "/api/v1/verifications", "", map[string]string{"flow": flow})
	if status != http.StatusCreated {
		t.Fatalf("want 201 got %d (%s)", status, env.Message)
	}
	return decodeSnapshot(t, env).ID
}

func (g *gateway) verify(t *testing.T, flow, email string) string {
	t.Helper()
	id := g.startVerification(t, flow)
	if status, env := g.do(t, http.MethodPost, "/api/v1/verifications/"+id+"/code", "", map[string]string{"email": email}); status != http.StatusOK {
		t.Fatalf("request code: want 200 got %d (%s)", status, env.Message)
	}
	if status, env := g.do(t, http.MethodPost, "/api/v1/verifications/"+id+"/verify", "", map[string]string{"code": "123456"}); status != http.StatusOK {
		t.Fatalf("verify: want 200 got %d (%s)", status, env.Message)
	}
	return id
}

func (g *gateway) login(t *testing.T) string {
	t.Helper()
	status, env := g.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"id": "eater01", "password": "password1"})
	if status != http.StatusOK {
		t.Fatalf("login: want 200 got %d (%s)", status, env.Message)
	}
	var out loginResponse
	if err := json.Unmarshal(env.Data, &out); err != nil || out.SessionID == "" {
		t.Fatalf("unexpected login response %s (%v)", env.Data, err)
	}
	return out.SessionID
}

func TestHealth(t *testing.T) {
	g := newGateway(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	g.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "healthy") {
		t.Fatalf("want healthy got %d %s", rec.Code, rec.Body.String())
	}
}

func TestStartVerificationValidation(t *testing.T) {
	g := newGateway(t)
	status, env := g.do(t, http.MethodPost, "/api/v1/verifications", "", map[string]string{"flow": "newsletter"})
	if status != http.StatusBadRequest || !strings.Contains(env.Error, "flow") {
		t.Fatalf("want 400 mentioning flow got %d %q", status, env.Error)
	}
}

func TestVerificationErrorsCarrySnapshot(t *testing.T) {
	g := newGateway(t)
	id := g.startVerification(t, verification.FlowSignup)
	base := "/api/v1/verifications/" + id

	tests := []struct {
		name       string
		path       string
		body       map[string]string
		wantStatus int
		wantKind   verification.Kind
		wantState  verification.Status
	}{
		{"bad email", base + "/code", map[string]string{"email": "not-an-email"}, http.StatusBadRequest, verification.KindInvalidTargetFormat, verification.StatusIdle},
		{"submit before request", base + "/verify", map[string]string{"code": "123456"}, http.StatusConflict, verification.KindInvalidState, verification.StatusIdle},
		{"rejected email", base + "/code", map[string]string{"email": "unknown@example.com"}, http.StatusNotFound, verification.KindRejectedTarget, verification.StatusIdle},
		{"mail relay down", base + "/code", map[string]string{"email": "relay@example.com"}, http.StatusBadGateway, verification.KindNetwork, verification.StatusIdle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := g.do(t, http.MethodPost, tt.path, "", tt.body)
			if status != tt.wantStatus || env.Error != string(tt.wantKind) {
				t.Fatalf("want %d/%s got %d/%s", tt.wantStatus, tt.wantKind, status, env.Error)
			}
			for _, leak := range []string{"/users/", "no such user", "smtp relay"} {
				if strings.Contains(env.Message, leak) {
					t.Fatalf("upstream detail %q leaked into message %q", leak, env.Message)
				}
			}
			if snap := decodeSnapshot(t, env); snap.Status != tt.wantState {
				t.Fatalf("want %s got %s", tt.wantState, snap.Status)
			}
		})
	}
}

func TestVerificationCodeFlow(t *testing.T) {
	g := newGateway(t)
	id := g.startVerification(t, verification.FlowFindID)
	base := "/api/v1/verifications/" + id

	status, env := g.do(t, http.MethodPost, base+"/code", "", map[string]string{"email": "User@Example.com"})
	if status != http.StatusOK {
		t.Fatalf("want 200 got %d (%s)", status, env.Message)
	}
	snap := decodeSnapshot(t, env)
	if snap.Status != verification.StatusActive || snap.RemainingSeconds != 180 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if strings.Contains(string(env.Data), "user@example.com") {
		t.Fatalf("raw target leaked: %s", env.Data)
	}

	status, env = g.do(t, http.MethodPost, base+"/verify", "", map[string]string{"code": "999999"})
	if status != http.StatusUnprocessableEntity || env.Error != string(verification.KindCodeMismatch) {
		t.Fatalf("want 422 code_mismatch got %d %s", status, env.Error)
	}
	if snap := decodeSnapshot(t, env); snap.Status != verification.StatusActive {
		t.Fatalf("mismatch must stay active, got %s", snap.Status)
	}

	status, env = g.do(t, http.MethodPost, base+"/verify", "", map[string]string{"code": "  "})
	if status != http.StatusBadRequest || env.Error != string(verification.KindEmptyCode) {
		t.Fatalf("want 400 empty_code got %d %s", status, env.Error)
	}

	status, env = g.do(t, http.MethodPost, base+"/verify", "", map[string]string{"code": "123456"})
	if status != http.StatusOK || decodeSnapshot(t, env).Status != verification.StatusVerified {
		t.Fatalf("want verified got %d %s", status, env.Data)
	}

	status, env = g.do(t, http.MethodPost, "/api/v1/account/find-id", "", map[string]string{"verification_id": id})
	if status != http.StatusOK || !strings.Contains(string(env.Data), "eater01") {
		t.Fatalf("want eater01 got %d %s", status, env.Data)
	}

	// the challenge is consumed
	status, _ = g.do(t, http.MethodGet, base, "", nil)
	if status != http.StatusNotFound {
		t.Fatalf("want 404 got %d", status)
	}
}

func TestExpiredAnswerFromBackend(t *testing.T) {
	g := newGateway(t)
	id := g.startVerification(t, verification.FlowSignup)
	base := "/api/v1/verifications/" + id
	if status, _ := g.do(t, http.MethodPost, base+"/code", "", map[string]string{"email": "user@example.com"}); status != http.StatusOK {
		t.Fatalf("request code: want 200 got %d", status)
	}
	status, env := g.do(t, http.MethodPost, base+"/verify", "", map[string]string{"code": "000000"})
	if status != http.StatusGone || env.Error != string(verification.KindCodeExpired) {
		t.Fatalf("want 410 code_expired got %d %s", status, env.Error)
	}
	snap := decodeSnapshot(t, env)
	if snap.Status != verification.StatusExpired || !snap.CanRequest {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	status, env = g.do(t, http.MethodPost, base+"/reset", "", nil)
	if status != http.StatusOK || decodeSnapshot(t, env).Status != verification.StatusIdle {
		t.Fatalf("want idle after reset got %d %s", status, env.Data)
	}
	if status, _ := g.do(t, http.MethodDelete, base, "", nil); status != http.StatusNoContent {
		t.Fatalf("want 204 got %d", status)
	}
}

func TestSignup(t *testing.T) {
	g := newGateway(t)

	unverified := g.startVerification(t, verification.FlowSignup)
	status, _ := g.do(t, http.MethodPost, "/api/v1/account/signup", "", map[string]string{
		"verification_id": unverified, "username": "eater", "password": "password1", "password_confirm": "password1",
	})
	if status != http.StatusForbidden {
		t.Fatalf("unverified signup: want 403 got %d", status)
	}

	id := g.verify(t, verification.FlowSignup, "new@example.com")
	status, env := g.do(t, http.MethodPost, "/api/v1/account/signup", "", map[string]string{
		"verification_id": id, "username": "taken", "password": "password1", "password_confirm": "password1",
	})
	if status != http.StatusBadRequest || !strings.Contains(env.Error, "username already exists") {
		t.Fatalf("want backend detail got %d %q", status, env.Error)
	}

	status, env = g.do(t, http.MethodPost, "/api/v1/account/signup", "", map[string]string{
		"verification_id": id, "username": "eater", "password": "password1", "password_confirm": "password2",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("mismatch: want 400 got %d (%s)", status, env.Error)
	}

	status, env = g.do(t, http.MethodPost, "/api/v1/account/signup", "", map[string]string{
		"verification_id": id, "username": "eater", "password": "password1", "password_confirm": "password1",
	})
	if status != http.StatusCreated {
		t.Fatalf("want 201 got %d (%s)", status, env.Error)
	}
	if len(g.api.signups) != 1 || g.api.signups[0].Email != "new@example.com" {
		t.Fatalf("unexpected signups: %+v", g.api.signups)
	}
}

func TestProtectedRoutes(t *testing.T) {
	g := newGateway(t)

	if status, _ := g.do(t, http.MethodGet, "/api/v1/meals/dashboard", "", nil); status != http.StatusUnauthorized {
		t.Fatalf("want 401 got %d", status)
	}
	if status, _ := g.do(t, http.MethodGet, "/api/v1/meals/dashboard", "bogus", nil); status != http.StatusUnauthorized {
		t.Fatalf("want 401 got %d", status)
	}
	if status, _ := g.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"id": "eater01", "password": "wrong"}); status != http.StatusUnauthorized {
		t.Fatalf("bad credentials: want 401 got %d", status)
	}

	session := g.login(t)

	status, env := g.do(t, http.MethodGet, "/api/v1/meals/dashboard", session, nil)
	if status != http.StatusOK {
		t.Fatalf("want 200 got %d (%s)", status, env.Error)
	}
	var dash models.Dashboard
	if err := json.Unmarshal(env.Data, &dash); err != nil {
		t.Fatalf("decode dashboard: %v", err)
	}
	if dash.Source != models.DashboardSourceRecommend || dash.ResetTime != "04:00" || dash.Purpose != "diet" {
		t.Fatalf("unexpected dashboard: %+v", dash)
	}

	status, env = g.do(t, http.MethodPut, "/api/v1/meals/history", session, map[string]interface{}{
		"meal": "brunch", "items": []string{"toast"},
	})
	if status != http.StatusBadRequest {
		t.Fatalf("unknown meal: want 400 got %d", status)
	}
	status, env = g.do(t, http.MethodPut, "/api/v1/meals/history", session, map[string]interface{}{
		"meal": "dinner", "items": []string{"bulgogi", "rice"},
	})
	if status != http.StatusOK {
		t.Fatalf("record meal: want 200 got %d (%s)", status, env.Error)
	}
	var cards []models.Meal
	if err := json.Unmarshal(env.Data, &cards); err != nil || len(cards) != 1 || cards[0].DishName != "bulgogi" {
		t.Fatalf("unexpected cards %s (%v)", env.Data, err)
	}

	status, env = g.do(t, http.MethodGet, "/api/v1/meals/dashboard", session, nil)
	if err := json.Unmarshal(env.Data, &dash); status != http.StatusOK || err != nil {
		t.Fatalf("dashboard: %d %v", status, err)
	}
	if dash.Source != models.DashboardSourceHistory || dash.Meals[0].Meal != models.MealDinner {
		t.Fatalf("recorded meal must replace recommendations: %+v", dash)
	}

	if status, _ := g.do(t, http.MethodPut, "/api/v1/account", session, map[string]string{"username": "eater02"}); status != http.StatusOK {
		t.Fatalf("update account: want 200 got %d", status)
	}
	if status, _ := g.do(t, http.MethodPost, "/api/v1/auth/logout", session, nil); status != http.StatusOK {
		t.Fatalf("logout: want 200 got %d", status)
	}
	if status, _ := g.do(t, http.MethodGet, "/api/v1/meals/dashboard", session, nil); status != http.StatusUnauthorized {
		t.Fatalf("after logout: want 401 got %d", status)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"Bearer abc", "abc"},
		{"bearer  abc ", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		if got := bearerToken(req); got != tt.want {
			t.Fatalf("%q: want %q got %q", tt.header, tt.want, got)
		}
	}
}
