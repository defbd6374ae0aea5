package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/Tobikorais/Mealy/internal/events"
	"github.com/Tobikorais/Mealy/internal/middleware"
	"github.com/Tobikorais/Mealy/internal/model"
	"github.com/Tobikorais/Mealy/internal/repository"
	"github.com/Tobikorais/Mealy/internal/service"
)

type stubService struct {
	registerUser *model.User
	registerErr  error

	authUser *model.User
	authErr  error

	mealsResp []model.Meal
	mealsErr  error

	createdMeal   *model.Meal
	createMealErr error
	mealInput     model.MealInput

	deleteErr error

	ordersResp []model.Order
	ordersErr  error

	createdOrder   *model.Order
	createOrderErr error
	orderCustomer  string
	orderInput     model.OrderInput

	statusResp *model.Order
	statusErr  error

	statsResp *model.Stats

	paymentResp *model.PaymentResult
	paymentErr  error
}

func (s *stubService) RegisterUser(ctx context.Context, username, password string, role model.Role) (*model.User, error) {
	return s.registerUser, s.registerErr
}

func (s *stubService) AuthenticateUser(ctx context.Context, username, password string) (*model.User, error) {
	return s.authUser, s.authErr
}

func (s *stubService) ListMeals(ctx context.Context) ([]model.Meal, error) {
	return s.mealsResp, s.mealsErr
}

func (s *stubService) CreateMeal(ctx context.Context, in model.MealInput) (*model.Meal, error) {
	s.mealInput = in
	return s.createdMeal, s.createMealErr
}

func (s *stubService) DeleteMeal(ctx context.Context, id int64) error {
	return s.deleteErr
}

func (s *stubService) ListOrders(ctx context.Context) ([]model.Order, error) {
	return s.ordersResp, s.ordersErr
}

func (s *stubService) ListOrdersByCustomer(ctx context.Context, customerName string) ([]model.Order, error) {
	return s.ordersResp, s.ordersErr
}

func (s *stubService) CreateOrder(ctx context.Context, customerName string, in model.OrderInput) (*model.Order, error) {
	s.orderCustomer = customerName
	s.orderInput = in
	return s.createdOrder, s.createOrderErr
}

func (s *stubService) SetOrderStatus(ctx context.Context, id int64, status string) (*model.Order, error) {
	return s.statusResp, s.statusErr
}

func (s *stubService) Stats(ctx context.Context) (*model.Stats, error) {
	return s.statsResp, nil
}

func (s *stubService) InitiatePayment(ctx context.Context, phone string, amount decimal.Decimal) (*model.PaymentResult, error) {
	return s.paymentResp, s.paymentErr
}

const testSecret = "test-secret"

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware(testSecret)

	return NewHandler(svc, logger, auth, nil, nil)
}

func bearer(t *testing.T, username string, role model.Role) string {
	t.Helper()
	token, err := middleware.NewAuthMiddleware(testSecret).IssueToken(middleware.Principal{Username: username, Role: role})
	require.NoError(t, err)
	return "Bearer " + token
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(body)
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder, key string) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body[key]
}

func TestSignup_Success(t *testing.T) {
	svc := &stubService{registerUser: &model.User{ID: 1, Username: "alice", Role: model.RoleCustomer}}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/signup", jsonBody(t, credentialsRequest{
		Username: "alice",
		Password: "pw",
	}))
	rec := httptest.NewRecorder()

	h.Signup(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}
	require.NotEmpty(t, res.Cookies())

	var body authResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "Signup successful", body.Message)
	assert.Equal(t, model.RoleCustomer, body.Type)
	assert.Equal(t, "alice", body.Username)
}

func TestSignup_PaddedUsernameOwnsItsOrders(t *testing.T) {
	logger := zaptest.NewLogger(t)
	svc := service.NewService(repository.NewMemoryRepository(), nil, nil, logger)
	h := NewHandler(svc, logger, middleware.NewAuthMiddleware(testSecret), nil, nil)
	router := h.SetupRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/signup",
		strings.NewReader(`{"username":" bob ","password":"pw"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var signup authResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&signup))
	assert.Equal(t, "bob", signup.Username)

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(`{"meal":"Pizza","price":12.99}`))
	req.AddCookie(cookies[0])
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var order model.Order
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&order))
	assert.Equal(t, "bob", order.CustomerName)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/orders/customer/bob", nil)
	req.AddCookie(cookies[0])
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var orders []model.Order
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&orders))
	require.Len(t, orders, 1)
	assert.Equal(t, order.ID, orders[0].ID)
}

func TestSignup_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"duplicate", repository.ErrUserExists, http.StatusConflict},
		{"missing field", &service.ValidationError{Field: "password", Message: "Username and password required"}, http.StatusBadRequest},
		{"storage", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &stubService{registerErr: tt.err})

			req := httptest.NewRequest(http.MethodPost, "/api/signup", jsonBody(t, credentialsRequest{Username: "alice"}))
			rec := httptest.NewRecorder()
			h.Signup(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestLogin_UnauthorizedOnError(t *testing.T) {
	svc := &stubService{
		authErr: service.ErrInvalidCredentials,
	}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/auth", jsonBody(t, credentialsRequest{
		Username: "alice",
		Password: "wrong",
	}))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	assert.Equal(t, "Invalid credentials", errorMessage(t, rec, "error"))
}

func TestLogin_RoleMismatch(t *testing.T) {
	svc := &stubService{
		authUser: &model.User{Username: "alice", Role: model.RoleCustomer},
	}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/auth", jsonBody(t, credentialsRequest{
		Username: "alice",
		Password: "pw",
		Type:     "admin",
	}))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestLogin_Success(t *testing.T) {
	svc := &stubService{
		authUser: &model.User{Username: "root", Role: model.RoleAdmin},
	}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/auth", jsonBody(t, credentialsRequest{
		Username: "root",
		Password: "pw",
	}))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	res := rec.Result()
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Len(t, res.Cookies(), 1)
	assert.Equal(t, "auth_token", res.Cookies()[0].Name)

	var body authResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, model.RoleAdmin, body.Type)
}

func TestListMeals_EmptyIsArray(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	rec := httptest.NewRecorder()
	h.ListMeals(rec, httptest.NewRequest(http.MethodGet, "/api/meals", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestCreateMeal_NonNumericPrice(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/meals",
		strings.NewReader(`{"name":"Ugali","description":"Maize","price":"abc"}`))
	rec := httptest.NewRecorder()

	h.CreateMeal(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateMeal_PassesInput(t *testing.T) {
	svc := &stubService{
		createdMeal: &model.Meal{ID: 5, Name: "Ugali", Price: decimal.RequireFromString("3.50")},
	}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/meals",
		strings.NewReader(`{"name":"Ugali","description":"Maize","price":3.5,"cookTime":"15 min"}`))
	rec := httptest.NewRecorder()

	h.CreateMeal(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, svc.mealInput.Price)
	assert.True(t, svc.mealInput.Price.Equal(decimal.RequireFromString("3.5")))
	assert.Equal(t, "15 min", svc.mealInput.CookTime)
	assert.Nil(t, svc.mealInput.Rating)

	var meal model.Meal
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&meal))
	assert.Equal(t, int64(5), meal.ID)
}

func TestCreateOrder_UsesSessionUser(t *testing.T) {
	svc := &stubService{
		createdOrder: &model.Order{ID: 1, CustomerName: "alice", Meal: "Pizza", Status: model.OrderStatusPending},
	}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/orders",
		strings.NewReader(`{"customerName":"mallory","meal":"Pizza","delivery_location":"Westlands"}`))
	req = req.WithContext(middleware.WithPrincipal(req.Context(), middleware.Principal{Username: "alice", Role: model.RoleCustomer}))
	rec := httptest.NewRecorder()

	h.CreateOrder(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "alice", svc.orderCustomer)
	assert.Equal(t, "Westlands", svc.orderInput.Delivery.Location)
	assert.Nil(t, svc.orderInput.Price)
}

func TestSetOrderStatus_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", repository.ErrOrderNotFound, http.StatusNotFound},
		{"unknown status", model.ErrUnknownStatus, http.StatusBadRequest},
		{"terminal", model.ErrInvalidTransition, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &stubService{statusErr: tt.err})
			router := h.SetupRouter()

			req := httptest.NewRequest(http.MethodPut, "/api/orders/7/status", strings.NewReader(`{"status":"cooking"}`))
			req.Header.Set("Authorization", bearer(t, "root", model.RoleAdmin))
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestSetOrderStatus_InvalidID(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPut, "/api/orders/abc/status", strings.NewReader(`{"status":"preparing"}`))
	req.Header.Set("Authorization", bearer(t, "root", model.RoleAdmin))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_AccessControl(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		auth   func(t *testing.T) string
		want   int
	}{
		{
			name:   "order without session",
			method: http.MethodPost,
			path:   "/api/orders",
			body:   `{"meal":"Pizza"}`,
			want:   http.StatusUnauthorized,
		},
		{
			name:   "customer cannot change status",
			method: http.MethodPut,
			path:   "/api/orders/1/status",
			body:   `{"status":"preparing"}`,
			auth:   func(t *testing.T) string { return bearer(t, "alice", model.RoleCustomer) },
			want:   http.StatusForbidden,
		},
		{
			name:   "customer cannot add meals",
			method: http.MethodPost,
			path:   "/api/meals",
			body:   `{"name":"X","description":"Y","price":1}`,
			auth:   func(t *testing.T) string { return bearer(t, "alice", model.RoleCustomer) },
			want:   http.StatusForbidden,
		},
		{
			name:   "customer reads own orders",
			method: http.MethodGet,
			path:   "/api/orders/customer/alice",
			auth:   func(t *testing.T) string { return bearer(t, "alice", model.RoleCustomer) },
			want:   http.StatusOK,
		},
		{
			name:   "customer cannot read foreign orders",
			method: http.MethodGet,
			path:   "/api/orders/customer/bob",
			auth:   func(t *testing.T) string { return bearer(t, "alice", model.RoleCustomer) },
			want:   http.StatusForbidden,
		},
		{
			name:   "admin reads any customer",
			method: http.MethodGet,
			path:   "/api/orders/customer/bob",
			auth:   func(t *testing.T) string { return bearer(t, "root", model.RoleAdmin) },
			want:   http.StatusOK,
		},
		{
			name:   "menu is public",
			method: http.MethodGet,
			path:   "/api/meals",
			want:   http.StatusOK,
		},
		{
			name:   "unknown route",
			method: http.MethodGet,
			path:   "/api/nope",
			want:   http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &stubService{})
			router := h.SetupRouter()

			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.auth != nil {
				req.Header.Set("Authorization", tt.auth(t))
			}
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestDeleteMeal_NoContent(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodDelete, "/api/meals/99", nil)
	req.Header.Set("Authorization", bearer(t, "root", model.RoleAdmin))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestInitiatePayment(t *testing.T) {
	tests := []struct {
		name    string
		svc     *stubService
		want    int
		message string
	}{
		{
			name: "accepted",
			svc: &stubService{paymentResp: &model.PaymentResult{
				Accepted: true, Message: "Success. Request accepted for processing", ResponseCode: "0",
			}},
			want: http.StatusOK,
		},
		{
			name:    "invalid phone",
			svc:     &stubService{paymentErr: &service.ValidationError{Field: "phone", Message: "Invalid phone number"}},
			want:    http.StatusBadRequest,
			message: "Invalid phone number",
		},
		{
			name:    "gateway rejected",
			svc:     &stubService{paymentResp: &model.PaymentResult{Accepted: false, Message: "Invalid PhoneNumber"}},
			want:    http.StatusBadGateway,
			message: "Invalid PhoneNumber",
		},
		{
			name: "disabled",
			svc:  &stubService{paymentErr: service.ErrPaymentsDisabled},
			want: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, tt.svc)

			req := httptest.NewRequest(http.MethodPost, "/api/mpesa/stkpush",
				strings.NewReader(`{"phone":"0712345678","amount":12.99}`))
			rec := httptest.NewRecorder()

			h.InitiatePayment(rec, req)

			require.Equal(t, tt.want, rec.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, errorMessage(t, rec, "errorMessage"))
			}
		})
	}
}

func TestStats_JSONResponse(t *testing.T) {
	svc := &stubService{
		statsResp: &model.Stats{
			Orders:   2,
			Revenue:  decimal.RequireFromString("34.98"),
			ByStatus: map[model.OrderStatus]int{model.OrderStatusPending: 1, model.OrderStatusDelivered: 1},
		},
	}
	h := newTestHandler(t, svc)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"orders":2,"revenue":34.98,"by_status":{"pending":1,"delivered":1}}`, rec.Body.String())
}

func TestOrderEvents_ThroughRouter(t *testing.T) {
	logger := zaptest.NewLogger(t)
	hub := events.NewHub(logger)
	t.Cleanup(hub.Close)

	h := NewHandler(&stubService{}, logger, middleware.NewAuthMiddleware(testSecret), nil, hub)
	srv := httptest.NewServer(h.SetupRouter())
	t.Cleanup(srv.Close)

	header := http.Header{}
	header.Set("Authorization", bearer(t, "alice", model.RoleCustomer))
	header.Set("Accept-Encoding", "gzip")

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/orders/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	hub.Publish(context.Background(), model.OrderEvent{
		Type:  model.OrderEventStatus,
		Order: model.Order{ID: 3, CustomerName: "alice", Status: model.OrderStatusDelivered},
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev model.OrderEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, model.OrderEventStatus, ev.Type)
	assert.Equal(t, int64(3), ev.Order.ID)
}

func TestOrderEvents_RequiresSession(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders/events", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
