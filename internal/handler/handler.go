// Package handler содержит HTTP-обработчики API сервиса заказа обедов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Tobikorais/Mealy/internal/middleware"
	"github.com/Tobikorais/Mealy/internal/model"
	"github.com/Tobikorais/Mealy/internal/repository"
	"github.com/Tobikorais/Mealy/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, username, password string, role model.Role) (*model.User, error)
	AuthenticateUser(ctx context.Context, username, password string) (*model.User, error)
	ListMeals(ctx context.Context) ([]model.Meal, error)
	CreateMeal(ctx context.Context, in model.MealInput) (*model.Meal, error)
	DeleteMeal(ctx context.Context, id int64) error
	ListOrders(ctx context.Context) ([]model.Order, error)
	ListOrdersByCustomer(ctx context.Context, customerName string) ([]model.Order, error)
	CreateOrder(ctx context.Context, customerName string, in model.OrderInput) (*model.Order, error)
	SetOrderStatus(ctx context.Context, id int64, status string) (*model.Order, error)
	Stats(ctx context.Context) (*model.Stats, error)
	InitiatePayment(ctx context.Context, phone string, amount decimal.Decimal) (*model.PaymentResult, error)
}

// EventStream обслуживает подписку на события по заказам.
type EventStream interface {
	ServeWS(w http.ResponseWriter, r *http.Request, username string, role model.Role)
}

// Handler реализует HTTP-обработчики API.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	limiter        *middleware.RateLimiter
	events         EventStream
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов. limiter и events могут быть nil.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, limiter *middleware.RateLimiter, events EventStream) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		limiter:        limiter,
		events:         events,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	if message == "" {
		message = http.StatusText(code)
	}
	writeJSON(w, code, map[string]string{"error": message})
}

// writeServiceError переводит ошибку бизнес-логики в HTTP-ответ.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, op string, fields ...zap.Field) {
	var vErr *service.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, vErr.Message)
	case errors.Is(err, model.ErrUnknownStatus):
		writeError(w, http.StatusBadRequest, "Unknown order status")
	case errors.Is(err, model.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "Delivered orders cannot change status")
	case errors.Is(err, repository.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "Order not found")
	case errors.Is(err, repository.ErrUserExists):
		writeError(w, http.StatusConflict, "Username already exists")
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
	default:
		h.logger.Error(op+" error", append(fields, zap.Error(err))...)
		writeError(w, http.StatusInternalServerError, "")
	}
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Type     string `json:"type,omitempty"`
}

type authResponse struct {
	Message  string     `json:"message,omitempty"`
	Type     model.Role `json:"type"`
	Username string     `json:"username"`
}

// Login проверяет учётные данные и открывает сессию.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password required")
		return
	}

	u, err := h.service.AuthenticateUser(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeServiceError(w, err, "login", zap.String("username", req.Username))
		return
	}

	if req.Type != "" && model.Role(req.Type) != u.Role {
		writeError(w, http.StatusUnauthorized, fmt.Sprintf("Account is not registered as %s", req.Type))
		return
	}

	if err := h.authMiddleware.SetAuthCookie(w, middleware.Principal{Username: u.Username, Role: u.Role}); err != nil {
		h.writeServiceError(w, err, "issue session", zap.String("username", u.Username))
		return
	}

	writeJSON(w, http.StatusOK, authResponse{Type: u.Role, Username: u.Username})
}

// Signup регистрирует учётную запись и открывает сессию.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	u, err := h.service.RegisterUser(r.Context(), req.Username, req.Password, model.ParseRole(req.Type))
	if err != nil {
		h.writeServiceError(w, err, "signup", zap.String("username", req.Username))
		return
	}

	// Сессия выдаётся на имя в том виде, в каком оно сохранено.
	if err := h.authMiddleware.SetAuthCookie(w, middleware.Principal{Username: u.Username, Role: u.Role}); err != nil {
		h.writeServiceError(w, err, "issue session", zap.String("username", u.Username))
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{Message: "Signup successful", Type: u.Role, Username: u.Username})
}

// Logout закрывает сессию.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authMiddleware.ClearAuthCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// ListMeals возвращает меню.
func (h *Handler) ListMeals(w http.ResponseWriter, r *http.Request) {
	meals, err := h.service.ListMeals(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "list meals")
		return
	}
	if meals == nil {
		meals = []model.Meal{}
	}
	writeJSON(w, http.StatusOK, meals)
}

type mealRequest struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Category    string           `json:"category"`
	Rating      *float64         `json:"rating"`
	CookTime    string           `json:"cookTime"`
}

// CreateMeal добавляет позицию меню.
func (h *Handler) CreateMeal(w http.ResponseWriter, r *http.Request) {
	var req mealRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	meal, err := h.service.CreateMeal(r.Context(), model.MealInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Category:    req.Category,
		Rating:      req.Rating,
		CookTime:    req.CookTime,
	})
	if err != nil {
		h.writeServiceError(w, err, "create meal", zap.String("name", req.Name))
		return
	}

	writeJSON(w, http.StatusCreated, meal)
}

// DeleteMeal удаляет позицию меню. Отсутствующая позиция тоже даёт 204.
func (h *Handler) DeleteMeal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid meal id")
		return
	}

	if err := h.service.DeleteMeal(r.Context(), id); err != nil {
		h.writeServiceError(w, err, "delete meal", zap.Int64("mealID", id))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeOrders(w http.ResponseWriter, orders []model.Order) {
	if orders == nil {
		orders = []model.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// ListOrders возвращает все заказы.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "list orders")
		return
	}
	writeOrders(w, orders)
}

// ListCustomerOrders возвращает заказы клиента. Клиент видит только свои заказы.
func (h *Handler) ListCustomerOrders(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "")
		return
	}

	name := chi.URLParam(r, "name")
	if p.Role != model.RoleAdmin && p.Username != name {
		writeError(w, http.StatusForbidden, "")
		return
	}

	orders, err := h.service.ListOrdersByCustomer(r.Context(), name)
	if err != nil {
		h.writeServiceError(w, err, "list customer orders", zap.String("customer", name))
		return
	}
	writeOrders(w, orders)
}

type orderRequest struct {
	Meal                string           `json:"meal"`
	Price               *decimal.Decimal `json:"price"`
	DeliveryDate        string           `json:"delivery_date"`
	DeliveryTime        string           `json:"delivery_time"`
	DeliveryLocation    string           `json:"delivery_location"`
	DeliveryHouseNumber string           `json:"delivery_house_number"`
	DeliveryPhone       string           `json:"delivery_phone"`
	DeliveryNotes       string           `json:"delivery_notes"`
}

// CreateOrder оформляет заказ от имени пользователя текущей сессии.
// Поле customerName из тела запроса игнорируется.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "")
		return
	}

	var req orderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := h.service.CreateOrder(r.Context(), p.Username, model.OrderInput{
		Meal:  req.Meal,
		Price: req.Price,
		Delivery: model.Delivery{
			Date:        req.DeliveryDate,
			Time:        req.DeliveryTime,
			Location:    req.DeliveryLocation,
			HouseNumber: req.DeliveryHouseNumber,
			Phone:       req.DeliveryPhone,
			Notes:       req.DeliveryNotes,
		},
	})
	if err != nil {
		h.writeServiceError(w, err, "create order", zap.String("customer", p.Username))
		return
	}

	writeJSON(w, http.StatusCreated, order)
}

type statusRequest struct {
	Status string `json:"status"`
}

// SetOrderStatus меняет статус заказа.
func (h *Handler) SetOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid order id")
		return
	}

	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := h.service.SetOrderStatus(r.Context(), id, req.Status)
	if err != nil {
		h.writeServiceError(w, err, "set order status", zap.Int64("orderID", id), zap.String("status", req.Status))
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// Stats возвращает сводку по заказам.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.Stats(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "stats")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// OrderEvents подписывает клиента на события по заказам через WebSocket.
func (h *Handler) OrderEvents(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "")
		return
	}
	if h.events == nil {
		writeError(w, http.StatusNotFound, "")
		return
	}
	h.events.ServeWS(w, r, p.Username, p.Role)
}

type paymentRequest struct {
	Phone  string          `json:"phone"`
	Amount decimal.Decimal `json:"amount"`
}

func writePaymentError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"errorMessage": message})
}

// InitiatePayment отправляет запрос на оплату M-Pesa на телефон клиента.
func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decodeBody(r, &req); err != nil {
		writePaymentError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.service.InitiatePayment(r.Context(), req.Phone, req.Amount)
	if err != nil {
		var vErr *service.ValidationError
		switch {
		case errors.As(err, &vErr):
			writePaymentError(w, http.StatusBadRequest, vErr.Message)
		case errors.Is(err, service.ErrPaymentsDisabled):
			writePaymentError(w, http.StatusServiceUnavailable, "Payments are not available")
		default:
			h.logger.Error("initiate payment error", zap.Error(err))
			writePaymentError(w, http.StatusBadGateway, "Payment gateway unavailable")
		}
		return
	}

	if !res.Accepted {
		writePaymentError(w, http.StatusBadGateway, res.Message)
		return
	}

	writeJSON(w, http.StatusOK, res)
}
