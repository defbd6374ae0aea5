// Package service реализует бизнес-логику сервиса заказа обедов.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Tobikorais/Mealy/internal/model"
	"github.com/Tobikorais/Mealy/internal/mpesa"
	"github.com/Tobikorais/Mealy/internal/repository"
	"github.com/Tobikorais/Mealy/internal/validation"
)

const (
	defaultCategory = "General"
	defaultRating   = 4.5
	defaultCookTime = "20 min"
	displayTime     = "03:04 PM"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, username string, passwordHash []byte, role model.Role) (int64, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	ListMeals(ctx context.Context) ([]model.Meal, error)
	GetMealByName(ctx context.Context, name string) (*model.Meal, error)
	CreateMeal(ctx context.Context, meal model.Meal) (*model.Meal, error)
	DeleteMeal(ctx context.Context, id int64) error
	CreateOrder(ctx context.Context, order model.Order) (*model.Order, error)
	ListOrders(ctx context.Context) ([]model.Order, error)
	ListOrdersByCustomer(ctx context.Context, customerName string) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus) (*model.Order, bool, error)
}

// PaymentGateway отправляет запрос на оплату на телефон клиента.
type PaymentGateway interface {
	STKPush(ctx context.Context, phone string, amount int64, reference, description string) (*mpesa.STKPushResponse, error)
}

// Notifier получает события по заказам.
type Notifier interface {
	Publish(ctx context.Context, ev model.OrderEvent)
}

// Service содержит бизнес-логику сервиса заказа обедов.
type Service struct {
	repo     Repository
	payments PaymentGateway
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewService создаёт сервис. payments и notifier могут быть nil.
func NewService(repo Repository, payments PaymentGateway, notifier Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		payments: payments,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser создаёт учётную запись и возвращает её в сохранённом виде.
// Имя пользователя сохраняется без начальных и конечных пробелов.
func (s *Service) RegisterUser(ctx context.Context, username, password string, role model.Role) (*model.User, error) {
	if validation.IsBlank(username) || password == "" {
		return nil, invalid("username", "Username and password required")
	}

	u := &model.User{
		Username: strings.TrimSpace(username),
		Role:     model.ParseRole(string(role)),
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id, err := s.repo.CreateUser(ctx, u.Username, hash, u.Role)
	if err != nil {
		return nil, err
	}
	u.ID = id
	return u, nil
}

// AuthenticateUser проверяет имя пользователя и пароль.
func (s *Service) AuthenticateUser(ctx context.Context, username, password string) (*model.User, error) {
	u, err := s.repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// ListMeals возвращает меню.
func (s *Service) ListMeals(ctx context.Context) ([]model.Meal, error) {
	return s.repo.ListMeals(ctx)
}

// CreateMeal проверяет данные и добавляет позицию меню.
func (s *Service) CreateMeal(ctx context.Context, in model.MealInput) (*model.Meal, error) {
	if validation.IsBlank(in.Name) {
		return nil, invalid("name", "name is required")
	}
	if in.Price == nil {
		return nil, invalid("price", "price is required")
	}
	if !in.Price.IsPositive() {
		return nil, invalid("price", "price must be positive")
	}

	meal := model.Meal{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       in.Price.Round(2),
		Category:    strings.TrimSpace(in.Category),
		Rating:      defaultRating,
		CookTime:    strings.TrimSpace(in.CookTime),
	}
	if meal.Category == "" {
		meal.Category = defaultCategory
	}
	if meal.CookTime == "" {
		meal.CookTime = defaultCookTime
	}
	if in.Rating != nil {
		meal.Rating = *in.Rating
	}

	return s.repo.CreateMeal(ctx, meal)
}

// DeleteMeal удаляет позицию меню. Повторное удаление ничего не делает.
func (s *Service) DeleteMeal(ctx context.Context, id int64) error {
	return s.repo.DeleteMeal(ctx, id)
}

// ListOrders возвращает все заказы.
func (s *Service) ListOrders(ctx context.Context) ([]model.Order, error) {
	return s.repo.ListOrders(ctx)
}

// ListOrdersByCustomer возвращает заказы клиента, пустой список если заказов нет.
func (s *Service) ListOrdersByCustomer(ctx context.Context, customerName string) ([]model.Order, error) {
	return s.repo.ListOrdersByCustomer(ctx, customerName)
}

// CreateOrder оформляет заказ от имени customerName. Цена берётся из меню на момент
// оформления; если блюдо не найдено, используется цена из запроса, а при её отсутствии 0.
func (s *Service) CreateOrder(ctx context.Context, customerName string, in model.OrderInput) (*model.Order, error) {
	if validation.IsBlank(customerName) {
		return nil, invalid("customerName", "customer name is required")
	}
	if validation.IsBlank(in.Meal) {
		return nil, invalid("meal", "meal is required")
	}
	if in.Price != nil && in.Price.IsNegative() {
		return nil, invalid("price", "price must not be negative")
	}

	mealName := strings.TrimSpace(in.Meal)
	price := s.resolvePrice(ctx, mealName, in.Price)

	now := s.now()
	order, err := s.repo.CreateOrder(ctx, model.Order{
		CustomerName: customerName,
		Meal:         mealName,
		Price:        price,
		Time:         now.Format(displayTime),
		Status:       model.OrderStatusPending,
		CreatedAt:    now.UTC(),
		Delivery:     in.Delivery,
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, model.OrderEventCreated, *order)
	return order, nil
}

func (s *Service) resolvePrice(ctx context.Context, mealName string, requested *decimal.Decimal) decimal.Decimal {
	meal, err := s.repo.GetMealByName(ctx, mealName)
	if err == nil {
		return meal.Price
	}
	if !errors.Is(err, repository.ErrMealNotFound) {
		s.logger.Warn("catalog lookup failed, using fallback price", zap.Error(err), zap.String("meal", mealName))
	}
	if requested != nil {
		return requested.Round(2)
	}
	return decimal.Zero
}

// SetOrderStatus меняет статус заказа. Статус доставленного заказа изменить нельзя,
// повторная отметка доставленным ошибкой не является.
func (s *Service) SetOrderStatus(ctx context.Context, id int64, status string) (*model.Order, error) {
	if status == "" {
		return nil, fmt.Errorf("%w: empty status", model.ErrUnknownStatus)
	}
	st, err := model.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}

	order, changed, err := s.repo.UpdateOrderStatus(ctx, id, st)
	if err != nil {
		return nil, err
	}

	if changed {
		s.logger.Info("order status changed", zap.Int64("order_id", id), zap.String("status", string(st)))
		s.publish(ctx, model.OrderEventStatus, *order)
	}
	return order, nil
}

// Stats возвращает количество заказов, выручку и распределение по статусам.
func (s *Service) Stats(ctx context.Context) (*model.Stats, error) {
	orders, err := s.repo.ListOrders(ctx)
	if err != nil {
		return nil, err
	}

	st := &model.Stats{
		Orders:   len(orders),
		Revenue:  decimal.Zero,
		ByStatus: make(map[model.OrderStatus]int),
	}
	for _, o := range orders {
		st.Revenue = st.Revenue.Add(o.Price)
		st.ByStatus[o.Status]++
	}
	return st, nil
}

// InitiatePayment отправляет запрос на оплату суммы amount на телефон phone.
// Успешный результат означает только доставку запроса плательщику.
func (s *Service) InitiatePayment(ctx context.Context, phone string, amount decimal.Decimal) (*model.PaymentResult, error) {
	if s.payments == nil {
		return nil, ErrPaymentsDisabled
	}

	msisdn, ok := validation.NormalizePhone(phone)
	if !ok {
		return nil, invalid("phone", "phone must be a valid Safaricom number")
	}
	if !amount.IsPositive() {
		return nil, invalid("amount", "amount must be positive")
	}

	// M-Pesa принимает только целые суммы.
	whole := amount.Ceil().IntPart()
	reference := "MEALY" + strings.ToUpper(uuid.NewString()[:7])

	resp, err := s.payments.STKPush(ctx, msisdn, whole, reference, "Meal payment")
	if err != nil {
		if errors.Is(err, mpesa.ErrNotConfigured) {
			return nil, ErrPaymentsDisabled
		}
		var apiErr *mpesa.APIError
		if errors.As(err, &apiErr) {
			return &model.PaymentResult{Accepted: false, Message: apiErr.Message}, nil
		}
		return nil, err
	}

	res := &model.PaymentResult{
		Accepted:          resp.Accepted(),
		Message:           resp.CustomerMessage,
		ResponseCode:      resp.ResponseCode,
		MerchantRequestID: resp.MerchantRequestID,
		CheckoutRequestID: resp.CheckoutRequestID,
	}
	if res.Message == "" {
		res.Message = resp.ResponseDescription
	}
	return res, nil
}

func (s *Service) publish(ctx context.Context, typ model.OrderEventType, o model.Order) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(context.WithoutCancel(ctx), model.OrderEvent{Type: typ, Order: o})
}
