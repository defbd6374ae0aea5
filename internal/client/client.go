// Package client предоставляет HTTP-клиент REST API сервиса заказа обедов.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Tobikorais/Mealy/internal/model"
)

// Client инкапсулирует HTTP-взаимодействие с сервером. Сессия хранится в cookie.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu   sync.RWMutex
	role model.Role
}

// New создаёт клиент для сервера по указанному адресу.
func New(baseURL string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	base := strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Jar:     jar,
		},
	}, nil
}

// Role возвращает роль пользователя текущей сессии или пустую строку без сессии.
func (c *Client) Role() model.Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

func (c *Client) setRole(r model.Role) {
	c.mu.Lock()
	c.role = r
	c.mu.Unlock()
}

type errorBody struct {
	Error        string `json:"error"`
	ErrorMessage string `json:"errorMessage"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		var e errorBody
		if json.NewDecoder(resp.Body).Decode(&e) == nil {
			apiErr.Message = e.Error
			if apiErr.Message == "" {
				apiErr.Message = e.ErrorMessage
			}
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Type     string `json:"type,omitempty"`
}

type authResponse struct {
	Type model.Role `json:"type"`
}

// Login открывает сессию. Непустая role требует, чтобы учётная запись имела эту роль.
func (c *Client) Login(ctx context.Context, username, password string, role model.Role) (model.Role, error) {
	var res authResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth", credentials{username, password, string(role)}, &res); err != nil {
		return "", err
	}
	c.setRole(res.Type)
	return res.Type, nil
}

// Signup регистрирует учётную запись и открывает сессию.
func (c *Client) Signup(ctx context.Context, username, password string, role model.Role) (model.Role, error) {
	var res authResponse
	if err := c.do(ctx, http.MethodPost, "/api/signup", credentials{username, password, string(role)}, &res); err != nil {
		return "", err
	}
	c.setRole(res.Type)
	return res.Type, nil
}

// Logout закрывает сессию.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/api/logout", nil, nil); err != nil {
		return err
	}
	c.setRole("")
	return nil
}

// ListMeals возвращает меню.
func (c *Client) ListMeals(ctx context.Context) ([]model.Meal, error) {
	var meals []model.Meal
	if err := c.do(ctx, http.MethodGet, "/api/meals", nil, &meals); err != nil {
		return nil, err
	}
	return meals, nil
}

type mealRequest struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Category    string           `json:"category,omitempty"`
	Rating      *float64         `json:"rating,omitempty"`
	CookTime    string           `json:"cookTime,omitempty"`
}

// CreateMeal добавляет позицию меню.
func (c *Client) CreateMeal(ctx context.Context, in model.MealInput) (*model.Meal, error) {
	var meal model.Meal
	err := c.do(ctx, http.MethodPost, "/api/meals", mealRequest{
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Category:    in.Category,
		Rating:      in.Rating,
		CookTime:    in.CookTime,
	}, &meal)
	if err != nil {
		return nil, err
	}
	return &meal, nil
}

// DeleteMeal удаляет позицию меню.
func (c *Client) DeleteMeal(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/api/meals/"+strconv.FormatInt(id, 10), nil, nil)
}

func normalize(orders []model.Order) []model.Order {
	for i := range orders {
		if orders[i].Status == "" {
			orders[i].Status = model.OrderStatusPending
		}
	}
	return orders
}

// ListOrders возвращает все заказы.
func (c *Client) ListOrders(ctx context.Context) ([]model.Order, error) {
	var orders []model.Order
	if err := c.do(ctx, http.MethodGet, "/api/orders", nil, &orders); err != nil {
		return nil, err
	}
	return normalize(orders), nil
}

// ListOrdersByCustomer возвращает заказы клиента.
func (c *Client) ListOrdersByCustomer(ctx context.Context, customerName string) ([]model.Order, error) {
	var orders []model.Order
	if err := c.do(ctx, http.MethodGet, "/api/orders/customer/"+url.PathEscape(customerName), nil, &orders); err != nil {
		return nil, err
	}
	return normalize(orders), nil
}

type orderRequest struct {
	Meal  string           `json:"meal"`
	Price *decimal.Decimal `json:"price,omitempty"`
	model.Delivery
}

// CreateOrder оформляет заказ от имени пользователя текущей сессии.
func (c *Client) CreateOrder(ctx context.Context, in model.OrderInput) (*model.Order, error) {
	var order model.Order
	if err := c.do(ctx, http.MethodPost, "/api/orders", orderRequest{in.Meal, in.Price, in.Delivery}, &order); err != nil {
		return nil, err
	}
	return &normalize([]model.Order{order})[0], nil
}

// SetOrderStatus меняет статус заказа.
func (c *Client) SetOrderStatus(ctx context.Context, id int64, status model.OrderStatus) (*model.Order, error) {
	var order model.Order
	path := "/api/orders/" + strconv.FormatInt(id, 10) + "/status"
	if err := c.do(ctx, http.MethodPut, path, map[string]model.OrderStatus{"status": status}, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

type paymentRequest struct {
	Phone  string          `json:"phone"`
	Amount decimal.Decimal `json:"amount"`
}

// InitiatePayment запрашивает оплату с телефона phone. Отказ платёжного шлюза
// возвращается как результат с Accepted=false, а не как ошибка.
func (c *Client) InitiatePayment(ctx context.Context, phone string, amount decimal.Decimal) (*model.PaymentResult, error) {
	var res model.PaymentResult
	err := c.do(ctx, http.MethodPost, "/api/mpesa/stkpush", paymentRequest{phone, amount}, &res)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusBadGateway {
		return &model.PaymentResult{Accepted: false, Message: apiErr.Message}, nil
	}
	if err != nil {
		return nil, err
	}
	if res.ResponseCode == "0" {
		res.Accepted = true
	}
	return &res, nil
}
