// Package model содержит доменные сущности сервиса заказа обедов.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Цены отдаются клиенту числом, а не строкой.
	decimal.MarshalJSONWithoutQuotes = true
}

// Role описывает роль учётной записи.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// ParseRole возвращает роль по строке, неизвестные значения приводятся к RoleCustomer.
func ParseRole(s string) Role {
	if Role(s) == RoleAdmin {
		return RoleAdmin
	}
	return RoleCustomer
}

// User представляет зарегистрированную учётную запись.
type User struct {
	ID           int64
	Username     string
	PasswordHash []byte
	Role         Role
	CreatedAt    time.Time
}

// Meal описывает позицию меню.
type Meal struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Rating      float64         `json:"rating"`
	CookTime    string          `json:"cookTime"`
}

// MealInput содержит данные для создания позиции меню.
type MealInput struct {
	Name        string
	Description string
	Price       *decimal.Decimal
	Category    string
	Rating      *float64
	CookTime    string
}

// Delivery содержит данные доставки, указанные при оформлении заказа.
type Delivery struct {
	Date        string `json:"delivery_date,omitempty"`
	Time        string `json:"delivery_time,omitempty"`
	Location    string `json:"delivery_location,omitempty"`
	HouseNumber string `json:"delivery_house_number,omitempty"`
	Phone       string `json:"delivery_phone,omitempty"`
	Notes       string `json:"delivery_notes,omitempty"`
}

// Order описывает заказ. Название и цена блюда копируются в момент оформления
// и не зависят от последующих изменений меню.
type Order struct {
	ID           int64           `json:"id"`
	CustomerName string          `json:"customerName"`
	Meal         string          `json:"meal"`
	Price        decimal.Decimal `json:"price"`
	Time         string          `json:"time"`
	Status       OrderStatus     `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	Delivery
}

// OrderInput содержит данные заказа, переданные клиентом.
type OrderInput struct {
	Meal     string
	Price    *decimal.Decimal
	Delivery Delivery
}

// OrderEventType описывает тип события по заказу.
type OrderEventType string

const (
	OrderEventCreated OrderEventType = "order_created"
	OrderEventStatus  OrderEventType = "order_status"
)

// OrderEvent публикуется подписчикам при создании заказа и смене его статуса.
type OrderEvent struct {
	Type  OrderEventType `json:"event"`
	Order Order          `json:"data"`
}

// Stats содержит сводку по заказам для администратора.
type Stats struct {
	Orders   int                 `json:"orders"`
	Revenue  decimal.Decimal     `json:"revenue"`
	ByStatus map[OrderStatus]int `json:"by_status"`
}

// PaymentResult описывает результат инициации платежа. Accepted означает только то,
// что запрос на оплату отправлен на телефон плательщика.
type PaymentResult struct {
	Accepted          bool   `json:"accepted"`
	Message           string `json:"message"`
	ResponseCode      string `json:"ResponseCode,omitempty"`
	MerchantRequestID string `json:"MerchantRequestID,omitempty"`
	CheckoutRequestID string `json:"CheckoutRequestID,omitempty"`
}
