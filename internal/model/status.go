package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// OrderStatus описывает статус выполнения заказа.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusPreparing  OrderStatus = "preparing"
	OrderStatusDelivering OrderStatus = "delivering"
	OrderStatusDelivered  OrderStatus = "delivered"
)

var (
	// ErrUnknownStatus возвращается для нераспознанного значения статуса.
	ErrUnknownStatus = errors.New("unknown order status")
	// ErrInvalidTransition возвращается при попытке изменить статус доставленного заказа.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ParseOrderStatus разбирает статус. Пустая строка означает OrderStatusPending.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(s); st {
	case "":
		return OrderStatusPending, nil
	case OrderStatusPending, OrderStatusPreparing, OrderStatusDelivering, OrderStatusDelivered:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
}

// IsTerminal сообщает, что из статуса нет переходов.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered
}

// CanTransitionTo проверяет допустимость перехода из s в next.
// Повторная отметка доставленного заказа доставленным допустима и ничего не меняет.
func (s OrderStatus) CanTransitionTo(next OrderStatus) error {
	if _, err := ParseOrderStatus(string(next)); err != nil || next == "" {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, next)
	}
	if s.IsTerminal() && next != s {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return nil
}

// UnmarshalJSON приводит отсутствующий статус к pending.
func (s *OrderStatus) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*s = OrderStatusPending
		return nil
	}
	st, err := ParseOrderStatus(*raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}
