package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials возвращается при неверном имени пользователя или пароле.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPaymentsDisabled возвращается, если платёжный шлюз не настроен.
	ErrPaymentsDisabled = errors.New("payments are not configured")
)

// ValidationError описывает отсутствующее или некорректное поле запроса.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
