package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuth возвращается, если сервер отклонил учётные данные или сессию.
	ErrAuth = errors.New("authentication failed")
	// ErrForbidden возвращается, если роли пользователя недостаточно для операции.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound возвращается для отсутствующего ресурса.
	ErrNotFound = errors.New("not found")
	// ErrConflict возвращается при конфликте, например занятом имени пользователя.
	ErrConflict = errors.New("conflict")
)

// APIError описывает неуспешный ответ сервера. Message содержит текст из тела ответа,
// если сервер его прислал.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server responded %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("server responded %d: %s", e.Status, e.Message)
}

// Unwrap позволяет сравнивать ошибку с ErrAuth, ErrForbidden, ErrNotFound и ErrConflict.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrAuth
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	default:
		return nil
	}
}

// NetworkError описывает сбой транспорта до получения ответа сервера.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
