// Package repository содержит реализации хранилища учётных записей, меню и заказов.
package repository

import "errors"

var (
	// ErrUserExists возвращается при попытке создать пользователя с уже существующим именем.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrMealNotFound возвращается, если блюдо отсутствует в меню.
	ErrMealNotFound = errors.New("meal not found")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
)
