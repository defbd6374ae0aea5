// Package validation содержит функции валидации входных данных.
package validation

import (
	"strings"
)

// NormalizePhone приводит кенийский мобильный номер к формату 2547XXXXXXXX или 2541XXXXXXXX,
// который ожидает M-Pesa. Второе значение сообщает, что номер корректен.
func NormalizePhone(phone string) (string, bool) {
	digits := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
	digits = strings.TrimPrefix(digits, "+")

	for _, ch := range digits {
		if ch < '0' || ch > '9' {
			return "", false
		}
	}

	var local string
	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, "254"):
		local = digits[3:]
	case len(digits) == 10 && strings.HasPrefix(digits, "0"):
		local = digits[1:]
	case len(digits) == 9:
		local = digits
	default:
		return "", false
	}

	if local[0] != '7' && local[0] != '1' {
		return "", false
	}

	return "254" + local, true
}

// IsBlank сообщает, что строка пуста или состоит из пробельных символов.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
