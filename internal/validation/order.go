// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"strings"

	"github.com/albinvayalil/emartCheck/internal/model"
)

var (
	// ErrMissingOrderFields возвращается, если в заказе нет пользователя или позиций.
	ErrMissingOrderFields = errors.New("missing user_id or items")
	// ErrInvalidItem возвращается, если количество в позиции меньше единицы.
	ErrInvalidItem = errors.New("invalid item in order")
)

// ValidateOrder проверяет заказ до отправки в леджер.
func ValidateOrder(req model.OrderRequest) error {
	if strings.TrimSpace(req.UserID) == "" || len(req.Items) == 0 {
		return ErrMissingOrderFields
	}

	for _, item := range req.Items {
		if item.QuantitySet && item.Quantity < 1 {
			return ErrInvalidItem
		}
	}

	return nil
}
