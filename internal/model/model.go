// Package model содержит доменные сущности сервиса приёма заказов.
package model

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// amount сериализует денежную сумму числом JSON: так её ожидают леджер и клиенты.
type amount decimal.Decimal

func (a amount) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(a).String()), nil
}

// User представляет запись справочника пользователей.
type User struct {
	ID          string
	Name        string
	Email       string
	Password    string
	KYCVerified bool
	Balance     decimal.Decimal
}

// UserDetails содержит KYC-статус и баланс пользователя для проверки комплаенса.
type UserDetails struct {
	UserID      string          `json:"user_id"`
	KYCVerified bool            `json:"kyc_verified"`
	Balance     decimal.Decimal `json:"balance"`
}

// MarshalJSON выводит баланс числом.
func (d UserDetails) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		UserID      string `json:"user_id"`
		KYCVerified bool   `json:"kyc_verified"`
		Balance     amount `json:"balance"`
	}{d.UserID, d.KYCVerified, amount(d.Balance)})
}

// OrderItem описывает одну позицию заказа.
type OrderItem struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal

	// QuantitySet показывает, что количество пришло в запросе явно.
	QuantitySet bool
}

type orderItemJSON struct {
	ProductID json.RawMessage  `json:"product_id"`
	Name      string           `json:"name"`
	Quantity  *int             `json:"quantity"`
	Price     *decimal.Decimal `json:"price"`
}

// UnmarshalJSON разбирает позицию заказа, подставляя значения по умолчанию
// (количество 1, цена 0). product_id принимается и строкой, и числом.
func (i *OrderItem) UnmarshalJSON(data []byte) error {
	var raw orderItemJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	productID, err := parseProductID(raw.ProductID)
	if err != nil {
		return err
	}

	*i = OrderItem{
		ProductID: productID,
		Name:      raw.Name,
		Quantity:  1,
		UnitPrice: decimal.Zero,
	}
	if raw.Quantity != nil {
		i.Quantity = *raw.Quantity
		i.QuantitySet = true
	}
	if raw.Price != nil {
		i.UnitPrice = *raw.Price
	}

	return nil
}

// MarshalJSON сериализует позицию в формате входящего запроса.
func (i OrderItem) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ProductID string `json:"product_id"`
		Name      string `json:"name"`
		Quantity  int    `json:"quantity"`
		Price     amount `json:"price"`
	}{i.ProductID, i.Name, i.Quantity, amount(i.UnitPrice)})
}

func parseProductID(raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", nil
	}

	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("product_id: %w", err)
		}
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("product_id: %w", err)
	}
	return n.String(), nil
}

// OrderRequest описывает входящий заказ пользователя.
type OrderRequest struct {
	UserID      string          `json:"user_id"`
	Items       []OrderItem     `json:"items"`
	TotalAmount decimal.Decimal `json:"total"`
}

// RecordPayload описывает запись, отправляемую в леджер по одной позиции.
// TotalAmount содержит сумму всего заказа и дублируется в каждую позицию.
type RecordPayload struct {
	UserID      string          `json:"user_id"`
	ProductID   string          `json:"product_id"`
	Name        string          `json:"name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"price"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// MarshalJSON выводит цену и сумму заказа числами.
func (p RecordPayload) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		UserID      string `json:"user_id"`
		ProductID   string `json:"product_id"`
		Name        string `json:"name"`
		Quantity    int    `json:"quantity"`
		UnitPrice   amount `json:"price"`
		TotalAmount amount `json:"total_amount"`
	}{p.UserID, p.ProductID, p.Name, p.Quantity, amount(p.UnitPrice), amount(p.TotalAmount)})
}

// NewRecordPayload собирает запись для леджера из позиции и общих полей заказа.
func NewRecordPayload(userID string, total decimal.Decimal, item OrderItem) RecordPayload {
	return RecordPayload{
		UserID:      userID,
		ProductID:   item.ProductID,
		Name:        item.Name,
		Quantity:    item.Quantity,
		UnitPrice:   item.UnitPrice,
		TotalAmount: total,
	}
}

// ItemOutcome описывает итог доставки одной позиции.
type ItemOutcome int

const (
	ItemExhausted ItemOutcome = iota
	ItemDelivered
)

// String возвращает название итога.
func (o ItemOutcome) String() string {
	if o == ItemDelivered {
		return "delivered"
	}
	return "exhausted"
}

// BatchStatus описывает статус обработки заказа целиком.
type BatchStatus string

const (
	BatchStatusSuccess BatchStatus = "success"
	// BatchStatusPartial используется и при частичной, и при полной неудаче.
	// Полную неудачу отличает только HTTP-код 500.
	BatchStatusPartial BatchStatus = "partial"
)

// BatchResult агрегирует итоги доставки всех позиций заказа.
type BatchResult struct {
	Delivered int
	Total     int
}

// Status возвращает метку статуса для ответа клиенту.
func (b BatchResult) Status() BatchStatus {
	if b.Delivered == b.Total {
		return BatchStatusSuccess
	}
	return BatchStatusPartial
}

// HTTPStatus возвращает HTTP-код ответа: 500, если не доставлено ни одной позиции.
func (b BatchResult) HTTPStatus() int {
	if b.Delivered > 0 {
		return http.StatusOK
	}
	return http.StatusInternalServerError
}

// Message возвращает человекочитаемое описание результата.
func (b BatchResult) Message() string {
	return strconv.Itoa(b.Delivered) + "/" + strconv.Itoa(b.Total) + " items recorded"
}
