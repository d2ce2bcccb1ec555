package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан и ждёт исполнения.
	OrderStatusPending OrderStatus = "Pending"
	// OrderStatusCompleted — заказ исполнен.
	OrderStatusCompleted OrderStatus = "Completed"
	// OrderStatusCancelled — заказ отменён.
	OrderStatusCancelled OrderStatus = "Cancelled"
	// OrderStatusRefunded — по заказу оформлен возврат.
	OrderStatusRefunded OrderStatus = "Refunded"
	// OrderStatusShipped — заказ отгружен.
	OrderStatusShipped OrderStatus = "Shipped"
	// OrderStatusDelivered — заказ доставлен клиенту.
	OrderStatusDelivered OrderStatus = "Delivered"
)

// orderStatusCodes сохраняет числовые коды статусов, которые исторически приходят от клиентов.
var orderStatusCodes = []OrderStatus{
	OrderStatusPending,
	OrderStatusCompleted,
	OrderStatusCancelled,
	OrderStatusRefunded,
	OrderStatusShipped,
	OrderStatusDelivered,
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	for _, known := range orderStatusCodes {
		if s == known {
			return true
		}
	}
	return false
}

// Code возвращает числовой код статуса или -1 для неизвестного значения.
func (s OrderStatus) Code() int {
	for i, known := range orderStatusCodes {
		if s == known {
			return i
		}
	}
	return -1
}

// ParseOrderStatus принимает имя статуса (без учёта регистра) или его числовой код.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	raw = strings.TrimSpace(raw)
	if code, err := strconv.Atoi(raw); err == nil {
		if code < 0 || code >= len(orderStatusCodes) {
			return "", fmt.Errorf("%w: %d", ErrStatusInvalid, code)
		}
		return orderStatusCodes[code], nil
	}
	for _, known := range orderStatusCodes {
		if strings.EqualFold(raw, string(known)) {
			return known, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrStatusInvalid, raw)
}

// UnmarshalJSON принимает статус строкой или числом.
func (s *OrderStatus) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var text string
	switch v := raw.(type) {
	case string:
		text = v
	case float64:
		text = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Errorf("%w: %s", ErrStatusInvalid, string(data))
	}
	parsed, err := ParseOrderStatus(text)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// OrderLine — позиция заказа со снимком цены на момент оформления.
type OrderLine struct {
	ProductID string
	Price     decimal.Decimal
	Quantity  int
}

// Subtotal возвращает price × quantity.
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// LineQuantity — количество товара, участвующее в отгрузке или возврате.
type LineQuantity struct {
	ProductID string
	Quantity  int
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID          string
	CustomerID  int64
	Lines       []OrderLine
	TotalAmount decimal.Decimal
	Status      OrderStatus
	OrderDate   time.Time
	Version     int64
	UpdatedAt   time.Time
}

// CalculateTotal суммирует price × quantity по всем позициям.
func CalculateTotal(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

// RecalculateTotal приводит TotalAmount в соответствие с текущими позициями.
func (o *Order) RecalculateTotal() {
	o.TotalAmount = CalculateTotal(o.Lines)
}

// LineIndex возвращает индекс позиции по товару или -1.
func (o *Order) LineIndex(productID string) int {
	for i, line := range o.Lines {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}

// Clone возвращает копию заказа, не разделяющую слайс позиций с оригиналом.
func (o Order) Clone() Order {
	o.Lines = append([]OrderLine(nil), o.Lines...)
	return o
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID <= 0 {
		errs = append(errs, ErrCustomerIDInvalid)
	}
	for _, line := range o.Lines {
		if line.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if !line.Price.IsPositive() {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}
	if !o.TotalAmount.Equal(CalculateTotal(o.Lines)) {
		errs = append(errs, ErrAmountMismatch)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrStatusInvalid)
	}

	return errs
}
