package domain

import (
	"errors"
	"fmt"
)

// Классы ошибок. Конкретные ошибки ниже оборачивают один из них,
// поэтому транспорт может проверять errors.Is(err, ErrNotFound) и т.п.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrPrecondition = errors.New("precondition failed")
	ErrConflict     = errors.New("conflict")
)

var (
	// Ошибка пустого идентификатора.
	ErrIDRequired = kind(ErrInvalidInput, "id is required")
	// Ошибка некорректного идентификатора клиента (<= 0).
	ErrCustomerIDInvalid = kind(ErrInvalidInput, "customer_id must be greater than zero")
	// Ошибка отсутствия хотя бы одной позиции.
	ErrItemsRequired = kind(ErrInvalidInput, "order must contain at least one item")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = kind(ErrInvalidInput, "item quantity must be greater than zero")
	// Ошибка, если цена позиции не положительная.
	ErrItemPriceInvalid = kind(ErrInvalidInput, "item price must be greater than zero")
	// Ошибка нулевой или отрицательной суммы заказа.
	ErrTotalNotPositive = kind(ErrInvalidInput, "order total must be greater than zero")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = kind(ErrInvalidInput, "order total does not match items sum")
	// Ошибка пустого имени товара.
	ErrNameRequired = kind(ErrInvalidInput, "product name is required")
	// Ошибка некорректной цены товара.
	ErrPriceInvalid = kind(ErrInvalidInput, "product price must be greater than zero")
	// Ошибка некорректного складского остатка.
	ErrStockInvalid = kind(ErrInvalidInput, "product stock quantity is invalid")
	// Ошибка некорректного количества пополнения.
	ErrRestockQtyInvalid = kind(ErrInvalidInput, "restock quantity must be greater than zero")
	// Ошибка процента вне диапазона (0, 100].
	ErrPercentageInvalid = kind(ErrInvalidInput, "percentage must be in range (0, 100]")
	// Ошибка пустого списка этапов обработки.
	ErrStagesRequired = kind(ErrInvalidInput, "at least one processing stage is required")
	// Ошибка неизвестного статуса заказа.
	ErrStatusInvalid = kind(ErrInvalidInput, "unknown order status")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = kind(ErrNotFound, "order not found")
	// ErrProductNotFound возвращается, если товар не найден в репозитории.
	ErrProductNotFound = kind(ErrNotFound, "product not found")
	// ErrOrderLineNotFound — в заказе нет позиции с указанным товаром.
	ErrOrderLineNotFound = kind(ErrNotFound, "order line not found")

	// ErrInvalidTransition — текущий статус заказа не допускает операцию.
	ErrInvalidTransition = kind(ErrPrecondition, "order status does not allow this operation")
	// ErrInsufficientStock — на складе меньше товара, чем запрошено.
	ErrInsufficientStock = kind(ErrPrecondition, "insufficient stock")
	// ErrLineQuantityExceeded — отгрузка или возврат больше количества в позиции.
	ErrLineQuantityExceeded = kind(ErrPrecondition, "quantity exceeds order line quantity")

	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении заказа.
	ErrOrderVersionConflict = kind(ErrConflict, "order version conflict")
	// ErrProductVersionConflict сигнализирует о конфликте версий при сохранении товара.
	ErrProductVersionConflict = kind(ErrConflict, "product version conflict")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// kindError привязывает конкретную ошибку к её классу.
type kindError struct {
	kind error
	msg  string
}

func kind(class error, msg string) error {
	return &kindError{kind: class, msg: msg}
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// ProductError добавляет к ошибке идентификатор товара, не меняя её класс.
func ProductError(productID string, err error) error {
	return fmt.Errorf("product %s: %w", productID, err)
}
