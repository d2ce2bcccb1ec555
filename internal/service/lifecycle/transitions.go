package lifecycle

import (
	"fmt"
	"slices"

	"github.com/vladislavdragonenkov/orderstream/internal/domain"
)

// Operation — имя операции движка. Используется как label в метриках
// и как ключ таблицы переходов.
type Operation string

// Операции над заказами и товарами.
const (
	OpCreate          Operation = "order.create"
	OpCancel          Operation = "order.cancel"
	OpComplete        Operation = "order.complete"
	OpUpdateItems     Operation = "order.update_items"
	OpChangeStatus    Operation = "order.change_status"
	OpRefund          Operation = "order.refund"
	OpReopen          Operation = "order.reopen"
	OpDelete          Operation = "order.delete"
	OpProcessInStages Operation = "order.process_in_stages"
	OpPartialShip     Operation = "order.partial_ship"
	OpReturn          Operation = "order.return"

	OpDiscontinueLowSellers Operation = "product.discontinue_low_sellers"
	OpAdjustPricing         Operation = "product.adjust_pricing"
)

// transition описывает допустимый переход. Пустой from означает «из любого статуса».
type transition struct {
	from []domain.OrderStatus
	to   domain.OrderStatus
}

// transitions — таблица переходов для операций, меняющих статус.
// ChangeStatus в таблице нет: он выставляет любой статус без проверок.
var transitions = map[Operation]transition{
	OpCancel:      {to: domain.OrderStatusCancelled},
	OpComplete:    {to: domain.OrderStatusCompleted},
	OpRefund:      {from: []domain.OrderStatus{domain.OrderStatusCompleted}, to: domain.OrderStatusRefunded},
	OpReopen:      {from: []domain.OrderStatus{domain.OrderStatusCancelled}, to: domain.OrderStatusPending},
	OpPartialShip: {from: []domain.OrderStatus{domain.OrderStatusPending}, to: domain.OrderStatusCompleted},
	OpReturn:      {from: []domain.OrderStatus{domain.OrderStatusCompleted}, to: domain.OrderStatusRefunded},
}

// stageGuards задаёт статус, из которого разрешён этап ProcessInStages.
// Этапы, которых нет в таблице, применяются без проверки.
var stageGuards = map[domain.OrderStatus]domain.OrderStatus{
	domain.OrderStatusPending:   domain.OrderStatusPending,
	domain.OrderStatusShipped:   domain.OrderStatusPending,
	domain.OrderStatusDelivered: domain.OrderStatusShipped,
}

// Allowed сообщает, допускает ли текущий статус операцию.
func Allowed(op Operation, current domain.OrderStatus) bool {
	t, ok := transitions[op]
	if !ok {
		return true
	}
	return len(t.from) == 0 || slices.Contains(t.from, current)
}

// Target возвращает статус, в который переводит заказ операция.
func Target(op Operation) (domain.OrderStatus, bool) {
	t, ok := transitions[op]
	return t.to, ok
}

// StageAllowed сообщает, можно ли применить этап к заказу в статусе current.
func StageAllowed(stage, current domain.OrderStatus) bool {
	required, guarded := stageGuards[stage]
	return !guarded || required == current
}

func guard(op Operation, current domain.OrderStatus) error {
	if Allowed(op, current) {
		return nil
	}
	return fmt.Errorf("%w: %s is not allowed from %s", domain.ErrInvalidTransition, op, current)
}

func guardStage(stage, current domain.OrderStatus) error {
	if StageAllowed(stage, current) {
		return nil
	}
	return fmt.Errorf("%w: stage %s is not allowed from %s", domain.ErrInvalidTransition, stage, current)
}
