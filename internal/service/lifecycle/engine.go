package lifecycle

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstream/internal/domain"
	"github.com/vladislavdragonenkov/orderstream/internal/metrics"
)

// EventRecorder ставит доменное событие в очередь публикации.
type EventRecorder interface {
	Record(aggregateType, aggregateID, eventType string, payload map[string]any)
}

// Engine связывает переходы статусов заказа с остатками и продажами товаров.
// Вызовы репозиториев выполняются последовательно, без блокировок и транзакций.
type Engine struct {
	orders   domain.OrderRepository
	products domain.ProductRepository
	timeline domain.TimelineRepository
	events   EventRecorder
	metrics  *metrics.LifecycleMetrics
	logger   *log.Entry
	now      func() time.Time
}

// Option настраивает Engine.
type Option func(*Engine)

// WithTimeline включает запись событий заказа в timeline.
func WithTimeline(repo domain.TimelineRepository) Option {
	return func(e *Engine) {
		e.timeline = repo
	}
}

// WithEvents задаёт получателя доменных событий (обычно outbox.Recorder).
func WithEvents(recorder EventRecorder) Option {
	return func(e *Engine) {
		e.events = recorder
	}
}

// WithMetrics задаёт метрики операций. Без них метрики не пишутся.
func WithMetrics(m *metrics.LifecycleMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger задаёт logger движка.
func WithLogger(logger *log.Entry) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine создаёт движок поверх репозиториев заказов и товаров.
func NewEngine(orders domain.OrderRepository, products domain.ProductRepository, opts ...Option) *Engine {
	e := &Engine{
		orders:   orders,
		products: products,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = log.WithField("component", "lifecycle")
	}
	return e
}

// Create оформляет заказ: списывает остаток и начисляет продажи по каждой позиции,
// затем сохраняет заказ в статусе Pending. Все проверки выполняются до первой записи.
func (e *Engine) Create(customerID int64, lines []domain.OrderLine) (order domain.Order, err error) {
	defer e.observe(OpCreate)(&err)

	if customerID <= 0 {
		return domain.Order{}, domain.ErrCustomerIDInvalid
	}
	if len(lines) == 0 {
		return domain.Order{}, domain.ErrItemsRequired
	}

	requested := make(map[string]int, len(lines))
	for _, line := range lines {
		if err := validateLine(line); err != nil {
			return domain.Order{}, err
		}
		requested[line.ProductID] += line.Quantity
	}
	if err := e.checkStock(requested); err != nil {
		return domain.Order{}, err
	}

	total := domain.CalculateTotal(lines)
	if !total.IsPositive() {
		return domain.Order{}, domain.ErrTotalNotPositive
	}

	order = domain.Order{
		CustomerID:  customerID,
		Lines:       slices.Clone(lines),
		TotalAmount: total,
		Status:      domain.OrderStatusPending,
		OrderDate:   e.now(),
	}

	steps := make([]step, 0, len(lines)+1)
	for _, line := range order.Lines {
		steps = append(steps, step{
			name:   "reserve stock",
			target: line.ProductID,
			run: func() error {
				return e.updateProduct(line.ProductID, func(p domain.Product) domain.Product {
					p = domain.ApplyStockDelta(p, -line.Quantity)
					return domain.ApplySalesDelta(p, line.Quantity)
				})
			},
		})
	}
	steps = append(steps, step{
		name: "add order",
		run: func() error {
			created, err := e.orders.Add(order)
			if err != nil {
				return fmt.Errorf("add order: %w", err)
			}
			order = created
			return nil
		},
	})

	if _, err := e.runSteps(OpCreate, steps); err != nil {
		return domain.Order{}, err
	}

	e.emitOrderEvent(order, domain.EventOrderCreated, map[string]any{
		"customer_id":  order.CustomerID,
		"total_amount": order.TotalAmount.String(),
		"lines":        len(order.Lines),
		"status":       order.Status,
	})
	e.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"customer_id": order.CustomerID,
		"total":       order.TotalAmount.String(),
	}).Info("order created")

	return order, nil
}

// Cancel переводит заказ в Cancelled из любого статуса.
func (e *Engine) Cancel(orderID string) (err error) {
	defer e.observe(OpCancel)(&err)
	return e.transition(OpCancel, orderID)
}

// Refund переводит заказ из Completed в Refunded.
func (e *Engine) Refund(orderID string) (err error) {
	defer e.observe(OpRefund)(&err)
	return e.transition(OpRefund, orderID)
}

// Reopen возвращает отменённый заказ в Pending.
func (e *Engine) Reopen(orderID string) (err error) {
	defer e.observe(OpReopen)(&err)
	return e.transition(OpReopen, orderID)
}

// Complete начисляет продажи по позициям заказа и переводит его в Completed.
// Позиции, товар которых уже удалён, пропускаются.
func (e *Engine) Complete(orderID string) (err error) {
	defer e.observe(OpComplete)(&err)

	order, err := e.loadOrder(orderID)
	if err != nil {
		return err
	}
	if err := guard(OpComplete, order.Status); err != nil {
		return err
	}

	steps := make([]step, 0, len(order.Lines)+1)
	for _, line := range order.Lines {
		steps = append(steps, step{
			name:   "record sales",
			target: line.ProductID,
			run: func() error {
				return skipMissingProduct(e.updateProduct(line.ProductID, func(p domain.Product) domain.Product {
					return domain.ApplySalesDelta(p, line.Quantity)
				}))
			},
		})
	}
	steps = append(steps, step{
		name:   "set status",
		target: order.ID,
		run: func() error {
			return e.setStatus(&order, domain.OrderStatusCompleted, domain.EventOrderStatusChanged, nil)
		},
	})

	_, err = e.runSteps(OpComplete, steps)
	return err
}

// UpdateItems заменяет позиции заказа и пересчитывает сумму.
// Остаток товаров только проверяется, списания не происходит.
func (e *Engine) UpdateItems(orderID string, lines []domain.OrderLine) (err error) {
	defer e.observe(OpUpdateItems)(&err)

	if orderID == "" {
		return domain.ErrIDRequired
	}
	if len(lines) == 0 {
		return domain.ErrItemsRequired
	}
	for _, line := range lines {
		if err := validateLine(line); err != nil {
			return err
		}
	}

	order, err := e.loadOrder(orderID)
	if err != nil {
		return err
	}

	for _, line := range lines {
		product, err := e.products.Get(line.ProductID)
		if err != nil {
			return domain.ProductError(line.ProductID, err)
		}
		if product.StockQuantity < line.Quantity {
			return domain.ProductError(line.ProductID, domain.ErrInsufficientStock)
		}
	}

	order.Lines = slices.Clone(lines)
	order.RecalculateTotal()
	if err := e.saveOrder(&order); err != nil {
		return err
	}

	e.emitOrderEvent(order, domain.EventOrderItemsUpdated, map[string]any{
		"total_amount": order.TotalAmount.String(),
		"lines":        len(order.Lines),
	})
	return nil
}

// ChangeStatus выставляет любой допустимый статус без проверки текущего.
func (e *Engine) ChangeStatus(orderID string, status domain.OrderStatus) (err error) {
	defer e.observe(OpChangeStatus)(&err)

	if !status.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrStatusInvalid, status)
	}
	order, err := e.loadOrder(orderID)
	if err != nil {
		return err
	}
	return e.setStatus(&order, status, domain.EventOrderStatusChanged, nil)
}

// Delete удаляет заказ независимо от статуса.
func (e *Engine) Delete(orderID string) (err error) {
	defer e.observe(OpDelete)(&err)

	order, err := e.loadOrder(orderID)
	if err != nil {
		return err
	}
	if err := e.orders.Delete(order.ID); err != nil {
		return fmt.Errorf("delete order %s: %w", order.ID, err)
	}

	e.emitOrderEvent(order, domain.EventOrderDeleted, map[string]any{"status": order.Status})
	return nil
}

// ProcessInStages последовательно применяет этапы и сохраняет заказ после каждого.
// Недопустимый этап прерывает операцию, уже сохранённые этапы остаются в силе.
func (e *Engine) ProcessInStages(orderID string, stages []domain.OrderStatus) (report Report, err error) {
	defer e.observe(OpProcessInStages)(&err)

	if orderID == "" {
		return Report{Operation: OpProcessInStages}, domain.ErrIDRequired
	}
	if len(stages) == 0 {
		return Report{Operation: OpProcessInStages}, domain.ErrStagesRequired
	}
	for _, stage := range stages {
		if !stage.Valid() {
			return Report{Operation: OpProcessInStages}, fmt.Errorf("%w: %q", domain.ErrStatusInvalid, stage)
		}
	}

	order, err := e.loadOrder(orderID)
	if err != nil {
		return Report{Operation: OpProcessInStages}, err
	}

	steps := make([]step, 0, len(stages))
	for _, stage := range stages {
		steps = append(steps, step{
			name:   "stage " + string(stage),
			target: order.ID,
			run: func() error {
				if err := guardStage(stage, order.Status); err != nil {
					return err
				}
				return e.setStatus(&order, stage, domain.EventOrderStatusChanged, map[string]any{"reason": "stage"})
			},
		})
	}

	return e.runSteps(OpProcessInStages, steps)
}

// PartialShip отгружает часть позиций заказа в статусе Pending.
// Позиция с нулевым остатком удаляется; если позиций не осталось, заказ становится Completed.
func (e *Engine) PartialShip(orderID string, shipped []domain.LineQuantity) (report Report, err error) {
	defer e.observe(OpPartialShip)(&err)

	empty := Report{Operation: OpPartialShip}
	if err := validateQuantities(orderID, shipped); err != nil {
		return empty, err
	}

	order, err := e.loadOrder(orderID)
	if err != nil {
		return empty, err
	}
	if err := guard(OpPartialShip, order.Status); err != nil {
		return empty, err
	}
	remaining, err := shipLines(order.Lines, shipped)
	if err != nil {
		return empty, err
	}
	order.Lines = remaining
	order.RecalculateTotal()
	if len(order.Lines) == 0 {
		order.Status, _ = Target(OpPartialShip)
	}

	steps := make([]step, 0, len(shipped)+1)
	for _, item := range shipped {
		steps = append(steps, step{
			name:   "record sales",
			target: item.ProductID,
			run: func() error {
				return skipMissingProduct(e.updateProduct(item.ProductID, func(p domain.Product) domain.Product {
					return domain.ApplySalesDelta(p, item.Quantity)
				}))
			},
		})
	}
	steps = append(steps, step{
		name:   "save order",
		target: order.ID,
		run: func() error {
			return e.saveOrder(&order)
		},
	})

	report, err = e.runSteps(OpPartialShip, steps)
	if err != nil {
		return report, err
	}

	e.emitOrderEvent(order, domain.EventOrderPartiallyShipped, map[string]any{
		"shipped":         quantitiesPayload(shipped),
		"remaining_lines": len(order.Lines),
		"total_amount":    order.TotalAmount.String(),
		"status":          order.Status,
	})
	return report, nil
}

// Return принимает возврат по завершённому заказу: возвращает товар на склад,
// уменьшает продажи и переводит заказ в Refunded. Первая неудачная запись
// товара прерывает операцию без отката предыдущих.
func (e *Engine) Return(orderID string, returned []domain.LineQuantity) (report Report, err error) {
	defer e.observe(OpReturn)(&err)

	empty := Report{Operation: OpReturn}
	if err := validateQuantities(orderID, returned); err != nil {
		return empty, err
	}

	order, err := e.loadOrder(orderID)
	if err != nil {
		return empty, err
	}
	if err := guard(OpReturn, order.Status); err != nil {
		return empty, err
	}
	if err := checkReturnedLines(order, returned); err != nil {
		return empty, err
	}

	steps := make([]step, 0, len(returned)+1)
	for _, item := range returned {
		steps = append(steps, step{
			name:   "restock",
			target: item.ProductID,
			run: func() error {
				return skipMissingProduct(e.updateProduct(item.ProductID, func(p domain.Product) domain.Product {
					p = domain.ApplyStockDelta(p, item.Quantity)
					return domain.ApplySalesDelta(p, -item.Quantity)
				}))
			},
		})
	}
	to, _ := Target(OpReturn)
	steps = append(steps, step{
		name:   "set status",
		target: order.ID,
		run: func() error {
			return e.setStatus(&order, to, domain.EventOrderReturned, map[string]any{
				"returned": quantitiesPayload(returned),
			})
		},
	})

	return e.runSteps(OpReturn, steps)
}

// DiscontinueLowSellers снимает с продажи товары, продажи которых ниже threshold.
// Первая неудачная запись прерывает обход, уже обработанные товары остаются снятыми.
func (e *Engine) DiscontinueLowSellers(threshold int) (report Report, err error) {
	defer e.observe(OpDiscontinueLowSellers)(&err)

	products, err := e.products.List()
	if err != nil {
		return Report{Operation: OpDiscontinueLowSellers}, fmt.Errorf("list products: %w", err)
	}

	steps := make([]step, 0, len(products))
	for _, product := range products {
		updated, matched := domain.DiscontinueIfBelowThreshold(product, threshold)
		if !matched {
			continue
		}
		steps = append(steps, step{
			name:   "discontinue",
			target: product.ID,
			run: func() error {
				if err := e.saveProduct(&updated); err != nil {
					return err
				}
				e.emitProductEvent(updated, domain.EventProductDiscontinued, map[string]any{
					"sales_count": updated.SalesCount,
					"threshold":   threshold,
				})
				return nil
			},
		})
	}

	return e.runSteps(OpDiscontinueLowSellers, steps)
}

// AdjustPricingByStock корректирует цену товара по правилу остатка.
// Товар сохраняется даже если цена не изменилась.
func (e *Engine) AdjustPricingByStock(productID string, rule domain.StockPricingRule) (err error) {
	defer e.observe(OpAdjustPricing)(&err)

	if productID == "" {
		return domain.ErrIDRequired
	}
	product, err := e.products.Get(productID)
	if err != nil {
		return err
	}

	updated := domain.ApplyStockPricing(product, rule)
	if err := e.saveProduct(&updated); err != nil {
		return err
	}

	if !updated.Price.Equal(product.Price) {
		e.emitProductEvent(updated, domain.EventProductRepriced, map[string]any{
			"old_price":      product.Price.String(),
			"new_price":      updated.Price.String(),
			"stock_quantity": updated.StockQuantity,
		})
	}
	return nil
}

func (e *Engine) transition(op Operation, orderID string) error {
	order, err := e.loadOrder(orderID)
	if err != nil {
		return err
	}
	if err := guard(op, order.Status); err != nil {
		return err
	}
	to, _ := Target(op)
	return e.setStatus(&order, to, domain.EventOrderStatusChanged, nil)
}

func (e *Engine) loadOrder(orderID string) (domain.Order, error) {
	if orderID == "" {
		return domain.Order{}, domain.ErrIDRequired
	}
	return e.orders.Get(orderID)
}

// checkStock проверяет суммарный запрошенный объём по каждому товару.
func (e *Engine) checkStock(requested map[string]int) error {
	for _, productID := range slices.Sorted(maps.Keys(requested)) {
		product, err := e.products.Get(productID)
		if err != nil {
			return domain.ProductError(productID, err)
		}
		if product.StockQuantity < requested[productID] {
			return domain.ProductError(productID, domain.ErrInsufficientStock)
		}
	}
	return nil
}

// setStatus сохраняет новый статус; при ошибке заказ в памяти возвращается к прежнему статусу.
func (e *Engine) setStatus(order *domain.Order, to domain.OrderStatus, eventType string, payload map[string]any) error {
	from := order.Status
	order.Status = to
	if err := e.saveOrder(order); err != nil {
		order.Status = from
		return err
	}

	if payload == nil {
		payload = make(map[string]any)
	}
	payload["from"] = from
	payload["status"] = to
	if from != to || eventType != domain.EventOrderStatusChanged {
		e.emitOrderEvent(*order, eventType, payload)
	}
	return nil
}

func (e *Engine) saveOrder(order *domain.Order) error {
	order.UpdatedAt = e.now()
	if err := e.orders.Update(*order); err != nil {
		return fmt.Errorf("update order %s: %w", order.ID, err)
	}
	order.Version++
	return nil
}

func (e *Engine) saveProduct(product *domain.Product) error {
	product.UpdatedAt = e.now()
	if err := e.products.Update(*product); err != nil {
		return domain.ProductError(product.ID, err)
	}
	product.Version++
	return nil
}

// updateProduct перечитывает товар, применяет правило и сохраняет результат.
func (e *Engine) updateProduct(productID string, apply func(domain.Product) domain.Product) error {
	product, err := e.products.Get(productID)
	if err != nil {
		return domain.ProductError(productID, err)
	}
	updated := apply(product)
	return e.saveProduct(&updated)
}

func (e *Engine) emitOrderEvent(order domain.Order, eventType string, payload map[string]any) {
	if e.events != nil {
		e.events.Record(domain.AggregateOrder, order.ID, eventType, payload)
	}
	if e.timeline == nil {
		return
	}

	reason, _ := payload["reason"].(string)
	event := domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     eventType,
		Status:   order.Status,
		Reason:   reason,
		Occurred: e.now(),
	}
	if err := e.timeline.Append(event); err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Warn("append timeline event failed")
		return
	}
	e.metrics.RecordTimelineEvent()
}

func (e *Engine) emitProductEvent(product domain.Product, eventType string, payload map[string]any) {
	if e.events != nil {
		e.events.Record(domain.AggregateProduct, product.ID, eventType, payload)
	}
}

func (e *Engine) observe(op Operation) func(*error) {
	finish := e.metrics.StartOperation(string(op))
	return func(err *error) {
		finish(*err)
	}
}

func validateLine(line domain.OrderLine) error {
	if line.ProductID == "" {
		return fmt.Errorf("product_id: %w", domain.ErrIDRequired)
	}
	if line.Quantity <= 0 {
		return domain.ProductError(line.ProductID, domain.ErrItemQtyInvalid)
	}
	if !line.Price.IsPositive() {
		return domain.ProductError(line.ProductID, domain.ErrItemPriceInvalid)
	}
	return nil
}

func validateQuantities(orderID string, items []domain.LineQuantity) error {
	if orderID == "" {
		return domain.ErrIDRequired
	}
	if len(items) == 0 {
		return domain.ErrItemsRequired
	}
	for _, item := range items {
		if item.ProductID == "" {
			return fmt.Errorf("product_id: %w", domain.ErrIDRequired)
		}
		if item.Quantity <= 0 {
			return domain.ProductError(item.ProductID, domain.ErrItemQtyInvalid)
		}
	}
	return nil
}

// shipLines списывает отгрузку с копии позиций по порядку: каждая строка
// уменьшает первую позицию с тем же товаром, обнулённая позиция удаляется
// до разбора следующей строки.
func shipLines(lines []domain.OrderLine, items []domain.LineQuantity) ([]domain.OrderLine, error) {
	remaining := slices.Clone(lines)
	for _, item := range items {
		idx := slices.IndexFunc(remaining, func(l domain.OrderLine) bool { return l.ProductID == item.ProductID })
		if idx < 0 {
			return nil, domain.ProductError(item.ProductID, domain.ErrOrderLineNotFound)
		}
		if remaining[idx].Quantity < item.Quantity {
			return nil, domain.ProductError(item.ProductID, domain.ErrLineQuantityExceeded)
		}
		remaining[idx].Quantity -= item.Quantity
		if remaining[idx].Quantity == 0 {
			remaining = slices.Delete(remaining, idx, idx+1)
		}
	}
	return remaining, nil
}

// checkReturnedLines сверяет каждую строку возврата отдельно с первой позицией того же товара.
// Позиции заказа при возврате не меняются.
func checkReturnedLines(order domain.Order, items []domain.LineQuantity) error {
	for _, item := range items {
		idx := order.LineIndex(item.ProductID)
		if idx < 0 {
			return domain.ProductError(item.ProductID, domain.ErrOrderLineNotFound)
		}
		if order.Lines[idx].Quantity < item.Quantity {
			return domain.ProductError(item.ProductID, domain.ErrLineQuantityExceeded)
		}
	}
	return nil
}

func skipMissingProduct(err error) error {
	if errors.Is(err, domain.ErrProductNotFound) {
		return nil
	}
	return err
}

func quantitiesPayload(items []domain.LineQuantity) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, map[string]any{"product_id": item.ProductID, "quantity": item.Quantity})
	}
	return out
}
