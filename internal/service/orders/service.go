package orders

import (
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstream/internal/domain"
	"github.com/vladislavdragonenkov/orderstream/internal/service/lifecycle"
)

// Service — фасад операций над заказами. Мутации делегируются lifecycle.Engine,
// запросы читают репозиторий напрямую и ничего не меняют.
type Service struct {
	engine   *lifecycle.Engine
	orders   domain.OrderRepository
	timeline domain.TimelineRepository
	logger   *log.Entry
}

// NewService создаёт фасад заказов.
func NewService(engine *lifecycle.Engine, orders domain.OrderRepository, timeline domain.TimelineRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "orders")
	}
	return &Service{
		engine:   engine,
		orders:   orders,
		timeline: timeline,
		logger:   logger,
	}
}

// Create оформляет заказ клиента.
func (s *Service) Create(customerID int64, lines []domain.OrderLine) (domain.Order, error) {
	return s.engine.Create(customerID, lines)
}

// Get возвращает заказ по идентификатору.
func (s *Service) Get(id string) (domain.Order, error) {
	if id == "" {
		return domain.Order{}, domain.ErrIDRequired
	}
	return s.orders.Get(id)
}

// List возвращает все заказы.
func (s *Service) List() ([]domain.Order, error) {
	orders, err := s.orders.List()
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// ListByCustomer возвращает заказы клиента. Для customerID <= 0 результат пустой.
func (s *Service) ListByCustomer(customerID int64) ([]domain.Order, error) {
	if customerID <= 0 {
		return []domain.Order{}, nil
	}
	return s.filter(func(o domain.Order) bool { return o.CustomerID == customerID })
}

// ListPending возвращает заказы в статусе Pending.
func (s *Service) ListPending() ([]domain.Order, error) {
	return s.filter(func(o domain.Order) bool { return o.Status == domain.OrderStatusPending })
}

// Timeline возвращает события жизненного цикла заказа в хронологическом порядке.
func (s *Service) Timeline(orderID string) ([]domain.TimelineEvent, error) {
	if orderID == "" {
		return nil, domain.ErrIDRequired
	}
	if s.timeline == nil {
		return []domain.TimelineEvent{}, nil
	}
	events, err := s.timeline.List(orderID)
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	if events == nil {
		events = []domain.TimelineEvent{}
	}
	return events, nil
}

// Cancel отменяет заказ.
func (s *Service) Cancel(id string) error { return s.engine.Cancel(id) }

// Complete завершает заказ.
func (s *Service) Complete(id string) error { return s.engine.Complete(id) }

// UpdateItems заменяет позиции заказа.
func (s *Service) UpdateItems(id string, lines []domain.OrderLine) error {
	return s.engine.UpdateItems(id, lines)
}

// ChangeStatus выставляет статус без проверки текущего.
func (s *Service) ChangeStatus(id string, status domain.OrderStatus) error {
	return s.engine.ChangeStatus(id, status)
}

// Refund оформляет возврат денег по завершённому заказу.
func (s *Service) Refund(id string) error { return s.engine.Refund(id) }

// Reopen возвращает отменённый заказ в работу.
func (s *Service) Reopen(id string) error { return s.engine.Reopen(id) }

// Delete удаляет заказ.
func (s *Service) Delete(id string) error { return s.engine.Delete(id) }

// ProcessInStages проводит заказ через последовательность этапов.
func (s *Service) ProcessInStages(id string, stages []domain.OrderStatus) (lifecycle.Report, error) {
	return s.engine.ProcessInStages(id, stages)
}

// PartialShip отгружает часть позиций.
func (s *Service) PartialShip(id string, shipped []domain.LineQuantity) (lifecycle.Report, error) {
	return s.engine.PartialShip(id, shipped)
}

// Return принимает возврат товара по завершённому заказу.
func (s *Service) Return(id string, returned []domain.LineQuantity) (lifecycle.Report, error) {
	return s.engine.Return(id, returned)
}

// DiscontinueLowSellingProducts снимает с продажи товары с продажами ниже порога.
func (s *Service) DiscontinueLowSellingProducts(threshold int) (lifecycle.Report, error) {
	return s.engine.DiscontinueLowSellers(threshold)
}

// AdjustProductPricingBasedOnStock корректирует цену товара по остатку.
func (s *Service) AdjustProductPricingBasedOnStock(productID string, lowStockThreshold int, increasePercentage decimal.Decimal, highStockThreshold int, decreasePercentage decimal.Decimal) error {
	return s.engine.AdjustPricingByStock(productID, domain.StockPricingRule{
		LowStockThreshold:  lowStockThreshold,
		IncreasePercentage: increasePercentage,
		HighStockThreshold: highStockThreshold,
		DecreasePercentage: decreasePercentage,
	})
}

// filter отбирает заказы в памяти по всему списку.
func (s *Service) filter(match func(domain.Order) bool) ([]domain.Order, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}

	result := make([]domain.Order, 0)
	for _, o := range all {
		if match(o) {
			result = append(result, o)
		}
	}
	return result, nil
}
