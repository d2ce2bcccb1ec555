package products

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstream/internal/domain"
	"github.com/vladislavdragonenkov/orderstream/internal/metrics"
)

const (
	opCreate     = "product.create"
	opUpdate     = "product.update"
	opDelete     = "product.delete"
	opRestock    = "product.restock"
	opDiscount   = "product.discount"
	opArchive    = "product.archive"
	opBulkUpdate = "product.bulk_update"
)

var maxDiscount = decimal.NewFromInt(100)

// EventRecorder ставит доменное событие в очередь публикации.
type EventRecorder interface {
	Record(aggregateType, aggregateID, eventType string, payload map[string]any)
}

// Update — обновление одного товара в BulkUpdate.
type Update struct {
	ID string
	domain.ProductDraft
}

// Service реализует операции каталога товаров.
type Service struct {
	repo    domain.ProductRepository
	events  EventRecorder
	metrics *metrics.LifecycleMetrics
	logger  *log.Entry
	now     func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithEvents задаёт получателя доменных событий.
func WithEvents(recorder EventRecorder) Option {
	return func(s *Service) {
		s.events = recorder
	}
}

// WithMetrics задаёт метрики операций.
func WithMetrics(m *metrics.LifecycleMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService создаёт сервис товаров.
func NewService(repo domain.ProductRepository, opts ...Option) *Service {
	s := &Service{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "products")
	}
	return s
}

// Create заводит товар: имя обязательно, цена и остаток больше нуля.
func (s *Service) Create(draft domain.ProductDraft) (product domain.Product, err error) {
	defer s.observe(opCreate)(&err)

	if err := draft.ValidateForCreate(); err != nil {
		return domain.Product{}, err
	}

	product, err = s.repo.Add(domain.Product{
		Name:          draft.Name,
		Price:         draft.Price,
		StockQuantity: draft.StockQuantity,
	})
	if err != nil {
		return domain.Product{}, fmt.Errorf("add product: %w", err)
	}

	s.emit(product, domain.EventProductCreated, map[string]any{
		"name":           product.Name,
		"price":          product.Price.String(),
		"stock_quantity": product.StockQuantity,
	})
	s.logger.WithField("product_id", product.ID).Info("product created")
	return product, nil
}

// Get возвращает товар по идентификатору.
func (s *Service) Get(id string) (domain.Product, error) {
	if id == "" {
		return domain.Product{}, domain.ErrIDRequired
	}
	return s.repo.Get(id)
}

// List возвращает все товары.
func (s *Service) List() ([]domain.Product, error) {
	products, err := s.repo.List()
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// ListOutOfStock возвращает товары с нулевым остатком.
func (s *Service) ListOutOfStock() ([]domain.Product, error) {
	products, err := s.List()
	if err != nil {
		return nil, err
	}

	result := make([]domain.Product, 0)
	for _, p := range products {
		if p.OutOfStock() {
			result = append(result, p)
		}
	}
	return result, nil
}

// Update меняет имя, цену и остаток товара.
func (s *Service) Update(id string, draft domain.ProductDraft) (err error) {
	defer s.observe(opUpdate)(&err)
	return s.update(id, draft)
}

// BulkUpdate обновляет товары по очереди и останавливается на первой ошибке.
// Уже обновлённые товары не откатываются.
func (s *Service) BulkUpdate(updates []Update) (err error) {
	defer s.observe(opBulkUpdate)(&err)

	if len(updates) == 0 {
		return domain.ErrItemsRequired
	}
	for i, u := range updates {
		if err := s.update(u.ID, u.ProductDraft); err != nil {
			if i > 0 {
				s.metrics.RecordPartiallyApplied(opBulkUpdate)
			}
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}

// Delete удаляет товар.
func (s *Service) Delete(id string) (err error) {
	defer s.observe(opDelete)(&err)

	product, err := s.Get(id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(product.ID); err != nil {
		return domain.ProductError(product.ID, err)
	}

	s.emit(product, domain.EventProductDeleted, nil)
	return nil
}

// Restock пополняет остаток товара на quantity единиц.
func (s *Service) Restock(id string, quantity int) (err error) {
	defer s.observe(opRestock)(&err)

	if quantity <= 0 {
		return domain.ErrRestockQtyInvalid
	}
	product, err := s.mutate(id, func(p domain.Product) domain.Product {
		return domain.ApplyStockDelta(p, quantity)
	})
	if err != nil {
		return err
	}

	s.emit(product, domain.EventProductRestocked, map[string]any{
		"quantity":       quantity,
		"stock_quantity": product.StockQuantity,
	})
	return nil
}

// Discount снижает цену на percentage процентов, 0 < percentage <= 100.
func (s *Service) Discount(id string, percentage decimal.Decimal) (err error) {
	defer s.observe(opDiscount)(&err)

	if !percentage.IsPositive() || percentage.GreaterThan(maxDiscount) {
		return domain.ErrPercentageInvalid
	}

	var oldPrice decimal.Decimal
	product, err := s.mutate(id, func(p domain.Product) domain.Product {
		oldPrice = p.Price
		return domain.ApplyPercentagePriceChange(p, percentage, domain.PriceDecrease)
	})
	if err != nil {
		return err
	}

	s.emit(product, domain.EventProductRepriced, map[string]any{
		"old_price":  oldPrice.String(),
		"new_price":  product.Price.String(),
		"percentage": percentage.String(),
	})
	return nil
}

// Archive обнуляет цену и остаток и помечает товар архивным. Повторный вызов безопасен.
func (s *Service) Archive(id string) (err error) {
	defer s.observe(opArchive)(&err)

	product, err := s.mutate(id, domain.Archive)
	if err != nil {
		return err
	}

	s.emit(product, domain.EventProductArchived, nil)
	return nil
}

func (s *Service) update(id string, draft domain.ProductDraft) error {
	if err := draft.ValidateForUpdate(); err != nil {
		return err
	}
	product, err := s.mutate(id, func(p domain.Product) domain.Product {
		p.Name = draft.Name
		p.Price = draft.Price
		p.StockQuantity = draft.StockQuantity
		return p
	})
	if err != nil {
		return err
	}

	s.emit(product, domain.EventProductUpdated, map[string]any{
		"name":           product.Name,
		"price":          product.Price.String(),
		"stock_quantity": product.StockQuantity,
	})
	return nil
}

// mutate читает товар, применяет apply и сохраняет результат.
func (s *Service) mutate(id string, apply func(domain.Product) domain.Product) (domain.Product, error) {
	product, err := s.Get(id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := apply(product)
	updated.UpdatedAt = s.now()
	if err := s.repo.Update(updated); err != nil {
		return domain.Product{}, domain.ProductError(id, err)
	}
	updated.Version++
	return updated, nil
}

func (s *Service) emit(product domain.Product, eventType string, payload map[string]any) {
	if s.events == nil {
		return
	}
	s.events.Record(domain.AggregateProduct, product.ID, eventType, payload)
}

func (s *Service) observe(op string) func(*error) {
	finish := s.metrics.StartOperation(op)
	return func(err *error) {
		finish(*err)
	}
}
