package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/orderstream/internal/domain"
)

// productRepositoryInMemory — простая in-memory реализация ProductRepository.
type productRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Product
	opts  options
}

// NewProductRepository возвращает in-memory каталог для локальной разработки и тестов.
func NewProductRepository(opts ...Option) domain.ProductRepository {
	return &productRepositoryInMemory{
		items: make(map[string]domain.Product),
		opts:  buildOptions(opts),
	}
}

// Add сохраняет новый товар, назначая ID, если он не задан.
func (r *productRepositoryInMemory) Add(product domain.Product) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	if _, exists := r.items[product.ID]; exists {
		return domain.Product{}, domain.ErrProductVersionConflict
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = product.CreatedAt
	}
	r.items[product.ID] = product
	return product, nil
}

// Get возвращает товар или ErrProductNotFound.
func (r *productRepositoryInMemory) Get(id string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// List возвращает снимок всех товаров.
func (r *productRepositoryInMemory) List() ([]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Product, 0, len(r.items))
	for _, product := range r.items {
		result = append(result, product)
	}
	return result, nil
}

// Update перезаписывает товар; в режиме optimistic locking сверяет версию.
func (r *productRepositoryInMemory) Update(product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[product.ID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if r.opts.optimisticLocking && current.Version != product.Version {
		return domain.ErrProductVersionConflict
	}
	product.Version = current.Version + 1
	product.CreatedAt = current.CreatedAt
	r.items[product.ID] = product
	return nil
}

// Delete удаляет товар.
func (r *productRepositoryInMemory) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return domain.ErrProductNotFound
	}
	delete(r.items, id)
	return nil
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
