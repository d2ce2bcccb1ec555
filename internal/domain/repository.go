package domain

// ProductRepository описывает требования к хранилищу товаров.
type ProductRepository interface {
	// Add сохраняет новый товар и возвращает его с назначенным ID.
	Add(product Product) (Product, error)
	// Get возвращает товар или ErrProductNotFound.
	Get(id string) (Product, error)
	// List возвращает полный снимок каталога без гарантии порядка.
	List() ([]Product, error)
	// Update перезаписывает товар по ID.
	Update(product Product) error
	// Delete удаляет товар или возвращает ErrProductNotFound.
	Delete(id string) error
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Add сохраняет новый заказ и возвращает его с назначенным ID.
	Add(order Order) (Order, error)
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id string) (Order, error)
	// List возвращает все заказы без гарантии порядка.
	List() ([]Order, error)
	// Update перезаписывает заказ вместе с позициями.
	Update(order Order) error
	// Delete удаляет заказ независимо от статуса.
	Delete(id string) error
}

// TimelineRepository хранит историю заказа для GET /orders/{id}/timeline.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	// List возвращает события заказа по возрастанию времени.
	List(orderID string) ([]TimelineEvent, error)
}
