package domain

// Типы событий, которые сервис пишет в outbox и timeline.
const (
	EventOrderCreated          = "OrderCreated"
	EventOrderStatusChanged    = "OrderStatusChanged"
	EventOrderItemsUpdated     = "OrderItemsUpdated"
	EventOrderPartiallyShipped = "OrderPartiallyShipped"
	EventOrderReturned         = "OrderReturned"
	EventOrderDeleted          = "OrderDeleted"

	EventProductCreated      = "ProductCreated"
	EventProductUpdated      = "ProductUpdated"
	EventProductRestocked    = "ProductRestocked"
	EventProductRepriced     = "ProductRepriced"
	EventProductArchived     = "ProductArchived"
	EventProductDiscontinued = "ProductDiscontinued"
	EventProductDeleted      = "ProductDeleted"
)
