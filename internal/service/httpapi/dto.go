package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orderstream/internal/domain"
	"github.com/vladislavdragonenkov/orderstream/internal/service/products"
)

type orderLineRequest struct {
	ProductID string          `json:"product_id" validate:"required"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

type createOrderRequest struct {
	CustomerID int64              `json:"customer_id"`
	Items      []orderLineRequest `json:"items" validate:"dive"`
}

type updateItemsRequest struct {
	Items []orderLineRequest `json:"items" validate:"dive"`
}

type changeStatusRequest struct {
	Status domain.OrderStatus `json:"status" validate:"required"`
}

type processRequest struct {
	Stages []domain.OrderStatus `json:"stages"`
}

type lineQuantityRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity"`
}

type lineQuantitiesRequest struct {
	Items []lineQuantityRequest `json:"items" validate:"required,min=1,dive"`
}

type discontinueRequest struct {
	Threshold int `json:"threshold"`
}

type productRequest struct {
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
}

type bulkUpdateItemRequest struct {
	ID string `json:"id" validate:"required"`
	productRequest
}

type bulkUpdateRequest struct {
	Items []bulkUpdateItemRequest `json:"items" validate:"required,min=1,dive"`
}

type restockRequest struct {
	Quantity int `json:"quantity"`
}

type discountRequest struct {
	Percentage decimal.Decimal `json:"percentage"`
}

type adjustPricingRequest struct {
	LowStockThreshold  int             `json:"low_stock_threshold"`
	IncreasePercentage decimal.Decimal `json:"increase_percentage"`
	HighStockThreshold int             `json:"high_stock_threshold"`
	DecreasePercentage decimal.Decimal `json:"decrease_percentage"`
}

type orderLineResponse struct {
	ProductID string          `json:"product_id"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type orderResponse struct {
	ID          string              `json:"id"`
	CustomerID  int64               `json:"customer_id"`
	Items       []orderLineResponse `json:"items"`
	TotalAmount decimal.Decimal     `json:"total_amount"`
	Status      domain.OrderStatus  `json:"status"`
	StatusCode  int                 `json:"status_code"`
	OrderDate   time.Time           `json:"order_date"`
	Version     int64               `json:"version"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

type productResponse struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	StockQuantity  int             `json:"stock_quantity"`
	SalesCount     int             `json:"sales_count"`
	IsArchived     bool            `json:"is_archived"`
	IsDiscontinued bool            `json:"is_discontinued"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type timelineEventResponse struct {
	Type     string             `json:"type"`
	Status   domain.OrderStatus `json:"status"`
	Reason   string             `json:"reason,omitempty"`
	Occurred time.Time          `json:"occurred"`
}

type listResponse[T any] struct {
	Data []T `json:"data"`
}

func (r orderLineRequest) toDomain() domain.OrderLine {
	return domain.OrderLine{ProductID: r.ProductID, Price: r.Price, Quantity: r.Quantity}
}

func toOrderLines(items []orderLineRequest) []domain.OrderLine {
	lines := make([]domain.OrderLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, item.toDomain())
	}
	return lines
}

func toLineQuantities(items []lineQuantityRequest) []domain.LineQuantity {
	quantities := make([]domain.LineQuantity, 0, len(items))
	for _, item := range items {
		quantities = append(quantities, domain.LineQuantity{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return quantities
}

func (r productRequest) toDraft() domain.ProductDraft {
	return domain.ProductDraft{Name: r.Name, Price: r.Price, StockQuantity: r.StockQuantity}
}

func (r bulkUpdateRequest) toUpdates() []products.Update {
	updates := make([]products.Update, 0, len(r.Items))
	for _, item := range r.Items {
		updates = append(updates, products.Update{ID: item.ID, ProductDraft: item.toDraft()})
	}
	return updates
}

func newOrderResponse(o domain.Order) orderResponse {
	items := make([]orderLineResponse, 0, len(o.Lines))
	for _, l := range o.Lines {
		items = append(items, orderLineResponse{
			ProductID: l.ProductID,
			Price:     l.Price,
			Quantity:  l.Quantity,
			Subtotal:  l.Subtotal(),
		})
	}
	return orderResponse{
		ID:          o.ID,
		CustomerID:  o.CustomerID,
		Items:       items,
		TotalAmount: o.TotalAmount,
		Status:      o.Status,
		StatusCode:  o.Status.Code(),
		OrderDate:   o.OrderDate,
		Version:     o.Version,
		UpdatedAt:   o.UpdatedAt,
	}
}

func newOrderList(list []domain.Order) listResponse[orderResponse] {
	data := make([]orderResponse, 0, len(list))
	for _, o := range list {
		data = append(data, newOrderResponse(o))
	}
	return listResponse[orderResponse]{Data: data}
}

func newProductResponse(p domain.Product) productResponse {
	return productResponse{
		ID:             p.ID,
		Name:           p.Name,
		Price:          p.Price,
		StockQuantity:  p.StockQuantity,
		SalesCount:     p.SalesCount,
		IsArchived:     p.IsArchived,
		IsDiscontinued: p.IsDiscontinued,
		Version:        p.Version,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func newProductList(list []domain.Product) listResponse[productResponse] {
	data := make([]productResponse, 0, len(list))
	for _, p := range list {
		data = append(data, newProductResponse(p))
	}
	return listResponse[productResponse]{Data: data}
}

func newTimelineList(events []domain.TimelineEvent) listResponse[timelineEventResponse] {
	data := make([]timelineEventResponse, 0, len(events))
	for _, e := range events {
		data = append(data, timelineEventResponse{
			Type:     e.Type,
			Status:   e.Status,
			Reason:   e.Reason,
			Occurred: e.Occurred,
		})
	}
	return listResponse[timelineEventResponse]{Data: data}
}
