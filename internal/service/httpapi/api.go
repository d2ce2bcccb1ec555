package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstream/internal/metrics"
	"github.com/vladislavdragonenkov/orderstream/internal/service/idempotency"
	"github.com/vladislavdragonenkov/orderstream/internal/service/orders"
	"github.com/vladislavdragonenkov/orderstream/internal/service/products"
)

const maxBodyBytes = 1 << 20

// API — REST-интерфейс сервиса заказов и каталога.
type API struct {
	orderSvc   *orders.Service
	productSvc *products.Service
	guard      *idempotency.Guard
	metrics    *metrics.HTTPMetrics
	validator  *validator.Validate
	logger     *log.Entry
}

// Dependencies — зависимости API. Guard и Metrics необязательны.
type Dependencies struct {
	Orders   *orders.Service
	Products *products.Service
	Guard    *idempotency.Guard
	Metrics  *metrics.HTTPMetrics
	Logger   *log.Entry
}

// NewAPI создаёт API.
func NewAPI(deps Dependencies) *API {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "httpapi")
	}
	return &API{
		orderSvc:   deps.Orders,
		productSvc: deps.Products,
		guard:      deps.Guard,
		metrics:    deps.Metrics,
		validator:  validator.New(),
		logger:     logger,
	}
}

// Router собирает gin-маршрутизатор со всеми маршрутами API.
func (a *API) Router() *gin.Engine {
	r := gin.New()
	r.Use(requestID, limitBody, a.requestLogger, a.observe, gin.CustomRecovery(recoverPanic))

	ordersGroup := r.Group("/orders")
	{
		ordersGroup.GET("", a.handleListOrders)
		ordersGroup.POST("", a.idempotent, a.handleCreateOrder)
		ordersGroup.GET("/pending", a.handleListPendingOrders)
		ordersGroup.PUT("/discontinue-low-selling", a.handleDiscontinueLowSelling)

		ordersGroup.GET("/:id", a.handleGetOrder)
		ordersGroup.DELETE("/:id", a.orderCommand(a.orderSvc.Delete))
		ordersGroup.GET("/:id/timeline", a.handleOrderTimeline)
		ordersGroup.PUT("/:id/cancel", a.orderCommand(a.orderSvc.Cancel))
		ordersGroup.PUT("/:id/complete", a.orderCommand(a.orderSvc.Complete))
		ordersGroup.PUT("/:id/refund", a.orderCommand(a.orderSvc.Refund))
		ordersGroup.PUT("/:id/reopen", a.orderCommand(a.orderSvc.Reopen))
		ordersGroup.PUT("/:id/items", a.handleUpdateItems)
		ordersGroup.PUT("/:id/status", a.handleChangeStatus)
		ordersGroup.PUT("/:id/process", a.handleProcessInStages)
		ordersGroup.PUT("/:id/partialship", a.handlePartialShip)
		ordersGroup.PUT("/:id/return", a.handleReturn)
	}

	r.GET("/customers/:customerID/orders", a.handleListCustomerOrders)

	productsGroup := r.Group("/products")
	{
		productsGroup.GET("", a.handleListProducts)
		productsGroup.POST("", a.idempotent, a.handleCreateProduct)
		productsGroup.GET("/outofstock", a.handleListOutOfStock)
		productsGroup.PUT("/bulkupdate", a.handleBulkUpdate)

		productsGroup.GET("/:id", a.handleGetProduct)
		productsGroup.PUT("/:id", a.handleUpdateProduct)
		productsGroup.DELETE("/:id", a.productCommand(a.productSvc.Delete))
		productsGroup.PUT("/:id/restock", a.handleRestock)
		productsGroup.PUT("/:id/discount", a.handleDiscount)
		productsGroup.PUT("/:id/archive", a.productCommand(a.productSvc.Archive))
		productsGroup.PUT("/:id/adjust-pricing", a.handleAdjustPricing)
	}

	return r
}

// bind разбирает JSON-тело и проверяет его теги validate.
func (a *API) bind(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return &requestError{err: err}
	}
	if err := a.validator.Struct(dst); err != nil {
		return &requestError{err: err}
	}
	return nil
}

func parseCustomerID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("customerID"), 10, 64)
	if err != nil {
		return 0, &requestError{err: err}
	}
	return id, nil
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
