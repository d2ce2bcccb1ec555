package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (a *API) handleListProducts(c *gin.Context) {
	list, err := a.productSvc.List()
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newProductList(list))
}

func (a *API) handleListOutOfStock(c *gin.Context) {
	list, err := a.productSvc.ListOutOfStock()
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newProductList(list))
}

func (a *API) handleGetProduct(c *gin.Context) {
	product, err := a.productSvc.Get(c.Param("id"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newProductResponse(product))
}

func (a *API) handleCreateProduct(c *gin.Context) {
	var req productRequest
	if err := a.bind(c, &req); err != nil {
		a.respondError(c, err)
		return
	}
	product, err := a.productSvc.Create(req.toDraft())
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.Header("Location", "/products/"+product.ID)
	c.JSON(http.StatusCreated, newProductResponse(product))
}

func (a *API) handleUpdateProduct(c *gin.Context) {
	var req productRequest
	if err := a.bind(c, &req); err != nil {
		a.respondError(c, err)
		return
	}
	if err := a.productSvc.Update(c.Param("id"), req.toDraft()); err != nil {
		a.respondError(c, err)
		return
	}
	noContent(c)
}

func (a *API) handleBulkUpdate(c *gin.Context) {
	var req bulkUpdateRequest
	if err := a.bind(c, &req); err != nil {
		a.respondError(c, err)
		return
	}
	if err := a.productSvc.BulkUpdate(req.toUpdates()); err != nil {
		a.respondError(c, err)
		return
	}
	noContent(c)
}

func (a *API) handleRestock(c *gin.Context) {
	var req restockRequest
	if err := a.bind(c, &req); err != nil {
		a.respondError(c, err)
		return
	}
	if err := a.productSvc.Restock(c.Param("id"), req.Quantity); err != nil {
		a.respondError(c, err)
		return
	}
	noContent(c)
}

func (a *API) handleDiscount(c *gin.Context) {
	var req discountRequest
	if err := a.bind(c, &req); err != nil {
		a.respondError(c, err)
		return
	}
	if err := a.productSvc.Discount(c.Param("id"), req.Percentage); err != nil {
		a.respondError(c, err)
		return
	}
	noContent(c)
}

func (a *API) handleAdjustPricing(c *gin.Context) {
	var req adjustPricingRequest
	if err := a.bind(c, &req); err != nil {
		a.respondError(c, err)
		return
	}
	err := a.orderSvc.AdjustProductPricingBasedOnStock(c.Param("id"),
		req.LowStockThreshold, req.IncreasePercentage,
		req.HighStockThreshold, req.DecreasePercentage)
	if err != nil {
		a.respondError(c, err)
		return
	}
	noContent(c)
}

// productCommand оборачивает операцию над товаром без тела запроса.
func (a *API) productCommand(run func(id string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := run(c.Param("id")); err != nil {
			a.respondError(c, err)
			return
		}
		noContent(c)
	}
}
