package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/orderstream/internal/service/lifecycle"
)

func (a *API) handleListOrders(c *gin.Context) {
	list, err := a.orderSvc.List()
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderList(list))
}

func (a *API) handleListPendingOrders(c *gin.Context) {
	list, err := a.orderSvc.ListPending()
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderList(list))
}

func (a *API) handleListCustomerOrders(c *gin.Context) {
	customerID, err := parseCustomerID(c)
	if err != nil {
		a.respondError(c, err)
		return
	}
	list, err := a.orderSvc.ListByCustomer(customerID)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderList(list))
}

func (a *API) handleGetOrder(c *gin.Context) {
	order, err := a.orderSvc.Get(c.Param("id"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderResponse(order))
}

func (a *API) handleOrderTimeline(c *gin.Context) {
	id := c.Param("id")
	if _, err := a.orderSvc.Get(id); err != nil {
		a.respondError(c, err)
		return
	}
	events, err := a.orderSvc.Timeline(id)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTimelineList(events))
}

func (a *API) handleCreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := a.bind(c, &req); err != nil {
		a.respondError(c, err)
		return
	}
	order, err := a.orderSvc.Create(req.CustomerID, toOrderLines(req.Items))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.Header("Location", "/orders/"+order.ID)
	c.JSON(http.StatusCreated, newOrderResponse(order))
}

// orderCommand оборачивает операцию над заказом без тела запроса.
func (a *API) orderCommand(run func(id string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := run(c.Param("id")); err != nil {
			a.respondError(c, err)
			return
		}
		noContent(c)
	}
}

func (a *API) handleUpdateItems(c *gin.Context) {
	var req updateItemsRequest
	if err := a.bind(c, &req); err != nil {
		a.respondError(c, err)
		return
	}
	if err := a.orderSvc.UpdateItems(c.Param("id"), toOrderLines(req.Items)); err != nil {
		a.respondError(c, err)
		return
	}
	noContent(c)
}

func (a *API) handleChangeStatus(c *gin.Context) {
	var req changeStatusRequest
	if err := a.bind(c, &req); err != nil {
		a.respondError(c, err)
		return
	}
	if err := a.orderSvc.ChangeStatus(c.Param("id"), req.Status); err != nil {
		a.respondError(c, err)
		return
	}
	noContent(c)
}

func (a *API) handleProcessInStages(c *gin.Context) {
	var req processRequest
	if err := a.bind(c, &req); err != nil {
		a.respondError(c, err)
		return
	}
	report, err := a.orderSvc.ProcessInStages(c.Param("id"), req.Stages)
	a.respondReport(c, report, err)
}

func (a *API) handlePartialShip(c *gin.Context) {
	var req lineQuantitiesRequest
	if err := a.bind(c, &req); err != nil {
		a.respondError(c, err)
		return
	}
	report, err := a.orderSvc.PartialShip(c.Param("id"), toLineQuantities(req.Items))
	a.respondReport(c, report, err)
}

func (a *API) handleReturn(c *gin.Context) {
	var req lineQuantitiesRequest
	if err := a.bind(c, &req); err != nil {
		a.respondError(c, err)
		return
	}
	report, err := a.orderSvc.Return(c.Param("id"), toLineQuantities(req.Items))
	a.respondReport(c, report, err)
}

func (a *API) handleDiscontinueLowSelling(c *gin.Context) {
	var req discontinueRequest
	if err := a.bind(c, &req); err != nil {
		a.respondError(c, err)
		return
	}
	report, err := a.orderSvc.DiscontinueLowSellingProducts(req.Threshold)
	a.respondReport(c, report, err)
}

// respondReport отвечает 204 на успешную многошаговую операцию.
// При ошибке применённые шаги попадают в details.
func (a *API) respondReport(c *gin.Context, report lifecycle.Report, err error) {
	if err != nil {
		a.respondError(c, err)
		return
	}
	a.logger.WithField("operation", report.Operation).WithField("steps", len(report.Steps)).Debug("multi-step operation applied")
	noContent(c)
}
