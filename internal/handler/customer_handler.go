package handler

import (
	"net/http"

	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type CustomerHandler struct {
	customerService service.CustomerService
	ledgerService   service.LedgerService
}

func NewCustomerHandler(customerService service.CustomerService, ledgerService service.LedgerService) *CustomerHandler {
	return &CustomerHandler{
		customerService: customerService,
		ledgerService:   ledgerService,
	}
}

func (h *CustomerHandler) RegisterRoutes(router *gin.RouterGroup) {
	customers := router.Group("/api/customers")
	{
		customers.POST("", h.CreateCustomer)
		customers.GET("", h.ListCustomers)
		customers.GET("/:id", h.GetCustomer)
		customers.PUT("/:id", h.UpdateCustomer)
		customers.GET("/:id/credit", h.GetCreditSummary)
		customers.GET("/:id/aging", h.GetAging)
		customers.GET("/:id/ledger", h.ListLedgerEntries)
		customers.POST("/:id/adjustments", h.CreateAdjustment)
	}
}

// CreateCustomer registers a new customer
// @Summary      Create customer
// @Description  Registers a new customer with tax condition and credit limit
// @Tags         customers
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateCustomerRequest  true  "Create Customer Payload"
// @Success      201      {object}  response.Response{data=model.Customer}
// @Failure      400      {object}  response.Response
// @Router       /api/customers [post]
func (h *CustomerHandler) CreateCustomer(c *gin.Context) {
	var req service.CreateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	customer, err := h.customerService.Create(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, customer))
}

// ListCustomers returns a paginated customer list
// @Summary      List customers
// @Tags         customers
// @Security     BearerAuth
// @Produce      json
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Items per page (default 20)"
// @Success      200    {object}  response.Response{data=response.Page}
// @Router       /api/customers [get]
func (h *CustomerHandler) ListCustomers(c *gin.Context) {
	params := pagination.Parse(c)
	customers, total, err := h.customerService.List(c.Request.Context(), params.Page, params.Limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, customers, total, params.Page, params.Limit))
}

// GetCustomer returns a single customer
// @Summary      Get customer
// @Tags         customers
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Customer ID"
// @Success      200  {object}  response.Response{data=model.Customer}
// @Failure      404  {object}  response.Response
// @Router       /api/customers/{id} [get]
func (h *CustomerHandler) GetCustomer(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	customer, err := h.customerService.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, customer))
}

// UpdateCustomer updates customer master data
// @Summary      Update customer
// @Tags         customers
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                         true  "Customer ID"
// @Param        payload  body      service.UpdateCustomerRequest  true  "Update Customer Payload"
// @Success      200      {object}  response.Response{data=model.Customer}
// @Failure      400      {object}  response.Response
// @Router       /api/customers/{id} [put]
func (h *CustomerHandler) UpdateCustomer(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.UpdateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	customer, err := h.customerService.Update(c.Request.Context(), id, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, customer))
}

// GetCreditSummary returns the advisory credit position
// @Summary      Get credit summary
// @Description  Returns balance, available credit and utilization status
// @Tags         customers
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Customer ID"
// @Success      200  {object}  response.Response{data=service.CreditSummary}
// @Failure      404  {object}  response.Response
// @Router       /api/customers/{id}/credit [get]
func (h *CustomerHandler) GetCreditSummary(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	summary, err := h.ledgerService.Summary(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, summary))
}

// GetAging returns outstanding sales bucketed by age
// @Summary      Get receivables aging
// @Description  Buckets outstanding sales into 0-30, 31-60, 61-90 and 90+ days
// @Tags         customers
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Customer ID"
// @Success      200  {object}  response.Response{data=[]service.AgingBucket}
// @Router       /api/customers/{id}/aging [get]
func (h *CustomerHandler) GetAging(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	buckets, err := h.ledgerService.Aging(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, buckets))
}

// ListLedgerEntries returns the customer's ledger movements
// @Summary      List ledger entries
// @Tags         customers
// @Security     BearerAuth
// @Produce      json
// @Param        id     path      string  true   "Customer ID"
// @Param        page   query     int     false  "Page number (default 1)"
// @Param        limit  query     int     false  "Items per page (default 20)"
// @Success      200    {object}  response.Response{data=response.Page}
// @Router       /api/customers/{id}/ledger [get]
func (h *CustomerHandler) ListLedgerEntries(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	params := pagination.Parse(c)
	entries, total, err := h.ledgerService.Entries(c.Request.Context(), id, params.Page, params.Limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, entries, total, params.Page, params.Limit))
}

// CreateAdjustment posts a manual ledger adjustment
// @Summary      Create ledger adjustment
// @Description  Posts a manual charge or discount with a mandatory concept
// @Tags         customers
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                     true  "Customer ID"
// @Param        payload  body      service.AdjustmentRequest  true  "Adjustment Payload"
// @Success      201      {object}  response.Response{data=model.LedgerEntry}
// @Failure      400      {object}  response.Response
// @Router       /api/customers/{id}/adjustments [post]
func (h *CustomerHandler) CreateAdjustment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.AdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	entry, err := h.ledgerService.Adjust(c.Request.Context(), id, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, entry))
}
