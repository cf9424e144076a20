package handler

import (
	"net/http"

	"backend/internal/repository"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type InvoiceHandler struct {
	invoiceService service.InvoiceService
}

func NewInvoiceHandler(invoiceService service.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoiceService: invoiceService}
}

func (h *InvoiceHandler) RegisterRoutes(router *gin.RouterGroup) {
	invoices := router.Group("/api/invoices")
	{
		invoices.POST("", h.CreateInvoice)
		invoices.POST("/manual", h.CreateManualInvoice)
		invoices.GET("", h.ListInvoices)
		invoices.GET("/:id", h.GetInvoice)
		invoices.PUT("/:id/authorize", h.AuthorizeInvoice)
		invoices.POST("/:id/void", h.VoidInvoice)
	}
}

// CreateInvoice creates a draft invoice from one or more sales
// @Summary      Create invoice from sales
// @Description  Creates a draft invoice covering one or more same-customer sales
// @Tags         invoices
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateInvoiceFromSalesRequest  true  "Create Invoice Payload"
// @Success      201      {object}  response.Response{data=model.Invoice}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/invoices [post]
func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
	var req service.CreateInvoiceFromSalesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	invoice, err := h.invoiceService.CreateFromSales(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, invoice))
}

// CreateManualInvoice creates a draft invoice with free-form lines
// @Summary      Create manual invoice
// @Description  Creates a draft invoice not linked to any sale
// @Tags         invoices
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateManualInvoiceRequest  true  "Create Manual Invoice Payload"
// @Success      201      {object}  response.Response{data=model.Invoice}
// @Failure      400      {object}  response.Response
// @Router       /api/invoices/manual [post]
func (h *InvoiceHandler) CreateManualInvoice(c *gin.Context) {
	var req service.CreateManualInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	invoice, err := h.invoiceService.CreateManual(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, invoice))
}

// ListInvoices returns a paginated invoice list
// @Summary      List invoices
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        customer_id  query     string  false  "Filter by customer"
// @Param        state        query     string  false  "Filter by authorization state (draft, authorized, rejected, voided, error)"
// @Param        number       query     string  false  "Filter by document number"
// @Param        page         query     int     false  "Page number (default 1)"
// @Param        limit        query     int     false  "Items per page (default 20)"
// @Success      200          {object}  response.Response{data=response.Page}
// @Router       /api/invoices [get]
func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	customerID, ok := queryCustomerID(c)
	if !ok {
		return
	}
	params := pagination.Parse(c)

	filter := repository.InvoiceListFilter{
		CustomerID:         customerID,
		AuthorizationState: c.Query("state"),
		Number:             c.Query("number"),
		Page:               params.Page,
		Limit:              params.Limit,
	}
	invoices, total, err := h.invoiceService.List(c.Request.Context(), filter)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, invoices, total, params.Page, params.Limit))
}

// GetInvoice returns a single invoice with items and credit notes
// @Summary      Get invoice
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=model.Invoice}
// @Failure      404  {object}  response.Response
// @Router       /api/invoices/{id} [get]
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	invoice, err := h.invoiceService.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

// AuthorizeInvoice submits the invoice to the tax authority
// @Summary      Authorize invoice
// @Description  Submits the invoice for fiscal authorization; never retried automatically
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=model.Invoice}
// @Failure      409  {object}  response.Response
// @Failure      502  {object}  response.Response
// @Router       /api/invoices/{id}/authorize [put]
func (h *InvoiceHandler) AuthorizeInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	invoice, err := h.invoiceService.Authorize(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

// VoidInvoice voids an authorized invoice through a credit note
// @Summary      Void invoice
// @Description  Issues an authorized credit note for a full or partial reversal
// @Tags         invoices
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                      true  "Invoice ID"
// @Param        payload  body      service.VoidInvoiceRequest  true  "Void Payload"
// @Success      201      {object}  response.Response{data=model.CreditNote}
// @Failure      409      {object}  response.Response
// @Failure      502      {object}  response.Response
// @Router       /api/invoices/{id}/void [post]
func (h *InvoiceHandler) VoidInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.VoidInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	note, err := h.invoiceService.Void(c.Request.Context(), id, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, note))
}
