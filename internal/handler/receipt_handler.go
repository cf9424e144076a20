package handler

import (
	"net/http"

	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type ReceiptHandler struct {
	receiptService service.ReceiptService
}

func NewReceiptHandler(receiptService service.ReceiptService) *ReceiptHandler {
	return &ReceiptHandler{receiptService: receiptService}
}

func (h *ReceiptHandler) RegisterRoutes(router *gin.RouterGroup) {
	receipts := router.Group("/api/receipts")
	{
		receipts.POST("", h.CreateReceipt)
		receipts.GET("", h.ListReceipts)
		receipts.GET("/:id", h.GetReceipt)
		receipts.POST("/:id/void", h.VoidReceipt)
		receipts.PUT("/:id/amount", h.CorrectAmount)
	}
}

// CreateReceipt records a payment against one or more sales
// @Summary      Create receipt
// @Description  Records a payment split across instruments and allocates it oldest sale first
// @Tags         receipts
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateReceiptRequest  true  "Create Receipt Payload"
// @Success      201      {object}  response.Response{data=model.Receipt}
// @Failure      400      {object}  response.Response
// @Router       /api/receipts [post]
func (h *ReceiptHandler) CreateReceipt(c *gin.Context) {
	var req service.CreateReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	receipt, err := h.receiptService.Create(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, receipt))
}

// ListReceipts returns a paginated receipt list
// @Summary      List receipts
// @Tags         receipts
// @Security     BearerAuth
// @Produce      json
// @Param        customer_id  query     string  false  "Filter by customer"
// @Param        page         query     int     false  "Page number (default 1)"
// @Param        limit        query     int     false  "Items per page (default 20)"
// @Success      200          {object}  response.Response{data=response.Page}
// @Router       /api/receipts [get]
func (h *ReceiptHandler) ListReceipts(c *gin.Context) {
	customerID, ok := queryCustomerID(c)
	if !ok {
		return
	}
	params := pagination.Parse(c)
	receipts, total, err := h.receiptService.List(c.Request.Context(), customerID, params.Page, params.Limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, receipts, total, params.Page, params.Limit))
}

// GetReceipt returns a single receipt with allocations and payments
// @Summary      Get receipt
// @Tags         receipts
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Receipt ID"
// @Success      200  {object}  response.Response{data=model.Receipt}
// @Failure      404  {object}  response.Response
// @Router       /api/receipts/{id} [get]
func (h *ReceiptHandler) GetReceipt(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	receipt, err := h.receiptService.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, receipt))
}

// VoidReceipt voids a receipt and restores the sales it paid
// @Summary      Void receipt
// @Description  Restores every allocated sale to its pre-receipt position
// @Tags         receipts
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                      true  "Receipt ID"
// @Param        payload  body      service.VoidReceiptRequest  true  "Void Payload"
// @Success      200      {object}  response.Response{data=model.Receipt}
// @Failure      409      {object}  response.Response
// @Router       /api/receipts/{id}/void [post]
func (h *ReceiptHandler) VoidReceipt(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.VoidReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	receipt, err := h.receiptService.Void(c.Request.Context(), id, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, receipt))
}

// CorrectAmount fixes a mistyped paid amount
// @Summary      Correct receipt amount
// @Description  Reallocates the difference without touching recorded instruments
// @Tags         receipts
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                         true  "Receipt ID"
// @Param        payload  body      service.CorrectReceiptRequest  true  "Correction Payload"
// @Success      200      {object}  response.Response{data=model.Receipt}
// @Failure      409      {object}  response.Response
// @Router       /api/receipts/{id}/amount [put]
func (h *ReceiptHandler) CorrectAmount(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.CorrectReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	receipt, err := h.receiptService.CorrectAmount(c.Request.Context(), id, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, receipt))
}
