package handler

import (
	"net/http"

	"backend/internal/repository"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type SaleHandler struct {
	saleService service.SaleService
}

func NewSaleHandler(saleService service.SaleService) *SaleHandler {
	return &SaleHandler{saleService: saleService}
}

func (h *SaleHandler) RegisterRoutes(router *gin.RouterGroup) {
	sales := router.Group("/api/sales")
	{
		sales.POST("", h.CreateSale)
		sales.GET("", h.ListSales)
		sales.GET("/:id", h.GetSale)
		sales.PUT("/:id", h.UpdateSale)
		sales.PUT("/:id/confirm", h.ConfirmSale)
		sales.PUT("/:id/cancel", h.CancelSale)
	}
}

// CreateSale creates a draft sale
// @Summary      Create sale
// @Description  Creates a draft sale; no ledger or stock effect until confirmation
// @Tags         sales
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateSaleRequest  true  "Create Sale Payload"
// @Success      201      {object}  response.Response{data=model.Sale}
// @Failure      400      {object}  response.Response
// @Router       /api/sales [post]
func (h *SaleHandler) CreateSale(c *gin.Context) {
	var req service.CreateSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	sale, err := h.saleService.Create(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, sale))
}

// ListSales returns a paginated sale list with optional state filters
// @Summary      List sales
// @Tags         sales
// @Security     BearerAuth
// @Produce      json
// @Param        customer_id         query     string  false  "Filter by customer"
// @Param        confirmation_state  query     string  false  "Filter by confirmation state (draft, confirmed, cancelled)"
// @Param        collection_state    query     string  false  "Filter by collection state"
// @Param        page                query     int     false  "Page number (default 1)"
// @Param        limit               query     int     false  "Items per page (default 20)"
// @Success      200                 {object}  response.Response{data=response.Page}
// @Router       /api/sales [get]
func (h *SaleHandler) ListSales(c *gin.Context) {
	customerID, ok := queryCustomerID(c)
	if !ok {
		return
	}
	params := pagination.Parse(c)

	filter := repository.SaleListFilter{
		CustomerID:        customerID,
		ConfirmationState: c.Query("confirmation_state"),
		CollectionState:   c.Query("collection_state"),
		Page:              params.Page,
		Limit:             params.Limit,
	}
	sales, total, err := h.saleService.List(c.Request.Context(), filter)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, sales, total, params.Page, params.Limit))
}

// GetSale returns a single sale with its items
// @Summary      Get sale
// @Tags         sales
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Sale ID"
// @Success      200  {object}  response.Response{data=model.Sale}
// @Failure      404  {object}  response.Response
// @Router       /api/sales/{id} [get]
func (h *SaleHandler) GetSale(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	sale, err := h.saleService.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, sale))
}

// UpdateSale edits a draft sale
// @Summary      Update sale
// @Description  Edits items, tax flag, timing or note while the sale is a draft
// @Tags         sales
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                     true  "Sale ID"
// @Param        payload  body      service.UpdateSaleRequest  true  "Update Sale Payload"
// @Success      200      {object}  response.Response{data=model.Sale}
// @Failure      409      {object}  response.Response
// @Router       /api/sales/{id} [put]
func (h *SaleHandler) UpdateSale(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.UpdateSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	sale, err := h.saleService.UpdateDraft(c.Request.Context(), id, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, sale))
}

// ConfirmSale confirms a draft sale
// @Summary      Confirm sale
// @Description  Confirms the sale, posts the ledger debit and reserves stock
// @Tags         sales
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Sale ID"
// @Success      200  {object}  response.Response{data=model.Sale}
// @Failure      409  {object}  response.Response
// @Router       /api/sales/{id}/confirm [put]
func (h *SaleHandler) ConfirmSale(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	sale, err := h.saleService.Confirm(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, sale))
}

// CancelSale cancels a sale
// @Summary      Cancel sale
// @Description  Cancels the sale, reversing ledger and stock effects when it was confirmed
// @Tags         sales
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Sale ID"
// @Success      200  {object}  response.Response{data=model.Sale}
// @Failure      409  {object}  response.Response
// @Router       /api/sales/{id}/cancel [put]
func (h *SaleHandler) CancelSale(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	sale, err := h.saleService.Cancel(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, sale))
}
