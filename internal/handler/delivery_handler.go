package handler

import (
	"net/http"

	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type DeliveryHandler struct {
	deliveryService service.DeliveryService
}

func NewDeliveryHandler(deliveryService service.DeliveryService) *DeliveryHandler {
	return &DeliveryHandler{deliveryService: deliveryService}
}

func (h *DeliveryHandler) RegisterRoutes(router *gin.RouterGroup) {
	deliveries := router.Group("/api/delivery-notes")
	{
		deliveries.POST("", h.GenerateDeliveryNote)
		deliveries.GET("", h.ListDeliveryNotes)
		deliveries.GET("/:id", h.GetDeliveryNote)
		deliveries.PUT("/:id/status", h.ChangeStatus)
		deliveries.PUT("/:id/quantities", h.UpdateQuantities)
	}
}

// GenerateDeliveryNote issues a delivery note for a confirmed sale
// @Summary      Generate delivery note
// @Description  Issues a pending delivery note copying the sale's lines
// @Tags         delivery-notes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.GenerateDeliveryNoteRequest  true  "Generate Payload"
// @Success      201      {object}  response.Response{data=model.DeliveryNote}
// @Failure      409      {object}  response.Response
// @Router       /api/delivery-notes [post]
func (h *DeliveryHandler) GenerateDeliveryNote(c *gin.Context) {
	var req service.GenerateDeliveryNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	note, err := h.deliveryService.GenerateFromSale(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, note))
}

// ListDeliveryNotes returns a paginated delivery note list
// @Summary      List delivery notes
// @Tags         delivery-notes
// @Security     BearerAuth
// @Produce      json
// @Param        status  query     string  false  "Filter by status (pending, in_transit, delivered, returned, cancelled)"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Items per page (default 20)"
// @Success      200     {object}  response.Response{data=response.Page}
// @Router       /api/delivery-notes [get]
func (h *DeliveryHandler) ListDeliveryNotes(c *gin.Context) {
	params := pagination.Parse(c)
	notes, total, err := h.deliveryService.List(c.Request.Context(), c.Query("status"), params.Page, params.Limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, notes, total, params.Page, params.Limit))
}

// GetDeliveryNote returns a single delivery note with items
// @Summary      Get delivery note
// @Tags         delivery-notes
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Delivery Note ID"
// @Success      200  {object}  response.Response{data=model.DeliveryNote}
// @Failure      404  {object}  response.Response
// @Router       /api/delivery-notes/{id} [get]
func (h *DeliveryHandler) GetDeliveryNote(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	note, err := h.deliveryService.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, note))
}

// ChangeStatus moves the delivery note through its lifecycle
// @Summary      Change delivery note status
// @Description  Applies a legal status transition; delivered needs receiver_name, cancelled needs reason
// @Tags         delivery-notes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                               true  "Delivery Note ID"
// @Param        payload  body      service.ChangeDeliveryStatusRequest  true  "Status Payload"
// @Success      200      {object}  response.Response{data=model.DeliveryNote}
// @Failure      409      {object}  response.Response
// @Router       /api/delivery-notes/{id}/status [put]
func (h *DeliveryHandler) ChangeStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.ChangeDeliveryStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	note, err := h.deliveryService.ChangeStatus(c.Request.Context(), id, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, note))
}

// UpdateQuantities records partially delivered quantities
// @Summary      Update delivered quantities
// @Description  Records delivered quantities per line while the note is pending or in transit
// @Tags         delivery-notes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                                    true  "Delivery Note ID"
// @Param        payload  body      service.UpdateDeliveredQuantitiesRequest  true  "Quantities Payload"
// @Success      200      {object}  response.Response{data=model.DeliveryNote}
// @Failure      409      {object}  response.Response
// @Router       /api/delivery-notes/{id}/quantities [put]
func (h *DeliveryHandler) UpdateQuantities(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.UpdateDeliveredQuantitiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	note, err := h.deliveryService.UpdateDeliveredQuantities(c.Request.Context(), id, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, note))
}
