package handler

import (
	"net/http"

	"backend/pkg/apperror"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// fail maps a service error to the HTTP status of its error kind. Unknown
// errors are reported as 500 without leaking internals.
func fail(c *gin.Context, err error) {
	if appErr, ok := apperror.As(err); ok {
		c.JSON(appErr.HTTPStatus(), response.Error(appErr.HTTPStatus(), appErr.Error()))
		return
	}
	c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "internal error"))
}

// pathID parses the :id path parameter as a UUID, replying 400 on failure.
func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid id: "+err.Error()))
		return uuid.Nil, false
	}
	return id, true
}

// queryCustomerID parses an optional customer_id query filter.
func queryCustomerID(c *gin.Context) (*uuid.UUID, bool) {
	raw := c.Query("customer_id")
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid customer_id: "+err.Error()))
		return nil, false
	}
	return &id, true
}
