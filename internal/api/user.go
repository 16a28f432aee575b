package api

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"qrtrack/internal/apperr"
	"qrtrack/internal/middleware"
	"qrtrack/internal/service"
	"qrtrack/internal/types"
)

func (h *Handler) CreateUser(c *gin.Context) {
	var req service.UserRequest
	if !bindJSON(c, &req) {
		return
	}
	u, err := h.users.Create(c.Request.Context(), req)
	if err != nil {
		types.Fail(c, err)
		return
	}
	types.Created(c, u)
}

// GetUser handles GET /api/users/:id. Users may only read themselves.
func (h *Handler) GetUser(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if !middleware.IsAdmin(c) && id != middleware.UserID(c) {
		types.Fail(c, apperr.ErrForbidden)
		return
	}
	u, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		types.Fail(c, err)
		return
	}
	types.OK(c, u)
}

func (h *Handler) AddWebsiteURL(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req service.WebsiteURLRequest
	if !bindJSON(c, &req) {
		return
	}
	u, err := h.users.AddWebsiteURL(c.Request.Context(), id, req)
	if err != nil {
		types.Fail(c, err)
		return
	}
	types.OK(c, u)
}

func (h *Handler) RemoveWebsiteURL(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		types.Fail(c, apperr.Validation("index must be an integer"))
		return
	}
	u, err := h.users.RemoveWebsiteURL(c.Request.Context(), id, index)
	if err != nil {
		types.Fail(c, err)
		return
	}
	types.OK(c, u)
}
