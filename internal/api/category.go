package api

import (
	"github.com/gin-gonic/gin"

	"qrtrack/internal/middleware"
	"qrtrack/internal/service"
	"qrtrack/internal/types"
)

func (h *Handler) ListCategories(c *gin.Context) {
	list, err := h.categories.List(c.Request.Context())
	if err != nil {
		types.Fail(c, err)
		return
	}
	types.OK(c, list)
}

func (h *Handler) CreateCategory(c *gin.Context) {
	var req service.CategoryRequest
	if !bindJSON(c, &req) {
		return
	}
	cat, err := h.categories.Create(c.Request.Context(), req, middleware.UserID(c))
	if err != nil {
		types.Fail(c, err)
		return
	}
	types.Created(c, cat)
}

func (h *Handler) UpdateCategory(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req service.CategoryRequest
	if !bindJSON(c, &req) {
		return
	}
	cat, err := h.categories.Update(c.Request.Context(), id, req)
	if err != nil {
		types.Fail(c, err)
		return
	}
	types.OK(c, cat)
}

func (h *Handler) DeleteCategory(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.categories.Delete(c.Request.Context(), id); err != nil {
		types.Fail(c, err)
		return
	}
	types.Message(c, "category deleted")
}
