package api

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"qrtrack/internal/apperr"
	"qrtrack/internal/service"
	"qrtrack/internal/types"
)

func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		types.Fail(c, apperr.Validation("limit must be a non-negative integer"))
		return 0, false
	}
	return n, true
}

func queryPeriod(c *gin.Context) (service.Period, bool) {
	p, err := service.ParsePeriod(c.Query("period"))
	if err != nil {
		types.Fail(c, err)
		return "", false
	}
	return p, true
}

func (h *Handler) DeviceAnalytics(c *gin.Context) {
	owner, ok := ownerScope(c)
	if !ok {
		return
	}
	out, err := h.analytics.DeviceBreakdown(c.Request.Context(), owner)
	if err != nil {
		types.Fail(c, err)
		return
	}
	types.OK(c, out)
}

func (h *Handler) ActivityAnalytics(c *gin.Context) {
	owner, ok := ownerScope(c)
	if !ok {
		return
	}
	period, ok := queryPeriod(c)
	if !ok {
		return
	}
	out, err := h.analytics.Activity(c.Request.Context(), owner, period)
	if err != nil {
		types.Fail(c, err)
		return
	}
	types.OK(c, out)
}

func (h *Handler) CategoryAnalytics(c *gin.Context) {
	owner, ok := ownerScope(c)
	if !ok {
		return
	}
	out, err := h.analytics.CategoryPerformance(c.Request.Context(), owner)
	if err != nil {
		types.Fail(c, err)
		return
	}
	types.OK(c, out)
}

func (h *Handler) QRCodeAnalytics(c *gin.Context) {
	owner, ok := ownerScope(c)
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	out, err := h.analytics.QRCodePerformance(c.Request.Context(), owner, limit)
	if err != nil {
		types.Fail(c, err)
		return
	}
	types.OK(c, out)
}

func (h *Handler) OverviewAnalytics(c *gin.Context) {
	owner, ok := ownerScope(c)
	if !ok {
		return
	}
	period, ok := queryPeriod(c)
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	out, err := h.analytics.Overview(c.Request.Context(), owner, period, limit)
	if err != nil {
		types.Fail(c, err)
		return
	}
	types.OK(c, out)
}
