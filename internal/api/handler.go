// Package api holds the gin handlers of the public scan surfaces and the admin API.
package api

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"qrtrack/internal/apperr"
	"qrtrack/internal/middleware"
	"qrtrack/internal/service"
	"qrtrack/internal/types"
)

// Pinger reports whether the backing store is reachable.
type Pinger func(ctx context.Context) error

type Handler struct {
	qrcodes    *service.QRCodeService
	scans      *service.ScanService
	analytics  *service.AnalyticsService
	categories *service.CategoryService
	users      *service.UserService
	ping       Pinger
}

type Services struct {
	QRCodes    *service.QRCodeService
	Scans      *service.ScanService
	Analytics  *service.AnalyticsService
	Categories *service.CategoryService
	Users      *service.UserService
}

func NewHandler(s Services, ping Pinger) *Handler {
	if ping == nil {
		ping = func(context.Context) error { return nil }
	}
	return &Handler{
		qrcodes:    s.QRCodes,
		scans:      s.Scans,
		analytics:  s.Analytics,
		categories: s.Categories,
		users:      s.Users,
		ping:       ping,
	}
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		types.Fail(c, apperr.Validation("invalid request body: "+err.Error()))
		return false
	}
	return true
}

func uintParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		types.Fail(c, apperr.Validation(name+" must be a positive integer"))
		return 0, false
	}
	return uint(id), true
}

// ownerScope returns the owner a request may read. Non-admins always see their own
// codes; admins see everything unless they pass ?owner=.
func ownerScope(c *gin.Context) (uint, bool) {
	if !middleware.IsAdmin(c) {
		return middleware.UserID(c), true
	}
	raw := c.Query("owner")
	if raw == "" {
		return 0, true
	}
	owner, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		types.Fail(c, apperr.Validation("owner must be a non-negative integer"))
		return 0, false
	}
	return uint(owner), true
}
