package api

import (
	"github.com/gin-gonic/gin"

	"qrtrack/internal/apperr"
	"qrtrack/internal/middleware"
	"qrtrack/internal/service"
	"qrtrack/internal/types"
	"qrtrack/models"
)

// IssueQRCode handles POST /api/qrcodes.
func (h *Handler) IssueQRCode(c *gin.Context) {
	var req service.IssueRequest
	if !bindJSON(c, &req) {
		return
	}
	qr, err := h.qrcodes.Issue(c.Request.Context(), req)
	if err != nil {
		types.Fail(c, err)
		return
	}
	types.Created(c, qr)
}

// ListQRCodes handles GET /api/qrcodes.
func (h *Handler) ListQRCodes(c *gin.Context) {
	owner, ok := ownerScope(c)
	if !ok {
		return
	}
	list, err := h.qrcodes.List(c.Request.Context(), owner)
	if err != nil {
		types.Fail(c, err)
		return
	}
	types.OK(c, list)
}

// GetQRCode handles GET /api/qrcodes/:codeId. Users only see their own codes.
func (h *Handler) GetQRCode(c *gin.Context) {
	qr, err := h.qrcodes.Get(c.Request.Context(), c.Param("codeId"))
	if err != nil {
		types.Fail(c, err)
		return
	}
	if !canSee(c, qr) {
		types.Fail(c, apperr.UnknownCode(qr.CodeID))
		return
	}
	types.OK(c, qr)
}

// UpdateQRCode handles PATCH /api/qrcodes/:codeId.
func (h *Handler) UpdateQRCode(c *gin.Context) {
	var req service.UpdateRequest
	if !bindJSON(c, &req) {
		return
	}
	qr, err := h.qrcodes.Update(c.Request.Context(), c.Param("codeId"), req)
	if err != nil {
		types.Fail(c, err)
		return
	}
	types.OK(c, qr)
}

// Reconcile handles POST /api/qrcodes/reconcile.
func (h *Handler) Reconcile(c *gin.Context) {
	fixed, err := h.scans.Reconcile(c.Request.Context())
	if err != nil {
		types.Fail(c, err)
		return
	}
	types.OK(c, gin.H{"reconciled": len(fixed), "drift": fixed})
}

func canSee(c *gin.Context, qr *models.QRCode) bool {
	return middleware.IsAdmin(c) || qr.AssignedToID == middleware.UserID(c)
}
