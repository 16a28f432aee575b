package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"qrtrack/internal/apperr"
	"qrtrack/internal/logging"
	"qrtrack/internal/service"
)

// VerifyResponse is returned by verify and scan-verify.
type VerifyResponse struct {
	Success bool                `json:"success"`
	Valid   bool                `json:"valid"`
	QRCode  *service.QRCodeView `json:"qrCode,omitempty"`
	Message string              `json:"message,omitempty"`
}

const invalidCodePage = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Invalid QR code</title></head>
<body>
<h1>Invalid QR code</h1>
<p>This QR code does not exist or is no longer active.</p>
</body>
</html>
`

const unavailablePage = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Temporarily unavailable</title></head>
<body>
<h1>Temporarily unavailable</h1>
<p>Please scan the code again in a moment.</p>
</body>
</html>
`

func verifyFailure(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logging.Ctx(c.Request.Context()).Error().Err(err).Str("code_id", c.Param("codeId")).Msg("Verify failed")
	}
	message := apperr.Message(err)
	if apperr.IsInvalidCode(err) {
		message = "invalid QR code"
	}
	c.JSON(status, VerifyResponse{Success: false, Valid: false, Message: message})
}

// Verify handles GET /verify/:codeId. It never records a scan.
func (h *Handler) Verify(c *gin.Context) {
	view, err := h.scans.Verify(c.Request.Context(), c.Param("codeId"))
	if err != nil {
		verifyFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, VerifyResponse{Success: true, Valid: true, QRCode: view})
}

// ScanVerify handles POST /verify/:codeId/scan and POST /scan-verify/:codeId.
func (h *Handler) ScanVerify(c *gin.Context) {
	view, err := h.scans.ScanAndVerify(c.Request.Context(), c.Param("codeId"), c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		verifyFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, VerifyResponse{Success: true, Valid: true, QRCode: view})
}

// ScanRedirect handles GET /scan/:codeId: record the scan, then 302 to the destination.
func (h *Handler) ScanRedirect(c *gin.Context) {
	res, err := h.scans.RecordScan(c.Request.Context(), c.Param("codeId"), c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		status := apperr.HTTPStatus(err)
		page := invalidCodePage
		if !apperr.IsInvalidCode(err) {
			page = unavailablePage
			if status < http.StatusInternalServerError {
				status = http.StatusServiceUnavailable
			}
			logging.Ctx(c.Request.Context()).Error().Err(err).Str("code_id", c.Param("codeId")).Msg("Scan failed")
		}
		c.Header("Cache-Control", "no-store")
		c.Data(status, "text/html; charset=utf-8", []byte(page))
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Redirect(http.StatusFound, res.Target.WebsiteURL)
}

// Image handles GET /{namespace}/:codeId.
func (h *Handler) Image(c *gin.Context) {
	data, err := h.qrcodes.Image(c.Request.Context(), c.Param("codeId"))
	if err != nil {
		c.Status(apperr.HTTPStatus(err))
		return
	}
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, "image/png", data)
}

func (h *Handler) Health(c *gin.Context) {
	if err := h.ping(c.Request.Context()); err != nil {
		logging.Ctx(c.Request.Context()).Warn().Err(err).Msg("Health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
