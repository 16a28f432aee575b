package service

import (
	"context"
	"net/url"
	"strings"
	"time"

	"qrtrack/internal/apperr"
	"qrtrack/internal/logging"
	"qrtrack/internal/metrics"
	"qrtrack/models"
	"qrtrack/utils"
)

type IssueRequest struct {
	UserID       uint   `json:"userId" binding:"required"`
	CategoryID   uint   `json:"categoryId" binding:"required"`
	WebsiteURL   string `json:"websiteURL" binding:"required"`
	WebsiteTitle string `json:"websiteTitle" binding:"required"`
}

// UpdateRequest carries optional admin edits; nil fields are left alone.
type UpdateRequest struct {
	WebsiteURL   *string `json:"websiteURL"`
	WebsiteTitle *string `json:"websiteTitle"`
	CategoryID   *uint   `json:"categoryId"`
	IsActive     *bool   `json:"isActive"`
}

type QRCodeService struct {
	users      UserRepository
	categories CategoryRepository
	qrcodes    QRCodeRepository
	images     ImageStore
	encoder    Encoder
	resolver   Resolver
	baseURL    string
	newCodeID  func() (string, error)
}

// NewQRCodeService wires issuance. publicBaseURL prefixes the URL encoded in every image.
func NewQRCodeService(users UserRepository, categories CategoryRepository, qrcodes QRCodeRepository,
	images ImageStore, encoder Encoder, resolver Resolver, publicBaseURL string,
) *QRCodeService {
	return &QRCodeService{
		users:      users,
		categories: categories,
		qrcodes:    qrcodes,
		images:     images,
		encoder:    encoder,
		resolver:   resolver,
		baseURL:    strings.TrimRight(publicBaseURL, "/"),
		newCodeID:  utils.NewCodeID,
	}
}

// ScanURL is the content encoded into a code's image.
func (s *QRCodeService) ScanURL(codeID string) string {
	return s.baseURL + "/scan/" + codeID
}

// Issue creates a QR code for an active user and category. The image and the record
// are written as a pair: if the record write fails the stored image is removed again.
func (s *QRCodeService) Issue(ctx context.Context, req IssueRequest) (*models.QRCode, error) {
	dest, err := ValidateDestination(req.WebsiteURL)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(req.WebsiteTitle)
	if title == "" {
		return nil, apperr.Validation("websiteTitle is required")
	}

	user, err := s.users.GetUser(ctx, req.UserID)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeNotFound {
			return nil, apperr.Validation("user does not exist")
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, apperr.Validation("user is not active")
	}

	category, err := s.categories.GetCategory(ctx, req.CategoryID)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeNotFound {
			return nil, apperr.Validation("category does not exist")
		}
		return nil, err
	}
	if !category.IsActive {
		return nil, apperr.Validation("category is not active")
	}

	codeID, err := s.newCodeID()
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "generate code id", err)
	}

	png, err := s.encoder.Encode(s.ScanURL(codeID))
	if err != nil {
		metrics.IssuanceFailures.WithLabelValues("encode").Inc()
		return nil, apperr.Wrap(apperr.CodeInternal, "encode QR image", err)
	}

	if err := s.images.Put(ctx, codeID, png); err != nil {
		metrics.IssuanceFailures.WithLabelValues("image").Inc()
		return nil, apperr.StorageUnavailable("store QR image", err)
	}

	qr := &models.QRCode{
		CodeID:       codeID,
		WebsiteURL:   dest,
		WebsiteTitle: title,
		AssignedToID: user.ID,
		CategoryID:   category.ID,
		IsActive:     true,
		ImageURL:     s.images.URL(codeID),
	}
	if err := s.qrcodes.CreateQRCode(ctx, qr); err != nil {
		metrics.IssuanceFailures.WithLabelValues("record").Inc()
		// The request context may already be done; cleanup must still run.
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if delErr := s.images.Delete(cleanupCtx, codeID); delErr != nil {
			metrics.IssuanceFailures.WithLabelValues("compensate").Inc()
			logging.Ctx(ctx).Error().Err(delErr).Str("code_id", codeID).
				Msg("Failed to remove orphaned QR image")
		}
		return nil, apperr.StorageUnavailable("create QR code record", err)
	}

	qr.AssignedTo = user
	qr.Category = category
	metrics.QRCodesIssued.Inc()
	logging.Ctx(ctx).Info().Str("code_id", codeID).Uint("user_id", user.ID).
		Uint("category_id", category.ID).Msg("QR code issued")
	return qr, nil
}

func (s *QRCodeService) Get(ctx context.Context, codeID string) (*models.QRCode, error) {
	if !utils.ValidCodeID(codeID) {
		return nil, apperr.UnknownCode(codeID)
	}
	return s.qrcodes.GetQRCode(ctx, codeID)
}

// List returns the codes assigned to ownerID, or all codes when ownerID is 0.
func (s *QRCodeService) List(ctx context.Context, ownerID uint) ([]models.QRCode, error) {
	return s.qrcodes.ListQRCodes(ctx, ownerID)
}

func (s *QRCodeService) Update(ctx context.Context, codeID string, req UpdateRequest) (*models.QRCode, error) {
	qr, err := s.Get(ctx, codeID)
	if err != nil {
		return nil, err
	}

	if req.WebsiteURL != nil {
		dest, err := ValidateDestination(*req.WebsiteURL)
		if err != nil {
			return nil, err
		}
		qr.WebsiteURL = dest
	}
	if req.WebsiteTitle != nil {
		title := strings.TrimSpace(*req.WebsiteTitle)
		if title == "" {
			return nil, apperr.Validation("websiteTitle must not be empty")
		}
		qr.WebsiteTitle = title
	}
	if req.CategoryID != nil && *req.CategoryID != qr.CategoryID {
		category, err := s.categories.GetCategory(ctx, *req.CategoryID)
		if err != nil {
			if apperr.CodeOf(err) == apperr.CodeNotFound {
				return nil, apperr.Validation("category does not exist")
			}
			return nil, err
		}
		if !category.IsActive {
			return nil, apperr.Validation("category is not active")
		}
		qr.CategoryID = category.ID
		qr.Category = category
	}
	if req.IsActive != nil {
		qr.IsActive = *req.IsActive
	}

	if err := s.qrcodes.SaveQRCode(ctx, qr); err != nil {
		return nil, err
	}
	if err := s.resolver.Invalidate(ctx, codeID); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("code_id", codeID).Msg("Failed to invalidate resolve cache")
	}
	return qr, nil
}

// Image returns the stored PNG of a code.
func (s *QRCodeService) Image(ctx context.Context, codeID string) ([]byte, error) {
	if !utils.ValidCodeID(codeID) {
		return nil, apperr.NotFound("image not found")
	}
	return s.images.Get(ctx, codeID)
}

// ValidateDestination accepts absolute http(s) URLs with a host and returns the
// trimmed URL.
func ValidateDestination(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", apperr.ErrMalformedDestination
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeMalformedDestination, "malformed destination URL", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", apperr.New(apperr.CodeMalformedDestination, "destination URL must use http or https")
	}
	if u.Host == "" {
		return "", apperr.New(apperr.CodeMalformedDestination, "destination URL must have a host")
	}
	return raw, nil
}
