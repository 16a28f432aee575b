package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"qrtrack/internal/apperr"
	"qrtrack/internal/service"
	"qrtrack/models"
)

// Store implements service.Store on gorm.
type Store struct {
	db *gorm.DB
}

var _ service.Store = (*Store)(nil)

func NewStore(database *gorm.DB) *Store {
	return &Store{db: database}
}

// mapErr converts gorm errors to apperr errors. notFound is returned for missing rows.
func mapErr(op string, err error, notFound *apperr.Error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound) && notFound != nil:
		return notFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Wrap(apperr.CodeConflict, op+": already exists", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return apperr.StorageUnavailable(op, err)
	}
}

// Users

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	err := s.db.WithContext(ctx).Create(u).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict("email already in use")
	}
	return mapErr("create user", err, nil)
}

func (s *Store) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, mapErr("get user", err, apperr.NotFound("user not found"))
	}
	return &u, nil
}

func (s *Store) SaveUser(ctx context.Context, u *models.User) error {
	return mapErr("save user", s.db.WithContext(ctx).Save(u).Error, nil)
}

// Categories

func (s *Store) CreateCategory(ctx context.Context, c *models.Category) error {
	err := s.db.WithContext(ctx).Create(c).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict(fmt.Sprintf("category %q already exists", c.Name))
	}
	return mapErr("create category", err, nil)
}

func (s *Store) GetCategory(ctx context.Context, id uint) (*models.Category, error) {
	var c models.Category
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, mapErr("get category", err, apperr.NotFound("category not found"))
	}
	return &c, nil
}

func (s *Store) FindCategoryByKey(ctx context.Context, nameKey string) (*models.Category, error) {
	var c models.Category
	if err := s.db.WithContext(ctx).Where("name_key = ?", nameKey).First(&c).Error; err != nil {
		return nil, mapErr("find category", err, apperr.NotFound("category not found"))
	}
	return &c, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]models.Category, error) {
	var out []models.Category
	if err := s.db.WithContext(ctx).Order("name").Find(&out).Error; err != nil {
		return nil, mapErr("list categories", err, nil)
	}
	return out, nil
}

func (s *Store) SaveCategory(ctx context.Context, c *models.Category) error {
	err := s.db.WithContext(ctx).Save(c).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict(fmt.Sprintf("category %q already exists", c.Name))
	}
	return mapErr("save category", err, nil)
}

func (s *Store) DeleteCategory(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.Category{}, id)
	if res.Error != nil {
		return mapErr("delete category", res.Error, nil)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("category not found")
	}
	return nil
}

func (s *Store) CountQRCodesByCategory(ctx context.Context, categoryID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.QRCode{}).Where("category_id = ?", categoryID).Count(&n).Error
	return n, mapErr("count category QR codes", err, nil)
}

// QR codes

func (s *Store) CreateQRCode(ctx context.Context, q *models.QRCode) error {
	err := s.db.WithContext(ctx).Omit(clause.Associations).Create(q).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict("code id already exists")
	}
	return mapErr("create QR code", err, nil)
}

func (s *Store) GetQRCode(ctx context.Context, codeID string) (*models.QRCode, error) {
	var q models.QRCode
	err := s.db.WithContext(ctx).
		Preload("Category").
		Preload("AssignedTo").
		Where("code_id = ?", codeID).
		First(&q).Error
	if err != nil {
		return nil, mapErr("get QR code", err, apperr.UnknownCode(codeID))
	}
	return &q, nil
}

func (s *Store) ListQRCodes(ctx context.Context, ownerID uint) ([]models.QRCode, error) {
	query := s.db.WithContext(ctx).Preload("Category").Preload("AssignedTo").Order("id DESC")
	if ownerID != 0 {
		query = query.Where("assigned_to_id = ?", ownerID)
	}
	var out []models.QRCode
	if err := query.Find(&out).Error; err != nil {
		return nil, mapErr("list QR codes", err, nil)
	}
	return out, nil
}

// SaveQRCode writes the editable columns only. scan_count and last_scanned are owned
// by IncrementScanCount and RecountScans.
func (s *Store) SaveQRCode(ctx context.Context, q *models.QRCode) error {
	res := s.db.WithContext(ctx).
		Model(&models.QRCode{ID: q.ID}).
		Select("website_url", "website_title", "category_id", "is_active", "updated_at").
		Updates(map[string]any{
			"website_url":   q.WebsiteURL,
			"website_title": q.WebsiteTitle,
			"category_id":   q.CategoryID,
			"is_active":     q.IsActive,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return mapErr("save QR code", res.Error, nil)
	}
	if res.RowsAffected == 0 {
		return apperr.UnknownCode(q.CodeID)
	}
	return nil
}

func (s *Store) IncrementScanCount(ctx context.Context, id uint, at time.Time) (int64, error) {
	var q models.QRCode
	res := s.db.WithContext(ctx).
		Model(&q).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "scan_count"}}}).
		Where("id = ?", id).
		Updates(map[string]any{
			"scan_count":   gorm.Expr("scan_count + ?", 1),
			"last_scanned": at,
		})
	if res.Error != nil {
		return 0, mapErr("increment scan count", res.Error, nil)
	}
	if res.RowsAffected == 0 {
		return 0, apperr.NotFound("qr code not found")
	}
	return q.ScanCount, nil
}

// Scans

func (s *Store) CreateScan(ctx context.Context, scan *models.Scan) error {
	return mapErr("record scan", s.db.WithContext(ctx).Create(scan).Error, nil)
}

func (s *Store) FindScanCountDrift(ctx context.Context, settledBefore time.Time) ([]service.ScanCountDrift, error) {
	var out []service.ScanCountDrift
	err := s.db.WithContext(ctx).Raw(`
		SELECT qr_codes.id AS qr_code_id, qr_codes.code_id, qr_codes.scan_count AS cached, COUNT(scans.id) AS actual
		FROM qr_codes
		LEFT JOIN scans ON scans.qr_code_id = qr_codes.id
		GROUP BY qr_codes.id, qr_codes.code_id, qr_codes.scan_count
		HAVING qr_codes.scan_count <> COUNT(scans.id)
			AND (MAX(scans.timestamp) IS NULL OR MAX(scans.timestamp) < ?)
		ORDER BY qr_codes.id`, settledBefore).Scan(&out).Error
	if err != nil {
		return nil, mapErr("find scan count drift", err, nil)
	}
	return out, nil
}

func (s *Store) RecountScans(ctx context.Context, qrCodeID uint, settledBefore time.Time) (int64, error) {
	var counts []int64
	err := s.db.WithContext(ctx).Raw(`
		UPDATE qr_codes
		SET scan_count = (SELECT COUNT(*) FROM scans WHERE scans.qr_code_id = qr_codes.id)
		WHERE id = ?
			AND NOT EXISTS (SELECT 1 FROM scans WHERE scans.qr_code_id = qr_codes.id AND scans.timestamp >= ?)
		RETURNING scan_count`, qrCodeID, settledBefore).Scan(&counts).Error
	if err != nil {
		return 0, mapErr("recount scans", err, nil)
	}
	if len(counts) > 0 {
		return counts[0], nil
	}

	var exists int64
	if err := s.db.WithContext(ctx).Model(&models.QRCode{}).Where("id = ?", qrCodeID).Count(&exists).Error; err != nil {
		return 0, mapErr("recount scans", err, nil)
	}
	if exists == 0 {
		return 0, apperr.NotFound("qr code not found")
	}
	return 0, apperr.Conflict("recent scans not settled")
}

// Analytics

// scansOf scopes a scans query to the codes assigned to ownerID; 0 means every code.
func (s *Store) scansOf(ctx context.Context, ownerID uint) *gorm.DB {
	query := s.db.WithContext(ctx).Table("scans")
	if ownerID != 0 {
		query = query.Joins("JOIN qr_codes ON qr_codes.id = scans.qr_code_id").
			Where("qr_codes.assigned_to_id = ?", ownerID)
	}
	return query
}

func (s *Store) qrcodesOf(ctx context.Context, ownerID uint) *gorm.DB {
	query := s.db.WithContext(ctx).Table("qr_codes")
	if ownerID != 0 {
		query = query.Where("qr_codes.assigned_to_id = ?", ownerID)
	}
	return query
}

func (s *Store) DeviceCounts(ctx context.Context, ownerID uint) (service.DeviceCounts, error) {
	var c service.DeviceCounts
	err := s.scansOf(ctx, ownerID).Select(`
		COUNT(*) AS total,
		COALESCE(SUM(CASE WHEN scans.device_is_android THEN 1 ELSE 0 END), 0) AS android,
		COALESCE(SUM(CASE WHEN scans.device_is_ios THEN 1 ELSE 0 END), 0) AS ios,
		COALESCE(SUM(CASE WHEN scans.device_is_desktop THEN 1 ELSE 0 END), 0) AS desktop,
		COALESCE(SUM(CASE WHEN scans.device_is_mobile THEN 1 ELSE 0 END), 0) AS mobile,
		COALESCE(SUM(CASE WHEN scans.device_is_tablet THEN 1 ELSE 0 END), 0) AS tablet`).
		Scan(&c).Error
	return c, mapErr("device counts", err, nil)
}

func (s *Store) ScanBuckets(ctx context.Context, ownerID uint, period service.Period, since time.Time) ([]service.TimeBucket, error) {
	// period is one of the validated Period constants, which are also date_trunc units.
	bucket := fmt.Sprintf("date_trunc('%s', scans.timestamp AT TIME ZONE 'UTC')", period)

	var out []service.TimeBucket
	err := s.scansOf(ctx, ownerID).
		Select(bucket+" AS start, COUNT(*) AS count").
		Where("scans.timestamp >= ?", since).
		Group("1").
		Order("1").
		Scan(&out).Error
	if err != nil {
		return nil, mapErr("scan buckets", err, nil)
	}
	return out, nil
}

func (s *Store) CategoryScanTotals(ctx context.Context, ownerID uint) ([]service.CategoryTotal, error) {
	var out []service.CategoryTotal
	err := s.qrcodesOf(ctx, ownerID).
		Select(`categories.id AS category_id, categories.name, categories.color,
			COUNT(qr_codes.id) AS qr_codes, COALESCE(SUM(qr_codes.scan_count), 0) AS scans`).
		Joins("JOIN categories ON categories.id = qr_codes.category_id").
		Group("categories.id, categories.name, categories.color").
		Order("scans DESC, categories.name").
		Scan(&out).Error
	if err != nil {
		return nil, mapErr("category totals", err, nil)
	}
	return out, nil
}

func (s *Store) QRCodeScanTotals(ctx context.Context, ownerID uint, limit int) ([]service.QRCodeTotal, error) {
	var out []service.QRCodeTotal
	query := s.qrcodesOf(ctx, ownerID).
		Select(`qr_codes.code_id, qr_codes.website_title, qr_codes.website_url,
			COALESCE(categories.name, '') AS category_name, qr_codes.is_active, qr_codes.scan_count AS scans`).
		Joins("LEFT JOIN categories ON categories.id = qr_codes.category_id").
		Order("qr_codes.scan_count DESC, qr_codes.code_id")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Scan(&out).Error; err != nil {
		return nil, mapErr("QR code totals", err, nil)
	}
	return out, nil
}

func (s *Store) TotalScanCount(ctx context.Context, ownerID uint) (int64, error) {
	var total int64
	err := s.qrcodesOf(ctx, ownerID).Select("COALESCE(SUM(qr_codes.scan_count), 0)").Scan(&total).Error
	return total, mapErr("total scan count", err, nil)
}
