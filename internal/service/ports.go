package service

import (
	"context"
	"time"

	"qrtrack/models"
)

// Repositories return apperr errors: NotFound / CodeNotFound for missing rows,
// Conflict for unique violations and StorageUnavailable for everything else.

type UserRepository interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id uint) (*models.User, error)
	SaveUser(ctx context.Context, u *models.User) error
}

type CategoryRepository interface {
	CreateCategory(ctx context.Context, c *models.Category) error
	GetCategory(ctx context.Context, id uint) (*models.Category, error)
	FindCategoryByKey(ctx context.Context, nameKey string) (*models.Category, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	SaveCategory(ctx context.Context, c *models.Category) error
	DeleteCategory(ctx context.Context, id uint) error
	CountQRCodesByCategory(ctx context.Context, categoryID uint) (int64, error)
}

type QRCodeRepository interface {
	CreateQRCode(ctx context.Context, q *models.QRCode) error
	// GetQRCode loads the code with its category and owner, whatever its state.
	GetQRCode(ctx context.Context, codeID string) (*models.QRCode, error)
	ListQRCodes(ctx context.Context, ownerID uint) ([]models.QRCode, error)
	SaveQRCode(ctx context.Context, q *models.QRCode) error
	// IncrementScanCount adds exactly one to scan_count in a single statement and
	// returns the new value.
	IncrementScanCount(ctx context.Context, id uint, at time.Time) (int64, error)
}

type ScanRepository interface {
	CreateScan(ctx context.Context, s *models.Scan) error
	// FindScanCountDrift skips codes with any scan at or after settledBefore.
	FindScanCountDrift(ctx context.Context, settledBefore time.Time) ([]ScanCountDrift, error)
	// RecountScans sets scan_count from the scan rows in one statement. It returns
	// Conflict and writes nothing when the code has a scan at or after settledBefore.
	RecountScans(ctx context.Context, qrCodeID uint, settledBefore time.Time) (int64, error)
}

// AnalyticsRepository queries are owner scoped; ownerID 0 covers every code.
type AnalyticsRepository interface {
	DeviceCounts(ctx context.Context, ownerID uint) (DeviceCounts, error)
	ScanBuckets(ctx context.Context, ownerID uint, period Period, since time.Time) ([]TimeBucket, error)
	CategoryScanTotals(ctx context.Context, ownerID uint) ([]CategoryTotal, error)
	QRCodeScanTotals(ctx context.Context, ownerID uint, limit int) ([]QRCodeTotal, error)
	TotalScanCount(ctx context.Context, ownerID uint) (int64, error)
}

// Store is everything a persistence backend provides.
type Store interface {
	UserRepository
	CategoryRepository
	QRCodeRepository
	ScanRepository
	AnalyticsRepository
}

// ImageStore persists encoded QR images keyed by codeId.
type ImageStore interface {
	Put(ctx context.Context, codeID string, png []byte) error
	Get(ctx context.Context, codeID string) ([]byte, error)
	Delete(ctx context.Context, codeID string) error
	// URL is the stable path an image is served from.
	URL(codeID string) string
}

// Encoder turns content into a scannable PNG.
type Encoder interface {
	Encode(content string) ([]byte, error)
}

// Resolver finds the redirect target of a code. Implementations may cache.
type Resolver interface {
	Resolve(ctx context.Context, codeID string) (*models.QRTarget, error)
	Invalidate(ctx context.Context, codeID string) error
}

type ScanCountDrift struct {
	QRCodeID uint   `json:"qrCodeId"`
	CodeID   string `json:"codeId"`
	Cached   int64  `json:"cached"`
	Actual   int64  `json:"actual"`
}

// StoreResolver resolves straight from the repository, without caching.
type StoreResolver struct {
	repo QRCodeRepository
}

func NewStoreResolver(repo QRCodeRepository) *StoreResolver {
	return &StoreResolver{repo: repo}
}

func (r *StoreResolver) Resolve(ctx context.Context, codeID string) (*models.QRTarget, error) {
	q, err := r.repo.GetQRCode(ctx, codeID)
	if err != nil {
		return nil, err
	}
	t := q.Target()
	return &t, nil
}

func (r *StoreResolver) Invalidate(context.Context, string) error { return nil }
