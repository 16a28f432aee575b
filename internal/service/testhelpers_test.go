package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"qrtrack/internal/apperr"
	"qrtrack/internal/memstore"
	"qrtrack/internal/service"
	"qrtrack/models"
)

var errInjected = errors.New("injected failure")

// fakeImages is an ImageStore with switchable failures.
type fakeImages struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	failPut bool
	deleted []string
}

func newFakeImages() *fakeImages {
	return &fakeImages{blobs: make(map[string][]byte)}
}

func (f *fakeImages) Put(_ context.Context, codeID string, png []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut {
		return errInjected
	}
	f.blobs[codeID] = png
	return nil
}

func (f *fakeImages) Get(_ context.Context, codeID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blobs[codeID]
	if !ok {
		return nil, apperr.NotFound("image not found")
	}
	return b, nil
}

func (f *fakeImages) Delete(_ context.Context, codeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blobs, codeID)
	f.deleted = append(f.deleted, codeID)
	return nil
}

func (f *fakeImages) URL(codeID string) string { return "/qr-images/" + codeID }

func (f *fakeImages) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.blobs)
}

type stubEncoder struct{}

func (stubEncoder) Encode(content string) ([]byte, error) {
	return []byte("png:" + content), nil
}

// flakyStore wraps memstore with switchable write failures.
type flakyStore struct {
	*memstore.Store
	failCreateQRCode bool
	failIncrement    bool
	failCreateScan   bool
}

func (s *flakyStore) CreateQRCode(ctx context.Context, q *models.QRCode) error {
	if s.failCreateQRCode {
		return apperr.StorageUnavailable("create QR code", errInjected)
	}
	return s.Store.CreateQRCode(ctx, q)
}

func (s *flakyStore) IncrementScanCount(ctx context.Context, id uint, at time.Time) (int64, error) {
	if s.failIncrement {
		return 0, apperr.StorageUnavailable("increment", errInjected)
	}
	return s.Store.IncrementScanCount(ctx, id, at)
}

func (s *flakyStore) CreateScan(ctx context.Context, scan *models.Scan) error {
	if s.failCreateScan {
		return apperr.StorageUnavailable("record scan", errInjected)
	}
	return s.Store.CreateScan(ctx, scan)
}

type fixture struct {
	store      *flakyStore
	images     *fakeImages
	qrcodes    *service.QRCodeService
	scans      *service.ScanService
	analytics  *service.AnalyticsService
	categories *service.CategoryService
	users      *service.UserService
	user       *models.User
	category   *models.Category
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store := &flakyStore{Store: memstore.New()}
	images := newFakeImages()
	resolver := service.NewStoreResolver(store)

	f := &fixture{
		store:      store,
		images:     images,
		qrcodes:    service.NewQRCodeService(store, store, store, images, stubEncoder{}, resolver, "https://qr.example.com/"),
		scans:      service.NewScanService(store, store, resolver),
		analytics:  service.NewAnalyticsService(store),
		categories: service.NewCategoryService(store),
		users:      service.NewUserService(store),
	}

	var err error
	f.user, err = f.users.Create(ctx, service.UserRequest{Name: "Owner", Email: "owner@example.com"})
	require.NoError(t, err)
	f.category, err = f.categories.Create(ctx, service.CategoryRequest{Name: "Retail", Color: "#336699"}, f.user.ID)
	require.NoError(t, err)
	return f
}

func (f *fixture) issue(t *testing.T, url string) *models.QRCode {
	t.Helper()
	qr, err := f.qrcodes.Issue(context.Background(), service.IssueRequest{
		UserID:       f.user.ID,
		CategoryID:   f.category.ID,
		WebsiteURL:   url,
		WebsiteTitle: "Example",
	})
	require.NoError(t, err)
	return qr
}

func (f *fixture) qrCount(t *testing.T) int {
	t.Helper()
	list, err := f.store.ListQRCodes(context.Background(), 0)
	require.NoError(t, err)
	return len(list)
}
