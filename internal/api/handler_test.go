package api_test

import (
	"bytes"
	"context"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrtrack/internal/api"
	"qrtrack/internal/authz"
	"qrtrack/internal/imagestore"
	"qrtrack/internal/memstore"
	"qrtrack/internal/middleware"
	"qrtrack/internal/qrimage"
	"qrtrack/internal/router"
	"qrtrack/internal/service"
	"qrtrack/models"
)

const (
	secret    = "handler-test-secret"
	issuer    = "qrtrack"
	namespace = "qr-images"
	iphoneUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 14_0 like Mac OS X)"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type env struct {
	t      *testing.T
	engine *gin.Engine
	store  *memstore.Store
	admin  *models.User
	owner  *models.User
	cat    *models.Category
}

func setup(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	store := memstore.New()
	images, err := imagestore.Open(imagestore.Config{InMemory: true, Namespace: namespace})
	require.NoError(t, err)
	t.Cleanup(func() { _ = images.Close() })

	resolver := service.NewStoreResolver(store)
	h := api.NewHandler(api.Services{
		QRCodes:    service.NewQRCodeService(store, store, store, images, qrimage.NewEncoder(128), resolver, "https://qr.example.com"),
		Scans:      service.NewScanService(store, store, resolver),
		Analytics:  service.NewAnalyticsService(store),
		Categories: service.NewCategoryService(store),
		Users:      service.NewUserService(store),
	}, nil)

	enforcer, err := authz.NewEnforcer("")
	require.NoError(t, err)

	engine := router.NewEngine()
	router.SetupRoutes(engine, h, router.Options{
		ImageNamespace: namespace,
		JWTSecret:      secret,
		JWTIssuer:      issuer,
		Authorizer:     enforcer,
	})

	admin := &models.User{Name: "Admin", Email: "admin@example.com", Role: models.RoleAdmin, IsActive: true}
	require.NoError(t, store.CreateUser(ctx, admin))
	owner := &models.User{Name: "Owner", Email: "owner@example.com", Role: models.RoleUser, IsActive: true}
	require.NoError(t, store.CreateUser(ctx, owner))
	cat := &models.Category{Name: "Retail", NameKey: "retail", Color: "#336699", IsActive: true}
	require.NoError(t, store.CreateCategory(ctx, cat))

	return &env{t: t, engine: engine, store: store, admin: admin, owner: owner, cat: cat}
}

func (e *env) token(u *models.User) string {
	tok, err := middleware.GenerateToken(secret, issuer, u.ID, u.Role, time.Hour)
	require.NoError(e.t, err)
	return tok
}

func (e *env) do(method, path string, body any, as *models.User, headers ...string) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		req.Header.Set("Authorization", "Bearer "+e.token(as))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var out envelope[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (e *env) issue(url string) models.QRCode {
	e.t.Helper()
	w := e.do(http.MethodPost, "/api/qrcodes", service.IssueRequest{
		UserID:       e.owner.ID,
		CategoryID:   e.cat.ID,
		WebsiteURL:   url,
		WebsiteTitle: "Example",
	}, e.admin)
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.QRCode](e.t, w).Data
}

func TestIssueAndScanRedirect(t *testing.T) {
	e := setup(t)
	qr := e.issue("https://example.com")
	assert.Len(t, qr.CodeID, 12)
	assert.Equal(t, "/"+namespace+"/"+qr.CodeID, qr.ImageURL)
	assert.Zero(t, qr.ScanCount)

	w := e.do(http.MethodGet, "/scan/"+qr.CodeID, nil, nil, "User-Agent", iphoneUA)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://example.com", w.Header().Get("Location"))

	scans := e.store.Scans()
	require.Len(t, scans, 1)
	assert.True(t, scans[0].DeviceInfo.IsIOS)
	assert.True(t, scans[0].DeviceInfo.IsMobile)

	got, err := e.store.GetQRCode(context.Background(), qr.CodeID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ScanCount)
	require.NotNil(t, got.LastScanned)
	assert.WithinDuration(t, time.Now(), *got.LastScanned, time.Second)
}

func TestScanRedirect_InvalidCodeServesHTML(t *testing.T) {
	e := setup(t)

	w := e.do(http.MethodGet, "/scan/abcDEF012345", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Invalid QR code")
	assert.Empty(t, e.store.Scans())
}

func TestVerify(t *testing.T) {
	e := setup(t)
	qr := e.issue("https://example.com")

	for i := 0; i < 3; i++ {
		w := e.do(http.MethodGet, "/verify/"+qr.CodeID, nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp api.VerifyResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Valid)
		require.NotNil(t, resp.QRCode)
		assert.Equal(t, "https://example.com", resp.QRCode.WebsiteURL)
		assert.Zero(t, resp.QRCode.ScanCount)
		require.NotNil(t, resp.QRCode.Category)
		assert.Equal(t, "Retail", resp.QRCode.Category.Name)
	}
	assert.Empty(t, e.store.Scans())
}

func TestVerify_NeverIssued(t *testing.T) {
	e := setup(t)

	w := e.do(http.MethodGet, "/verify/zzzzzzzzzzzz", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp api.VerifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Valid)
	assert.False(t, resp.Success)
	assert.Nil(t, resp.QRCode)
	assert.Equal(t, "invalid QR code", resp.Message)
	assert.Empty(t, e.store.Scans())
}

func TestScanVerify_BothRoutes(t *testing.T) {
	e := setup(t)
	qr := e.issue("https://example.com")

	for i, path := range []string{"/verify/" + qr.CodeID + "/scan", "/scan-verify/" + qr.CodeID} {
		w := e.do(http.MethodPost, path, nil, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp api.VerifyResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Valid)
		assert.Equal(t, int64(i+1), resp.QRCode.ScanCount)
	}
	assert.Len(t, e.store.Scans(), 2)
}

func TestScan_InactiveCode(t *testing.T) {
	e := setup(t)
	qr := e.issue("https://example.com")

	w := e.do(http.MethodPatch, "/api/qrcodes/"+qr.CodeID, map[string]any{"isActive": false}, e.admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(http.MethodPost, "/scan-verify/"+qr.CodeID, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	got, err := e.store.GetQRCode(context.Background(), qr.CodeID)
	require.NoError(t, err)
	assert.Zero(t, got.ScanCount)
	assert.Empty(t, e.store.Scans())
}

func TestImage(t *testing.T) {
	e := setup(t)
	qr := e.issue("https://example.com")

	w := e.do(http.MethodGet, qr.ImageURL, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	_, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	assert.NoError(t, err)

	w = e.do(http.MethodGet, "/"+namespace+"/zzzzzzzzzzzz", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIssue_Validation(t *testing.T) {
	e := setup(t)

	tests := []struct {
		name string
		body service.IssueRequest
		want int
	}{
		{"malformed url", service.IssueRequest{UserID: e.owner.ID, CategoryID: e.cat.ID, WebsiteURL: "not a url", WebsiteTitle: "x"}, http.StatusBadRequest},
		{"ftp url", service.IssueRequest{UserID: e.owner.ID, CategoryID: e.cat.ID, WebsiteURL: "ftp://example.com", WebsiteTitle: "x"}, http.StatusBadRequest},
		{"unknown user", service.IssueRequest{UserID: 999, CategoryID: e.cat.ID, WebsiteURL: "https://example.com", WebsiteTitle: "x"}, http.StatusBadRequest},
		{"missing fields", service.IssueRequest{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(http.MethodPost, "/api/qrcodes", tt.body, e.admin)
			assert.Equal(t, tt.want, w.Code)
			assert.False(t, decode[any](t, w).Success)
		})
	}

	list, err := e.store.ListQRCodes(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAPI_AuthAndRoles(t *testing.T) {
	e := setup(t)

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/qrcodes", nil, nil).Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/api/categories", service.CategoryRequest{Name: "x"}, e.owner).Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/categories", nil, e.owner).Code)

	other := "/api/users/" + strconv.FormatUint(uint64(e.admin.ID), 10)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, other, nil, e.owner).Code)
	self := "/api/users/" + strconv.FormatUint(uint64(e.owner.ID), 10)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, self, nil, e.owner).Code)
}

func TestListQRCodes_OwnerScoped(t *testing.T) {
	e := setup(t)
	qr := e.issue("https://example.com")

	w := e.do(http.MethodGet, "/api/qrcodes", nil, e.owner)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.QRCode](t, w).Data, 1)

	stranger := &models.User{Name: "Stranger", Email: "s@example.com", Role: models.RoleUser, IsActive: true}
	require.NoError(t, e.store.CreateUser(context.Background(), stranger))

	w = e.do(http.MethodGet, "/api/qrcodes?owner="+strconv.FormatUint(uint64(e.owner.ID), 10), nil, stranger)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]models.QRCode](t, w).Data)

	w = e.do(http.MethodGet, "/api/qrcodes/"+qr.CodeID, nil, stranger)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCategories_CRUD(t *testing.T) {
	e := setup(t)

	w := e.do(http.MethodPost, "/api/categories", service.CategoryRequest{Name: "Events", Color: "#00ff00"}, e.admin)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[models.Category](t, w).Data
	assert.Equal(t, e.admin.ID, created.CreatedBy)

	w = e.do(http.MethodPost, "/api/categories", service.CategoryRequest{Name: "  EVENTS "}, e.admin)
	assert.Equal(t, http.StatusConflict, w.Code)

	id := strconv.FormatUint(uint64(created.ID), 10)
	w = e.do(http.MethodPut, "/api/categories/"+id, service.CategoryRequest{Name: "Festivals"}, e.admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Festivals", decode[models.Category](t, w).Data.Name)

	w = e.do(http.MethodDelete, "/api/categories/"+id, nil, e.admin)
	assert.Equal(t, http.StatusOK, w.Code)

	e.issue("https://example.com")
	w = e.do(http.MethodDelete, "/api/categories/"+strconv.FormatUint(uint64(e.cat.ID), 10), nil, e.admin)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, decode[any](t, w).Message, "1 QR code")
}

func TestUsers_WebsiteURLs(t *testing.T) {
	e := setup(t)

	w := e.do(http.MethodPost, "/api/users", service.UserRequest{Name: "New", Email: "New@Example.com"}, e.admin)
	require.Equal(t, http.StatusCreated, w.Code)
	u := decode[models.User](t, w).Data
	assert.Equal(t, "new@example.com", u.Email)
	assert.Equal(t, models.RoleUser, u.Role)

	base := "/api/users/" + strconv.FormatUint(uint64(u.ID), 10) + "/websites"
	for i := 0; i < models.MaxWebsiteURLs; i++ {
		w = e.do(http.MethodPost, base, service.WebsiteURLRequest{URL: "https://example.com/" + strconv.Itoa(i)}, e.admin)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	w = e.do(http.MethodPost, base, service.WebsiteURLRequest{URL: "https://example.com/extra"}, e.admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodDelete, base+"/0", nil, e.admin)
	require.Equal(t, http.StatusOK, w.Code)
	remaining := decode[models.User](t, w).Data.WebsiteURLs
	require.Len(t, remaining, 1)
	assert.Equal(t, "https://example.com/1", remaining[0].URL)

	w = e.do(http.MethodDelete, base+"/5", nil, e.admin)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnalytics(t *testing.T) {
	e := setup(t)

	w := e.do(http.MethodGet, "/api/analytics/devices", nil, e.owner)
	require.Equal(t, http.StatusOK, w.Code)
	empty := decode[service.DeviceBreakdown](t, w).Data
	assert.Zero(t, empty.Total)
	assert.Zero(t, empty.IOS.Percentage)

	qr := e.issue("https://example.com")
	e.do(http.MethodGet, "/scan/"+qr.CodeID, nil, nil, "User-Agent", iphoneUA)
	e.do(http.MethodGet, "/scan/"+qr.CodeID, nil, nil, "User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")

	w = e.do(http.MethodGet, "/api/analytics/devices", nil, e.owner)
	require.Equal(t, http.StatusOK, w.Code)
	devices := decode[service.DeviceBreakdown](t, w).Data
	assert.Equal(t, int64(2), devices.Total)
	assert.Equal(t, 50.0, devices.IOS.Percentage)
	assert.Equal(t, 50.0, devices.Desktop.Percentage)

	w = e.do(http.MethodGet, "/api/analytics/activity?period=week", nil, e.owner)
	require.Equal(t, http.StatusOK, w.Code)
	activity := decode[service.Activity](t, w).Data
	assert.Equal(t, service.PeriodWeek, activity.Period)
	assert.Equal(t, int64(2), activity.Total)
	assert.Len(t, activity.Buckets, 1)

	w = e.do(http.MethodGet, "/api/analytics/activity?period=year", nil, e.owner)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodGet, "/api/analytics/overview?limit=5", nil, e.admin)
	require.Equal(t, http.StatusOK, w.Code)
	overview := decode[service.Overview](t, w).Data
	require.NotNil(t, overview.QRCodes)
	require.Len(t, overview.QRCodes.QRCodes, 1)
	assert.Equal(t, 100.0, overview.QRCodes.QRCodes[0].Percentage)
	require.Len(t, overview.Categories.Categories, 1)
	assert.Equal(t, 1, overview.Categories.Categories[0].Rank)
}

func TestReconcile(t *testing.T) {
	e := setup(t)
	qr := e.issue("https://example.com")
	e.do(http.MethodGet, "/scan/"+qr.CodeID, nil, nil)

	w := e.do(http.MethodPost, "/api/qrcodes/reconcile", nil, e.admin)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode[struct {
		Reconciled int `json:"reconciled"`
	}](t, w).Data
	assert.Zero(t, out.Reconciled)

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/api/qrcodes/reconcile", nil, e.owner).Code)
}

func TestHealth(t *testing.T) {
	e := setup(t)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/healthz", nil, nil).Code)
}
